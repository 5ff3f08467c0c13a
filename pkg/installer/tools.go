package installer

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/rust-install/rim/pkg/manifest"
)

// selectedTool pairs a tool name with its manifest entry, in manifest
// declaration order.
type selectedTool struct {
	Name string
	Info *manifest.ToolInfo
}

// splitSelection partitions the chosen components into toolchain
// component names and tools. The toolchain profile row is implied by the
// run itself and carries no separate name here.
func splitSelection(components []*manifest.Component) (toolchainComponents []string, tools []selectedTool) {
	for _, comp := range components {
		switch comp.Type {
		case manifest.ComponentToolchainComponent:
			toolchainComponents = append(toolchainComponents, comp.Name)
		case manifest.ComponentTool:
			if comp.Tool != nil {
				tools = append(tools, selectedTool{Name: comp.Name, Info: comp.Tool})
			}
		}
	}
	return toolchainComponents, tools
}

// rejectConflicts errors out naming every pair of selected tools that
// declare each other conflicting. This is the only whole-batch rejection
// past setup.
func rejectConflicts(tools []selectedTool) error {
	selected := make(map[string]bool, len(tools))
	for _, t := range tools {
		selected[t.Name] = true
	}

	seen := make(map[[2]string]bool)
	var pairs []string
	for _, t := range tools {
		if t.Info == nil {
			continue
		}
		for _, other := range t.Info.Conflicts {
			if !selected[other] || other == t.Name {
				continue
			}
			key := [2]string{t.Name, other}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, key[0]+" and "+key[1])
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Strings(pairs)
	return errors.Errorf("conflicting tools selected: %s", strings.Join(pairs, ", "))
}

// sortByRequires orders tools so that every tool follows the selected
// tools it requires. Ties keep declaration order; a requirement cycle is
// a configuration error. Requirements naming something outside the
// selection (the "rust" pseudo-dependency, unselected tools) impose no
// ordering.
func sortByRequires(tools []selectedTool) ([]selectedTool, error) {
	index := make(map[string]int, len(tools))
	for i, t := range tools {
		index[t.Name] = i
	}

	done := make([]bool, len(tools))
	out := make([]selectedTool, 0, len(tools))
	for len(out) < len(tools) {
		progressed := false
		for i, t := range tools {
			if done[i] {
				continue
			}
			ready := true
			for _, req := range requiresOf(t) {
				if j, ok := index[req]; ok && !done[j] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			done[i] = true
			out = append(out, t)
			progressed = true
		}
		if !progressed {
			var remaining []string
			for i, t := range tools {
				if !done[i] {
					remaining = append(remaining, t.Name)
				}
			}
			return nil, errors.Errorf("requirement cycle between tools: %s", strings.Join(remaining, ", "))
		}
	}
	return out, nil
}

func requiresOf(t selectedTool) []string {
	if t.Info == nil {
		return nil
	}
	return t.Info.Requires
}

// splitPhases separates tools installable before the toolchain from
// those needing cargo or an installed rust.
func splitPhases(tools []selectedTool) (early, late []selectedTool) {
	for _, t := range tools {
		if needsToolchain(t) {
			late = append(late, t)
		} else {
			early = append(early, t)
		}
	}
	return early, late
}

func needsToolchain(t selectedTool) bool {
	if t.Info == nil {
		return false
	}
	if t.Info.IsCargoTool() {
		return true
	}
	for _, req := range t.Info.Requires {
		if req == "rust" {
			return true
		}
	}
	return false
}

func toolNamesOf(tools []selectedTool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
