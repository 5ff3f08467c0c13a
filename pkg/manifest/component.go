package manifest

import "os/exec"

// ComponentType distinguishes the rows of a component listing.
type ComponentType int

const (
	ComponentToolchainProfile ComponentType = iota
	ComponentToolchainComponent
	ComponentTool
)

func (t ComponentType) String() string {
	switch t {
	case ComponentToolchainProfile:
		return "toolchain-profile"
	case ComponentToolchainComponent:
		return "toolchain-component"
	case ComponentTool:
		return "tool"
	}
	return ""
}

// Component is a user-selectable item derived from the manifest: the
// toolchain profile, one entry per toolchain component and one per tool.
type Component struct {
	Name        string
	DisplayName string
	Description string
	Category    string
	Version     string

	Type ComponentType

	Required  bool
	Optional  bool
	Installed bool

	// Tool points into the manifest for ComponentTool entries, so writes
	// through it (restricted-source answers) reach the manifest.
	Tool *ToolInfo
}

// customToolProbes maps tools with host-level installers to the command
// their presence is detected by.
var customToolProbes = map[string]string{
	"vscode":   "code",
	"vscodium": "codium",
}

// CurrentTargetComponents synthesizes the component listing for the host
// triple: the toolchain profile first, then toolchain components, then
// tools in declaration order. With checkExistence set, tools known to
// install outside the managed layout are probed via command lookup.
func (m *ToolkitManifest) CurrentTargetComponents(checkExistence bool) []*Component {
	var out []*Component

	profile := m.Toolchain.ProfileOrDefault()
	toolchainCategory := m.Toolchain.Group
	if toolchainCategory == "" {
		toolchainCategory = "Toolchain"
	}
	out = append(out, &Component{
		Name:        profile.Name,
		DisplayName: profile.VerboseName,
		Description: profile.Description,
		Category:    toolchainCategory,
		Version:     m.Toolchain.Channel,
		Type:        ComponentToolchainProfile,
		Required:    true,
	})

	seen := make(map[string]bool)
	appendToolchainComponent := func(name string, optional bool) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, &Component{
			Name:     name,
			Category: toolchainCategory,
			Version:  m.Toolchain.Channel,
			Type:     ComponentToolchainComponent,
			Optional: optional,
		})
	}
	for _, name := range m.Toolchain.Components {
		appendToolchainComponent(name, false)
	}
	for _, name := range m.Toolchain.OptionalComponents {
		appendToolchainComponent(name, true)
	}

	toolCategory := m.Tools.Group
	if toolCategory == "" {
		toolCategory = "Tools"
	}
	tools := m.CurrentTargetTools()
	for _, name := range tools.Names() {
		info, _ := tools.Get(name)
		comp := &Component{
			Name:        name,
			DisplayName: info.DisplayName,
			Description: m.Tools.Descriptions[name],
			Category:    toolCategory,
			Version:     info.Version(),
			Type:        ComponentTool,
			Required:    info.Required,
			Optional:    info.Optional,
			Tool:        info,
		}
		if checkExistence {
			comp.Installed = toolAppearsInstalled(name)
		}
		out = append(out, comp)
	}
	return out
}

func toolAppearsInstalled(name string) bool {
	cmd, ok := customToolProbes[name]
	if !ok {
		return false
	}
	_, err := exec.LookPath(cmd)
	return err == nil
}
