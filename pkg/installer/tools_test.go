package installer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/manifest"
)

func toolComponent(name string, info *manifest.ToolInfo) *manifest.Component {
	return &manifest.Component{Name: name, Type: manifest.ComponentTool, Tool: info}
}

func TestSplitSelection(t *testing.T) {
	comps := []*manifest.Component{
		{Name: "minimal", Type: manifest.ComponentToolchainProfile},
		{Name: "clippy", Type: manifest.ComponentToolchainComponent},
		{Name: "rustfmt", Type: manifest.ComponentToolchainComponent},
		toolComponent("spotter", &manifest.ToolInfo{}),
		{Name: "orphan", Type: manifest.ComponentTool},
	}

	tcComps, tools := splitSelection(comps)
	assert.Equal(t, []string{"clippy", "rustfmt"}, tcComps)
	require.Len(t, tools, 1)
	assert.Equal(t, "spotter", tools[0].Name)
}

func TestRejectConflicts(t *testing.T) {
	alpha := selectedTool{Name: "alpha", Info: &manifest.ToolInfo{Conflicts: []string{"beta"}}}
	beta := selectedTool{Name: "beta", Info: &manifest.ToolInfo{Conflicts: []string{"alpha"}}}
	gamma := selectedTool{Name: "gamma", Info: &manifest.ToolInfo{Conflicts: []string{"unselected"}}}

	assert.NoError(t, rejectConflicts(nil))
	assert.NoError(t, rejectConflicts([]selectedTool{alpha, gamma}))

	// both directions of the same pair are reported once
	err := rejectConflicts([]selectedTool{alpha, beta, gamma})
	require.Error(t, err)
	assert.EqualError(t, err, "conflicting tools selected: alpha and beta")
}

func TestSortByRequires(t *testing.T) {
	base := selectedTool{Name: "base", Info: &manifest.ToolInfo{}}
	mid := selectedTool{Name: "mid", Info: &manifest.ToolInfo{Requires: []string{"base"}}}
	top := selectedTool{Name: "top", Info: &manifest.ToolInfo{Requires: []string{"mid", "rust"}}}
	solo := selectedTool{Name: "solo", Info: &manifest.ToolInfo{}}

	ordered, err := sortByRequires([]selectedTool{top, solo, mid, base})
	require.NoError(t, err)
	assert.Equal(t, []string{"solo", "base", "mid", "top"}, toolNamesOf(ordered))

	// declaration order survives when nothing imposes an ordering
	ordered, err = sortByRequires([]selectedTool{solo, base, mid})
	require.NoError(t, err)
	assert.Equal(t, []string{"solo", "base", "mid"}, toolNamesOf(ordered))
}

func TestSortByRequiresCycle(t *testing.T) {
	ping := selectedTool{Name: "ping", Info: &manifest.ToolInfo{Requires: []string{"pong"}}}
	pong := selectedTool{Name: "pong", Info: &manifest.ToolInfo{Requires: []string{"ping"}}}

	_, err := sortByRequires([]selectedTool{ping, pong})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requirement cycle between tools")
	assert.Contains(t, err.Error(), "ping")
	assert.Contains(t, err.Error(), "pong")
}

func TestSplitPhases(t *testing.T) {
	fromURL := selectedTool{Name: "fromurl", Info: &manifest.ToolInfo{
		Source: &manifest.ToolSource{Kind: manifest.SourceURL, URL: "https://example.com/x.zip"},
	}}
	fromCargo := selectedTool{Name: "fromcargo", Info: &manifest.ToolInfo{
		Source: &manifest.ToolSource{Kind: manifest.SourceVersion, Version: "1.0.0"},
	}}
	wrapper := selectedTool{Name: "wrapper", Info: &manifest.ToolInfo{
		Requires: []string{"rust"},
		Source:   &manifest.ToolSource{Kind: manifest.SourcePath, Path: "/payload"},
	}}

	early, late := splitPhases([]selectedTool{fromURL, fromCargo, wrapper})
	assert.Equal(t, []string{"fromurl"}, toolNamesOf(early))
	assert.Equal(t, []string{"fromcargo", "wrapper"}, toolNamesOf(late))
}

func TestUninstallOrder(t *testing.T) {
	i := &Installation{record: fingerprint.New(t.TempDir())}
	i.record.AddToolRecord("editor", fingerprint.ToolRecord{Kind: manifest.KindDirWithBin})
	i.record.AddToolRecord("linter", fingerprint.ToolRecord{Kind: manifest.KindCargoTool})
	i.record.AddToolRecord("rules", fingerprint.ToolRecord{Kind: manifest.KindRuleSet})
	i.record.AddToolRecord("lib", fingerprint.ToolRecord{Kind: manifest.KindCrate})

	got := i.uninstallOrder(i.record.ToolNames())
	assert.Equal(t, []string{"lib", "rules", "linter", "editor"}, got)
}
