package manifest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullManifest = `
name = "Rust Toolkit"
version = "1.0.0"
edition = "community"
rustup-dist-server = "https://example.com/dist"
rustup-update-root = "https://example.com/rustup"
cargo-registry = { name = "mirror", index = "sparse+https://example.com/index/" }

[proxy]
http = "http://proxy:8080"
https = "http://proxy:8080"
no_proxy = "localhost,.internal"

[rust]
version = "1.81.0"
profile = { name = "minimal", verbose-name = "Basic", description = "Core toolchain" }
components = ["clippy", "rustfmt"]
optional-components = ["rust-docs"]
group = "Rust"

[tools.descriptions]
flamegraph = "Profiling helper"

[tools.target.x86_64-unknown-linux-gnu]
flamegraph = "0.6.5"
mytool = { required = true, version = "1.2.0", url = "https://example.com/mytool.tar.gz", dependencies = ["rust"] }
editor = { optional = true, gui-only = true, restricted = true, default = "https://example.com/editor.zip" }

[tools.target.all]
cargo-expand = "1.0.88"
`

func TestFromStrMinimal(t *testing.T) {
	m, err := FromStr(`[rust]
version = "1.80.1"`)
	require.NoError(t, err)
	assert.Equal(t, "1.80.1", m.Toolchain.Channel)
	assert.Empty(t, m.Tools.Target)
	assert.False(t, m.IsOffline)
}

func TestFromStrToolchainAlias(t *testing.T) {
	m, err := FromStr(`[toolchain]
channel = "stable"`)
	require.NoError(t, err)
	assert.Equal(t, "stable", m.Toolchain.Channel)
}

func TestFromStrFull(t *testing.T) {
	m, err := FromStr(fullManifest)
	require.NoError(t, err)

	assert.Equal(t, "Rust Toolkit", m.Name)
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, "community", m.Edition)
	assert.Equal(t, "https://example.com/dist", m.RustupDistServer)
	require.NotNil(t, m.CargoRegistry)
	assert.Equal(t, "mirror", m.CargoRegistry.Name)

	require.NotNil(t, m.Proxy)
	assert.Equal(t, "localhost,.internal", m.Proxy.NoProxy)

	assert.Equal(t, "1.81.0", m.Toolchain.Channel)
	require.NotNil(t, m.Toolchain.Profile)
	assert.Equal(t, "minimal", m.Toolchain.Profile.Name)
	assert.Equal(t, "Basic", m.Toolchain.Profile.VerboseName)
	assert.Equal(t, []string{"clippy", "rustfmt"}, m.Toolchain.Components)
	assert.Equal(t, []string{"rust-docs"}, m.Toolchain.OptionalComponents)

	linux := m.Tools.Target["x86_64-unknown-linux-gnu"]
	require.NotNil(t, linux)
	assert.Equal(t, []string{"flamegraph", "mytool", "editor"}, linux.Names())

	flamegraph, ok := linux.Get("flamegraph")
	require.True(t, ok)
	require.NotNil(t, flamegraph.Source)
	assert.Equal(t, SourceVersion, flamegraph.Source.Kind)
	assert.Equal(t, "0.6.5", flamegraph.Source.Version)
	assert.True(t, flamegraph.IsCargoTool())

	mytool, ok := linux.Get("mytool")
	require.True(t, ok)
	assert.True(t, mytool.Required)
	assert.Equal(t, []string{"rust"}, mytool.Requires, "dependencies is an alias for requires")
	require.NotNil(t, mytool.Source)
	assert.Equal(t, SourceURL, mytool.Source.Kind)
	assert.Equal(t, "1.2.0", mytool.Source.Version)

	editor, ok := linux.Get("editor")
	require.True(t, ok)
	assert.True(t, editor.Optional)
	assert.True(t, editor.GUIOnly)
	require.True(t, editor.IsRestricted())
	assert.Equal(t, "https://example.com/editor.zip", editor.Source.Default)
	assert.Empty(t, editor.Source.Source)

	all := m.Tools.Target["all"]
	require.NotNil(t, all)
	assert.Equal(t, []string{"cargo-expand"}, all.Names())
}

func TestFromStrDeclarationOrderPreserved(t *testing.T) {
	raw := `[rust]
channel = "stable"

[tools.target.all]
zz = "1.0.0"
aa = "2.0.0"
mm = { url = "https://example.com/mm.zip" }
bb = "3.0.0"
`
	m, err := FromStr(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"zz", "aa", "mm", "bb"}, m.Tools.Target["all"].Names())
}

func TestFromStrMissingChannel(t *testing.T) {
	_, err := FromStr(`name = "broken"
[rust]
profile = "minimal"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel")
}

func TestFromStrMissingToolchain(t *testing.T) {
	_, err := FromStr(`name = "broken"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[rust]")
}

func TestFromStrParseErrorCarriesPosition(t *testing.T) {
	_, err := FromStr("[rust\nchannel = \"stable\"")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestFromStrStripsBOM(t *testing.T) {
	m, err := FromStr("\uFEFF[rust]\nchannel = \"stable\"")
	require.NoError(t, err)
	assert.Equal(t, "stable", m.Toolchain.Channel)
}

func TestToTOMLRoundTrip(t *testing.T) {
	first, err := FromStr(fullManifest)
	require.NoError(t, err)

	second, err := FromStr(first.ToTOML())
	require.NoError(t, err)

	assert.Equal(t, first.ToTOML(), second.ToTOML())
	if diff := cmp.Diff(first.Toolchain, second.Toolchain); diff != "" {
		t.Errorf("toolchain mismatch (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Proxy, second.Proxy); diff != "" {
		t.Errorf("proxy mismatch (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Tools.Descriptions, second.Tools.Descriptions); diff != "" {
		t.Errorf("descriptions mismatch (-first +second):\n%s", diff)
	}

	require.Equal(t, len(first.Tools.Target), len(second.Tools.Target))
	for triple, firstTools := range first.Tools.Target {
		secondTools := second.Tools.Target[triple]
		require.NotNil(t, secondTools, "missing triple %s", triple)
		require.Equal(t, firstTools.Names(), secondTools.Names())
		for _, name := range firstTools.Names() {
			a, _ := firstTools.Get(name)
			b, _ := secondTools.Get(name)
			if diff := cmp.Diff(a, b); diff != "" {
				t.Errorf("tool %s mismatch (-first +second):\n%s", name, diff)
			}
		}
	}
}

func TestAdjustPaths(t *testing.T) {
	root := t.TempDir()
	raw := `[rust]
channel = "stable"

[tools.target.all]
local = { path = "pkgs/../bundle/tool.tar.gz" }
`
	m, err := FromStr(raw)
	require.NoError(t, err)
	m.Path = filepath.Join(root, "toolset-manifest.toml")

	require.NoError(t, m.AdjustPaths())

	tool, _ := m.Tools.Target["all"].Get("local")
	assert.Equal(t, filepath.Join(root, "bundle", "tool.tar.gz"), tool.Source.Path)
	assert.True(t, filepath.IsAbs(tool.Source.Path))
	assert.NotContains(t, tool.Source.Path, "..")
}

func TestAdjustPathsOfflineRequiresExistence(t *testing.T) {
	root := t.TempDir()
	raw := `[rust]
channel = "stable"
offline-dist-server = "dist"

[tools.target.all]
local = { path = "missing/tool.tar.gz" }
`
	m, err := FromStr(raw)
	require.NoError(t, err)
	require.True(t, m.IsOffline)
	m.Path = filepath.Join(root, "toolset-manifest.toml")

	err = m.AdjustPaths()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestPackageRootPrefersManifestDir(t *testing.T) {
	m := &ToolkitManifest{Path: filepath.Join(os.TempDir(), "kit", "toolset-manifest.toml")}
	assert.Equal(t, filepath.Join(os.TempDir(), "kit"), m.PackageRoot())
}

func TestOfflineDistServer(t *testing.T) {
	root := t.TempDir()
	m, err := FromStr(`[rust]
channel = "stable"
offline-dist-server = "dist"`)
	require.NoError(t, err)
	m.Path = filepath.Join(root, "toolset-manifest.toml")

	u, err := m.OfflineDistServer()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"), "got %q", u)
	assert.Contains(t, u, filepath.ToSlash(filepath.Join(root, "dist")))
}

func TestRustupBin(t *testing.T) {
	triple := HostTriple()
	if triple == "" {
		t.Skip("unsupported host")
	}
	root := t.TempDir()
	raw := fmt.Sprintf(`[rust]
channel = "stable"

[rust.rustup]
%q = "bundle/rustup-init"
`, triple)
	m, err := FromStr(raw)
	require.NoError(t, err)
	m.Path = filepath.Join(root, "toolset-manifest.toml")

	_, found := m.RustupBin()
	assert.False(t, found, "bundled rustup-init does not exist yet")

	bundled := filepath.Join(root, "bundle", "rustup-init")
	require.NoError(t, os.MkdirAll(filepath.Dir(bundled), 0o755))
	require.NoError(t, os.WriteFile(bundled, []byte("#!/bin/sh\n"), 0o755))

	path, found := m.RustupBin()
	assert.True(t, found)
	assert.Equal(t, bundled, path)
}

func TestCurrentTargetTools(t *testing.T) {
	triple := HostTriple()
	if triple == "" {
		t.Skip("unsupported host")
	}
	raw := fmt.Sprintf(`[rust]
channel = "stable"

[tools.target.%s]
host-tool = "1.0.0"

[tools.target.all]
shared-tool = "2.0.0"
host-tool = "9.9.9"
`, triple)
	m, err := FromStr(raw)
	require.NoError(t, err)

	tools := m.CurrentTargetTools()
	assert.Equal(t, []string{"host-tool", "shared-tool"}, tools.Names())

	hostTool, _ := tools.Get("host-tool")
	assert.Equal(t, "1.0.0", hostTool.Source.Version, "host-specific entry wins over all")
}

func TestCurrentTargetToolsIdentifierAsKey(t *testing.T) {
	triple := HostTriple()
	if triple == "" {
		t.Skip("unsupported host")
	}
	raw := fmt.Sprintf(`[rust]
channel = "stable"

[tools.target.%s]
t1 = { ver = "0.2.0", identifier = "surprise_program_1" }
t2 = "0.1.0"
`, triple)
	m, err := FromStr(raw)
	require.NoError(t, err)

	tools := m.CurrentTargetTools()
	assert.Equal(t, []string{"surprise_program_1", "t2"}, tools.Names())

	// The raw name stays in the serialized document.
	assert.Contains(t, m.ToTOML(), "t1 = ")
}

func TestCurrentTargetToolsFiltersGUIOnly(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("desktop detection is environment-based on linux only")
	}
	t.Setenv("DISPLAY", "")
	t.Setenv("WAYLAND_DISPLAY", "")

	m, err := FromStr(`[rust]
channel = "stable"

[tools.target.all]
cli-tool = "1.0.0"
gui-tool = { gui-only = true, url = "https://example.com/gui.zip" }
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"cli-tool"}, m.CurrentTargetTools().Names())
}

func TestCurrentTargetComponents(t *testing.T) {
	m, err := FromStr(fullManifest)
	require.NoError(t, err)

	components := m.CurrentTargetComponents(false)
	require.NotEmpty(t, components)

	profile := components[0]
	assert.Equal(t, ComponentToolchainProfile, profile.Type)
	assert.Equal(t, "minimal", profile.Name)
	assert.Equal(t, "Basic", profile.DisplayName)
	assert.Equal(t, "1.81.0", profile.Version)
	assert.True(t, profile.Required)

	var clippy, docs *Component
	for _, c := range components {
		switch c.Name {
		case "clippy":
			clippy = c
		case "rust-docs":
			docs = c
		}
	}
	require.NotNil(t, clippy)
	assert.Equal(t, ComponentToolchainComponent, clippy.Type)
	assert.False(t, clippy.Optional)
	require.NotNil(t, docs)
	assert.True(t, docs.Optional)
}

func TestCurrentTargetComponentsToolMetadata(t *testing.T) {
	triple := HostTriple()
	if triple == "" {
		t.Skip("unsupported host")
	}
	raw := fmt.Sprintf(`[rust]
channel = "stable"

[tools]
group = "Extras"

[tools.descriptions]
helper = "A helping hand"

[tools.target.%s]
helper = { optional = true, display-name = "Helper", version = "0.3.0" }
`, triple)
	m, err := FromStr(raw)
	require.NoError(t, err)

	components := m.CurrentTargetComponents(false)
	var helper *Component
	for _, c := range components {
		if c.Name == "helper" {
			helper = c
		}
	}
	require.NotNil(t, helper)
	assert.Equal(t, ComponentTool, helper.Type)
	assert.Equal(t, "Helper", helper.DisplayName)
	assert.Equal(t, "A helping hand", helper.Description)
	assert.Equal(t, "Extras", helper.Category)
	assert.Equal(t, "0.3.0", helper.Version)
	assert.True(t, helper.Optional)
	require.NotNil(t, helper.Tool)
}

func TestFillMissingPackageSource(t *testing.T) {
	triple := HostTriple()
	if triple == "" {
		t.Skip("unsupported host")
	}
	raw := fmt.Sprintf(`[rust]
channel = "stable"

[tools.target.%s]
rtool = { restricted = true, display-name = "Restricted Tool", default = "https://x/installer.exe" }
`, triple)
	m, err := FromStr(raw)
	require.NoError(t, err)

	components := m.CurrentTargetComponents(false)
	var prompted []string
	err = m.FillMissingPackageSource(components, func(displayName, defaultValue string) (string, error) {
		prompted = append(prompted, displayName, defaultValue)
		return "/tmp/inst.exe", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Restricted Tool", "https://x/installer.exe"}, prompted)

	// The answer must land in the manifest entry, not only the component.
	tool, _ := m.CurrentTargetTools().Get("rtool")
	assert.Equal(t, "/tmp/inst.exe", tool.Source.Source)
}

func TestFillMissingPackageSourceRejectsEmptyAnswer(t *testing.T) {
	triple := HostTriple()
	if triple == "" {
		t.Skip("unsupported host")
	}
	raw := fmt.Sprintf(`[rust]
channel = "stable"

[tools.target.%s]
rtool = { restricted = true }
`, triple)
	m, err := FromStr(raw)
	require.NoError(t, err)

	err = m.FillMissingPackageSource(m.CurrentTargetComponents(false), func(string, string) (string, error) {
		return "", nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no package source")
}

func TestOnlineEquivalent(t *testing.T) {
	m, err := FromStr(`[rust]
channel = "stable"
offline-dist-server = "dist"

[rust.rustup]
x86_64-unknown-linux-gnu = "bundle/rustup-init"
`)
	require.NoError(t, err)
	require.True(t, m.IsOffline)

	online := m.OnlineEquivalent()
	assert.False(t, online.IsOffline)
	assert.Empty(t, online.Toolchain.OfflineDistServer)
	assert.Empty(t, online.Toolchain.Rustup)

	// The source manifest keeps its offline fields.
	assert.True(t, m.IsOffline)
	assert.NotEmpty(t, m.Toolchain.OfflineDistServer)
}

func TestGetToolkitManifestCachesPerSource(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "[rust]\nchannel = \"stable\"\n")
	}))
	defer server.Close()

	url := server.URL + "/toolset-manifest.toml"
	t.Cleanup(func() { ClearCachedManifest(url) })

	first, err := GetToolkitManifest(t.Context(), url, false)
	require.NoError(t, err)
	assert.Equal(t, "stable", first.Toolchain.Channel)

	second, err := GetToolkitManifest(t.Context(), url, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second load must come from cache")

	// Cached loads hand out independent copies.
	first.Toolchain.Channel = "mutated"
	assert.Equal(t, "stable", second.Toolchain.Channel)

	ClearCachedManifest(url)
	_, err = GetToolkitManifest(t.Context(), url, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGetToolkitManifestFromLocalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolset-manifest.toml")
	require.NoError(t, os.WriteFile(path, []byte("[rust]\nchannel = \"1.80.1\"\n"), 0o644))
	t.Cleanup(func() { ClearCachedManifest(path) })

	m, err := GetToolkitManifest(t.Context(), path, false)
	require.NoError(t, err)
	assert.Equal(t, "1.80.1", m.Toolchain.Channel)
	assert.Equal(t, path, m.Path)
}
