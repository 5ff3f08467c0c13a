package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rust-install/rim/pkg/manifest"
)

func TestRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()

	rec := New(dir)
	rec.Name = "my toolkit"
	rec.Version = "1.0.1"
	rec.Edition = "community"
	rec.AddRustRecord("1.80.1", []string{"clippy", "rustfmt"})
	rec.AddToolRecord("flamegraph", ToolRecord{
		Kind:    manifest.KindCargoTool,
		Version: "0.6.5",
	})
	rec.AddToolRecord("vscode", ToolRecord{
		Kind:  manifest.KindCustom,
		Paths: []string{filepath.Join(dir, "tools", "vscode")},
	})
	require.NoError(t, rec.Write())
	require.True(t, Exists(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, loaded.InstallDir)
	assert.Equal(t, "my toolkit", loaded.Name)
	assert.Equal(t, "1.0.1", loaded.Version)
	assert.Equal(t, "community", loaded.Edition)
	require.NotNil(t, loaded.Rust)
	assert.Equal(t, "1.80.1", loaded.Rust.Channel)
	assert.Equal(t, []string{"clippy", "rustfmt"}, loaded.InstalledToolchainComponents())

	got, ok := loaded.Tool("vscode")
	require.True(t, ok)
	want := ToolRecord{
		Kind:  manifest.KindCustom,
		Paths: []string{filepath.Join(dir, "tools", "vscode")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tool record mismatch (-want +got):\n%s", diff)
	}
}

func TestToolOrderSurvivesRoundTrip(t *testing.T) {
	dir := t.TempDir()

	rec := New(dir)
	for _, name := range []string{"zee", "alpha", "mid"} {
		rec.AddToolRecord(name, ToolRecord{Kind: manifest.KindExecutables})
	}
	require.NoError(t, rec.Write())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"zee", "alpha", "mid"}, loaded.ToolNames())
}

func TestRemoveToolRecord(t *testing.T) {
	dir := t.TempDir()

	rec := New(dir)
	rec.AddToolRecord("a", ToolRecord{Kind: manifest.KindDirWithBin})
	rec.AddToolRecord("b", ToolRecord{Kind: manifest.KindCargoTool})
	require.NoError(t, rec.Write())

	rec.RemoveToolRecord("a")
	require.NoError(t, rec.Write())

	loaded, err := Load(dir)
	require.NoError(t, err)
	_, ok := loaded.Tool("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, loaded.ToolNames())
}

func TestAddRustRecordMergesComponents(t *testing.T) {
	rec := New(t.TempDir())
	rec.AddRustRecord("1.80.1", []string{"clippy"})
	rec.AddRustRecord("1.81.0", []string{"rustfmt", "clippy"})

	assert.Equal(t, "1.81.0", rec.Rust.Channel)
	assert.Equal(t, []string{"clippy", "rustfmt"}, rec.InstalledToolchainComponents())
}

func TestLoadMissingRecord(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestExistsFalseOnEmptyDir(t *testing.T) {
	assert.False(t, Exists(t.TempDir()))
}

func TestCloneToolkitMetaFromManifest(t *testing.T) {
	m, err := manifest.FromStr(`
name = "my toolkit"
version = "1.2.0"
edition = "community"

[rust]
channel = "1.80.1"
`)
	require.NoError(t, err)

	rec := New(t.TempDir())
	rec.CloneToolkitMetaFromManifest(m)
	assert.Equal(t, "my toolkit", rec.Name)
	assert.Equal(t, "1.2.0", rec.Version)
	assert.Equal(t, "community", rec.Edition)
}

func TestLoadQuotedToolName(t *testing.T) {
	dir := t.TempDir()

	rec := New(dir)
	rec.AddToolRecord("odd.name", ToolRecord{Kind: manifest.KindRuleSet})
	require.NoError(t, rec.Write())

	raw, err := os.ReadFile(FilePath(dir))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `[tools."odd.name"]`)

	loaded, err := Load(dir)
	require.NoError(t, err)
	got, ok := loaded.Tool("odd.name")
	require.True(t, ok)
	assert.Equal(t, manifest.KindRuleSet, got.Kind)
}
