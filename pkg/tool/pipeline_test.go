package tool

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/manifest"
)

func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zipWriter.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zipWriter.Close())
	return buf.Bytes()
}

func tarGzBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzWriter)
	for name, content := range files {
		header := &tar.Header{
			Name: name,
			Mode: 0o755,
			Size: int64(len(content)),
		}
		require.NoError(t, tarWriter.WriteHeader(header))
		_, err := tarWriter.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, tarWriter.Close())
	require.NoError(t, gzWriter.Close())
	return buf.Bytes()
}

func TestInstallFromInfoCargoSources(t *testing.T) {
	tests := []struct {
		name   string
		source *manifest.ToolSource
		want   []string
	}{
		{
			name:   "version",
			source: &manifest.ToolSource{Kind: manifest.SourceVersion, Version: "0.6.5"},
			want:   []string{"quicheck", "--version", "0.6.5"},
		},
		{
			name:   "git with branch",
			source: &manifest.ToolSource{Kind: manifest.SourceGit, Git: "https://git.example.com/quicheck", Branch: "stable"},
			want:   []string{"--git", "https://git.example.com/quicheck", "--branch", "stable"},
		},
		{
			name:   "git with tag and rev",
			source: &manifest.ToolSource{Kind: manifest.SourceGit, Git: "https://git.example.com/quicheck", Tag: "v1.2.0", Rev: "abc123"},
			want:   []string{"--git", "https://git.example.com/quicheck", "--tag", "v1.2.0", "--rev", "abc123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnvStub(t)
			_, err := InstallFromInfo(t.Context(), env, "quicheck", &manifest.ToolInfo{Source: tt.source})
			require.NoError(t, err)
			assert.Equal(t, [][]string{tt.want}, env.cargoIn)
		})
	}
}

func TestInstallFromInfoWithoutSource(t *testing.T) {
	env := newEnvStub(t)
	_, err := InstallFromInfo(t.Context(), env, "ghost", &manifest.ToolInfo{})
	assert.ErrorContains(t, err, "lacks a package source")
}

func TestInstallFromInfoRestricted(t *testing.T) {
	t.Run("unset source", func(t *testing.T) {
		env := newEnvStub(t)
		info := &manifest.ToolInfo{Source: &manifest.ToolSource{Kind: manifest.SourceRestricted}}
		_, err := InstallFromInfo(t.Context(), env, "licensed", info)
		assert.ErrorContains(t, err, "user-provided source")
	})

	t.Run("local installer path", func(t *testing.T) {
		env := newEnvStub(t)
		payload := writeFile(t, filepath.Join(t.TempDir(), "licensed-setup.exe"), "MZ", 0o644)
		info := &manifest.ToolInfo{Source: &manifest.ToolSource{Kind: manifest.SourceRestricted, Source: payload}}

		rec, err := InstallFromInfo(t.Context(), env, "licensed", info)
		require.NoError(t, err)
		assert.Equal(t, manifest.KindInstaller, rec.Kind)
		assert.Empty(t, rec.Paths)
		assert.Equal(t, [][]string{{payload, "/S"}}, env.commands)
	})

	t.Run("neither path nor url", func(t *testing.T) {
		env := newEnvStub(t)
		info := &manifest.ToolInfo{Source: &manifest.ToolSource{Kind: manifest.SourceRestricted, Source: "no/such/thing"}}
		_, err := InstallFromInfo(t.Context(), env, "licensed", info)
		assert.ErrorContains(t, err, "not an existing path nor a valid URL")
	})
}

func TestInstallFromPathZip(t *testing.T) {
	env := newEnvStub(t)
	payload := filepath.Join(t.TempDir(), "spotter.zip")
	require.NoError(t, os.WriteFile(payload, zipBytes(t, map[string][]byte{
		"spotter-1.0/bin/spotter": []byte("#!/bin/sh\n"),
		"spotter-1.0/README.md":   []byte("docs"),
	}), 0o644))

	rec, err := InstallFromPath(t.Context(), env, "spotter", payload, &manifest.ToolInfo{})
	require.NoError(t, err)

	dest := filepath.Join(env.ToolsDir(), "spotter")
	assert.Equal(t, manifest.KindDirWithBin, rec.Kind)
	assert.Equal(t, []string{dest}, rec.Paths)
	assert.True(t, fsutil.Exists(filepath.Join(dest, "bin", "spotter")))
	assert.True(t, fsutil.Exists(filepath.Join(dest, "README.md")))
	assert.Equal(t, []string{filepath.Join(dest, "bin")}, env.pathAdds)

	// extraction temp dirs are swept once the tool is placed
	entries, err := os.ReadDir(filepath.Join(env.root, "temp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInstallFromPathNestedArchive(t *testing.T) {
	env := newEnvStub(t)
	inner := tarGzBytes(t, map[string][]byte{
		"spotter/bin/spotter": []byte("#!/bin/sh\n"),
	})
	payload := filepath.Join(t.TempDir(), "spotter.zip")
	require.NoError(t, os.WriteFile(payload, zipBytes(t, map[string][]byte{
		"wrap/spotter.tar.gz": inner,
	}), 0o644))

	rec, err := InstallFromPath(t.Context(), env, "spotter", payload, &manifest.ToolInfo{})
	require.NoError(t, err)

	dest := filepath.Join(env.ToolsDir(), "spotter")
	assert.Equal(t, manifest.KindDirWithBin, rec.Kind)
	assert.Equal(t, []string{dest}, rec.Paths)
	assert.True(t, fsutil.Exists(filepath.Join(dest, "bin", "spotter")))
	assert.Equal(t, []string{filepath.Join(dest, "bin")}, env.pathAdds)
}

func TestInstallFromPathExplicitKindOverride(t *testing.T) {
	env := newEnvStub(t)
	payload := writeFile(t, filepath.Join(t.TempDir(), "rules.toml"), "[rules]", 0o644)
	info := &manifest.ToolInfo{Kind: manifest.KindRuleSet}

	rec, err := InstallFromPath(t.Context(), env, "rules", payload, info)
	require.NoError(t, err)
	assert.Equal(t, manifest.KindRuleSet, rec.Kind)
	assert.True(t, fsutil.Exists(filepath.Join(env.RulesetsDir(), "rules.toml")))
}

func TestInstallFromInfoURLDownload(t *testing.T) {
	payload := zipBytes(t, map[string][]byte{
		"bin/navigate": []byte("#!/bin/sh\n"),
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	env := newEnvStub(t)
	info := &manifest.ToolInfo{
		Source: &manifest.ToolSource{Kind: manifest.SourceURL, URL: server.URL + "/pkg/navigator.zip"},
	}
	rec, err := InstallFromInfo(t.Context(), env, "navigator", info)
	require.NoError(t, err)

	dest := filepath.Join(env.ToolsDir(), "navigator")
	assert.Equal(t, manifest.KindDirWithBin, rec.Kind)
	assert.Equal(t, []string{dest}, rec.Paths)
	assert.True(t, fsutil.Exists(filepath.Join(dest, "bin", "navigate")))
}

func TestInstallFromPathMissingPayload(t *testing.T) {
	env := newEnvStub(t)
	_, err := InstallFromPath(t.Context(), env, "ghost", filepath.Join(t.TempDir(), "nope"), &manifest.ToolInfo{})
	assert.ErrorContains(t, err, "does not exist")
}
