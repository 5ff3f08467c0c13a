package toolchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/manifest"
)

type spawn struct {
	name string
	args []string
	env  []string
}

func recordingRunner(calls *[]spawn) runFunc {
	return func(_ context.Context, env []string, name string, args ...string) error {
		*calls = append(*calls, spawn{name: name, args: args, env: env})
		return nil
	}
}

func fakeInit(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rustup-init"+buildinfo.ExeSuffix())
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestInstallComposesRustupInitArgs(t *testing.T) {
	var calls []spawn
	root := t.TempDir()
	initBin := fakeInit(t)

	r := New(Config{
		CargoHome:   filepath.Join(root, "cargo"),
		RustupHome:  filepath.Join(root, "rustup"),
		DistServer:  "https://rsproxy.cn",
		UpdateRoot:  "https://rsproxy.cn/rustup",
		BundledInit: initBin,
	})
	r.run = recordingRunner(&calls)

	tc := &manifest.RustToolchain{Channel: "1.80.1"}
	require.NoError(t, r.Install(t.Context(), tc, []string{"clippy", "rustfmt"}))

	require.Len(t, calls, 1)
	assert.Equal(t, initBin, calls[0].name)
	assert.Equal(t, []string{
		"-y", "--no-modify-path",
		"--default-toolchain", "1.80.1",
		"--profile", "minimal",
		"--component", "clippy",
		"--component", "rustfmt",
	}, calls[0].args)

	assert.Contains(t, calls[0].env, "CARGO_HOME="+filepath.Join(root, "cargo"))
	assert.Contains(t, calls[0].env, "RUSTUP_HOME="+filepath.Join(root, "rustup"))
	assert.Contains(t, calls[0].env, "RUSTUP_DIST_SERVER=https://rsproxy.cn")
	assert.Contains(t, calls[0].env, "RUSTUP_UPDATE_ROOT=https://rsproxy.cn/rustup")
}

func TestInstallHonorsDeclaredProfile(t *testing.T) {
	var calls []spawn
	r := New(Config{CargoHome: t.TempDir(), BundledInit: fakeInit(t)})
	r.run = recordingRunner(&calls)

	tc := &manifest.RustToolchain{
		Channel: "stable",
		Profile: &manifest.Profile{Name: "complete"},
	}
	require.NoError(t, r.Install(t.Context(), tc, nil))

	require.Len(t, calls, 1)
	assert.Equal(t, []string{
		"-y", "--no-modify-path",
		"--default-toolchain", "stable",
		"--profile", "complete",
	}, calls[0].args)
}

func TestExtraEnvWinsOverDerived(t *testing.T) {
	var calls []spawn
	r := New(Config{
		CargoHome:   t.TempDir(),
		DistServer:  "https://rsproxy.cn",
		Env:         []string{"https_proxy=http://proxy:8080"},
		BundledInit: fakeInit(t),
	})
	r.run = recordingRunner(&calls)

	require.NoError(t, r.Install(t.Context(), &manifest.RustToolchain{Channel: "stable"}, nil))
	require.Len(t, calls, 1)
	// exec.Cmd resolves duplicate keys by keeping the last entry, so the
	// extra env must come after everything derived from the config.
	assert.Equal(t, "https_proxy=http://proxy:8080", calls[0].env[len(calls[0].env)-1])
}

func TestUpdateUsesExistingRustup(t *testing.T) {
	var calls []spawn
	cargoHome := t.TempDir()
	rustup := filepath.Join(cargoHome, "bin", "rustup"+buildinfo.ExeSuffix())
	require.NoError(t, os.MkdirAll(filepath.Dir(rustup), 0o755))
	require.NoError(t, os.WriteFile(rustup, []byte("bin"), 0o755))

	r := New(Config{CargoHome: cargoHome})
	r.run = recordingRunner(&calls)

	tc := &manifest.RustToolchain{Channel: "1.81.0"}
	require.NoError(t, r.Update(t.Context(), tc, []string{"clippy"}))

	require.Len(t, calls, 2)
	assert.Equal(t, rustup, calls[0].name)
	assert.Equal(t, []string{
		"toolchain", "install", "1.81.0",
		"--profile", "minimal",
		"--component", "clippy",
	}, calls[0].args)
	assert.Equal(t, []string{"default", "1.81.0"}, calls[1].args)
}

func TestUpdateBootstrapsWhenRustupMissing(t *testing.T) {
	var calls []spawn
	initBin := fakeInit(t)
	r := New(Config{CargoHome: t.TempDir(), BundledInit: initBin})
	r.run = recordingRunner(&calls)

	require.NoError(t, r.Update(t.Context(), &manifest.RustToolchain{Channel: "stable"}, nil))
	require.Len(t, calls, 1)
	assert.Equal(t, initBin, calls[0].name)
}

func TestAddComponents(t *testing.T) {
	var calls []spawn
	r := New(Config{CargoHome: t.TempDir()})
	r.run = recordingRunner(&calls)

	require.NoError(t, r.AddComponents(t.Context(), nil))
	assert.Empty(t, calls)

	require.NoError(t, r.AddComponents(t.Context(), []string{"clippy", "rust-docs"}))
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"component", "add", "clippy", "rust-docs"}, calls[0].args)
}

func TestRemoveComponents(t *testing.T) {
	var calls []spawn
	r := New(Config{CargoHome: t.TempDir()})
	r.run = recordingRunner(&calls)

	require.NoError(t, r.RemoveComponents(t.Context(), []string{"clippy"}))
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"component", "remove", "clippy"}, calls[0].args)
}

func TestEnsureRustupInitDownloads(t *testing.T) {
	if manifest.HostTriple() == "" {
		t.Skip("no rust triple for this host")
	}
	payload := []byte("rustup-init payload")
	sum := sha256.Sum256(payload)
	name := "rustup-init" + buildinfo.ExeSuffix()

	mux := http.NewServeMux()
	mux.HandleFunc("/dist/"+manifest.HostTriple()+"/"+name, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	})
	mux.HandleFunc("/dist/"+manifest.HostTriple()+"/"+name+".sha256", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "%s  %s\n", hex.EncodeToString(sum[:]), name)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := New(Config{UpdateRoot: server.URL, TempRoot: t.TempDir()})
	got, err := r.ensureRustupInit(t.Context())
	require.NoError(t, err)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestEnsureRustupInitChecksumMismatch(t *testing.T) {
	if manifest.HostTriple() == "" {
		t.Skip("no rust triple for this host")
	}
	name := "rustup-init" + buildinfo.ExeSuffix()

	mux := http.NewServeMux()
	mux.HandleFunc("/dist/"+manifest.HostTriple()+"/"+name, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	})
	mux.HandleFunc("/dist/"+manifest.HostTriple()+"/"+name+".sha256", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "%064d  %s\n", 0, name)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := New(Config{UpdateRoot: server.URL, TempRoot: t.TempDir()})
	r.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := r.ensureRustupInit(t.Context())
	assert.Error(t, err)
}

func TestEnsureRustupInitPrefersBundled(t *testing.T) {
	initBin := fakeInit(t)
	r := New(Config{BundledInit: initBin, UpdateRoot: "http://127.0.0.1:0"})

	got, err := r.ensureRustupInit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, initBin, got)
}

func TestCargoInstallRequiresCargo(t *testing.T) {
	c := NewCargo(Config{CargoHome: t.TempDir()})
	err := c.Install(t.Context(), "cargo-expand")
	assert.Error(t, err)
}

func TestCargoInstallRunsBinary(t *testing.T) {
	var calls []spawn
	cargoHome := t.TempDir()
	cargo := filepath.Join(cargoHome, "bin", "cargo"+buildinfo.ExeSuffix())
	require.NoError(t, os.MkdirAll(filepath.Dir(cargo), 0o755))
	require.NoError(t, os.WriteFile(cargo, []byte("bin"), 0o755))

	c := NewCargo(Config{CargoHome: cargoHome})
	c.run = recordingRunner(&calls)

	require.NoError(t, c.Install(t.Context(), "cargo-expand", "--version", "1.0.0"))
	require.NoError(t, c.Uninstall(t.Context(), "cargo-expand"))

	require.Len(t, calls, 2)
	assert.Equal(t, cargo, calls[0].name)
	assert.Equal(t, []string{"install", "cargo-expand", "--version", "1.0.0"}, calls[0].args)
	assert.Equal(t, []string{"uninstall", "cargo-expand"}, calls[1].args)
}
