// Package tool implements the tool acquisition pipeline: resolving a
// manifest entry to a payload, classifying the payload, and installing
// or uninstalling it per kind. Tools with bespoke install steps register
// a custom handler keyed by tool name.
package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/rust-install/rim/pkg/fetch"
	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/manifest"
	"github.com/rust-install/rim/pkg/progress"
)

// Environment is the slice of the install engine a tool operates
// against: the layout of the installation root, PATH bookkeeping, the
// cargo runner and download plumbing.
type Environment interface {
	InstallDir() string
	ToolsDir() string
	RulesetsDir() string

	// CreateTempDir returns a fresh directory under the install root's
	// temp area; the engine sweeps it when the run ends.
	CreateTempDir(prefix string) (string, error)

	// AddToPath registers dir on the user's PATH, both persistently and
	// for the current process so later tools can spawn earlier ones.
	AddToPath(dir string) error
	RemoveFromPath(dir string) error

	CargoInstall(ctx context.Context, args ...string) error
	CargoUninstall(ctx context.Context, name string) error

	// RunCommand spawns a child process with the engine's environment.
	RunCommand(ctx context.Context, name string, args ...string) error

	// DownloadOpt returns a downloader preconfigured with the manifest's
	// proxy settings and the engine's progress handler.
	DownloadOpt(name string) *fetch.DownloadOpt

	Progress() progress.Handler
}

// Tool is one resolved tool, ready to install or uninstall.
type Tool struct {
	Name string
	Kind manifest.ToolKind

	// paths is the payload location before install, or the recorded
	// paths when the tool was reconstructed from the fingerprint.
	paths []string

	// cargoArgs are the `cargo install` arguments of cargo-managed
	// tools.
	cargoArgs []string
}

// New returns a tool with an explicit kind, bypassing classification.
func New(name string, kind manifest.ToolKind, payload string) *Tool {
	t := &Tool{Name: name, Kind: kind}
	if payload != "" {
		t.paths = []string{payload}
	}
	return t
}

// CargoTool returns a cargo-managed tool. args defaults to the bare
// crate name.
func CargoTool(name string, args []string) *Tool {
	if len(args) == 0 {
		args = []string{name}
	}
	return &Tool{Name: name, Kind: manifest.KindCargoTool, cargoArgs: args}
}

// FromPath classifies the payload and returns a tool ready to install.
func FromPath(name, payload string) (*Tool, error) {
	kind, err := Classify(name, payload)
	if err != nil {
		return nil, err
	}
	return New(name, kind, payload), nil
}

// FromInstalled reconstructs a tool from its fingerprint record so it
// can be uninstalled. It reports false when the record does not carry
// enough to act on.
func FromInstalled(name string, rec fingerprint.ToolRecord) (*Tool, bool) {
	if rec.Kind == manifest.KindUnspecified || rec.Kind == manifest.KindUnknown {
		return nil, false
	}
	return &Tool{Name: name, Kind: rec.Kind, paths: rec.Paths}, true
}

// Classify determines how the payload at path installs. The tool name
// wins over the payload shape: tools with a bespoke handler classify as
// custom whatever they unpack to (the VS Code archive, say, unpacks to a
// dir-with-bin layout the handler wants to place itself). Installer and
// plugin extensions are checked before the generic executable test for
// the same reason: an .exe installer is executable too.
func Classify(name, path string) (manifest.ToolKind, error) {
	if _, ok := customHandlers[name]; ok {
		return manifest.KindCustom, nil
	}

	if fsutil.IsDir(path) {
		switch {
		case fsutil.IsDir(filepath.Join(path, "bin")):
			return manifest.KindDirWithBin, nil
		case fsutil.Exists(filepath.Join(path, "Cargo.toml")):
			return manifest.KindCrate, nil
		default:
			if len(executablesIn(path)) > 0 {
				return manifest.KindExecutables, nil
			}
		}
		return manifest.KindUnknown, errors.Errorf("no known install method for tool %q in directory %q", name, path)
	}

	if fsutil.Exists(path) {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".exe", ".msi", ".sh":
			return manifest.KindInstaller, nil
		case ".vsix":
			return manifest.KindPlugin, nil
		}
		if fsutil.IsExecutable(path) {
			return manifest.KindExecutables, nil
		}
		return manifest.KindUnknown, errors.Errorf("no known install method for tool %q at %q", name, path)
	}

	return manifest.KindUnknown, errors.Errorf("tool %q payload %q does not exist", name, path)
}

// payload returns the single payload path, empty for cargo tools.
func (t *Tool) payload() string {
	if len(t.paths) == 0 {
		return ""
	}
	return t.paths[0]
}

// executablesIn lists the executable regular files directly under dir.
func executablesIn(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if fsutil.IsExecutable(path) {
			out = append(out, path)
		}
	}
	return out
}
