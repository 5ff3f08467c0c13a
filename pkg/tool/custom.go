package tool

import (
	"context"
	"path/filepath"
	"runtime"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/shortcut"
	"github.com/rust-install/rim/pkg/fsutil"
)

// customHandler owns the install and uninstall contract of one tool that
// needs bespoke steps beyond its payload shape.
type customHandler interface {
	install(ctx context.Context, env Environment, payload string) ([]string, error)
	uninstall(ctx context.Context, env Environment) error
}

// customHandlers keys bespoke behavior by tool name. Classification
// consults this table before looking at the payload.
var customHandlers = map[string]customHandler{
	"vscode": &vscodeFamily{
		toolName:     "vscode",
		cmd:          "code",
		shortcutName: "Visual Studio Code",
		binary:       vscodeBinary("Code", "code"),
	},
	"vscodium": &vscodeFamily{
		toolName:     "vscodium",
		cmd:          "codium",
		shortcutName: "VSCodium",
		binary:       vscodeBinary("VSCodium", "codium"),
	},
}

func installCustom(ctx context.Context, env Environment, name, payload string) ([]string, error) {
	h, ok := customHandlers[name]
	if !ok {
		return nil, errors.Errorf("no custom install rule for tool %q", name)
	}
	return h.install(ctx, env, payload)
}

func uninstallCustom(ctx context.Context, env Environment, name string) error {
	h, ok := customHandlers[name]
	if !ok {
		return errors.Errorf("no custom uninstall rule for tool %q", name)
	}
	return h.uninstall(ctx, env)
}

// vscodeFamily installs the archive distribution of a VS Code-family
// editor: move the extracted directory under tools/, put its bin/ on
// PATH, repair missing exec bits and create an application shortcut.
type vscodeFamily struct {
	toolName string
	// cmd is the launcher script in bin/ ("code", "codium").
	cmd string
	// shortcutName is the display name of the application shortcut.
	shortcutName string
	// binary is the main executable at the extraction root.
	binary string
}

func vscodeBinary(windows, unix string) string {
	if runtime.GOOS == "windows" {
		return windows + ".exe"
	}
	return unix
}

func (v *vscodeFamily) launcher() string {
	if runtime.GOOS == "windows" {
		return v.cmd + ".cmd"
	}
	return v.cmd
}

func (v *vscodeFamily) install(_ context.Context, env Environment, payload string) ([]string, error) {
	if !fsutil.IsDir(payload) {
		return nil, errors.Errorf("%s payload %q is not a directory", v.toolName, payload)
	}

	dest := filepath.Join(env.ToolsDir(), v.toolName)
	log.Infof("moving %s into %s", v.toolName, dest)
	if err := fsutil.MoveTo(payload, dest, true); err != nil {
		return nil, err
	}

	binDir := filepath.Join(dest, "bin")
	if err := env.AddToPath(binDir); err != nil {
		return nil, err
	}

	// Some archive builds ship without exec bits on the launcher or the
	// main binary.
	launcher := filepath.Join(binDir, v.launcher())
	if fsutil.Exists(launcher) {
		if err := fsutil.SetExecPermission(launcher); err != nil {
			return nil, err
		}
	}
	binary := filepath.Join(dest, v.binary)
	if fsutil.Exists(binary) {
		if err := fsutil.SetExecPermission(binary); err != nil {
			return nil, err
		}
	}

	// Shortcuts are cosmetic; a failure must not fail the tool.
	sc := &shortcut.Shortcut{
		Name:       v.shortcutName,
		Target:     binary,
		Comment:    "Code Editing. Redefined.",
		Categories: []string{"TextEditor", "Development", "IDE"},
	}
	if icon := filepath.Join(dest, "resources", "app", "out", "media", "code-icon.svg"); fsutil.Exists(icon) {
		sc.Icon = icon
	}
	if err := sc.Create(); err != nil {
		log.Warnf("skip creating shortcut for %q: %v", v.toolName, err)
	}

	return []string{dest}, nil
}

// uninstall removes the PATH entry and the generated shortcut. The
// per-user data directory (~/.vscode and friends) may be shared with
// other editors of the same family and stays untouched.
func (v *vscodeFamily) uninstall(_ context.Context, env Environment) error {
	binDir := filepath.Join(env.ToolsDir(), v.toolName, "bin")
	if err := env.RemoveFromPath(binDir); err != nil {
		return err
	}
	if err := shortcut.Remove(v.shortcutName); err != nil {
		log.Warnf("could not remove shortcut for %q: %v", v.toolName, err)
	}
	return nil
}
