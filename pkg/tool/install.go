package tool

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/manifest"
)

// Install places the tool into the environment and returns the record to
// fingerprint. The record's paths are exactly what a later Uninstall
// removes; an empty list means the tool left nothing the engine owns
// (system installers, editor plugins, cargo-managed binaries).
func (t *Tool) Install(ctx context.Context, env Environment, info *manifest.ToolInfo) (fingerprint.ToolRecord, error) {
	rec := fingerprint.ToolRecord{Kind: t.Kind}
	if info != nil {
		rec.Version = info.Version()
		rec.Dependencies = info.Requires
	}

	var paths []string
	var err error
	switch t.Kind {
	case manifest.KindDirWithBin:
		paths, err = t.installDirWithBin(env)
	case manifest.KindExecutables:
		paths, err = t.installExecutables(env)
	case manifest.KindInstaller:
		err = t.installInstaller(ctx, env)
	case manifest.KindPlugin:
		err = t.installPlugin(ctx, env)
	case manifest.KindCargoTool:
		err = env.CargoInstall(ctx, t.cargoArgs...)
	case manifest.KindCrate:
		paths, err = t.installCrate(ctx, env)
	case manifest.KindCustom:
		paths, err = installCustom(ctx, env, t.Name, t.payload())
	case manifest.KindRuleSet:
		paths, err = t.installRuleSet(env)
	default:
		err = errors.Errorf("tool %q has no install method", t.Name)
	}
	if err != nil {
		return fingerprint.ToolRecord{}, err
	}
	rec.Paths = paths
	return rec, nil
}

func (t *Tool) installDirWithBin(env Environment) ([]string, error) {
	dest := filepath.Join(env.ToolsDir(), t.Name)
	if err := fsutil.MoveTo(t.payload(), dest, true); err != nil {
		return nil, err
	}
	if err := env.AddToPath(filepath.Join(dest, "bin")); err != nil {
		return nil, err
	}
	return []string{dest}, nil
}

func (t *Tool) installExecutables(env Environment) ([]string, error) {
	payload := t.payload()
	sources := []string{payload}
	if fsutil.IsDir(payload) {
		sources = executablesIn(payload)
	}
	if len(sources) == 0 {
		return nil, errors.Errorf("tool %q carries no executables", t.Name)
	}

	root := filepath.Join(env.ToolsDir(), t.Name)
	binDir := filepath.Join(root, "bin")
	for _, src := range sources {
		copied, err := fsutil.CopyInto(src, binDir)
		if err != nil {
			return nil, err
		}
		if err := fsutil.SetExecPermission(copied); err != nil {
			return nil, err
		}
	}
	if err := env.AddToPath(binDir); err != nil {
		return nil, err
	}
	return []string{root}, nil
}

// installInstaller spawns the vendor installer silently: /qn for MSI
// packages, /S for NSIS-style .exe installers, plain sh for scripts. The
// installer registers its own uninstall entry, so nothing is recorded.
func (t *Tool) installInstaller(ctx context.Context, env Environment) error {
	payload := t.payload()
	switch strings.ToLower(filepath.Ext(payload)) {
	case ".msi":
		return env.RunCommand(ctx, "msiexec", "/i", payload, "/qn")
	case ".sh":
		return env.RunCommand(ctx, "sh", payload)
	default:
		return env.RunCommand(ctx, payload, "/S")
	}
}

// installPlugin hands the extension to every VS Code-family editor on
// PATH. Editors installed earlier in the same run are found through the
// PATH entry AddToPath set on the current process.
func (t *Tool) installPlugin(ctx context.Context, env Environment) error {
	payload := t.payload()
	if strings.ToLower(filepath.Ext(payload)) != ".vsix" {
		return errors.Errorf("unsupported plugin %q", filepath.Base(payload))
	}
	hosts := pluginHosts()
	if len(hosts) == 0 {
		return errors.Errorf("no editor available to install plugin %q into", t.Name)
	}
	for _, host := range hosts {
		if err := env.RunCommand(ctx, host, "--install-extension", payload); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tool) installCrate(ctx context.Context, env Environment) ([]string, error) {
	dest := filepath.Join(env.ToolsDir(), t.Name)
	if err := fsutil.CopyAs(t.payload(), dest); err != nil {
		return nil, err
	}
	if err := env.CargoInstall(ctx, "--path", dest); err != nil {
		return nil, err
	}
	return []string{dest}, nil
}

func (t *Tool) installRuleSet(env Environment) ([]string, error) {
	dest, err := fsutil.CopyInto(t.payload(), env.RulesetsDir())
	if err != nil {
		return nil, err
	}
	return []string{dest}, nil
}

// pluginHosts returns the VS Code-family commands present on PATH.
func pluginHosts() []string {
	var hosts []string
	for _, cmd := range []string{"code", "codium"} {
		if _, err := exec.LookPath(cmd); err == nil {
			hosts = append(hosts, cmd)
		}
	}
	return hosts
}
