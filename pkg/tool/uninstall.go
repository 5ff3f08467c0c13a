package tool

import (
	"context"
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/manifest"
)

// Uninstall removes the tool from the environment, driven by the paths
// recorded at install time.
func (t *Tool) Uninstall(ctx context.Context, env Environment) error {
	switch t.Kind {
	case manifest.KindCargoTool:
		return env.CargoUninstall(ctx, t.Name)
	case manifest.KindCrate:
		// The crate may already be gone from cargo's bookkeeping; the
		// managed source copy is removed either way.
		if err := env.CargoUninstall(ctx, t.Name); err != nil {
			log.Warnf("cargo could not uninstall %q: %v", t.Name, err)
		}
		return t.removePaths()
	case manifest.KindCustom:
		// The handler undoes its own side effects (PATH, shortcuts);
		// the recorded files come off afterwards like any other tool.
		if err := uninstallCustom(ctx, env, t.Name); err != nil {
			return err
		}
		return t.removePaths()
	case manifest.KindDirWithBin, manifest.KindExecutables:
		return t.removeDirs(env)
	case manifest.KindRuleSet:
		return t.removePaths()
	case manifest.KindInstaller:
		log.Warnf("tool %q was installed by its own installer, remove it through the system package manager", t.Name)
		return nil
	case manifest.KindPlugin:
		log.Debugf("plugin %q is managed by its editor, leaving it in place", t.Name)
		return nil
	}
	return errors.Errorf("tool %q has no uninstall method", t.Name)
}

// removeDirs drops the PATH entries of recorded directories before
// deleting them.
func (t *Tool) removeDirs(env Environment) error {
	for _, p := range t.paths {
		if err := env.RemoveFromPath(filepath.Join(p, "bin")); err != nil {
			return err
		}
		if err := fsutil.Remove(p); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tool) removePaths() error {
	for _, p := range t.paths {
		if err := fsutil.Remove(p); err != nil {
			return err
		}
	}
	return nil
}
