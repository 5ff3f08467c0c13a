package installer

import (
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/assets"
	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/manifest"
)

// setup prepares the installation root: the directory skeleton, the
// captured manifest, the install record, and the manager binary with its
// cargo/bin aliases. Failures here abort the run.
func (i *Installation) setup() error {
	for _, dir := range []string{i.root, i.cargoBin(), i.RustupHome(), i.ToolsDir(), i.tempRoot(), i.LogDir()} {
		if err := fsutil.EnsureDir(dir); err != nil {
			return err
		}
	}

	if err := i.writeManifestCopy(); err != nil {
		return err
	}

	if err := i.loadOrCreateRecord(); err != nil {
		return err
	}
	i.record.CloneToolkitMetaFromManifest(i.manifest)
	if err := i.record.Write(); err != nil {
		return err
	}

	if err := i.placeManager(); err != nil {
		return err
	}
	if err := registerProgram(i); err != nil {
		log.Warnf("could not register with the system program list: %v", err)
	}
	return nil
}

// writeManifestCopy captures the manifest inside the root. Offline
// toolkits store their online equivalent so later component operations
// can download what the bundle no longer provides.
func (i *Installation) writeManifestCopy() error {
	captured := i.manifest
	if captured.IsOffline {
		captured = captured.OnlineEquivalent()
	}
	path := filepath.Join(i.root, manifest.ManifestFilename)
	return fsutil.WriteFile(path, []byte(captured.ToTOML()), false)
}

// loadOrCreateRecord picks up the record of a previous run when one
// exists, so reinstalling over a root keeps its tool bookkeeping.
func (i *Installation) loadOrCreateRecord() error {
	if !fingerprint.Exists(i.root) {
		i.record = fingerprint.New(i.root)
		return nil
	}
	record, err := fingerprint.Load(i.root)
	if err != nil {
		return err
	}
	i.record = record
	return nil
}

// placeManager copies the running executable into the root and links
// the full and short command names into cargo/bin.
func (i *Installation) placeManager() error {
	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "failed to locate the running executable")
	}
	manager := filepath.Join(i.root, buildinfo.ManagerExe())
	if filepath.Clean(exe) != manager {
		if err := fsutil.CopyAs(exe, manager); err != nil {
			return err
		}
	}
	if err := fsutil.SetExecPermission(manager); err != nil {
		return err
	}

	icon := filepath.Join(i.root, buildinfo.ManagerIconName())
	if err := fsutil.WriteFile(icon, assets.ManagerIcon(), false); err != nil {
		return err
	}

	for _, alias := range []string{buildinfo.ManagerExe(), buildinfo.Name + buildinfo.ExeSuffix()} {
		if err := fsutil.CreateLink(manager, filepath.Join(i.cargoBin(), alias)); err != nil {
			return err
		}
	}
	return nil
}
