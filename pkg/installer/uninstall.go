package installer

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/apex/log"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/fsutil"
)

// Master progress deltas of an uninstall run.
const (
	spanUninstallTools  = 70
	spanUninstallEnv    = 15
	spanUninstallRemove = 15
)

// Uninstall removes everything the record names: tools in reverse kind
// order, the persisted environment, the program registration and
// finally the installation root. With keepSelf the manager executable
// and its icon survive so the binary stays usable for a reinstall.
func (i *Installation) Uninstall(ctx context.Context, keepSelf bool) (*Report, error) {
	if err := i.loadRecord(); err != nil {
		return nil, err
	}

	report := &Report{}
	i.handler.MasterStart("uninstalling " + i.title())

	i.uninstallTools(ctx, report, i.uninstallOrder(i.record.ToolNames()), spanUninstallTools)
	if ctx.Err() != nil {
		log.Warn("uninstall cancelled, the remaining components are kept")
		return report, nil
	}

	i.record.RemoveRustRecord()
	if err := i.record.Write(); err != nil {
		report.add(CategoryStep, "install record", err)
	}

	if err := i.removePersistedEnv(); err != nil {
		report.add(CategoryStep, "environment", err)
	}
	if err := unregisterProgram(i); err != nil {
		report.add(CategoryStep, "program registration", err)
	}
	i.handler.MasterUpdate(spanUninstallEnv)

	var err error
	if keepSelf {
		err = i.removeAllButManager()
	} else {
		err = removeInstallDir(i.root)
	}
	if err != nil {
		report.add(CategoryStep, "installation directory", err)
	}
	i.handler.MasterUpdate(spanUninstallRemove)

	i.handler.MasterFinish(i.title() + " uninstalled")
	return report, nil
}

// uninstallOrder sorts names by recorded kind, higher kinds first, so
// toolchain-dependent tools come off before anything they rely on.
// Names sharing a kind keep their recorded order.
func (i *Installation) uninstallOrder(names []string) []string {
	out := append([]string(nil), names...)
	sort.SliceStable(out, func(a, b int) bool {
		ra, _ := i.record.Tool(out[a])
		rb, _ := i.record.Tool(out[b])
		return ra.Kind > rb.Kind
	})
	return out
}

// removeAllButManager empties the install root except for the manager
// executable and its icon.
func (i *Installation) removeAllButManager() error {
	entries, err := os.ReadDir(i.root)
	if err != nil {
		return err
	}
	keep := map[string]bool{
		buildinfo.ManagerExe():      true,
		buildinfo.ManagerIconName(): true,
	}
	for _, entry := range entries {
		if keep[entry.Name()] {
			continue
		}
		if err := fsutil.Remove(filepath.Join(i.root, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
