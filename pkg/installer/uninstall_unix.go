//go:build !windows

package installer

import "github.com/rust-install/rim/pkg/fsutil"

// removeInstallDir deletes the installation root. Unlinking a running
// executable is fine on POSIX systems, so the manager removes the
// directory it runs from directly.
func removeInstallDir(root string) error {
	return fsutil.Remove(root)
}
