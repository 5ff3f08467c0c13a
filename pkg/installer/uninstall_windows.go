//go:build windows

package installer

import (
	"fmt"
	"os/exec"
	"syscall"
)

// removeInstallDir deletes the installation root. Windows refuses to
// unlink a running executable, so the removal is handed to a detached
// cmd.exe that waits for this process to exit before wiping the
// directory.
func removeInstallDir(root string) error {
	script := fmt.Sprintf(`ping 127.0.0.1 -n 3 >nul & rmdir /s /q "%s"`, root)
	cmd := exec.Command("cmd.exe", "/C", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: 0x00000008, // DETACHED_PROCESS
	}
	return cmd.Start()
}
