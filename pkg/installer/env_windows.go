//go:build windows

package installer

import (
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/rust-install/rim/internal/buildinfo"
)

const uninstallKeyPath = `Software\Microsoft\Windows\CurrentVersion\Uninstall\` + buildinfo.Product

func openUserEnvironment() (registry.Key, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, "Environment", registry.QUERY_VALUE|registry.SET_VALUE)
	if err != nil {
		return key, errors.Wrap(err, "failed to open the user environment key")
	}
	return key, nil
}

// persistEnvVars writes the variables into the user environment key.
// Merged variables concatenate with the user's existing value.
func (i *Installation) persistEnvVars(vars []envVar) error {
	key, err := openUserEnvironment()
	if err != nil {
		return err
	}
	defer key.Close()

	for _, v := range vars {
		value := v.Value
		if v.Merge {
			if existing, _, err := key.GetStringValue(v.Key); err == nil {
				value = mergeList(v.Value, existing)
			}
		}
		if err := key.SetStringValue(v.Key, value); err != nil {
			return errors.Wrapf(err, "failed to set %s", v.Key)
		}
	}
	broadcastEnvChange()
	return nil
}

func (i *Installation) persistAddPath(dir string) error {
	return editUserPath(func(entries []string) []string {
		for _, e := range entries {
			if strings.EqualFold(e, dir) {
				return entries
			}
		}
		return append([]string{dir}, entries...)
	})
}

func (i *Installation) persistRemovePath(dir string) error {
	return editUserPath(func(entries []string) []string {
		kept := entries[:0]
		for _, e := range entries {
			if !strings.EqualFold(e, dir) {
				kept = append(kept, e)
			}
		}
		return kept
	})
}

// removePersistedEnv deletes the variables this program set and every
// PATH entry under the installation root.
func (i *Installation) removePersistedEnv() error {
	key, err := openUserEnvironment()
	if err != nil {
		return err
	}
	defer key.Close()

	for _, v := range i.envVars() {
		if err := key.DeleteValue(v.Key); err != nil && err != registry.ErrNotExist {
			return errors.Wrapf(err, "failed to remove %s", v.Key)
		}
	}
	root := strings.ToLower(i.root) + string(filepath.Separator)
	return editUserPath(func(entries []string) []string {
		kept := entries[:0]
		for _, e := range entries {
			lowered := strings.ToLower(e)
			if lowered != strings.ToLower(i.root) && !strings.HasPrefix(lowered, root) {
				kept = append(kept, e)
			}
		}
		return kept
	})
}

func editUserPath(edit func([]string) []string) error {
	key, err := openUserEnvironment()
	if err != nil {
		return err
	}
	defer key.Close()

	current, _, err := key.GetStringValue("Path")
	if err != nil && err != registry.ErrNotExist {
		return errors.Wrap(err, "failed to read the user Path")
	}
	var entries []string
	for _, e := range strings.Split(current, ";") {
		if e != "" {
			entries = append(entries, e)
		}
	}
	// Path is conventionally REG_EXPAND_SZ; keep it that way.
	if err := key.SetExpandStringValue("Path", strings.Join(edit(entries), ";")); err != nil {
		return errors.Wrap(err, "failed to write the user Path")
	}
	broadcastEnvChange()
	return nil
}

// broadcastEnvChange tells running shells the environment block changed.
func broadcastEnvChange() {
	const (
		hwndBroadcast   = 0xffff
		wmSettingChange = 0x001a
		smtoAbortIfHung = 0x0002
	)
	name, err := windows.UTF16PtrFromString("Environment")
	if err != nil {
		return
	}
	user32 := windows.NewLazySystemDLL("user32.dll")
	proc := user32.NewProc("SendMessageTimeoutW")
	_, _, _ = proc.Call(hwndBroadcast, wmSettingChange, 0,
		uintptr(unsafe.Pointer(name)), smtoAbortIfHung, 5000, 0)
}

// registerProgram lists the product in "installed programs" so users
// can find and remove it the Windows way.
func registerProgram(i *Installation) error {
	key, _, err := registry.CreateKey(registry.CURRENT_USER, uninstallKeyPath, registry.SET_VALUE)
	if err != nil {
		return errors.Wrap(err, "failed to create the uninstall key")
	}
	defer key.Close()

	manager := filepath.Join(i.root, buildinfo.ManagerExe())
	values := map[string]string{
		"DisplayName":     buildinfo.Product,
		"DisplayIcon":     filepath.Join(i.root, buildinfo.ManagerIconName()),
		"DisplayVersion":  i.manifest.Version,
		"InstallLocation": i.root,
		"UninstallString": `"` + manager + `" uninstall`,
	}
	for k, v := range values {
		if err := key.SetStringValue(k, v); err != nil {
			return errors.Wrapf(err, "failed to set %s", k)
		}
	}
	return nil
}

func unregisterProgram(*Installation) error {
	err := registry.DeleteKey(registry.CURRENT_USER, uninstallKeyPath)
	if err != nil && err != registry.ErrNotExist {
		return errors.Wrap(err, "failed to remove the uninstall key")
	}
	return nil
}
