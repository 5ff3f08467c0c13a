// Package shortcut creates and removes application shortcuts: freedesktop
// .desktop entries on Linux, WScript-generated .lnk files on Windows.
// Shortcut failures are expected to be reported as warnings by callers, not
// treated as install failures.
package shortcut

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/buildkite/interpolate"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/fsutil"
)

// generatedMarker identifies shortcut files this program wrote.
var generatedMarker = "# Generated by " + buildinfo.Product

// Shortcut describes one application shortcut.
type Shortcut struct {
	// Name is the display name and the filename stem of the entry.
	Name string
	// Target is the absolute path of the binary the shortcut launches.
	Target string
	// WorkDir is the optional working directory (Windows only).
	WorkDir string
	// Icon is an optional absolute path to an icon file.
	Icon string
	// Comment is the optional description line.
	Comment string
	// Categories are freedesktop menu categories (Linux only).
	Categories []string
}

// Create writes the shortcut for the current platform.
func (s *Shortcut) Create() error {
	if s.Name == "" || s.Target == "" {
		return errors.New("shortcut needs both a name and a target")
	}
	if runtime.GOOS == "windows" {
		return s.createLnk()
	}
	return s.createDesktopEntry()
}

// Remove deletes shortcut files previously created for name. Desktop
// entries are only removed when they carry the generated marker.
func Remove(name string) error {
	if runtime.GOOS == "windows" {
		return removeLnk(name)
	}
	return removeDesktopEntries(name)
}

func renderDesktopEntry(s *Shortcut) (string, error) {
	env := interpolate.NewSliceEnv([]string{
		"PRODUCT=" + buildinfo.Product,
		"NAME=" + s.Name,
		"COMMENT=" + s.Comment,
		"EXEC=" + s.Target,
		"ICON=" + s.Icon,
		"CATEGORIES=" + categoriesValue(s.Categories),
	})
	content, err := interpolate.Interpolate(env, desktopTemplate)
	if err != nil {
		return "", errors.Wrap(err, "failed to render desktop entry")
	}
	if s.Icon == "" {
		content = strings.Replace(content, "Icon=\n", "", 1)
	}
	if s.Comment == "" {
		content = strings.Replace(content, "Comment=\n", "", 1)
	}
	return content, nil
}

// categoriesValue renders the Categories= value; the freedesktop format
// wants a trailing semicolon after every entry.
func categoriesValue(categories []string) string {
	if len(categories) == 0 {
		return ""
	}
	return strings.Join(categories, ";") + ";"
}

func desktopEntryPaths(name string) ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "failed to locate home directory")
	}
	filename := name + ".desktop"
	return []string{
		filepath.Join(home, "Desktop", filename),
		filepath.Join(home, ".local", "share", "applications", filename),
	}, nil
}

func (s *Shortcut) createDesktopEntry() error {
	content, err := renderDesktopEntry(s)
	if err != nil {
		return err
	}
	paths, err := desktopEntryPaths(s.Name)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := fsutil.WriteFile(path, []byte(content), false); err != nil {
			return err
		}
		if err := fsutil.SetExecPermission(path); err != nil {
			return err
		}
	}
	return nil
}

func removeDesktopEntries(name string) error {
	paths, err := desktopEntryPaths(name)
	if err != nil {
		return err
	}
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "failed to inspect shortcut %q", path)
		}
		if !strings.Contains(string(content), generatedMarker) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return errors.Wrapf(err, "failed to remove shortcut %q", path)
		}
	}
	return nil
}
