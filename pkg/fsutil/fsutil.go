// Package fsutil provides the filesystem primitives shared by the install
// and uninstall paths: lexical path normalization, durable writes, copy and
// move with retry, link creation, and temp-dir lifecycle under the install
// root.
package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/apex/log"
	cp "github.com/otiai10/copy"
	"github.com/pkg/errors"
)

const (
	moveRetries       = 10
	moveRetryInterval = 3 * time.Second
)

// Exists reports whether path exists at all.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", dir)
	}
	return nil
}

// NormalizeAbs joins path onto root if it is relative, then normalizes it
// lexically: "." components are dropped and ".." components are resolved
// without consulting the filesystem, so the result is meaningful even for
// paths that do not exist yet.
func NormalizeAbs(path, root string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return filepath.Clean(path)
}

// ExpandPath expands a leading "~/" and any environment variables.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}

// WriteFile writes data to path, creating parent directories as needed and
// syncing the file before close so that a crash cannot leave a torn write.
func WriteFile(path string, data []byte, append bool) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	flag := os.O_CREATE | os.O_WRONLY
	if append {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q for writing", path)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errors.Wrapf(err, "failed to write %q", path)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync %q", path)
	}
	return nil
}

// CopyFile copies a single regular file, preserving its mode.
func CopyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open source file %q", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %q", src)
	}
	if err := EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", dest)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "failed to copy %q to %q", src, dest)
	}
	return out.Sync()
}

// CopyAs copies src (file or directory) to dest. Directory copies keep
// timestamps and copy symlinks shallowly.
func CopyAs(src, dest string) error {
	if IsDir(src) {
		opt := cp.Options{
			PreserveTimes: true,
			OnSymlink:     func(string) cp.SymlinkAction { return cp.Shallow },
		}
		if err := cp.Copy(src, dest, opt); err != nil {
			return errors.Wrapf(err, "failed to copy directory %q to %q", src, dest)
		}
		return nil
	}
	return CopyFile(src, dest)
}

// CopyInto copies src under the destDir directory, keeping its basename.
func CopyInto(src, destDir string) (string, error) {
	dest := filepath.Join(destDir, filepath.Base(src))
	if err := CopyAs(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Remove deletes path recursively. Missing paths are not an error.
func Remove(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(err, "failed to remove %q", path)
	}
	return nil
}

// MoveTo moves src to dest. When force is set an existing dest is removed
// first. Renames that fail with permission-denied (typically a scanner or
// indexer holding the file) are retried up to 10 times at 3 second
// intervals; when rename cannot succeed at all the move degrades to
// copy-then-delete, and a failure to delete the source is only a warning.
func MoveTo(src, dest string, force bool) error {
	if force && Exists(dest) {
		if err := Remove(dest); err != nil {
			return err
		}
	}
	if err := EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = os.Rename(src, dest)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrPermission) || attempt >= moveRetries {
			break
		}
		log.Warnf("unable to move %q yet, retrying in %s", src, moveRetryInterval)
		time.Sleep(moveRetryInterval)
	}

	if copyErr := CopyAs(src, dest); copyErr != nil {
		return errors.Wrapf(copyErr, "failed to move %q to %q", src, dest)
	}
	if rmErr := Remove(src); rmErr != nil {
		log.Warnf("moved %q by copy but could not remove the source: %v", src, rmErr)
	}
	return nil
}

// CreateLink links link to original, preferring a symbolic link and falling
// back to a hard link when symlinks are refused or unsupported. An existing
// file at link is replaced.
func CreateLink(original, link string) error {
	if err := EnsureDir(filepath.Dir(link)); err != nil {
		return err
	}
	if Exists(link) {
		if err := os.Remove(link); err != nil {
			return errors.Wrapf(err, "failed to remove existing link %q", link)
		}
	}
	if err := os.Symlink(original, link); err == nil {
		return nil
	}
	if err := os.Link(original, link); err != nil {
		return errors.Wrapf(err, "failed to link %q to %q", link, original)
	}
	return nil
}

// SetExecPermission marks path executable. No-op on Windows where the
// extension governs.
func SetExecPermission(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return errors.Wrapf(err, "failed to set exec permission on %q", path)
	}
	return nil
}

// IsExecutable reports whether path is a regular file a user could run.
func IsExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".exe", ".bat", ".cmd", ".ps1":
			return true
		}
		return false
	}
	return fi.Mode().Perm()&0o111 != 0
}

// TempDirUnder creates a fresh temporary directory under root with the
// given prefix, creating root first if needed.
func TempDirUnder(root, prefix string) (string, error) {
	if err := EnsureDir(root); err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(root, prefix+"_")
	if err != nil {
		return "", errors.Wrapf(err, "failed to create temp directory under %q", root)
	}
	return dir, nil
}
