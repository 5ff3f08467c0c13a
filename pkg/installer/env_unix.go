//go:build !windows

package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/fsutil"
)

// envScriptName is the sourceable script under CARGO_HOME that holds
// every persistent variable and PATH entry.
const envScriptName = "env"

// rcFiles are the shell startup files that get the source line.
// .profile is created when absent; the others are only amended.
var rcFiles = []string{".profile", ".bashrc", ".zshenv"}

func (i *Installation) envScriptPath() string {
	return filepath.Join(i.CargoHome(), envScriptName)
}

func (i *Installation) sourceLine() string {
	return fmt.Sprintf(`. "%s" # added by %s`, i.envScriptPath(), buildinfo.Product)
}

// persistEnvVars rewrites the env script's variable section and makes
// sure the shell rc files source it.
func (i *Installation) persistEnvVars(vars []envVar) error {
	paths, err := managedPaths(i.envScriptPath())
	if err != nil {
		return err
	}
	if err := i.writeEnvScript(vars, paths); err != nil {
		return err
	}
	return i.ensureRCSourceLines()
}

func (i *Installation) persistAddPath(dir string) error {
	paths, err := managedPaths(i.envScriptPath())
	if err != nil {
		return err
	}
	for _, p := range paths {
		if p == dir {
			return nil
		}
	}
	return i.writeEnvScript(i.envVars(), append(paths, dir))
}

func (i *Installation) persistRemovePath(dir string) error {
	paths, err := managedPaths(i.envScriptPath())
	if err != nil {
		return err
	}
	kept := paths[:0]
	for _, p := range paths {
		if p != dir {
			kept = append(kept, p)
		}
	}
	return i.writeEnvScript(i.envVars(), kept)
}

// removePersistedEnv deletes the env script and strips the source lines
// from the rc files.
func (i *Installation) removePersistedEnv() error {
	if err := fsutil.Remove(i.envScriptPath()); err != nil {
		return err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return errors.Wrap(err, "failed to locate home directory")
	}
	line := i.sourceLine()
	for _, rc := range rcFiles {
		path := filepath.Join(home, rc)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "failed to read %q", path)
		}
		lines := strings.Split(string(data), "\n")
		kept := lines[:0]
		for _, l := range lines {
			if strings.TrimSpace(l) != line {
				kept = append(kept, l)
			}
		}
		if len(kept) == len(lines) {
			continue
		}
		if err := fsutil.WriteFile(path, []byte(strings.Join(kept, "\n")), false); err != nil {
			return err
		}
	}
	return nil
}

// writeEnvScript renders the sourceable script: one export per variable,
// then one guarded PATH prepend per managed directory. Merged variables
// reference their own name so the user's value survives shell startup
// ordering.
func (i *Installation) writeEnvScript(vars []envVar, paths []string) error {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "# generated by %s, do not edit\n", buildinfo.Product)
	for _, v := range vars {
		if v.Merge {
			fmt.Fprintf(&b, "export %s=\"%s,$%s\"\n", v.Key, v.Value, v.Key)
			continue
		}
		fmt.Fprintf(&b, "export %s=\"%s\"\n", v.Key, v.Value)
	}
	for _, dir := range paths {
		fmt.Fprintf(&b, "case \":$PATH:\" in *\":%s:\"*) ;; *) export PATH=\"%s:$PATH\" ;; esac\n", dir, dir)
	}
	return fsutil.WriteFile(i.envScriptPath(), []byte(b.String()), false)
}

// managedPaths reads the PATH directories back out of the env script.
func managedPaths(script string) ([]string, error) {
	data, err := os.ReadFile(script)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read %q", script)
	}
	var paths []string
	for _, line := range strings.Split(string(data), "\n") {
		if dir, ok := parsePathGuard(line); ok {
			paths = append(paths, dir)
		}
	}
	return paths, nil
}

func parsePathGuard(line string) (string, bool) {
	const prefix = `case ":$PATH:" in *":`
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), prefix)
	if !ok {
		return "", false
	}
	dir, _, ok := strings.Cut(rest, `:"`)
	return dir, ok
}

func (i *Installation) ensureRCSourceLines() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return errors.Wrap(err, "failed to locate home directory")
	}
	line := i.sourceLine()
	for _, rc := range rcFiles {
		path := filepath.Join(home, rc)
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return errors.Wrapf(err, "failed to read %q", path)
			}
			if rc != ".profile" {
				continue
			}
		}
		content := string(data)
		if strings.Contains(content, line) {
			continue
		}
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += line + "\n"
		if err := fsutil.WriteFile(path, []byte(content), false); err != nil {
			return err
		}
	}
	return nil
}

// registerProgram is a Windows concern; POSIX systems have no program
// registry.
func registerProgram(*Installation) error { return nil }

func unregisterProgram(*Installation) error { return nil }
