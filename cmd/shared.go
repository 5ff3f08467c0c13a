package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/multi"
	"github.com/apex/log/handlers/text"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/installer"
	"github.com/rust-install/rim/pkg/manifest"
	"github.com/rust-install/rim/pkg/progress"
)

// progressHandler returns the terminal progress bars, or nothing under
// --quiet.
func progressHandler() progress.Handler {
	if quiet {
		return progress.Discard{}
	}
	return progress.NewTerminal()
}

// attachFileLog mirrors log output into <root>/log once an install root
// is known. A failure only costs the file copy of the log.
func attachFileLog(root string) {
	name := fmt.Sprintf("%s-%s.log", buildinfo.Name, time.Now().Format("20060102-150405"))
	path := filepath.Join(root, "log", name)
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		log.WithError(err).Warn("cannot create the log directory")
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.WithError(err).Warn("cannot open the log file")
		return
	}
	log.SetHandler(multi.New(cli.Default, text.New(f)))
	log.Debugf("logging to %s", path)
}

// defaultInstallDir is where installations land when --prefix is not
// given.
func defaultInstallDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "cannot determine the home directory")
	}
	return filepath.Join(home, "rust"), nil
}

// resolveInstallDir turns --prefix into an absolute installation root,
// falling back to the default directory. The filesystem root is not a
// valid target.
func resolveInstallDir(prefix string) (string, error) {
	dir := prefix
	if dir == "" {
		var err error
		dir, err = defaultInstallDir()
		if err != nil {
			return "", err
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "invalid installation directory %q", dir)
	}
	if abs == filepath.Dir(abs) {
		return "", errors.New("cannot install into the filesystem root")
	}
	return abs, nil
}

// findInstallRoot locates the installation this invocation manages: the
// directory of the running executable when it carries an install record
// (the manager copy placed at setup), else the default install
// directory.
func findInstallRoot() (string, error) {
	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Dir(exe))
	}
	if def, err := defaultInstallDir(); err == nil {
		candidates = append(candidates, def)
	}
	root, ok := rootWithRecord(candidates)
	if !ok {
		return "", errors.Errorf("no %s installation found, run '%s install' first", buildinfo.Product, buildinfo.Name)
	}
	return root, nil
}

// rootWithRecord returns the first candidate holding an install record.
func rootWithRecord(candidates []string) (string, bool) {
	for _, dir := range candidates {
		if dir != "" && fingerprint.Exists(dir) {
			return dir, true
		}
	}
	return "", false
}

// matchComponents resolves user-given names against the component
// listing, matching names and display names case-insensitively. Each
// component is matched at most once.
func matchComponents(components []*manifest.Component, names []string) (matched []*manifest.Component, unknown []string) {
	seen := make(map[*manifest.Component]bool)
	for _, name := range names {
		found := false
		for _, c := range components {
			if !strings.EqualFold(c.Name, name) && !strings.EqualFold(c.DisplayName, name) {
				continue
			}
			if !seen[c] {
				seen[c] = true
				matched = append(matched, c)
			}
			found = true
			break
		}
		if !found {
			unknown = append(unknown, name)
		}
	}
	return matched, unknown
}

// defaultSelection is what an unattended install gets: everything the
// user named, plus required components, plus non-optional components
// that are not already installed. Listing order is preserved.
func defaultSelection(components, named []*manifest.Component) []*manifest.Component {
	pick := make(map[*manifest.Component]bool, len(named))
	for _, c := range named {
		pick[c] = true
	}
	var out []*manifest.Component
	for _, c := range components {
		if pick[c] || c.Required || (!c.Optional && !c.Installed) {
			out = append(out, c)
		}
	}
	return out
}

// componentNames lists the names of a component listing, for
// diagnostics.
func componentNames(components []*manifest.Component) []string {
	names := make([]string, 0, len(components))
	for _, c := range components {
		names = append(names, c.Name)
	}
	return names
}

// componentList renders the table printed by 'install
// --list-components'.
func componentList(components []*manifest.Component) string {
	var b strings.Builder
	for _, c := range components {
		flags := componentFlags(c)
		line := fmt.Sprintf("%-24s %-22s %s", c.Name, flags, c.Description)
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func componentFlags(c *manifest.Component) string {
	flags := "default"
	switch {
	case c.Required:
		flags = "required"
	case c.Optional:
		flags = "optional"
	}
	if c.Installed {
		flags += ", installed"
	}
	return "(" + flags + ")"
}

// toolkitTitle names a toolkit for messages.
func toolkitTitle(m *manifest.ToolkitManifest) string {
	if m.Name == "" {
		return buildinfo.Product
	}
	if m.Version == "" {
		return m.Name
	}
	return m.Name + " " + m.Version
}

// confirm asks a yes/no question. Anything but an explicit yes
// declines.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// askToolSource builds the prompt used to fill in missing package
// sources of restricted tools. With assumeYes the recorded default is
// taken as-is.
func askToolSource(in io.Reader, out io.Writer, assumeYes bool) func(string, string) (string, error) {
	scanner := bufio.NewScanner(in)
	return func(displayName, defaultValue string) (string, error) {
		if assumeYes {
			if defaultValue == "" {
				return "", errors.Errorf("no package source recorded for '%s', re-run without --yes to provide one", displayName)
			}
			return defaultValue, nil
		}
		if defaultValue != "" {
			fmt.Fprintf(out, "enter the package source for '%s' [%s]: ", displayName, defaultValue)
		} else {
			fmt.Fprintf(out, "enter the package source for '%s': ", displayName)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", errors.Wrapf(err, "failed to read the package source for '%s'", displayName)
			}
			return "", errors.Errorf("no package source given for '%s'", displayName)
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			answer = defaultValue
		}
		if answer == "" {
			return "", errors.Errorf("a package source is required for '%s'", displayName)
		}
		return answer, nil
	}
}

// reportProblems prints the aggregated per-component failures of a run.
// They are not fatal; the exit code stays zero.
func reportProblems(report *installer.Report, operation string) {
	if !report.HasFailures() {
		return
	}
	for _, f := range report.Failures() {
		log.Error(f.Error())
	}
	log.Warnf("%s finished with %d problem(s)", operation, len(report.Failures()))
}
