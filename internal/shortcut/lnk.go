package shortcut

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

type lnkData struct {
	LnkPath string
	Target  string
	WorkDir string
	Comment string
	Icon    string
}

// renderLnkScript produces the PowerShell that creates the .lnk file.
// Values are single-quoted in the script, so embedded quotes are doubled.
func renderLnkScript(s *Shortcut, lnkPath string) (string, error) {
	tmpl, err := template.New("lnk").Parse(lnkScriptTemplate)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse shortcut script template")
	}
	data := lnkData{
		LnkPath: escapePS(lnkPath),
		Target:  escapePS(s.Target),
		WorkDir: escapePS(s.WorkDir),
		Comment: escapePS(s.Comment),
		Icon:    escapePS(s.Icon),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to render shortcut script")
	}
	return buf.String(), nil
}

func escapePS(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func lnkPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to locate home directory")
	}
	return filepath.Join(home, "Desktop", name+".lnk"), nil
}

func (s *Shortcut) createLnk() error {
	path, err := lnkPath(s.Name)
	if err != nil {
		return err
	}
	script, err := renderLnkScript(s, path)
	if err != nil {
		return err
	}
	cmd := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "failed to create shortcut %q: %s", path, strings.TrimSpace(string(out)))
	}
	return nil
}

func removeLnk(name string) error {
	path, err := lnkPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove shortcut %q", path)
	}
	return nil
}
