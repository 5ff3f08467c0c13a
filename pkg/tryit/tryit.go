// Package tryit exports the embedded example cargo project, giving a
// fresh installation something to build right away.
package tryit

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/assets"
	"github.com/rust-install/rim/pkg/fsutil"
)

// ProjectDirName is the directory the example project is exported into.
const ProjectDirName = "example_project"

// editors are tried in order before falling back to the file manager.
var editors = []string{"code", "codium"}

// TryIt exports the example project under dest (the working directory
// when empty) and optionally opens it. Failing to open is not fatal;
// the export already succeeded.
func TryIt(ctx context.Context, dest string, openAfter bool) (string, error) {
	dir, err := Export(dest)
	if err != nil {
		return "", err
	}
	if openAfter {
		if err := Open(ctx, dir); err != nil {
			log.Warnf("could not open %q: %v", dir, err)
		}
	}
	return dir, nil
}

// Export writes the embedded example project under dest and returns the
// project directory.
func Export(dest string) (string, error) {
	if dest == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "failed to determine the working directory")
		}
		dest = cwd
	}

	root := filepath.Join(dest, ProjectDirName)
	source := assets.ExampleProject()
	err := fs.WalkDir(source, "example", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		data, err := source.ReadFile(path)
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, "example/")
		return fsutil.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), data, false)
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to export the example project")
	}
	log.Infof("example project exported to %q", root)
	return root, nil
}

// Open opens dir with a VS Code-family editor when one is on PATH,
// otherwise with the platform file manager.
func Open(ctx context.Context, dir string) error {
	program := fileManager()
	for _, editor := range editors {
		if _, err := exec.LookPath(editor); err == nil {
			program = editor
			break
		}
	}
	log.Debugf("opening %q with %s", dir, program)
	return exec.CommandContext(ctx, program, dir).Run()
}

func fileManager() string {
	switch runtime.GOOS {
	case "windows":
		return "explorer.exe"
	case "darwin":
		return "open"
	default:
		return "xdg-open"
	}
}
