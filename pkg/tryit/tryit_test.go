package tryit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportWritesProject(t *testing.T) {
	dest := t.TempDir()

	dir, err := Export(dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, ProjectDirName), dir)

	assert.FileExists(t, filepath.Join(dir, "Cargo.toml"))
	assert.FileExists(t, filepath.Join(dir, "src", "main.rs"))
	assert.FileExists(t, filepath.Join(dir, ".vscode", "launch.json"))

	data, err := os.ReadFile(filepath.Join(dir, "Cargo.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `name = "example_project"`)

	main, err := os.ReadFile(filepath.Join(dir, "src", "main.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(main), "fn main()")
}

func TestExportDefaultsToWorkingDirectory(t *testing.T) {
	t.Chdir(t.TempDir())

	dir, err := Export("")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "Cargo.toml"))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, ProjectDirName), dir)
}
