//go:build !windows

package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureEnvPersists(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PATH", os.Getenv("PATH"))

	i := newTestInstallation(t, minimalManifest)
	require.NoError(t, i.configureEnv(true))

	assert.Equal(t, i.CargoHome(), os.Getenv("CARGO_HOME"))
	assert.Equal(t, i.RustupHome(), os.Getenv("RUSTUP_HOME"))
	assert.Equal(t, i.cargoBin(), filepath.SplitList(os.Getenv("PATH"))[0])

	script, err := os.ReadFile(i.envScriptPath())
	require.NoError(t, err)
	text := string(script)
	assert.Contains(t, text, `export CARGO_HOME="`+i.CargoHome()+`"`)
	assert.Contains(t, text, `export RUSTUP_DIST_SERVER="`)
	assert.Contains(t, text,
		`case ":$PATH:" in *":`+i.cargoBin()+`:"*) ;; *) export PATH="`+i.cargoBin()+`:$PATH" ;; esac`)

	// .profile is created with the source line, other rc files are not
	profile, err := os.ReadFile(filepath.Join(os.Getenv("HOME"), ".profile"))
	require.NoError(t, err)
	assert.Contains(t, string(profile), i.sourceLine())
	assert.NoFileExists(t, filepath.Join(os.Getenv("HOME"), ".bashrc"))

	// a second run does not duplicate the source line
	require.NoError(t, i.configureEnv(true))
	again, err := os.ReadFile(filepath.Join(os.Getenv("HOME"), ".profile"))
	require.NoError(t, err)
	assert.Equal(t, profile, again)
}

func TestConfigureEnvMergesNoProxy(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PATH", os.Getenv("PATH"))
	t.Setenv("no_proxy", "localhost")

	i := newTestInstallation(t, proxyManifest)
	require.NoError(t, i.configureEnv(true))

	assert.Equal(t, "localhost,.corp.example", os.Getenv("no_proxy"))

	script, err := os.ReadFile(i.envScriptPath())
	require.NoError(t, err)
	assert.Contains(t, string(script), `export no_proxy="localhost,.corp.example,$no_proxy"`)
}

func TestPersistPathRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	i := newTestInstallation(t, minimalManifest)
	require.NoError(t, i.persistEnvVars(i.envVars()))

	toolBin := filepath.Join(i.ToolsDir(), "spotter", "bin")
	require.NoError(t, i.persistAddPath(toolBin))
	require.NoError(t, i.persistAddPath(toolBin))

	paths, err := managedPaths(i.envScriptPath())
	require.NoError(t, err)
	assert.Equal(t, []string{toolBin}, paths)

	require.NoError(t, i.persistRemovePath(toolBin))
	paths, err = managedPaths(i.envScriptPath())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestRemovePersistedEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	bashrc := filepath.Join(home, ".bashrc")
	require.NoError(t, os.WriteFile(bashrc, []byte("alias ll='ls -l'\n"), 0o644))

	i := newTestInstallation(t, minimalManifest)
	require.NoError(t, i.persistEnvVars(i.envVars()))

	data, err := os.ReadFile(bashrc)
	require.NoError(t, err)
	assert.Contains(t, string(data), i.sourceLine())

	require.NoError(t, i.removePersistedEnv())
	assert.NoFileExists(t, i.envScriptPath())

	data, err = os.ReadFile(bashrc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), i.sourceLine())
	assert.Contains(t, string(data), "alias ll")
}

func TestParsePathGuard(t *testing.T) {
	line := `case ":$PATH:" in *":/opt/rust/cargo/bin:"*) ;; *) export PATH="/opt/rust/cargo/bin:$PATH" ;; esac`
	dir, ok := parsePathGuard(line)
	require.True(t, ok)
	assert.Equal(t, "/opt/rust/cargo/bin", dir)

	_, ok = parsePathGuard(`export CARGO_HOME="/opt/rust/cargo"`)
	assert.False(t, ok)
}
