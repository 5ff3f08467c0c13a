package checksums

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rustup-init")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func digestOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestComputeSHA256(t *testing.T) {
	path := writeTemp(t, "hello")
	got, err := ComputeSHA256(path)
	require.NoError(t, err)
	assert.Equal(t, digestOf("hello"), got)
}

func TestParse(t *testing.T) {
	digest := digestOf("hello")
	tests := []struct {
		name    string
		content string
		want    map[string]string
	}{
		{
			name:    "plain entry",
			content: digest + "  rustup-init\n",
			want:    map[string]string{"rustup-init": digest},
		},
		{
			name:    "binary-mode marker",
			content: digest + " *rustup-init.exe\n",
			want:    map[string]string{"rustup-init.exe": digest},
		},
		{
			name:    "bare digest",
			content: digest + "\n",
			want:    map[string]string{"": digest},
		},
		{
			name:    "junk lines skipped",
			content: "# comment\nnot-a-digest file\n" + digest + "  rustup-init\n",
			want:    map[string]string{"rustup-init": digest},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse([]byte(tt.content)))
		})
	}
}

func TestExpectedFor(t *testing.T) {
	digest := digestOf("hello")

	got, ok := ExpectedFor([]byte(digest+"  rustup-init\n"), "/tmp/download/rustup-init")
	require.True(t, ok)
	assert.Equal(t, digest, got)

	// A single-entry sidecar matches regardless of name.
	got, ok = ExpectedFor([]byte(digest+"  other-name\n"), "rustup-init")
	require.True(t, ok)
	assert.Equal(t, digest, got)

	_, ok = ExpectedFor([]byte("garbage"), "rustup-init")
	assert.False(t, ok)
}

func TestVerifyFile(t *testing.T) {
	path := writeTemp(t, "payload")

	require.NoError(t, VerifyFile(path, digestOf("payload")))

	err := VerifyFile(path, digestOf("tampered"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch for rustup-init")
}
