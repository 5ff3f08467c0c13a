// Package checksums verifies downloads against published sha256 sidecar
// files. rustup publishes `<url>.sha256` next to every rustup-init binary
// in the common coreutils format, one entry per line:
//
//	<hex digest>  <filename>
//
// with an optional "*" marking binary mode on the filename.
package checksums

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ComputeSHA256 streams path through sha256 and returns the hex digest.
func ComputeSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %q for hashing", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "failed to hash %q", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Parse reads checksum-file content into a filename → digest map. Entries
// without a filename are keyed by the empty string. Malformed lines are
// skipped.
func Parse(content []byte) map[string]string {
	sums := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		digest := fields[0]
		if !isHexDigest(digest) {
			continue
		}
		name := ""
		if len(fields) > 1 {
			name = strings.TrimPrefix(fields[1], "*")
		}
		sums[name] = strings.ToLower(digest)
	}
	return sums
}

// ExpectedFor picks the digest for filename out of checksum-file content.
// Matching falls back to the base name, then to the single entry of a
// one-line file (rustup sidecars contain exactly one).
func ExpectedFor(content []byte, filename string) (string, bool) {
	sums := Parse(content)
	if digest, ok := sums[filename]; ok {
		return digest, true
	}
	if digest, ok := sums[filepath.Base(filename)]; ok {
		return digest, true
	}
	if len(sums) == 1 {
		for _, digest := range sums {
			return digest, true
		}
	}
	return "", false
}

// VerifyFile compares the sha256 of path against expected.
func VerifyFile(path, expected string) error {
	actual, err := ComputeSHA256(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, expected) {
		return errors.Errorf("checksum mismatch for %s: expected %s, got %s",
			filepath.Base(path), strings.ToLower(expected), actual)
	}
	return nil
}

func isHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
