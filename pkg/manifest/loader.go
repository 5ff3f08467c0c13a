package manifest

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/rust-install/rim/pkg/fetch"
)

// cachedManifests keeps raw manifest text per source for the lifetime of
// the process. The raw text is re-parsed on every hit, which hands each
// caller an independent manifest to mutate.
var (
	cacheMu         sync.Mutex
	cachedManifests = make(map[string]cachedManifest)
)

type cachedManifest struct {
	raw  string
	path string
}

// GetToolkitManifest loads a toolkit manifest from an http(s) URL, a
// file URL or a local path. Results are cached in-process per source.
func GetToolkitManifest(ctx context.Context, source string, insecure bool) (*ToolkitManifest, error) {
	cacheMu.Lock()
	cached, hit := cachedManifests[source]
	cacheMu.Unlock()
	if hit {
		m, err := FromStr(cached.raw)
		if err != nil {
			return nil, err
		}
		m.Path = cached.path
		return m, nil
	}

	raw, path, err := readManifestSource(ctx, source, insecure)
	if err != nil {
		return nil, err
	}
	m, err := FromStr(raw)
	if err != nil {
		return nil, err
	}
	m.Path = path

	cacheMu.Lock()
	cachedManifests[source] = cachedManifest{raw: raw, path: path}
	cacheMu.Unlock()
	return m, nil
}

// ClearCachedManifest drops the cached entry for source.
func ClearCachedManifest(source string) {
	cacheMu.Lock()
	delete(cachedManifests, source)
	cacheMu.Unlock()
}

func readManifestSource(ctx context.Context, source string, insecure bool) (raw, path string, err error) {
	switch {
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		body, err := fetch.New("toolkit manifest", nil).Insecure(insecure).Fetch(ctx, source)
		if err != nil {
			return "", "", errors.Wrapf(err, "failed to fetch toolkit manifest from %q", source)
		}
		return string(body), "", nil
	case strings.HasPrefix(source, "file://"):
		u, err := url.Parse(source)
		if err != nil {
			return "", "", errors.Wrapf(err, "invalid manifest source %q", source)
		}
		return readManifestFile(u.Path)
	default:
		return readManifestFile(source)
	}
}

func readManifestFile(path string) (string, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to resolve %q", path)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to read toolkit manifest %q", path)
	}
	return string(raw), abs, nil
}
