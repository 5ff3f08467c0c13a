package tool

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/rust-install/rim/pkg/manifest"
)

// downloadFilename decides the local name of a URL download: the
// manifest's filename field when present, otherwise the URL's last
// non-empty path segment. Extensionless names get an extension inferred
// from URL substrings, or from a short table of tools known to serve
// extensionless archive links.
func downloadFilename(name string, info *manifest.ToolInfo, rawURL string) (string, error) {
	if info != nil && info.Source != nil && info.Source.Filename != "" {
		return info.Source.Filename, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "unsupported url %q", rawURL)
	}
	base := ""
	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment != "" {
			base = segment
		}
	}
	if base == "" {
		return "", errors.Errorf("%q does not appear to be a downloadable file", rawURL)
	}

	if !strings.Contains(base, ".") {
		base += inferExtension(name, rawURL)
	}
	return base, nil
}

func inferExtension(name, url string) string {
	switch {
	// VS Code-family archive links name a platform instead of a format;
	// they are zip files.
	case strings.Contains(url, "win32-x64-archive"),
		strings.Contains(url, "linux-x64"),
		strings.Contains(url, "linux-arm64"):
		return ".zip"
	case strings.Contains(url, ".zip"), strings.Contains(url, "archive"):
		return ".zip"
	case strings.Contains(url, ".tar.gz"), strings.Contains(url, ".tgz"):
		return ".tar.gz"
	case strings.Contains(url, ".tar.xz"):
		return ".tar.xz"
	case strings.Contains(url, ".7z"):
		return ".7z"
	}

	switch name {
	case "vscode", "vscodium", "codearts-rust":
		return ".zip"
	}
	return ""
}
