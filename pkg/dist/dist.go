// Package dist talks to the distribution server: it fetches the catalog
// of published toolkits and decides which of them are installable or an
// update for the current installation.
package dist

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/pkg/fetch"
	"github.com/rust-install/rim/pkg/manifest"
)

// DistManifestPath is where the catalog lives relative to the dist
// server root.
const DistManifestPath = "dist/distribution-manifest.toml"

// Toolkit is one published toolkit of the catalog.
type Toolkit struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Edition     string `toml:"edition"`
	Desc        string `toml:"desc"`
	Info        string `toml:"info"`
	ManifestURL string `toml:"manifest-url"`
}

// Manifest fetches and parses the toolkit's manifest.
func (t *Toolkit) Manifest(ctx context.Context, insecure bool) (*manifest.ToolkitManifest, error) {
	if t.ManifestURL == "" {
		return nil, errors.Errorf("toolkit '%s' does not carry a manifest url", t.Name)
	}
	return manifest.GetToolkitManifest(ctx, t.ManifestURL, insecure)
}

// Installed identifies the currently installed toolkit, as recorded by
// the fingerprint.
type Installed struct {
	Name    string
	Version string
	Edition string
}

type distManifestTOML struct {
	Packages       []Toolkit `toml:"packages"`
	LegacyPackages []Toolkit `toml:"package"`
}

var (
	cacheMu        sync.Mutex
	cachedCatalogs = make(map[string][]Toolkit)
)

// ClearCachedDistManifest drops the cached catalog for one dist server.
func ClearCachedDistManifest(server string) {
	cacheMu.Lock()
	delete(cachedCatalogs, catalogURL(server))
	cacheMu.Unlock()
}

func catalogURL(server string) string {
	return strings.TrimSuffix(server, "/") + "/" + DistManifestPath
}

// ToolkitsFromServer returns the published toolkits, newest version
// first. The catalog is cached in-process per server URL.
func ToolkitsFromServer(ctx context.Context, server string, insecure bool) ([]Toolkit, error) {
	url := catalogURL(server)

	cacheMu.Lock()
	cached, hit := cachedCatalogs[url]
	if hit {
		out := make([]Toolkit, len(cached))
		copy(out, cached)
		cacheMu.Unlock()
		return out, nil
	}
	cacheMu.Unlock()

	toolkits, err := loadCatalog(ctx, url, insecure)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cachedCatalogs[url] = toolkits
	out := make([]Toolkit, len(toolkits))
	copy(out, toolkits)
	cacheMu.Unlock()
	return out, nil
}

func loadCatalog(ctx context.Context, url string, insecure bool) ([]Toolkit, error) {
	body, err := fetch.New("distribution manifest", nil).Insecure(insecure).Fetch(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch distribution manifest from %q", url)
	}

	raw := strings.TrimPrefix(string(body), "\uFEFF")
	if strings.TrimSpace(raw) == "" {
		return nil, errors.Errorf("distribution manifest at %q is empty", url)
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "<") {
		return nil, errors.Errorf("distribution manifest at %q returned HTML instead of TOML", url)
	}

	var doc distManifestTOML
	if err := toml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, errors.Wrapf(err, "invalid distribution manifest at %q", url)
	}
	toolkits := append(doc.Packages, doc.LegacyPackages...)

	sort.SliceStable(toolkits, func(i, j int) bool {
		return compareVersions(toolkits[i].Version, toolkits[j].Version) > 0
	})
	return toolkits, nil
}

// InstallableToolkits lists the catalog minus the installed toolkit,
// with same-edition entries first. With reload set, the cache entry is
// refreshed. A nil installed means nothing is installed yet.
func InstallableToolkits(ctx context.Context, server string, installed *Installed, reload, insecure bool) ([]Toolkit, error) {
	if reload {
		ClearCachedDistManifest(server)
	}
	toolkits, err := ToolkitsFromServer(ctx, server, insecure)
	if err != nil {
		return nil, err
	}

	var sameEdition, others []Toolkit
	for _, tk := range toolkits {
		if installed != nil && tk.Name == installed.Name && tk.Version == installed.Version {
			continue
		}
		if installed != nil && tk.Edition == installed.Edition {
			sameEdition = append(sameEdition, tk)
			continue
		}
		others = append(others, tk)
	}
	return append(sameEdition, others...), nil
}

// LatestInstallableToolkit returns the newest catalog entry strictly
// newer than the installed version under semver, or nil when the
// installation is already current.
func LatestInstallableToolkit(ctx context.Context, server string, installed Installed, insecure bool) (*Toolkit, error) {
	toolkits, err := ToolkitsFromServer(ctx, server, insecure)
	if err != nil {
		return nil, err
	}
	if len(toolkits) == 0 {
		return nil, nil
	}

	current, err := semver.NewVersion(trimVersionPrefix(installed.Version))
	if err != nil {
		return nil, errors.Wrapf(err, "installed toolkit version %q is not a version", installed.Version)
	}
	for i := range toolkits {
		candidate, err := semver.NewVersion(trimVersionPrefix(toolkits[i].Version))
		if err != nil {
			continue
		}
		if candidate.GreaterThan(current) {
			return &toolkits[i], nil
		}
	}
	return nil, nil
}

// compareVersions orders versions by semver after trimming any non-digit
// prefix, falling back to a lexical comparison when either side does not
// parse.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(trimVersionPrefix(a))
	vb, errB := semver.NewVersion(trimVersionPrefix(b))
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return strings.Compare(a, b)
}

func trimVersionPrefix(v string) string {
	for i, r := range v {
		if r >= '0' && r <= '9' {
			return v[i:]
		}
	}
	return v
}
