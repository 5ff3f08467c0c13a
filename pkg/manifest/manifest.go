// Package manifest implements the toolkit manifest: the TOML document
// describing a Rust toolchain channel, its components and the ancillary
// tools a toolkit ships. The parsed form keeps tool declaration order,
// which later drives install ordering and the captured manifest copy.
package manifest

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/fsutil"
)

// ManifestFilename is the name of the captured manifest copy inside the
// installation directory.
const ManifestFilename = "toolset-manifest.toml"

// Proxy carries the enforced proxy settings of a toolkit.
type Proxy struct {
	HTTP    string
	HTTPS   string
	NoProxy string
}

// UnmarshalTOML resolves the no-proxy/no_proxy alias.
func (p *Proxy) UnmarshalTOML(data interface{}) error {
	table, ok := data.(map[string]interface{})
	if !ok {
		return errors.Errorf("proxy must be a table, got %T", data)
	}
	str := func(keys ...string) string {
		for _, key := range keys {
			if raw, ok := table[key]; ok {
				if s, ok := raw.(string); ok {
					return s
				}
			}
		}
		return ""
	}
	p.HTTP = str("http")
	p.HTTPS = str("https")
	p.NoProxy = str("no-proxy", "no_proxy")
	return nil
}

// CargoRegistry is the crates registry a toolkit enforces in place of
// crates-io.
type CargoRegistry struct {
	Name  string `toml:"name"`
	Index string `toml:"index"`
}

// ToolsSection groups everything under the [tools] table.
type ToolsSection struct {
	// Group labels tool components in listings.
	Group string

	// Descriptions maps tool names to human-readable descriptions.
	Descriptions map[string]string

	// Target maps a target triple (or "all") to its tools.
	Target map[string]*ToolMap
}

// ToolkitManifest is the root of a parsed toolkit manifest.
type ToolkitManifest struct {
	Name    string
	Version string
	Edition string

	Toolchain RustToolchain
	Tools     ToolsSection

	Proxy            *Proxy
	RustupDistServer string
	RustupUpdateRoot string
	CargoRegistry    *CargoRegistry

	// Path is the absolute location this manifest was loaded from, empty
	// for manifests parsed from memory.
	Path string

	// IsOffline marks manifests that carry a bundled dist directory.
	IsOffline bool
}

type toolkitManifestTOML struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition"`

	Toolchain *rustToolchainTOML `toml:"toolchain"`
	Rust      *rustToolchainTOML `toml:"rust"`

	Tools *toolsSectionTOML `toml:"tools"`

	Proxy            *Proxy         `toml:"proxy"`
	RustupDistServer string         `toml:"rustup-dist-server"`
	RustupUpdateRoot string         `toml:"rustup-update-root"`
	CargoRegistry    *CargoRegistry `toml:"cargo-registry"`
}

type toolsSectionTOML struct {
	Group        string                          `toml:"group"`
	Descriptions map[string]string               `toml:"descriptions"`
	Target       map[string]map[string]*ToolInfo `toml:"target"`
}

// FromStr parses a toolkit manifest from TOML text. A UTF-8 BOM is
// tolerated. Parse errors carry the offending position.
func FromStr(raw string) (*ToolkitManifest, error) {
	raw = strings.TrimPrefix(raw, "\uFEFF")

	var doc toolkitManifestTOML
	md, err := toml.Decode(raw, &doc)
	if err != nil {
		var parseErr toml.ParseError
		if errors.As(err, &parseErr) {
			return nil, errors.Errorf("invalid toolkit manifest: %s", parseErr.ErrorWithPosition())
		}
		return nil, errors.Wrap(err, "invalid toolkit manifest")
	}

	toolchain := doc.Toolchain
	if toolchain == nil {
		toolchain = doc.Rust
	}
	if toolchain == nil {
		return nil, errors.New("toolkit manifest is missing the [rust] table")
	}

	m := &ToolkitManifest{
		Name:             doc.Name,
		Version:          doc.Version,
		Edition:          doc.Edition,
		Toolchain:        toolchain.toToolchain(),
		Proxy:            doc.Proxy,
		RustupDistServer: doc.RustupDistServer,
		RustupUpdateRoot: doc.RustupUpdateRoot,
		CargoRegistry:    doc.CargoRegistry,
	}
	if m.Toolchain.Channel == "" {
		return nil, errors.New("toolkit manifest does not specify a toolchain channel")
	}

	if doc.Tools != nil {
		m.Tools.Group = doc.Tools.Group
		m.Tools.Descriptions = doc.Tools.Descriptions
		m.Tools.Target = orderToolMaps(doc.Tools.Target, md)
	}
	m.IsOffline = m.Toolchain.OfflineDistServer != ""
	return m, nil
}

// orderToolMaps rebuilds each per-triple tool map in document order, which
// the decoder's Go maps discard. Declaration order is observable: it
// breaks ties during install ordering and is preserved by ToTOML.
func orderToolMaps(decoded map[string]map[string]*ToolInfo, md toml.MetaData) map[string]*ToolMap {
	if len(decoded) == 0 {
		return nil
	}

	declared := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, key := range md.Keys() {
		if len(key) != 4 || key[0] != "tools" || key[1] != "target" {
			continue
		}
		triple, name := key[2], key[3]
		if seen[triple] == nil {
			seen[triple] = make(map[string]bool)
		}
		if seen[triple][name] {
			continue
		}
		seen[triple][name] = true
		declared[triple] = append(declared[triple], name)
	}

	out := make(map[string]*ToolMap, len(decoded))
	for triple, tools := range decoded {
		tm := NewToolMap()
		for _, name := range declared[triple] {
			if info, ok := tools[name]; ok {
				tm.Set(name, info)
			}
		}
		// Anything the key scan missed still gets carried over.
		if tm.Len() != len(tools) {
			rest := make([]string, 0, len(tools))
			for name := range tools {
				if _, ok := tm.Get(name); !ok {
					rest = append(rest, name)
				}
			}
			sort.Strings(rest)
			for _, name := range rest {
				tm.Set(name, tools[name])
			}
		}
		out[triple] = tm
	}
	return out
}

// Load reads and parses the manifest at path, remembering its absolute
// location for later path resolution.
func Load(path string) (*ToolkitManifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %q", path)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read toolkit manifest %q", path)
	}
	m, err := FromStr(string(raw))
	if err != nil {
		return nil, err
	}
	m.Path = abs
	return m, nil
}

// PackageRoot is the directory relative tool paths resolve against: the
// manifest's own directory when known, otherwise the directory of the
// running executable, otherwise a per-user cache directory.
func (m *ToolkitManifest) PackageRoot() string {
	if m.Path != "" {
		return filepath.Dir(m.Path)
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, buildinfo.Name)
	}
	return os.TempDir()
}

// AdjustPaths rewrites every relative path source to an absolute,
// lexically normalized path under PackageRoot. For offline manifests the
// resolved paths must exist.
func (m *ToolkitManifest) AdjustPaths() error {
	root := m.PackageRoot()
	for _, tm := range m.Tools.Target {
		for _, name := range tm.Names() {
			info, _ := tm.Get(name)
			if info.Source == nil || info.Source.Kind != SourcePath {
				continue
			}
			info.Source.Path = fsutil.NormalizeAbs(info.Source.Path, root)
			if m.IsOffline && !fsutil.Exists(info.Source.Path) {
				return errors.Errorf(
					"tool %q references %q which does not exist", name, info.Source.Path)
			}
		}
	}
	return nil
}

// RustupBin returns the bundled rustup-init for the current target, if
// the manifest declares one and the file exists.
func (m *ToolkitManifest) RustupBin() (string, bool) {
	rel, ok := m.Toolchain.Rustup[HostTriple()]
	if !ok || rel == "" {
		return "", false
	}
	path := fsutil.NormalizeAbs(rel, m.PackageRoot())
	if !fsutil.Exists(path) {
		return "", false
	}
	return path, true
}

// OfflineDistServer returns the bundled dist directory as a file URL, or
// an empty string when the toolkit is online.
func (m *ToolkitManifest) OfflineDistServer() (string, error) {
	if m.Toolchain.OfflineDistServer == "" {
		return "", nil
	}
	abs := fsutil.NormalizeAbs(m.Toolchain.OfflineDistServer, m.PackageRoot())
	if !filepath.IsAbs(abs) {
		return "", errors.Errorf("offline dist server %q does not resolve to an absolute path", m.Toolchain.OfflineDistServer)
	}
	slashed := filepath.ToSlash(abs)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return u.String(), nil
}

// CurrentTargetTools merges the tools declared for the host triple with
// the "all" map, host-specific entries first. GUI-only tools are dropped
// on hosts without a desktop environment. Entries declaring an identifier
// are keyed on it; the map name only survives in the document itself.
func (m *ToolkitManifest) CurrentTargetTools() *ToolMap {
	merged := NewToolMap()
	gui := HasDesktopEnvironment()

	appendFrom := func(tm *ToolMap) {
		for _, name := range tm.Names() {
			info, _ := tm.Get(name)
			if info.GUIOnly && !gui {
				continue
			}
			if info.Identifier != "" {
				name = info.Identifier
			}
			if _, exists := merged.Get(name); exists {
				continue
			}
			merged.Set(name, info)
		}
	}
	if tm, ok := m.Tools.Target[HostTriple()]; ok {
		appendFrom(tm)
	}
	if tm, ok := m.Tools.Target["all"]; ok {
		appendFrom(tm)
	}
	return merged
}

// FillMissingPackageSource prompts for every selected restricted tool
// whose source is still unset and writes the answer back into the
// manifest entry.
func (m *ToolkitManifest) FillMissingPackageSource(components []*Component, prompt func(displayName, defaultValue string) (string, error)) error {
	for _, comp := range components {
		if comp.Tool == nil || !comp.Tool.IsRestricted() {
			continue
		}
		src := comp.Tool.Source
		if src.Source != "" {
			continue
		}
		display := comp.Tool.DisplayNameOr(comp.Name)
		answer, err := prompt(display, src.Default)
		if err != nil {
			return errors.Wrapf(err, "failed to get a package source for '%s'", display)
		}
		if answer == "" {
			return errors.Errorf("no package source provided for '%s'", display)
		}
		src.Source = answer
	}
	return nil
}

// OnlineEquivalent returns a copy with the bundled-distribution fields
// cleared, suitable as the captured manifest of an offline install so
// later component operations download instead.
func (m *ToolkitManifest) OnlineEquivalent() *ToolkitManifest {
	clone := *m
	clone.Toolchain.OfflineDistServer = ""
	clone.Toolchain.Rustup = nil
	clone.IsOffline = false
	return &clone
}

// HasDesktopEnvironment reports whether GUI tools are installable on this
// host.
func HasDesktopEnvironment() bool {
	switch {
	case isWindows(), isDarwin():
		return true
	default:
		return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	}
}
