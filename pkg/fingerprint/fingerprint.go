// Package fingerprint persists the installation record. The record file
// is the single source of truth for what is installed under an
// installation root; the toolkit manifest is advisory by comparison.
package fingerprint

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/manifest"
)

// Filename is the fixed name of the record file under the install root.
const Filename = "install-record.toml"

// RustRecord captures the installed toolchain channel and the components
// that were installed alongside it.
type RustRecord struct {
	Channel    string
	Components []string
}

// ToolRecord describes one installed tool: how it was installed, and
// which filesystem paths its uninstall must remove. Every recorded path
// is either under the install root or a location whose removal the
// matching custom handler sanctions.
type ToolRecord struct {
	Kind         manifest.ToolKind
	Version      string
	Paths        []string
	Dependencies []string
}

// InstallationRecord mirrors install-record.toml. Tool entries keep
// insertion order so the file is reproducible and uninstall can replay
// installs in a deterministic order.
type InstallationRecord struct {
	InstallDir string
	Name       string
	Version    string
	Edition    string
	Rust       *RustRecord

	tools *orderedmap.OrderedMap[string, ToolRecord]
}

// New returns an empty record rooted at installDir. The root is set
// exactly once, here; nothing mutates it afterwards.
func New(installDir string) *InstallationRecord {
	return &InstallationRecord{
		InstallDir: installDir,
		tools:      orderedmap.NewOrderedMap[string, ToolRecord](),
	}
}

// FilePath returns the record location under installDir.
func FilePath(installDir string) string {
	return filepath.Join(installDir, Filename)
}

// Exists reports whether installDir already carries a record.
func Exists(installDir string) bool {
	return fsutil.Exists(FilePath(installDir))
}

// Load reads the record from installDir.
func Load(installDir string) (*InstallationRecord, error) {
	path := FilePath(installDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read installation record %q", path)
	}

	var raw rawRecord
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse installation record %q", path)
	}

	rec := New(raw.InstallDir)
	if rec.InstallDir == "" {
		rec.InstallDir = installDir
	}
	rec.Name = raw.Name
	rec.Version = raw.Version
	rec.Edition = raw.Edition
	if raw.Rust != nil {
		rec.Rust = &RustRecord{Channel: raw.Rust.Channel, Components: raw.Rust.Components}
	}
	for _, name := range orderedToolNames(md) {
		rt, ok := raw.Tools[name]
		if !ok {
			continue
		}
		entry := ToolRecord{
			Version:      rt.Version,
			Paths:        rt.Paths,
			Dependencies: rt.Dependencies,
		}
		if rt.Kind != "" {
			entry.Kind = manifest.ParseKind(rt.Kind)
		}
		rec.tools.Set(name, entry)
	}
	return rec, nil
}

// orderedToolNames recovers the declaration order of [tools.*] sections,
// which map decoding would otherwise lose.
func orderedToolNames(md toml.MetaData) []string {
	var names []string
	seen := map[string]bool{}
	for _, key := range md.Keys() {
		if len(key) < 2 || key[0] != "tools" {
			continue
		}
		if name := key[1]; !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// AddRustRecord sets the installed channel and merges the component
// list. Merging keeps components recorded by earlier runs: an update
// that selects only new components must not forget what rustup already
// has on disk.
func (r *InstallationRecord) AddRustRecord(channel string, components []string) {
	if r.Rust == nil {
		r.Rust = &RustRecord{}
	}
	r.Rust.Channel = channel
	for _, c := range components {
		if c == "" || contains(r.Rust.Components, c) {
			continue
		}
		r.Rust.Components = append(r.Rust.Components, c)
	}
}

// InstalledToolchainComponents returns the recorded toolchain components,
// or nil when no toolchain was installed yet.
func (r *InstallationRecord) InstalledToolchainComponents() []string {
	if r.Rust == nil {
		return nil
	}
	return r.Rust.Components
}

// RemoveToolchainComponents drops the named components from the
// toolchain entry, keeping the rest in their recorded order.
func (r *InstallationRecord) RemoveToolchainComponents(components []string) {
	if r.Rust == nil {
		return
	}
	kept := r.Rust.Components[:0]
	for _, c := range r.Rust.Components {
		if !contains(components, c) {
			kept = append(kept, c)
		}
	}
	r.Rust.Components = kept
}

// RemoveRustRecord drops the toolchain entry, after the toolchain itself
// has been removed from disk.
func (r *InstallationRecord) RemoveRustRecord() {
	r.Rust = nil
}

// AddToolRecord appends or replaces the entry for name.
func (r *InstallationRecord) AddToolRecord(name string, rec ToolRecord) {
	r.tools.Set(name, rec)
}

// Tool looks up the recorded entry for name.
func (r *InstallationRecord) Tool(name string) (ToolRecord, bool) {
	return r.tools.Get(name)
}

// ToolNames returns the recorded tool names in insertion order.
func (r *InstallationRecord) ToolNames() []string {
	return r.tools.Keys()
}

// RemoveToolRecord drops the entry for name, after the tool's files have
// been removed. A record must never run ahead of reality, so callers
// remove files first and write the record afterwards.
func (r *InstallationRecord) RemoveToolRecord(name string) {
	r.tools.Delete(name)
}

// CloneToolkitMetaFromManifest copies the toolkit identity so the record
// knows which toolkit release produced it.
func (r *InstallationRecord) CloneToolkitMetaFromManifest(m *manifest.ToolkitManifest) {
	r.Name = m.Name
	r.Version = m.Version
	r.Edition = m.Edition
}

// Write serializes the record to its file. Callers invoke it after every
// mutation so a crash mid-install leaves the record consistent with the
// steps that completed.
func (r *InstallationRecord) Write() error {
	text, err := r.ToTOML()
	if err != nil {
		return err
	}
	return fsutil.WriteFile(FilePath(r.InstallDir), []byte(text), false)
}

// ToTOML serializes the record, tools in insertion order.
func (r *InstallationRecord) ToTOML() (string, error) {
	var b strings.Builder

	head := rawHead{
		InstallDir: r.InstallDir,
		Name:       r.Name,
		Version:    r.Version,
		Edition:    r.Edition,
	}
	if err := toml.NewEncoder(&b).Encode(head); err != nil {
		return "", errors.Wrap(err, "encode installation record")
	}

	if r.Rust != nil {
		b.WriteString("\n[rust]\n")
		body := rawRust{Channel: r.Rust.Channel, Components: r.Rust.Components}
		if err := toml.NewEncoder(&b).Encode(body); err != nil {
			return "", errors.Wrap(err, "encode toolchain record")
		}
	}

	for _, name := range r.tools.Keys() {
		rec, _ := r.tools.Get(name)
		b.WriteString("\n[tools." + recordKey(name) + "]\n")
		body := rawTool{
			Kind:         rec.Kind.String(),
			Version:      rec.Version,
			Paths:        rec.Paths,
			Dependencies: rec.Dependencies,
		}
		if err := toml.NewEncoder(&b).Encode(body); err != nil {
			return "", errors.Wrapf(err, "encode tool record %q", name)
		}
	}
	return b.String(), nil
}

type rawRecord struct {
	InstallDir string             `toml:"install-dir"`
	Name       string             `toml:"name"`
	Version    string             `toml:"version"`
	Edition    string             `toml:"edition"`
	Rust       *rawRust           `toml:"rust"`
	Tools      map[string]rawTool `toml:"tools"`
}

type rawHead struct {
	InstallDir string `toml:"install-dir"`
	Name       string `toml:"name,omitempty"`
	Version    string `toml:"version,omitempty"`
	Edition    string `toml:"edition,omitempty"`
}

type rawRust struct {
	Channel    string   `toml:"channel"`
	Components []string `toml:"components,omitempty"`
}

type rawTool struct {
	Kind         string   `toml:"kind,omitempty"`
	Version      string   `toml:"version,omitempty"`
	Paths        []string `toml:"paths,omitempty"`
	Dependencies []string `toml:"dependencies,omitempty"`
}

// recordKey quotes a tool name unless every rune is bare-key safe.
func recordKey(name string) string {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name) + `"`
		}
	}
	if name == "" {
		return `""`
	}
	return name
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
