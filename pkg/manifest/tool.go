package manifest

import (
	"github.com/elliotchance/orderedmap/v2"
	"github.com/pkg/errors"
)

// ToolKind tells the install pipeline how to handle an acquired tool.
// The numeric order doubles as the uninstall priority: kinds with higher
// values are removed first, so cargo-managed tools come off while the
// toolchain they need is still present.
type ToolKind int

const (
	KindUnspecified ToolKind = iota
	KindDirWithBin
	KindInstaller
	KindExecutables
	KindCustom
	KindPlugin
	KindCargoTool
	KindRuleSet
	KindCrate
	KindUnknown
)

var kindNames = map[ToolKind]string{
	KindDirWithBin:  "dir-with-bin",
	KindInstaller:   "installer",
	KindExecutables: "executables",
	KindCustom:      "custom",
	KindPlugin:      "plugin",
	KindCargoTool:   "cargo-tool",
	KindRuleSet:     "rule-set",
	KindCrate:       "crate",
	KindUnknown:     "unknown",
}

func (k ToolKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return ""
}

// ParseKind maps the on-disk kebab-case name back to a ToolKind.
// Unrecognized names fall back to KindUnknown, which the pipeline rejects
// with a per-tool error instead of failing the whole manifest.
func ParseKind(name string) ToolKind {
	for kind, known := range kindNames {
		if known == name {
			return kind
		}
	}
	return KindUnknown
}

// SourceKind discriminates the ToolSource variants.
type SourceKind int

const (
	SourceVersion SourceKind = iota + 1
	SourceGit
	SourceURL
	SourcePath
	SourceRestricted
)

// ToolSource describes where a tool comes from. Exactly one variant is
// populated, named by Kind.
type ToolSource struct {
	Kind SourceKind

	// Version applies to SourceVersion and doubles as the optional
	// version hint on SourceURL, SourcePath and SourceRestricted.
	Version string

	// SourceGit fields.
	Git    string
	Branch string
	Tag    string
	Rev    string

	// SourceURL fields.
	URL      string
	Filename string

	// SourcePath field.
	Path string

	// SourceRestricted fields. Source stays empty until the user supplies
	// a value through FillMissingPackageSource.
	Default string
	Source  string
}

// ToolInfo is one tool entry of a toolkit manifest. It deserializes from
// either a bare version string (a cargo-installed tool) or a detailed
// table.
type ToolInfo struct {
	Required   bool
	Optional   bool
	GUIOnly    bool
	SkipVendor bool

	Identifier  string
	Kind        ToolKind
	DisplayName string

	Requires  []string
	Obsoletes []string
	Conflicts []string

	Source *ToolSource
}

// UnmarshalTOML accepts the shorthand string form and the detailed table
// form, resolving legacy field aliases along the way.
func (t *ToolInfo) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		t.Source = &ToolSource{Kind: SourceVersion, Version: v}
		return nil
	case map[string]interface{}:
		return t.fromTable(v)
	}
	return errors.Errorf("tool entry must be a version string or a table, got %T", data)
}

func (t *ToolInfo) fromTable(table map[string]interface{}) error {
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
	flag := func(keys ...string) bool {
		for _, key := range keys {
			if raw, ok := table[key]; ok {
				if b, ok := raw.(bool); ok {
					return b
				}
			}
		}
		return false
	}
	list := func(keys ...string) []string {
		for _, key := range keys {
			raw, ok := table[key]
			if !ok {
				continue
			}
			items, ok := raw.([]interface{})
			if !ok {
				continue
			}
			out := make([]string, 0, len(items))
			for _, item := range items {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
		return nil
	}

	t.Required = flag("required")
	t.Optional = flag("optional")
	t.GUIOnly = flag("gui-only", "gui_only")
	t.SkipVendor = flag("skip-vendor", "skip_vendor")
	t.Identifier = str("identifier")
	t.DisplayName = str("display-name", "display_name")
	if kind := str("kind"); kind != "" {
		t.Kind = ParseKind(kind)
	}
	t.Requires = list("requires", "dependencies")
	t.Obsoletes = list("obsoletes")
	t.Conflicts = list("conflicts")

	version := str("version", "ver")
	switch {
	case flag("restricted"):
		t.Source = &ToolSource{
			Kind:    SourceRestricted,
			Version: version,
			Default: str("default"),
			Source:  str("source"),
		}
	case str("git") != "":
		t.Source = &ToolSource{
			Kind:   SourceGit,
			Git:    str("git"),
			Branch: str("branch"),
			Tag:    str("tag"),
			Rev:    str("rev"),
		}
	case str("url") != "":
		t.Source = &ToolSource{
			Kind:     SourceURL,
			Version:  version,
			URL:      str("url"),
			Filename: str("filename"),
		}
	case str("path") != "":
		t.Source = &ToolSource{
			Kind:    SourcePath,
			Version: version,
			Path:    str("path"),
		}
	case version != "":
		t.Source = &ToolSource{Kind: SourceVersion, Version: version}
	}
	return nil
}

// Version returns the declared version of the tool, if any.
func (t *ToolInfo) Version() string {
	if t.Source == nil {
		return ""
	}
	return t.Source.Version
}

// IsCargoTool reports whether the tool is installed through cargo, which
// requires the toolchain to be present first.
func (t *ToolInfo) IsCargoTool() bool {
	if t.Kind == KindCargoTool || t.Kind == KindCrate {
		return true
	}
	if t.Source == nil {
		return false
	}
	return t.Source.Kind == SourceVersion || t.Source.Kind == SourceGit
}

// IsRestricted reports whether the source must be supplied by the user
// before installation.
func (t *ToolInfo) IsRestricted() bool {
	return t.Source != nil && t.Source.Kind == SourceRestricted
}

// DisplayNameOr returns the declared display name, falling back to the
// given identifier.
func (t *ToolInfo) DisplayNameOr(fallback string) string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return fallback
}

// shorthandEligible reports whether the entry can round-trip as a bare
// version string.
func (t *ToolInfo) shorthandEligible() bool {
	return !t.Required && !t.Optional && !t.GUIOnly && !t.SkipVendor &&
		t.Identifier == "" && t.Kind == KindUnspecified && t.DisplayName == "" &&
		len(t.Requires) == 0 && len(t.Obsoletes) == 0 && len(t.Conflicts) == 0 &&
		t.Source != nil && t.Source.Kind == SourceVersion
}

// ToolMap holds the tools of one target triple in declaration order.
type ToolMap struct {
	inner *orderedmap.OrderedMap[string, *ToolInfo]
}

// NewToolMap returns an empty ToolMap.
func NewToolMap() *ToolMap {
	return &ToolMap{inner: orderedmap.NewOrderedMap[string, *ToolInfo]()}
}

// Set appends or replaces the entry for name.
func (tm *ToolMap) Set(name string, info *ToolInfo) {
	tm.inner.Set(name, info)
}

// Get looks up the entry for name.
func (tm *ToolMap) Get(name string) (*ToolInfo, bool) {
	return tm.inner.Get(name)
}

// Names returns the tool names in declaration order.
func (tm *ToolMap) Names() []string {
	return tm.inner.Keys()
}

// Len returns the number of entries.
func (tm *ToolMap) Len() int {
	return tm.inner.Len()
}
