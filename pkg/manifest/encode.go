package manifest

import (
	"fmt"
	"sort"
	"strings"
)

// ToTOML serializes the manifest. Tool entries are written as inline
// tables in declaration order, so parsing the output yields an equal
// manifest. Legacy aliases are normalized to their canonical names.
func (m *ToolkitManifest) ToTOML() string {
	var b strings.Builder

	writeString(&b, "name", m.Name)
	writeString(&b, "version", m.Version)
	writeString(&b, "edition", m.Edition)
	writeString(&b, "rustup-dist-server", m.RustupDistServer)
	writeString(&b, "rustup-update-root", m.RustupUpdateRoot)
	if m.CargoRegistry != nil {
		fmt.Fprintf(&b, "cargo-registry = { name = %s, index = %s }\n",
			quote(m.CargoRegistry.Name), quote(m.CargoRegistry.Index))
	}

	if m.Proxy != nil {
		section(&b, "proxy")
		writeString(&b, "http", m.Proxy.HTTP)
		writeString(&b, "https", m.Proxy.HTTPS)
		writeString(&b, "no-proxy", m.Proxy.NoProxy)
	}

	section(&b, "rust")
	writeString(&b, "channel", m.Toolchain.Channel)
	if p := m.Toolchain.Profile; p != nil {
		if p.VerboseName == "" && p.Description == "" {
			writeString(&b, "profile", p.Name)
		} else {
			b.WriteString("profile = " + inlineTable(
				kv{"name", p.Name},
				kv{"verbose-name", p.VerboseName},
				kv{"description", p.Description},
			) + "\n")
		}
	}
	writeStrings(&b, "components", m.Toolchain.Components)
	writeStrings(&b, "optional-components", m.Toolchain.OptionalComponents)
	writeString(&b, "group", m.Toolchain.Group)
	writeString(&b, "offline-dist-server", m.Toolchain.OfflineDistServer)
	if len(m.Toolchain.Rustup) > 0 {
		section(&b, "rust.rustup")
		for _, triple := range sortedKeys(m.Toolchain.Rustup) {
			writeString(&b, triple, m.Toolchain.Rustup[triple])
		}
	}

	if m.Tools.Group != "" {
		section(&b, "tools")
		writeString(&b, "group", m.Tools.Group)
	}
	if len(m.Tools.Descriptions) > 0 {
		section(&b, "tools.descriptions")
		for _, name := range sortedKeys(m.Tools.Descriptions) {
			writeString(&b, name, m.Tools.Descriptions[name])
		}
	}
	triples := make([]string, 0, len(m.Tools.Target))
	for triple := range m.Tools.Target {
		triples = append(triples, triple)
	}
	sort.Strings(triples)
	for _, triple := range triples {
		tm := m.Tools.Target[triple]
		if tm == nil || tm.Len() == 0 {
			continue
		}
		section(&b, "tools.target."+bareKey(triple))
		for _, name := range tm.Names() {
			info, _ := tm.Get(name)
			if info.shorthandEligible() {
				writeString(&b, name, info.Source.Version)
				continue
			}
			b.WriteString(bareKey(name) + " = " + encodeToolInline(info) + "\n")
		}
	}
	return b.String()
}

type kv struct {
	key   string
	value interface{}
}

func encodeToolInline(info *ToolInfo) string {
	pairs := []kv{
		{"required", info.Required},
		{"optional", info.Optional},
		{"gui-only", info.GUIOnly},
		{"skip-vendor", info.SkipVendor},
		{"identifier", info.Identifier},
		{"display-name", info.DisplayName},
	}
	if info.Kind != KindUnspecified {
		pairs = append(pairs, kv{"kind", info.Kind.String()})
	}
	pairs = append(pairs,
		kv{"requires", info.Requires},
		kv{"obsoletes", info.Obsoletes},
		kv{"conflicts", info.Conflicts},
	)
	if src := info.Source; src != nil {
		switch src.Kind {
		case SourceVersion:
			pairs = append(pairs, kv{"version", src.Version})
		case SourceGit:
			pairs = append(pairs,
				kv{"git", src.Git},
				kv{"branch", src.Branch},
				kv{"tag", src.Tag},
				kv{"rev", src.Rev},
			)
		case SourceURL:
			pairs = append(pairs,
				kv{"version", src.Version},
				kv{"url", src.URL},
				kv{"filename", src.Filename},
			)
		case SourcePath:
			pairs = append(pairs,
				kv{"version", src.Version},
				kv{"path", src.Path},
			)
		case SourceRestricted:
			pairs = append(pairs,
				kv{"restricted", true},
				kv{"version", src.Version},
				kv{"default", src.Default},
				kv{"source", src.Source},
			)
		}
	}
	return inlineTable(pairs...)
}

// inlineTable renders the non-empty pairs as a TOML inline table. False
// booleans and empty strings and slices are omitted, except the pair
// ("restricted", true) which is always explicit by construction.
func inlineTable(pairs ...kv) string {
	var parts []string
	for _, pair := range pairs {
		switch v := pair.value.(type) {
		case bool:
			if v {
				parts = append(parts, bareKey(pair.key)+" = true")
			}
		case string:
			if v != "" {
				parts = append(parts, bareKey(pair.key)+" = "+quote(v))
			}
		case []string:
			if len(v) > 0 {
				parts = append(parts, bareKey(pair.key)+" = "+stringArray(v))
			}
		}
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func section(b *strings.Builder, name string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString("[" + name + "]\n")
}

func writeString(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(bareKey(key) + " = " + quote(value) + "\n")
}

func writeStrings(b *strings.Builder, key string, values []string) {
	if len(values) == 0 {
		return
	}
	b.WriteString(bareKey(key) + " = " + stringArray(values) + "\n")
}

func stringArray(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// bareKey quotes a key unless every rune is bare-key safe.
func bareKey(key string) string {
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return quote(key)
		}
	}
	if key == "" {
		return `""`
	}
	return key
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
