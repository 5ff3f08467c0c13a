package installer

import (
	"bytes"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/manifest"
)

// cargoSource is one [source.*] table of cargo's config.toml.
type cargoSource struct {
	Registry    string `toml:"registry,omitempty"`
	ReplaceWith string `toml:"replace-with,omitempty"`
}

// pickRegistry resolves the cargo registry: a manifest-enforced one wins
// over command-line overrides, which win over the built-in default.
func pickRegistry(m *manifest.ToolkitManifest, opts Options) (name, index string) {
	if r := m.CargoRegistry; r != nil && r.Name != "" {
		return r.Name, r.Index
	}
	if opts.RegistryName != "" && opts.RegistryIndex != "" {
		return opts.RegistryName, opts.RegistryIndex
	}
	return buildinfo.DefaultCargoRegistryName, buildinfo.DefaultCargoRegistryIndex
}

// writeCargoConfig points cargo's crates-io source at the chosen
// registry.
func (i *Installation) writeCargoConfig() error {
	config := map[string]map[string]cargoSource{
		"source": {
			"crates-io":    {ReplaceWith: i.registryName},
			i.registryName: {Registry: i.registryIndex},
		},
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return errors.Wrap(err, "failed to encode the cargo config")
	}
	return fsutil.WriteFile(filepath.Join(i.CargoHome(), "config.toml"), buf.Bytes(), false)
}
