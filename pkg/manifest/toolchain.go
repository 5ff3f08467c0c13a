package manifest

import (
	"github.com/pkg/errors"
)

// Profile names the rustup profile to install. Manifests may spell it as
// a bare name or as a legacy record carrying UI strings.
type Profile struct {
	Name        string
	VerboseName string
	Description string
}

// UnmarshalTOML accepts both the bare string and the record form.
func (p *Profile) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		p.Name = v
		return nil
	case map[string]interface{}:
		str := func(keys ...string) string {
			for _, key := range keys {
				if raw, ok := v[key]; ok {
					if s, ok := raw.(string); ok {
						return s
					}
				}
			}
			return ""
		}
		p.Name = str("name")
		p.VerboseName = str("verbose-name", "verbose_name", "display-name", "display_name")
		p.Description = str("description")
		return nil
	}
	return errors.Errorf("profile must be a name or a table, got %T", data)
}

// RustToolchain describes the toolchain half of a toolkit.
type RustToolchain struct {
	// Channel is a rustup channel spec: "stable", "1.80.1",
	// "nightly-2024-05-01" and so on.
	Channel string

	Profile *Profile

	// Components are installed unconditionally, OptionalComponents only
	// when the user selects them.
	Components         []string
	OptionalComponents []string

	// Group labels the toolchain block in component listings.
	Group string

	// OfflineDistServer points at a bundled dist directory, relative to
	// the package root.
	OfflineDistServer string

	// Rustup maps target triples to bundled rustup-init binaries,
	// relative to the package root.
	Rustup map[string]string
}

// ProfileOrDefault returns the declared profile, defaulting to minimal.
func (r *RustToolchain) ProfileOrDefault() Profile {
	if r.Profile != nil {
		return *r.Profile
	}
	return Profile{Name: "minimal"}
}

// rustToolchainTOML is the wire shape, carrying the legacy version alias
// for channel.
type rustToolchainTOML struct {
	Channel            string            `toml:"channel"`
	LegacyVersion      string            `toml:"version"`
	Profile            *Profile          `toml:"profile"`
	Components         []string          `toml:"components"`
	OptionalComponents []string          `toml:"optional-components"`
	Group              string            `toml:"group"`
	OfflineDistServer  string            `toml:"offline-dist-server"`
	Rustup             map[string]string `toml:"rustup"`
}

func (r *rustToolchainTOML) toToolchain() RustToolchain {
	channel := r.Channel
	if channel == "" {
		channel = r.LegacyVersion
	}
	return RustToolchain{
		Channel:            channel,
		Profile:            r.Profile,
		Components:         r.Components,
		OptionalComponents: r.OptionalComponents,
		Group:              r.Group,
		OfflineDistServer:  r.OfflineDistServer,
		Rustup:             r.Rustup,
	}
}
