package toolchain

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/fsutil"
)

// Cargo runs the cargo binary of an installed toolchain. It shares the
// child environment with Rustup so registry and proxy settings apply to
// crate builds too.
type Cargo struct {
	cfg Config
	run runFunc
}

// NewCargo returns a cargo runner for cfg.
func NewCargo(cfg Config) *Cargo {
	return &Cargo{cfg: cfg, run: runCommand}
}

func (c *Cargo) bin() string {
	return filepath.Join(c.cfg.CargoHome, "bin", "cargo"+buildinfo.ExeSuffix())
}

// Install runs `cargo install` with the given arguments, which the
// caller assembles per tool source (version, git or local path).
func (c *Cargo) Install(ctx context.Context, args ...string) error {
	if !fsutil.Exists(c.bin()) {
		return errors.New("cargo is not installed yet")
	}
	full := append([]string{"install"}, args...)
	if err := c.run(ctx, c.cfg.childEnv(), c.bin(), full...); err != nil {
		return errors.Wrap(err, "cargo install failed")
	}
	return nil
}

// Uninstall runs `cargo uninstall` for one crate. An unknown crate is
// surfaced as an error; callers decide whether that matters.
func (c *Cargo) Uninstall(ctx context.Context, name string) error {
	if !fsutil.Exists(c.bin()) {
		return errors.New("cargo is not installed yet")
	}
	if err := c.run(ctx, c.cfg.childEnv(), c.bin(), "uninstall", name); err != nil {
		return errors.Wrapf(err, "cargo uninstall %q", name)
	}
	return nil
}
