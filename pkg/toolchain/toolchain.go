// Package toolchain drives rustup-compatible binaries to install,
// update and edit the Rust toolchain of one installation root. The rest
// of the engine treats rustup and cargo as black boxes behind this
// package.
package toolchain

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/checksums"
	"github.com/rust-install/rim/pkg/fetch"
	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/manifest"
	"github.com/rust-install/rim/pkg/progress"
)

// Config carries everything needed to spawn rustup and cargo for one
// installation root.
type Config struct {
	CargoHome  string
	RustupHome string

	// DistServer and UpdateRoot become RUSTUP_DIST_SERVER and
	// RUSTUP_UPDATE_ROOT in every child process; UpdateRoot is also
	// where a missing rustup-init is downloaded from.
	DistServer string
	UpdateRoot string

	// BundledInit points at a rustup-init shipped inside an offline
	// package, when the manifest declares one for the host triple.
	BundledInit string

	// TempRoot hosts the transient download directory for rustup-init.
	TempRoot string

	// Env is appended after the derived variables, so entries here win
	// over them; use it for proxy settings.
	Env []string

	Proxy    *manifest.Proxy
	Insecure bool
	Progress progress.Handler
}

// runFunc spawns a child process. Factored out so tests can record
// invocations instead of running real binaries.
type runFunc func(ctx context.Context, env []string, name string, args ...string) error

// Rustup is the toolchain driver.
type Rustup struct {
	cfg      Config
	run      runFunc
	lookPath func(file string) (string, error)
}

// New returns a driver for cfg.
func New(cfg Config) *Rustup {
	if cfg.Progress == nil {
		cfg.Progress = progress.Discard{}
	}
	return &Rustup{cfg: cfg, run: runCommand, lookPath: exec.LookPath}
}

// Install bootstraps the toolchain with rustup-init. Components are
// passed in the caller's order, which follows manifest declaration
// order.
func (r *Rustup) Install(ctx context.Context, tc *manifest.RustToolchain, components []string) error {
	initBin, err := r.ensureRustupInit(ctx)
	if err != nil {
		return err
	}

	args := []string{
		"-y", "--no-modify-path",
		"--default-toolchain", tc.Channel,
		"--profile", tc.ProfileOrDefault().Name,
	}
	for _, c := range components {
		args = append(args, "--component", c)
	}
	if err := r.run(ctx, r.childEnv(), initBin, args...); err != nil {
		return errors.Wrap(err, "rustup-init failed")
	}
	return nil
}

// Update installs the manifest's channel on top of an existing rustup
// and makes it the default. When no rustup is present yet it falls back
// to a fresh bootstrap.
func (r *Rustup) Update(ctx context.Context, tc *manifest.RustToolchain, components []string) error {
	rustup := r.rustupBin()
	if !fsutil.Exists(rustup) {
		return r.Install(ctx, tc, components)
	}

	args := []string{
		"toolchain", "install", tc.Channel,
		"--profile", tc.ProfileOrDefault().Name,
	}
	for _, c := range components {
		args = append(args, "--component", c)
	}
	if err := r.run(ctx, r.childEnv(), rustup, args...); err != nil {
		return errors.Wrapf(err, "update toolchain %q", tc.Channel)
	}
	if err := r.run(ctx, r.childEnv(), rustup, "default", tc.Channel); err != nil {
		return errors.Wrapf(err, "set default toolchain %q", tc.Channel)
	}
	return nil
}

// AddComponents installs toolchain components on the default toolchain.
// rustup treats already-present components as a no-op, so the call is
// idempotent.
func (r *Rustup) AddComponents(ctx context.Context, components []string) error {
	if len(components) == 0 {
		return nil
	}
	args := append([]string{"component", "add"}, components...)
	if err := r.run(ctx, r.childEnv(), r.rustupBin(), args...); err != nil {
		return errors.Wrapf(err, "add toolchain components %v", components)
	}
	return nil
}

// RemoveComponents removes toolchain components from the default
// toolchain.
func (r *Rustup) RemoveComponents(ctx context.Context, components []string) error {
	if len(components) == 0 {
		return nil
	}
	args := append([]string{"component", "remove"}, components...)
	if err := r.run(ctx, r.childEnv(), r.rustupBin(), args...); err != nil {
		return errors.Wrapf(err, "remove toolchain components %v", components)
	}
	return nil
}

func (r *Rustup) rustupBin() string {
	return filepath.Join(r.cfg.CargoHome, "bin", "rustup"+buildinfo.ExeSuffix())
}

// ensureRustupInit locates a usable rustup-init: the bundled one if the
// package carries it, otherwise a fresh download from the update root,
// otherwise whatever the caller has on PATH.
func (r *Rustup) ensureRustupInit(ctx context.Context) (string, error) {
	if r.cfg.BundledInit != "" && fsutil.Exists(r.cfg.BundledInit) {
		return r.cfg.BundledInit, nil
	}

	name := "rustup-init" + buildinfo.ExeSuffix()
	downloaded, err := r.downloadRustupInit(ctx, name)
	if err == nil {
		return downloaded, nil
	}
	log.Warnf("unable to download rustup-init: %v, looking for one on PATH", err)

	if found, lookErr := r.lookPath(name); lookErr == nil {
		return found, nil
	}
	return "", errors.Wrap(err, "no usable rustup-init")
}

func (r *Rustup) downloadRustupInit(ctx context.Context, name string) (string, error) {
	if r.cfg.UpdateRoot == "" {
		return "", errors.New("no rustup update root configured")
	}
	dir, err := fsutil.TempDirUnder(r.cfg.TempRoot, "rustup-init")
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(r.cfg.UpdateRoot, "/") + "/dist/" + manifest.HostTriple() + "/" + name
	dest := filepath.Join(dir, name)

	dl := fetch.New(name, r.cfg.Progress).Insecure(r.cfg.Insecure)
	if p := r.cfg.Proxy; p != nil {
		dl = dl.WithProxy(p.HTTP, p.HTTPS, p.NoProxy)
	}
	if err := dl.Download(ctx, url, dest); err != nil {
		return "", err
	}
	if err := r.verifyInit(ctx, dl, url, dest, name); err != nil {
		return "", err
	}
	if err := fsutil.SetExecPermission(dest); err != nil {
		return "", err
	}
	return dest, nil
}

// verifyInit checks the payload against rustup's published sha256
// sidecar. A missing sidecar only skips verification; a mismatch fails
// the download.
func (r *Rustup) verifyInit(ctx context.Context, dl *fetch.DownloadOpt, url, dest, name string) error {
	sidecar, err := dl.Fetch(ctx, url+".sha256")
	if err != nil {
		log.Debugf("no sha256 sidecar for %s, skipping verification: %v", name, err)
		return nil
	}
	expected, ok := checksums.ExpectedFor(sidecar, name)
	if !ok {
		log.Debugf("unrecognized sha256 sidecar for %s, skipping verification", name)
		return nil
	}
	return checksums.VerifyFile(dest, expected)
}

func (r *Rustup) childEnv() []string {
	return r.cfg.childEnv()
}

// Run executes an arbitrary command under the same child environment
// rustup and cargo get. Installers and editor plugin hosts are spawned
// through this so proxy and home overrides apply to them too.
func (c Config) Run(ctx context.Context, name string, args ...string) error {
	return runCommand(ctx, c.childEnv(), name, args...)
}

// childEnv composes the process environment of every child. Later
// entries win, so derived variables override inherited ones and
// cfg.Env overrides both.
func (c Config) childEnv() []string {
	env := append(os.Environ(),
		"CARGO_HOME="+c.CargoHome,
		"RUSTUP_HOME="+c.RustupHome,
	)
	if c.DistServer != "" {
		env = append(env, "RUSTUP_DIST_SERVER="+c.DistServer)
	}
	if c.UpdateRoot != "" {
		env = append(env, "RUSTUP_UPDATE_ROOT="+c.UpdateRoot)
	}
	return append(env, c.Env...)
}

// runCommand executes a child process and captures any error output.
func runCommand(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Errorf("%v: %v\n%s", cmd, err, output)
	}
	if len(output) > 0 {
		log.Debug(strings.TrimSpace(string(output)))
	}
	return nil
}
