// Package installer is the install, update and uninstall engine. It
// owns the installation root layout, persists environment configuration,
// writes the cargo registry config, drives the toolchain and walks the
// tool phases, recording every completed piece in the install record.
package installer

import (
	"context"
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/fetch"
	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/fsutil"
	"github.com/rust-install/rim/pkg/manifest"
	"github.com/rust-install/rim/pkg/progress"
	"github.com/rust-install/rim/pkg/tool"
	"github.com/rust-install/rim/pkg/toolchain"
)

// Master progress deltas of a fresh install; the spans sum to the master
// total of 100.
const (
	spanSetup       = 5
	spanCargoConfig = 3
	spanEarlyTools  = 30
	spanToolchain   = 30
	spanLateTools   = 30
	spanMisc        = 2
)

// Options carries the command-line adjustable knobs of an installation.
type Options struct {
	// InstallDir is the installation root. Required.
	InstallDir string

	// RegistryName and RegistryIndex override the built-in cargo
	// registry; a manifest-enforced registry still wins.
	RegistryName  string
	RegistryIndex string

	// RustupDistServer and RustupUpdateRoot override the built-in
	// defaults; manifest values win over both, and offline toolkits
	// force their bundled dist directory.
	RustupDistServer string
	RustupUpdateRoot string

	Insecure bool
	Progress progress.Handler
}

// Installation is the engine for one installation root.
type Installation struct {
	manifest *manifest.ToolkitManifest
	record   *fingerprint.InstallationRecord
	root     string

	registryName  string
	registryIndex string
	distServer    string
	updateRoot    string

	insecure bool
	handler  progress.Handler
}

// Installations double as the environment tools install against.
var _ tool.Environment = (*Installation)(nil)

// New builds an engine for the manifest. Server and registry precedence
// is manifest > options > built-in defaults.
func New(m *manifest.ToolkitManifest, opts Options) (*Installation, error) {
	if opts.InstallDir == "" {
		return nil, errors.New("an installation directory is required")
	}
	handler := opts.Progress
	if handler == nil {
		handler = progress.Discard{}
	}

	i := &Installation{
		manifest: m,
		root:     filepath.Clean(opts.InstallDir),
		insecure: opts.Insecure,
		handler:  handler,
	}

	i.registryName, i.registryIndex = pickRegistry(m, opts)
	dist, update, err := pickServers(m, opts)
	if err != nil {
		return nil, err
	}
	i.distServer, i.updateRoot = dist, update
	return i, nil
}

// NewFromRoot rebuilds an engine from an existing installation root
// using its captured manifest.
func NewFromRoot(root string, opts Options) (*Installation, error) {
	m, err := manifest.Load(filepath.Join(root, manifest.ManifestFilename))
	if err != nil {
		return nil, errors.Wrapf(err, "%q does not hold a manageable installation", root)
	}
	opts.InstallDir = root
	return New(m, opts)
}

// pickServers resolves the rustup servers. Offline toolkits force their
// bundled dist directory as the dist server.
func pickServers(m *manifest.ToolkitManifest, opts Options) (dist, update string, err error) {
	dist = buildinfo.DefaultRustupDistServer
	if opts.RustupDistServer != "" {
		dist = opts.RustupDistServer
	}
	if m.RustupDistServer != "" {
		dist = m.RustupDistServer
	}
	offline, err := m.OfflineDistServer()
	if err != nil {
		return "", "", err
	}
	if offline != "" {
		dist = offline
	}

	update = buildinfo.DefaultRustupUpdateRoot
	if opts.RustupUpdateRoot != "" {
		update = opts.RustupUpdateRoot
	}
	if m.RustupUpdateRoot != "" {
		update = m.RustupUpdateRoot
	}
	return dist, update, nil
}

// InstallDir returns the installation root.
func (i *Installation) InstallDir() string { return i.root }

// CargoHome is <root>/cargo, the CARGO_HOME of the installation.
func (i *Installation) CargoHome() string { return filepath.Join(i.root, "cargo") }

// RustupHome is <root>/rustup, the RUSTUP_HOME of the installation.
func (i *Installation) RustupHome() string { return filepath.Join(i.root, "rustup") }

// ToolsDir hosts per-tool payloads.
func (i *Installation) ToolsDir() string { return filepath.Join(i.root, "tools") }

// RulesetsDir hosts installed rule-set files.
func (i *Installation) RulesetsDir() string { return filepath.Join(i.root, "rulesets") }

// LogDir is where the CLI attaches its file log.
func (i *Installation) LogDir() string { return filepath.Join(i.root, "log") }

func (i *Installation) cargoBin() string { return filepath.Join(i.CargoHome(), "bin") }

func (i *Installation) tempRoot() string { return filepath.Join(i.root, "temp") }

// CreateTempDir returns a fresh directory under <root>/temp.
func (i *Installation) CreateTempDir(prefix string) (string, error) {
	return fsutil.TempDirUnder(i.tempRoot(), prefix)
}

// AddToPath persists dir on the user's PATH and prepends it to the
// current process PATH, so tools installed later in the same run can
// spawn this one.
func (i *Installation) AddToPath(dir string) error {
	if err := i.persistAddPath(dir); err != nil {
		return err
	}
	return prependProcessPath(dir)
}

// RemoveFromPath undoes AddToPath.
func (i *Installation) RemoveFromPath(dir string) error {
	if err := i.persistRemovePath(dir); err != nil {
		return err
	}
	return removeProcessPath(dir)
}

func (i *Installation) CargoInstall(ctx context.Context, args ...string) error {
	return toolchain.NewCargo(i.toolchainConfig()).Install(ctx, args...)
}

func (i *Installation) CargoUninstall(ctx context.Context, name string) error {
	return toolchain.NewCargo(i.toolchainConfig()).Uninstall(ctx, name)
}

func (i *Installation) RunCommand(ctx context.Context, name string, args ...string) error {
	return i.toolchainConfig().Run(ctx, name, args...)
}

// DownloadOpt returns a downloader carrying the manifest's proxy
// settings and the engine's progress handler.
func (i *Installation) DownloadOpt(name string) *fetch.DownloadOpt {
	dl := fetch.New(name, i.handler).Insecure(i.insecure)
	if p := i.manifest.Proxy; p != nil {
		dl = dl.WithProxy(p.HTTP, p.HTTPS, p.NoProxy)
	}
	return dl
}

func (i *Installation) Progress() progress.Handler { return i.handler }

func (i *Installation) toolchainConfig() toolchain.Config {
	cfg := toolchain.Config{
		CargoHome:  i.CargoHome(),
		RustupHome: i.RustupHome(),
		DistServer: i.distServer,
		UpdateRoot: i.updateRoot,
		TempRoot:   i.tempRoot(),
		Env:        i.proxyEnv(),
		Proxy:      i.manifest.Proxy,
		Insecure:   i.insecure,
		Progress:   i.handler,
	}
	if bundled, ok := i.manifest.RustupBin(); ok {
		cfg.BundledInit = bundled
	}
	return cfg
}

func (i *Installation) title() string {
	if i.manifest.Name != "" {
		return i.manifest.Name
	}
	return buildinfo.Product
}

// Install performs a full installation of the selected components.
// Fatal problems (setup, conflicting selection, requirement cycles)
// abort and are returned; everything else lands in the report and the
// run carries on.
func (i *Installation) Install(ctx context.Context, components []*manifest.Component) (*Report, error) {
	toolchainComponents, tools := splitSelection(components)
	if err := rejectConflicts(tools); err != nil {
		return nil, err
	}
	ordered, err := sortByRequires(tools)
	if err != nil {
		return nil, err
	}
	early, late := splitPhases(ordered)

	report := &Report{}
	i.handler.MasterStart("installing " + i.title())

	if err := i.setup(); err != nil {
		return nil, err
	}
	if err := i.configureEnv(true); err != nil {
		report.add(CategoryStep, "environment", err)
	}
	i.handler.MasterUpdate(spanSetup)

	if err := i.writeCargoConfig(); err != nil {
		report.add(CategoryStep, "cargo config", err)
	}
	i.handler.MasterUpdate(spanCargoConfig)

	i.installTools(ctx, report, early, spanEarlyTools)
	if ctx.Err() != nil {
		log.Warn("installation cancelled, finished components are kept")
		return report, nil
	}

	rustOK := i.installToolchain(ctx, report, toolchainComponents, false)
	i.handler.MasterUpdate(spanToolchain)
	if ctx.Err() != nil {
		log.Warn("installation cancelled, finished components are kept")
		return report, nil
	}

	if rustOK {
		i.installTools(ctx, report, late, spanLateTools)
	} else {
		i.skipTools(report, late, "the toolchain failed to install")
		i.handler.MasterUpdate(spanLateTools)
	}

	i.handler.MasterUpdate(spanMisc)
	i.handler.MasterFinish(i.title() + " installed")
	return report, nil
}

// installToolchain bootstraps or updates rust. On failure the report
// gains a rust entry and the caller skips the late tool phase.
func (i *Installation) installToolchain(ctx context.Context, report *Report, components []string, update bool) bool {
	tc := &i.manifest.Toolchain
	rustup := toolchain.New(i.toolchainConfig())

	log.Infof("installing toolchain '%s'", tc.Channel)
	var err error
	if update {
		err = rustup.Update(ctx, tc, components)
	} else {
		err = rustup.Install(ctx, tc, components)
	}
	if err != nil {
		report.add(CategoryRust, tc.Channel, err)
		return false
	}

	i.record.AddRustRecord(tc.Channel, components)
	if err := i.record.Write(); err != nil {
		report.add(CategoryStep, "install record", err)
	}
	return true
}

// installTools runs one tool phase, spreading span master units evenly
// across the tools. Failures stay per-tool; the loop continues.
func (i *Installation) installTools(ctx context.Context, report *Report, tools []selectedTool, span int64) {
	if len(tools) == 0 {
		i.handler.MasterUpdate(span)
		return
	}
	per := span / int64(len(tools))
	spent := int64(0)
	for _, t := range tools {
		if ctx.Err() != nil {
			return
		}
		i.removeObsoleted(ctx, report, t.Info.Obsoletes)

		log.Infof("installing '%s'", t.Name)
		rec, err := tool.InstallFromInfo(ctx, i, t.Name, t.Info)
		if err != nil {
			report.add(CategoryTool, t.Name, err)
		} else {
			i.record.AddToolRecord(t.Name, rec)
			if werr := i.record.Write(); werr != nil {
				report.add(CategoryStep, "install record", werr)
			}
		}
		i.handler.MasterUpdate(per)
		spent += per
	}
	i.handler.MasterUpdate(span - spent)
}

func (i *Installation) skipTools(report *Report, tools []selectedTool, reason string) {
	for _, t := range tools {
		report.add(CategoryTool, t.Name, errors.Errorf("skipped: %s", reason))
	}
}

// removeObsoleted uninstalls recorded tools the incoming tool obsoletes.
func (i *Installation) removeObsoleted(ctx context.Context, report *Report, names []string) {
	for _, name := range names {
		rec, ok := i.record.Tool(name)
		if !ok {
			continue
		}
		tl, ok := tool.FromInstalled(name, rec)
		if !ok {
			report.add(CategoryTool, name, errors.New("recorded without a usable kind, cannot remove the obsolete tool"))
			continue
		}
		log.Infof("removing obsolete tool '%s'", name)
		if err := tl.Uninstall(ctx, i); err != nil {
			report.add(CategoryTool, name, errors.Wrap(err, "failed to remove obsolete tool"))
			continue
		}
		i.record.RemoveToolRecord(name)
		if err := i.record.Write(); err != nil {
			report.add(CategoryStep, "install record", err)
		}
	}
}

// uninstallTools removes recorded tools by name, spreading span master
// units across them. Names without a record are skipped quietly.
func (i *Installation) uninstallTools(ctx context.Context, report *Report, names []string, span int64) {
	if len(names) == 0 {
		i.handler.MasterUpdate(span)
		return
	}
	per := span / int64(len(names))
	spent := int64(0)
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		i.handler.MasterUpdate(per)
		spent += per

		rec, ok := i.record.Tool(name)
		if !ok {
			log.Debugf("'%s' is not recorded, nothing to remove", name)
			continue
		}
		tl, ok := tool.FromInstalled(name, rec)
		if !ok {
			report.add(CategoryTool, name, errors.New("recorded without a usable kind"))
			continue
		}
		log.Infof("removing '%s'", name)
		if err := tl.Uninstall(ctx, i); err != nil {
			report.add(CategoryTool, name, err)
			continue
		}
		i.record.RemoveToolRecord(name)
		if err := i.record.Write(); err != nil {
			report.add(CategoryStep, "install record", err)
		}
	}
	i.handler.MasterUpdate(span - spent)
}

func (i *Installation) loadRecord() error {
	record, err := fingerprint.Load(i.root)
	if err != nil {
		return errors.Wrap(err, "no existing installation found")
	}
	i.record = record
	return nil
}
