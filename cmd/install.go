package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/dist"
	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/installer"
	"github.com/rust-install/rim/pkg/manifest"
	"github.com/rust-install/rim/pkg/tryit"
)

var (
	// Flags for install command
	installPrefix           string
	installManifest         string
	installRegistryName     string
	installRegistryURL      string
	installRustupDistServer string
	installRustupUpdateRoot string
	installInsecure         bool
	installListComponents   bool
	installYes              bool
)

// InstallCommand represents the install command
var InstallCommand = &cobra.Command{
	Use:   "install [COMPONENT...]",
	Short: "Install a Rust toolkit",
	Long: `Install a Rust toolkit described by a toolkit manifest.

Without --manifest the newest toolkit published on the distribution server
is installed. Components named as arguments are installed on top of the
toolkit defaults; required components are always included.`,
	Example: `  # Install the latest published toolkit with its default components
  rim install

  # Install from a local or remote manifest
  rim install --manifest ./toolset-manifest.toml
  rim install --manifest https://example.com/toolset-manifest.toml

  # Install into a custom directory, adding optional components
  rim install --prefix ~/toolchains/stable clippy rust-docs

  # Show what the toolkit offers, without installing
  rim install --list-components`,
	RunE: runInstall,
}

func init() {
	InstallCommand.Flags().StringVar(&installPrefix, "prefix", "", "Installation directory (default ~/rust)")
	InstallCommand.Flags().StringVar(&installManifest, "manifest", "", "Path or URL of the toolkit manifest to install from")
	InstallCommand.Flags().StringVar(&installRegistryName, "registry-name", "", "Name of the cargo registry replacing crates-io")
	InstallCommand.Flags().StringVar(&installRegistryURL, "registry-url", "", "Index URL of the cargo registry replacing crates-io")
	InstallCommand.Flags().StringVar(&installRustupDistServer, "rustup-dist-server", "", "Server serving toolchain channel manifests")
	InstallCommand.Flags().StringVar(&installRustupUpdateRoot, "rustup-update-root", "", "Server serving rustup-init binaries")
	InstallCommand.Flags().BoolVarP(&installInsecure, "insecure", "k", false, "Skip TLS certificate verification")
	InstallCommand.Flags().BoolVar(&installListComponents, "list-components", false, "List the toolkit's components and exit")
	InstallCommand.Flags().BoolVarP(&installYes, "yes", "y", false, "Skip confirmation and answer prompts with their defaults")
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	source := installManifest
	if source == "" {
		var err error
		source, err = defaultManifestSource(ctx, installInsecure)
		if err != nil {
			return err
		}
	}
	m, err := manifest.GetToolkitManifest(ctx, source, installInsecure)
	if err != nil {
		return err
	}
	if err := m.AdjustPaths(); err != nil {
		return err
	}
	components := m.CurrentTargetComponents(true)

	if installListComponents {
		fmt.Fprint(cmd.OutOrStdout(), componentList(components))
		return nil
	}

	warnEnforcedConfig(m)

	installDir, err := resolveInstallDir(installPrefix)
	if err != nil {
		return err
	}
	if fingerprint.Exists(installDir) {
		return errors.Errorf("'%s' already holds an installation, use '%s update' or '%s component install' instead",
			installDir, buildinfo.Name, buildinfo.Name)
	}

	named, unknown := matchComponents(components, args)
	if len(unknown) > 0 {
		return errors.Errorf("unknown component(s) %s, the toolkit provides: %s",
			strings.Join(unknown, ", "), strings.Join(componentNames(components), ", "))
	}
	selection := defaultSelection(components, named)

	if !installYes {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "installing %s to '%s' with:\n", toolkitTitle(m), installDir)
		for _, c := range selection {
			fmt.Fprintf(out, "  %s\n", c.DisplayName)
		}
		if !confirm(cmd.InOrStdin(), out, "continue?") {
			log.Info("installation aborted")
			return nil
		}
	}

	if err := m.FillMissingPackageSource(selection, askToolSource(cmd.InOrStdin(), cmd.OutOrStdout(), installYes)); err != nil {
		return err
	}

	attachFileLog(installDir)

	engine, err := installer.New(m, installer.Options{
		InstallDir:       installDir,
		RegistryName:     installRegistryName,
		RegistryIndex:    installRegistryURL,
		RustupDistServer: installRustupDistServer,
		RustupUpdateRoot: installRustupUpdateRoot,
		Insecure:         installInsecure,
		Progress:         progressHandler(),
	})
	if err != nil {
		return err
	}
	report, err := engine.Install(ctx, selection)
	if err != nil {
		return err
	}
	reportProblems(report, "installation")

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s is installed in '%s'.\n", buildinfo.Product, engine.InstallDir())
	}
	offerExampleProject(cmd, engine.InstallDir())
	if !quiet {
		printSourceHint(cmd.OutOrStdout(), engine.InstallDir())
	}
	return nil
}

// offerExampleProject asks whether to drop the example project into the
// fresh installation. Skipped with --yes so scripted installs stay quick
// and do not pop editor windows.
func offerExampleProject(cmd *cobra.Command, installDir string) {
	if installYes || !manifest.HasDesktopEnvironment() {
		return
	}
	if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "set up an example project to try it out?") {
		return
	}
	if _, err := tryit.TryIt(cmd.Context(), installDir, openEditorAfterExport()); err != nil {
		log.WithError(err).Warn("failed to set up the example project")
	}
}

// defaultManifestSource asks the distribution server for the newest
// published toolkit when no --manifest was given.
func defaultManifestSource(ctx context.Context, insecure bool) (string, error) {
	log.Infof("looking up the latest toolkit on %s", buildinfo.DefaultRustupDistServer)
	toolkits, err := dist.ToolkitsFromServer(ctx, buildinfo.DefaultRustupDistServer, insecure)
	if err != nil {
		return "", err
	}
	for _, tk := range toolkits {
		if tk.ManifestURL != "" {
			return tk.ManifestURL, nil
		}
	}
	return "", errors.New("the distribution server has no published toolkit, pass --manifest")
}

// warnEnforcedConfig tells the user when the toolkit overrules their
// server or registry flags.
func warnEnforcedConfig(m *manifest.ToolkitManifest) {
	if m.RustupDistServer != "" && installRustupDistServer != "" {
		log.Warnf("the toolkit enforces rustup dist server '%s', ignoring --rustup-dist-server", m.RustupDistServer)
	}
	if m.RustupUpdateRoot != "" && installRustupUpdateRoot != "" {
		log.Warnf("the toolkit enforces rustup update root '%s', ignoring --rustup-update-root", m.RustupUpdateRoot)
	}
	if m.CargoRegistry != nil && (installRegistryName != "" || installRegistryURL != "") {
		log.Warnf("the toolkit enforces cargo registry '%s' (%s), ignoring --registry-name/--registry-url",
			m.CargoRegistry.Name, m.CargoRegistry.Index)
	}
}

// printSourceHint tells POSIX users how to pick up the environment the
// install just persisted.
func printSourceHint(out io.Writer, installDir string) {
	if runtime.GOOS == "windows" {
		return
	}
	env := filepath.Join(installDir, "cargo", "env")
	fmt.Fprintf(out, "run 'source \"%s\"' or open a new shell to pick up the environment.\n", env)
}
