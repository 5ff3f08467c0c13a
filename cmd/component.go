package cmd

import (
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/installer"
	"github.com/rust-install/rim/pkg/manifest"
)

var (
	// Flags shared by the component subcommands
	componentInsecure bool
	componentYes      bool
)

// ComponentCommand groups the component subcommands
var ComponentCommand = &cobra.Command{
	Use:     "component",
	Aliases: []string{"components"},
	Short:   "Add or remove components of the installed toolkit",
	Long: `Add or remove individual components of the installed toolkit: toolchain
components through rustup, tools through their recorded install method.
Component names come from the toolkit manifest captured at install time;
'rim install --list-components' shows them.`,
}

// ComponentInstallCommand installs components from the captured manifest
var ComponentInstallCommand = &cobra.Command{
	Use:     "install COMPONENT...",
	Aliases: []string{"add"},
	Short:   "Install components of the installed toolkit",
	Example: `  rim component install clippy rust-docs
  rim component add typos-cli`,
	Args: cobra.MinimumNArgs(1),
	RunE: runComponentInstall,
}

// ComponentUninstallCommand removes previously installed components
var ComponentUninstallCommand = &cobra.Command{
	Use:     "uninstall COMPONENT...",
	Aliases: []string{"remove"},
	Short:   "Uninstall previously installed components",
	Example: `  rim component uninstall rust-docs
  rim component remove typos-cli`,
	Args: cobra.MinimumNArgs(1),
	RunE: runComponentUninstall,
}

func init() {
	ComponentInstallCommand.Flags().BoolVarP(&componentInsecure, "insecure", "k", false, "Skip TLS certificate verification")
	ComponentInstallCommand.Flags().BoolVarP(&componentYes, "yes", "y", false, "Answer package-source prompts with their defaults")

	ComponentCommand.AddCommand(ComponentInstallCommand)
	ComponentCommand.AddCommand(ComponentUninstallCommand)
}

func runComponentInstall(cmd *cobra.Command, args []string) error {
	root, err := findInstallRoot()
	if err != nil {
		return err
	}
	attachFileLog(root)

	m, err := manifest.Load(filepath.Join(root, manifest.ManifestFilename))
	if err != nil {
		return err
	}
	if err := m.AdjustPaths(); err != nil {
		return err
	}
	components := m.CurrentTargetComponents(false)

	matched, unknown := matchComponents(components, args)
	if len(unknown) > 0 {
		return errors.Errorf("unknown component(s) %s, the toolkit provides: %s",
			strings.Join(unknown, ", "), strings.Join(componentNames(components), ", "))
	}

	if err := m.FillMissingPackageSource(matched, askToolSource(cmd.InOrStdin(), cmd.OutOrStdout(), componentYes)); err != nil {
		return err
	}

	engine, err := installer.New(m, installer.Options{
		InstallDir: root,
		Insecure:   componentInsecure,
		Progress:   progressHandler(),
	})
	if err != nil {
		return err
	}
	report, err := engine.AddComponents(cmd.Context(), matched)
	if err != nil {
		return err
	}
	reportProblems(report, "component install")
	return nil
}

func runComponentUninstall(cmd *cobra.Command, args []string) error {
	root, err := findInstallRoot()
	if err != nil {
		return err
	}
	attachFileLog(root)

	record, err := fingerprint.Load(root)
	if err != nil {
		return err
	}
	m, err := manifest.Load(filepath.Join(root, manifest.ManifestFilename))
	if err != nil {
		return err
	}
	components := m.CurrentTargetComponents(false)

	installed := make(map[string]bool)
	for _, name := range record.InstalledToolchainComponents() {
		installed[name] = true
	}
	for _, name := range record.ToolNames() {
		installed[name] = true
	}

	// Unknown names might be typos, or already removed. Warn and move on.
	matched, skipped := matchComponents(components, args)
	var selection []*manifest.Component
	for _, c := range matched {
		if !installed[c.Name] {
			skipped = append(skipped, c.Name)
			continue
		}
		selection = append(selection, c)
	}
	for _, name := range skipped {
		log.Warnf("skipping '%s', it does not look installed", name)
	}
	if len(selection) == 0 {
		log.Warn("nothing to uninstall")
		return nil
	}

	engine, err := installer.New(m, installer.Options{
		InstallDir: root,
		Progress:   progressHandler(),
	})
	if err != nil {
		return err
	}
	report, err := engine.RemoveComponents(cmd.Context(), selection)
	if err != nil {
		return err
	}
	reportProblems(report, "component uninstall")
	return nil
}
