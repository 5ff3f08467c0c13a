package cmd

import (
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rust-install/rim/internal/buildinfo"
	"github.com/rust-install/rim/pkg/dist"
	"github.com/rust-install/rim/pkg/fingerprint"
	"github.com/rust-install/rim/pkg/installer"
	"github.com/rust-install/rim/pkg/manifest"
)

var (
	// Flags for update command
	updateInsecure bool
)

// UpdateCommand represents the update command
var UpdateCommand = &cobra.Command{
	Use:   "update",
	Short: "Update the installed toolkit to the newest published version",
	Long: `Check the distribution server for a toolkit newer than the installed one
and install it in place. Installed components are carried over and
reinstalled from the new toolkit; components the new toolkit installs by
default are added.`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	UpdateCommand.Flags().BoolVarP(&updateInsecure, "insecure", "k", false, "Skip TLS certificate verification")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	root, err := findInstallRoot()
	if err != nil {
		return err
	}
	attachFileLog(root)

	record, err := fingerprint.Load(root)
	if err != nil {
		return err
	}
	if record.Version == "" {
		return errors.New("the installed toolkit does not carry a version, it cannot be updated automatically")
	}
	installed := dist.Installed{Name: record.Name, Version: record.Version, Edition: record.Edition}

	toolkit, err := dist.LatestInstallableToolkit(ctx, buildinfo.DefaultRustupDistServer, installed, updateInsecure)
	if err != nil {
		return err
	}
	if toolkit == nil {
		log.Infof("the installed toolkit '%s %s' is already the newest version", record.Name, record.Version)
		return nil
	}
	log.Infof("updating to '%s %s'", toolkit.Name, toolkit.Version)

	m, err := toolkit.Manifest(ctx, updateInsecure)
	if err != nil {
		return err
	}
	if err := m.AdjustPaths(); err != nil {
		return err
	}
	selection := updateSelection(m.CurrentTargetComponents(false), record)

	engine, err := installer.New(m, installer.Options{
		InstallDir: root,
		Insecure:   updateInsecure,
		Progress:   progressHandler(),
	})
	if err != nil {
		return err
	}
	report, err := engine.Update(ctx, selection)
	if err != nil {
		return err
	}
	reportProblems(report, "update")
	return nil
}

// updateSelection carries every recorded component over to the new
// toolkit and adds whatever it newly installs by default.
func updateSelection(components []*manifest.Component, record *fingerprint.InstallationRecord) []*manifest.Component {
	recorded := make(map[string]bool)
	for _, name := range record.InstalledToolchainComponents() {
		recorded[name] = true
	}
	for _, name := range record.ToolNames() {
		recorded[name] = true
	}

	var out []*manifest.Component
	for _, c := range components {
		if c.Required || !c.Optional || recorded[c.Name] {
			out = append(out, c)
		}
	}
	return out
}
