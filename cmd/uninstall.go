package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/rust-install/rim/pkg/installer"
)

var (
	// Flags for uninstall command
	uninstallKeepSelf bool
	uninstallYes      bool
)

// UninstallCommand represents the uninstall command
var UninstallCommand = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the installed toolkit",
	Long: `Remove everything the installer put on disk: the recorded tools, the
toolchain, the persisted environment changes and the installation
directory itself. With --keep-self the manager binary survives inside an
otherwise empty installation directory.`,
	Args: cobra.NoArgs,
	RunE: runUninstall,
}

func init() {
	UninstallCommand.Flags().BoolVar(&uninstallKeepSelf, "keep-self", false, "Keep the manager binary in the installation directory")
	UninstallCommand.Flags().BoolVarP(&uninstallYes, "yes", "y", false, "Skip confirmation")
}

func runUninstall(cmd *cobra.Command, args []string) error {
	root, err := findInstallRoot()
	if err != nil {
		return err
	}

	if !uninstallYes {
		prompt := fmt.Sprintf("uninstall '%s' and everything in it?", root)
		if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
			log.Info("uninstall aborted")
			return nil
		}
	}

	engine, err := installer.NewFromRoot(root, installer.Options{Progress: progressHandler()})
	if err != nil {
		return err
	}
	report, err := engine.Uninstall(cmd.Context(), uninstallKeepSelf)
	if err != nil {
		return err
	}
	reportProblems(report, "uninstall")
	return nil
}
