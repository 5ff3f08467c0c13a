package cmd

import (
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"

	"github.com/rust-install/rim/internal/buildinfo"
)

var (
	// Global flags
	verbose bool
	quiet   bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   buildinfo.Name,
	Short: "Install and manage Rust toolkit distributions",
	Long: buildinfo.Product + ` (` + buildinfo.Name + `) installs a Rust toolkit described by a toolkit
manifest: the toolchain through rustup-compatible mechanics, the bundled
tools into a managed directory layout, and the environment that makes them
usable. The same binary later adds or removes components, updates to a
newer toolkit, and uninstalls everything it put on disk.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetHandler(cli.Default)
		if verbose {
			log.SetLevel(log.DebugLevel)
			log.Debugf("Verbose logging enabled")
		} else if quiet {
			log.SetLevel(log.ErrorLevel) // ErrorLevel still lets failures through.
		} else {
			log.SetLevel(log.InfoLevel)
		}
	},
}

func init() {
	// Disable automatic command sorting to maintain semantic order
	cobra.EnableCommandSorting = false

	// Add global flags
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Increase log verbosity")
	RootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress progress output")

	// Add command groups
	RootCmd.AddGroup(&cobra.Group{
		ID:    "toolkit",
		Title: "Toolkit Commands:",
	})
	RootCmd.AddGroup(&cobra.Group{
		ID:    "utility",
		Title: "Utility Commands:",
	})

	// Set group for built-in commands
	RootCmd.SetHelpCommandGroupID("utility")
	RootCmd.SetCompletionCommandGroupID("utility")

	// Add subcommands with groups
	InstallCommand.GroupID = "toolkit"
	UpdateCommand.GroupID = "toolkit"
	ComponentCommand.GroupID = "toolkit"
	UninstallCommand.GroupID = "toolkit"
	TryItCommand.GroupID = "utility"

	RootCmd.AddCommand(InstallCommand)   // Provision a toolkit
	RootCmd.AddCommand(UpdateCommand)    // Move to a newer toolkit
	RootCmd.AddCommand(ComponentCommand) // Add or remove pieces of it
	RootCmd.AddCommand(UninstallCommand) // Take everything off again
	RootCmd.AddCommand(TryItCommand)     // Utility: hello-world cargo project
}
