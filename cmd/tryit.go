package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/rust-install/rim/pkg/tryit"
)

var (
	// Flags for try-it command
	tryitPath string
)

// TryItCommand represents the try-it command
var TryItCommand = &cobra.Command{
	Use:   "try-it",
	Short: "Create an example cargo project to try the toolchain on",
	Long: `Create a hello-world cargo project and open it in a VS Code flavored
editor when one is installed, else in the file manager.`,
	Example: `  # Create example_project under the current directory
  rim try-it

  # Create it somewhere else
  rim try-it --path ~/playground`,
	Args: cobra.NoArgs,
	RunE: runTryIt,
}

func init() {
	TryItCommand.Flags().StringVar(&tryitPath, "path", "", "Directory to create the example project in (default: current directory)")
}

func runTryIt(cmd *cobra.Command, args []string) error {
	_, err := tryit.TryIt(cmd.Context(), tryitPath, openEditorAfterExport())
	return err
}

// openEditorAfterExport decides whether the exported project is opened
// right away. Linux terminal sessions only print the path.
func openEditorAfterExport() bool {
	return runtime.GOOS != "linux"
}
