package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "restruct",
	Short: "restruct - Structured control flow recovery",
	Long: `restruct turns lifted function descriptors into structured control
trees: loops, conditionals, protected scopes and named idioms.

Commands:
  run         Structure descriptor files
  patterns    Validate and list idiom pattern tables
  init        Create a pattern table interactively

Use "restruct [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// exitCode is set by subcommands; 0 means every function structured fully,
// 1 means partial or rejected functions, 2 means the run itself failed.
var exitCode int

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		return 2
	}
	return exitCode
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(patternsCmd)
	RootCmd.AddCommand(initCmd)
}
