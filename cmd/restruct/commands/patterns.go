package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/liftback/restruct/idiom"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns [table.yaml]",
	Short: "Validate and list idiom pattern tables",
	Long: `Without arguments, lists the built-in pattern table. With a file,
validates it against the registered matchers and lists its entries.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := idiom.DefaultTable()
		if len(args) == 1 {
			t, err := idiom.LoadTable(args[0])
			if err != nil {
				return err
			}
			table = t
			color.New(color.FgGreen).Printf("%s: valid (version %d)\n", args[0], t.Version)
		}
		for _, p := range table.Patterns {
			fmt.Printf("%-20s %s", p.Name, p.Kind)
			for k, v := range p.Params {
				fmt.Printf("  %s=%d", k, v)
			}
			fmt.Println()
		}
		return nil
	},
}
