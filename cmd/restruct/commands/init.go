package commands

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/liftback/restruct/idiom"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a pattern table interactively",
	Long: `Guides you through creating an idiom pattern table. The result is a
YAML file you can pass to "restruct run --patterns".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	path := "patterns.yaml"
	var kinds []string
	threshold := ""

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Pattern table file").
				Placeholder("patterns.yaml").
				Value(&path),
			huh.NewMultiSelect[string]().
				Title("Idiom families to enable").
				Options(
					huh.NewOption("Spin-wait loops", string(idiom.SpinWait)).Selected(true),
					huh.NewOption("1.5x capacity growth", string(idiom.CapacityGrowth)).Selected(true),
					huh.NewOption("Protected regions", string(idiom.ProtectedRegion)).Selected(true),
				).
				Value(&kinds),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	enabled := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		enabled[k] = true
	}

	if enabled[string(idiom.SpinWait)] {
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Maximum spin threshold (optional, press Enter to skip)").
					Placeholder("e.g. 1024").
					Validate(func(s string) error {
						if s == "" {
							return nil
						}
						_, err := strconv.ParseInt(s, 10, 64)
						return err
					}).
					Value(&threshold),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
	}

	table := &idiom.Table{Version: idiom.TableVersion}
	for _, p := range idiom.DefaultTable().Patterns {
		if !enabled[string(p.Kind)] {
			continue
		}
		if p.Kind == idiom.SpinWait && threshold != "" {
			v, _ := strconv.ParseInt(threshold, 10, 64)
			p.Params = map[string]int64{"max-threshold": v}
		}
		table.Patterns = append(table.Patterns, p)
	}

	if err := table.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s with %d patterns\n", path, len(table.Patterns))
	return nil
}
