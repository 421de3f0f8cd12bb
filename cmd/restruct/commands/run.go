package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/liftback/restruct/idiom"
	"github.com/liftback/restruct/lift"
	"github.com/liftback/restruct/structurer"
)

var (
	runPatterns string
	runWorkers  int
	runJSON     bool
	runLogFile  string
)

var runCmd = &cobra.Command{
	Use:   "run file.json [files...]",
	Short: "Structure descriptor files",
	Long: `Reads function descriptors (JSON or msgpack), runs the recovery
pipeline on each function and prints one line per function with its
status, idioms and diagnostics.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStructure(args)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runPatterns, "patterns", "p", "", "idiom pattern table (YAML, default built-in)")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "worker count (default: number of CPUs)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "machine readable output")
	runCmd.Flags().StringVar(&runLogFile, "log", "", "also write the analysis log to a file")
}

func runStructure(paths []string) error {
	var table *idiom.Table
	if runPatterns != "" {
		t, err := idiom.LoadTable(runPatterns)
		if err != nil {
			return err
		}
		table = t
	}
	ds, err := lift.FromFiles(paths...)
	if err != nil {
		return err
	}

	s, err := structurer.New(table)
	if err != nil {
		return err
	}
	if runLogFile != "" {
		s.AddLogFiles(runLogFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	results := s.Batch(ctx, ds, runWorkers)

	if runJSON {
		return printJSON(results)
	}
	printResults(results)
	for _, r := range results {
		if r.Status != structurer.FullyStructured {
			exitCode = 1
			break
		}
	}
	return nil
}

func printResults(results []*structurer.Result) {
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed)
	for _, r := range results {
		switch r.Status {
		case structurer.FullyStructured:
			ok.Printf("%-12s", r.Status)
		case structurer.PartiallyStructured:
			warn.Printf("%-12s", r.Status)
		default:
			bad.Printf("%-12s", r.Status)
		}
		fmt.Printf(" %s", r.Name)
		for _, m := range r.Idioms {
			fmt.Printf("  %s", m)
		}
		fmt.Println()
		for _, d := range r.Diags {
			warn.Printf("             %s\n", d)
		}
		if r.Err != nil {
			bad.Printf("             %v\n", r.Err)
		}
	}
}

type jsonResult struct {
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Idioms   []string `json:"idioms,omitempty"`
	Diags    []string `json:"diags,omitempty"`
	Error    string   `json:"error,omitempty"`
	Reduced  []string `json:"reduced,omitempty"`
	TreeDump string   `json:"tree,omitempty"`
}

func printJSON(results []*structurer.Result) error {
	out := make([]jsonResult, 0, len(results))
	allOK := true
	for _, r := range results {
		jr := jsonResult{Name: r.Name, Status: r.Status.String(), Reduced: r.Eliminated}
		for _, m := range r.Idioms {
			jr.Idioms = append(jr.Idioms, m.String())
		}
		for _, d := range r.Diags {
			jr.Diags = append(jr.Diags, d.String())
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		if r.Tree != nil {
			jr.TreeDump = r.Tree.String()
		}
		if r.Status != structurer.FullyStructured {
			allOK = false
		}
		out = append(out, jr)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if !allOK {
		exitCode = 1
	}
	return nil
}
