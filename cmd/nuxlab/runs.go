package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/nuxlab/internal/storage"
	"github.com/michaelbrown/nuxlab/internal/storage/sqlite"
)

var (
	labFilter    string
	limitFlag    int
	exportFormat string
	exportOutput string
	forceFlag    bool
)

var runsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"run", "r"},
	Short:   "Inspect the local journal of reconciliations",
	Long: `The journal records each reconciliation when journal.enabled is set in
the config. It is an audit trail only and never affects what nuxlab does.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export runs as markdown or JSON",
	RunE:  runRunsExport,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd, runsExportCmd)

	runsCmd.PersistentFlags().StringVar(&labFilter, "lab", "", "Only runs for this lab")
	runsCmd.PersistentFlags().IntVar(&limitFlag, "limit", 20, "Max runs to show")

	runsExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md or json")
	runsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	runsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")
}

func openStore() (storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, fmt.Errorf("the run journal is disabled (set journal.enabled in nuxlab.yaml)")
	}
	return sqlite.Open(cfg.Journal.DBPath)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), storage.RunListOptions{
		LabName: labFilter,
		Limit:   limitFlag,
	})
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Printf("%-10s %-24s %-8s %-8s %-8s %s\n", "ID", "LAB", "STATE", "ACTION", "RESULT", "STARTED")
	fmt.Println(strings.Repeat("─", 80))

	for _, r := range runs {
		lab := r.LabName
		if len(lab) > 22 {
			lab = lab[:22] + ".."
		}
		result := "ok"
		switch {
		case r.Error != "":
			result = "failed"
		case r.Changed && r.CheckMode:
			result = "would"
		case r.Changed:
			result = "changed"
		}
		fmt.Printf("%-10s %-24s %-8s %-8s %-8s %s\n",
			shortID(r.ID), lab, r.DesiredState, r.Action, result, timeAgo(r.StartedAt))
	}

	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", r.ID)
	fmt.Printf("Lab:      %s\n", r.LabName)
	if r.Template != "" {
		fmt.Printf("Template: %s\n", r.Template)
	}
	fmt.Printf("State:    %s\n", r.DesiredState)
	fmt.Printf("Action:   %s\n", r.Action)
	fmt.Printf("Changed:  %t\n", r.Changed)
	fmt.Printf("Check:    %t\n", r.CheckMode)
	if r.LabID != "" {
		fmt.Printf("Lab ID:   %s\n", r.LabID)
	}
	fmt.Printf("Started:  %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Printf("Duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", r.Error)
	}
	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	r, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}

	if !forceFlag {
		ok, err := confirm(fmt.Sprintf("Delete run %s (%s)? [y/N] ", shortID(r.ID), r.LabName))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := store.DeleteRun(ctx, r.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted run %s\n", shortID(r.ID))
	return nil
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), storage.RunListOptions{
		LabName: labFilter,
		Limit:   limitFlag,
	})
	if err != nil {
		return err
	}

	var output string
	switch exportFormat {
	case "json":
		data, err := storage.ExportJSON(runs)
		if err != nil {
			return err
		}
		output = string(data) + "\n"
	default:
		output = storage.ExportMarkdown(runs)
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, []byte(output), 0o644)
	}

	fmt.Print(output)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
