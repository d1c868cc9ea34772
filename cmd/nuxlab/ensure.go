package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/nuxlab/internal/nuagex"
	"github.com/michaelbrown/nuxlab/internal/reconcile"
)

var (
	stateFlag    string
	templateFlag string
	checkFlag    bool
	outputFlag   string
)

var ensureCmd = &cobra.Command{
	Use:   "ensure <name>",
	Short: "Ensure a lab is present (and running) or absent",
	Long: `Look up the lab by name and create or delete it when it does not match
the desired state. At most one create or delete is performed.

Examples:
  nuxlab ensure training
  nuxlab ensure training --template "Nuage Networks 5.4"
  nuxlab ensure training --state absent --check`,
	Args: cobra.ExactArgs(1),
	RunE: runEnsure,
}

func init() {
	ensureCmd.Flags().StringVar(&stateFlag, "state", "present", "Desired state (present, absent)")
	ensureCmd.Flags().StringVar(&templateFlag, "template", "", "Template name or id (default: first template by name)")
	ensureCmd.Flags().BoolVar(&checkFlag, "check", false, "Report what would change without changing anything")
	ensureCmd.Flags().StringVarP(&outputFlag, "output", "o", "text", "Output format: text or json")
	rootCmd.AddCommand(ensureCmd)
}

func runEnsure(cmd *cobra.Command, args []string) error {
	state, err := reconcile.ParseState(stateFlag)
	if err != nil {
		return err
	}
	return ensure(reconcile.Params{
		Name:      args[0],
		Template:  templateFlag,
		State:     state,
		CheckMode: checkFlag,
	})
}

func ensure(p reconcile.Params) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var onPoll func(int, *nuagex.Lab)
	if outputFlag != "json" {
		onPoll = func(attempt int, lab *nuagex.Lab) {
			status := "gone"
			if lab != nil {
				status = lab.Status
			}
			fmt.Printf("  waiting for %s (attempt %d): %s\n", p.Name, attempt, status)
		}
	}

	res, err := a.Ensure(ctx, p, onPoll)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, res, outputFlag)
}

func printResult(w io.Writer, res *reconcile.Result, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	verb := "ok"
	if res.Changed {
		verb = "changed"
	}
	fmt.Fprintf(w, "%s: action=%s\n", verb, res.Action)
	if res.ID == "" {
		return nil
	}
	fmt.Fprintf(w, "Lab:      %s (%s)\n", res.Name, res.ID)
	fmt.Fprintf(w, "Status:   %s\n", res.Status)
	fmt.Fprintf(w, "Template: %s\n", res.Template)
	fmt.Fprintf(w, "Address:  %s\n", res.Address)
	fmt.Fprintf(w, "Password: %s\n", res.Password)
	for _, e := range res.Endpoints {
		fmt.Fprintf(w, "  %-10s %s://%s:%d\n", e.Name, e.Protocol, e.Host, e.Port)
	}
	return nil
}
