package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/nuxlab/internal/manifest"
)

var manifestFlag string

var applyCmd = &cobra.Command{
	Use:   "apply -f labs.yaml",
	Short: "Reconcile every lab listed in a manifest",
	Long: `Reconcile the labs in a YAML manifest, one after another, stopping at the
first failure.

  labs:
    - name: training
      template: base
    - name: old-demo
      state: absent`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&manifestFlag, "file", "f", "", "Manifest file")
	applyCmd.Flags().BoolVar(&checkFlag, "check", false, "Report what would change without changing anything")
	applyCmd.Flags().StringVarP(&outputFlag, "output", "o", "text", "Output format: text or json")
	_ = applyCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(manifestFlag)
	if err != nil {
		return err
	}
	params, err := m.Params(checkFlag)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changed := 0
	for _, p := range params {
		if outputFlag != "json" {
			fmt.Printf("==> %s (%s)\n", p.Name, p.State)
		}
		res, err := a.Ensure(ctx, p, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		if res.Changed {
			changed++
		}
		if err := printResult(os.Stdout, res, outputFlag); err != nil {
			return err
		}
	}

	if outputFlag != "json" {
		fmt.Printf("\n%d lab(s), %d changed\n", len(params), changed)
	}
	return nil
}
