package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/nuxlab/internal/reconcile"
)

var yesFlag bool

var destroyCmd = &cobra.Command{
	Use:   "destroy <name>",
	Short: "Delete a lab (same as ensure --state absent)",
	Args:  cobra.ExactArgs(1),
	RunE:  runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip confirmation")
	destroyCmd.Flags().BoolVar(&checkFlag, "check", false, "Report what would change without changing anything")
	rootCmd.AddCommand(destroyCmd)
}

func runDestroy(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !yesFlag && !checkFlag {
		ok, err := confirm(fmt.Sprintf("Delete lab %q? [y/N] ", name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled.")
			return nil
		}
	}
	return ensure(reconcile.Params{Name: name, State: reconcile.StateAbsent, CheckMode: checkFlag})
}

func confirm(prompt string) (bool, error) {
	rl, err := readline.New(prompt)
	if err != nil {
		return false, fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	answer, err := rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
