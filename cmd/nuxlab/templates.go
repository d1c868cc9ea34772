package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the templates labs can be created from",
	Args:  cobra.NoArgs,
	RunE:  runTemplates,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}

func runTemplates(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	templates, err := a.Reconciler(nil).Templates(context.Background())
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		fmt.Println("No templates available.")
		return nil
	}

	fmt.Printf("%-26s %s\n", "ID", "NAME")
	fmt.Println(strings.Repeat("─", 60))
	for _, t := range templates {
		fmt.Printf("%-26s %s\n", t.ID, t.Name)
	}
	return nil
}
