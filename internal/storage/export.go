package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportMarkdown renders runs as a markdown table.
func ExportMarkdown(runs []Run) string {
	var b strings.Builder

	b.WriteString("# nuxlab runs\n\n")
	b.WriteString("| Run | Lab | State | Action | Changed | Check | Lab ID | Started | Error |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
	for _, r := range runs {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %t | %t | %s | %s | %s |\n",
			shortID(r.ID), r.LabName, r.DesiredState, r.Action, r.Changed, r.CheckMode,
			r.LabID, r.StartedAt.Format("2006-01-02 15:04:05"), strings.ReplaceAll(r.Error, "|", `\|`)))
	}

	return b.String()
}

// ExportJSON renders runs as formatted JSON.
func ExportJSON(runs []Run) ([]byte, error) {
	if runs == nil {
		runs = []Run{}
	}
	return json.MarshalIndent(struct {
		Runs []Run `json:"runs"`
	}{Runs: runs}, "", "  ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
