package cmd

import (
	"errors"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/wisp-renderer/wisp-installer/internal/generator"
	"github.com/wisp-renderer/wisp-installer/internal/gitsync"
	"github.com/wisp-renderer/wisp-installer/internal/installer"
)

// printSummary renders the reported errors of a run as a table.
func printSummary(w io.Writer, summary *installer.Summary) error {
	table := tablewriter.NewWriter(w)
	table.Header("Step", "Target", "Error")
	for _, err := range summary.Reported {
		if err := table.Append(summaryRow(err)); err != nil {
			return err
		}
	}
	return table.Render()
}

func summaryRow(err error) []string {
	var cerr *gitsync.CloneError
	if errors.As(err, &cerr) {
		return []string{string(installer.StepClone), cerr.URL, cerr.Err.Error()}
	}
	var exitErr *generator.ExitError
	if errors.As(err, &exitErr) {
		return []string{string(installer.StepGenerate), exitErr.Generator, exitErr.Error()}
	}
	return []string{"", "", err.Error()}
}
