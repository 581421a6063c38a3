package app

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/reconcile"
)

// titleCaser renders snake_case identifiers as headings.
var titleCaser = cases.Title(language.English)

// heading turns an identifier like "pending_manual" into "Pending Manual".
func heading(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

// renderReport prints a run report in the configured format. A report with
// per-photo errors renders fully and then fails the command, so partial
// progress is visible and the exit code still signals the failures.
func (a *App) renderReport(cmd *cobra.Command, report *reconcile.Report) error {
	out := cmd.OutOrStdout()

	if a.config.Format == "json" {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		return reportError(report)
	}

	fmt.Fprintf(out, "%s: %d photos processed in %s\n",
		heading(report.Operation), report.Processed,
		report.FinishedAt.Sub(report.StartedAt).Round(10*time.Millisecond))

	counts := []struct {
		label string
		n     int
	}{
		{"created", report.Created},
		{"merged", report.Merged},
		{"reopened", report.Reopened},
		{"resolved", report.Resolved},
		{"replicated", report.Replicated},
		{"conflicts found", report.ConflictsFound},
		{"conflicts resolved", report.ConflictsResolved},
	}
	for _, c := range counts {
		if c.n > 0 {
			fmt.Fprintf(out, "  %-20s %d\n", c.label, c.n)
		}
	}

	if len(report.PlannedActions) > 0 {
		fmt.Fprintf(out, "\nplanned actions:\n")
		ids := make([]string, 0, len(report.PlannedActions))
		for id := range report.PlannedActions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "  %s\n", id)
			for _, action := range report.PlannedActions[id] {
				fmt.Fprintf(out, "    %-16s %s\n", action.Type, action.Service)
			}
		}
	}

	if len(report.Pending) > 0 {
		fmt.Fprintf(out, "\n%d conflicts need a decision:\n", len(report.Pending))
		for _, req := range report.Pending {
			fmt.Fprintf(out, "  %s  %s\n", req.PhotoID, req.Description)
		}
		fmt.Fprintf(out, "run resolve --interactive to decide them\n")
	}

	if len(report.Errors) > 0 {
		fmt.Fprintf(out, "\nerrors:\n")
		keys := make([]string, 0, len(report.Errors))
		for k := range report.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s: %s\n", k, report.Errors[k])
		}
	}
	return reportError(report)
}

// reportError converts per-photo failures into a command error.
func reportError(report *reconcile.Report) error {
	if report.Failed() {
		return fmt.Errorf("%s finished with %d errors", report.Operation, len(report.Errors))
	}
	return nil
}

// renderStatus prints the collection summary.
func (a *App) renderStatus(cmd *cobra.Command, status *reconcile.Status) error {
	if a.config.Format == "json" {
		return printJSON(cmd, status)
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%d photos\n\n", status.Total)

	fmt.Fprintf(out, "by state:\n")
	for _, state := range []photos.State{photos.StateDiscovered, photos.StateResolved, photos.StateReplicated} {
		if n := status.ByState[state]; n > 0 {
			fmt.Fprintf(out, "  %-12s %d\n", heading(string(state)), n)
		}
	}

	if len(status.ByService) > 0 {
		fmt.Fprintf(out, "\nby service:\n")
		keys := make([]string, 0, len(status.ByService))
		for k := range status.ByService {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %-12s %d\n", k, status.ByService[k])
		}
	}

	if len(status.Conflicts) > 0 {
		fmt.Fprintf(out, "\nblocking conflicts:\n")
		types := make([]string, 0, len(status.Conflicts))
		for t := range status.Conflicts {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(out, "  %-22s %d\n", heading(t), status.Conflicts[photos.ConflictType(t)])
		}
	}

	fmt.Fprintf(out, "\n%d blocked, %d visibility discrepancies\n", status.Blocked, status.Discrepancies)
	fmt.Fprintf(out, "%d with known content, %d originals archived\n", status.WithHash, status.SecuredBlobs)
	return nil
}

// renderFindings prints audit findings.
func (a *App) renderFindings(cmd *cobra.Command, findings []reconcile.AuditFinding) error {
	if a.config.Format == "json" {
		return printJSON(cmd, findings)
	}
	out := cmd.OutOrStdout()

	if len(findings) == 0 {
		fmt.Fprintf(out, "no findings\n")
		return nil
	}
	for _, f := range findings {
		fmt.Fprintf(out, "%-20s %s  %s\n", heading(f.Kind), f.PhotoID, f.Detail)
	}
	fmt.Fprintf(out, "\n%d findings\n", len(findings))
	return nil
}

// printJSON writes any value as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
