// Package report renders analysis results and stored exports for the terminal.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/anthropic/codexlog/internal/analysis"
	"github.com/anthropic/codexlog/internal/store"
)

// ANSI escape codes for terminal formatting.
const (
	bold  = "\033[1m"
	reset = "\033[0m"
)

// FormatFailureReport lists each log with failed calls followed by the
// per-function totals. The layout is plain text so it can be grepped.
func FormatFailureReport(r *analysis.FailureReport) string {
	var b strings.Builder

	if len(r.Files) == 0 {
		b.WriteString("No failed function calls found.\n")
		return b.String()
	}

	for _, f := range r.Files {
		b.WriteString(f.Path + "\n")
		for _, name := range f.Names {
			b.WriteString(fmt.Sprintf("  %s\n", name))
		}
	}

	b.WriteString("\nFailure counts by function:\n")
	for _, c := range r.Counts {
		b.WriteString(fmt.Sprintf("%4d  %s\n", c.Count, c.Name))
	}

	return b.String()
}

// FormatFailureSummary is the one-line footer printed after a scan.
func FormatFailureSummary(r *analysis.FailureReport) string {
	return fmt.Sprintf("%s failed calls in %s of %s logs (%s unreadable)",
		humanize.Comma(int64(r.Total())),
		humanize.Comma(int64(len(r.Files))),
		humanize.Comma(int64(r.FilesParsed)),
		humanize.Comma(int64(len(r.Errors))))
}

// StoreStatus summarizes the export database.
type StoreStatus struct {
	DBPath       string
	DBSizeBytes  int64
	MessageCount int64
}

// FormatExports formats stored exports as a terminal table, newest first.
func FormatExports(exports []store.Export, status StoreStatus, now time.Time) string {
	var b strings.Builder

	b.WriteString(bold + "Codex Log Exports" + reset + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString(fmt.Sprintf("%-20s %s\n", "Database:", status.DBPath))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "DB Size:", humanize.Bytes(uint64(max(status.DBSizeBytes, 0)))))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Exports:", humanize.Comma(int64(len(exports)))))
	b.WriteString(fmt.Sprintf("%-20s %s\n\n", "Messages:", humanize.Comma(status.MessageCount)))

	if len(exports) == 0 {
		b.WriteString("No exports stored.\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("%-36s  %-8s %9s %9s  %-16s %s\n", "ID", "Policy", "Messages", "Malformed", "Created", "Source"))
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, e := range exports {
		policy := e.Policy
		if policy == "" {
			policy = "-"
		}
		b.WriteString(fmt.Sprintf("%-36s  %-8s %9s %9s  %-16s %s\n",
			e.ID, policy,
			humanize.Comma(int64(e.MessageCount)),
			humanize.Comma(int64(e.Stats.Malformed)),
			humanize.RelTime(e.CreatedAt, now, "ago", "from now"),
			e.SourcePath))
	}

	return b.String()
}

// FormatJSON marshals any value as indented JSON without HTML escaping.
func FormatJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
