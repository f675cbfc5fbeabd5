package analysis

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/anthropic/codexlog/internal/sessionparser"
)

// UnknownName stands in for failed calls whose function name is missing.
const UnknownName = "<unknown>"

// DefaultFailurePrefix marks a tool output as a failed call.
const DefaultFailurePrefix = "tool call error:"

// FailureReport aggregates failed tool calls across logs.
type FailureReport struct {
	Files       []FileFailures `json:"files"`
	Counts      []NameCount    `json:"counts"`
	Errors      []FileError    `json:"errors"`
	FilesParsed int            `json:"files_parsed"`
}

// FileFailures lists the failed calls found in one log, in log order.
type FileFailures struct {
	Path  string   `json:"path"`
	Names []string `json:"names"`
}

// NameCount is the number of failures of one function.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Total returns the number of failed calls in the report.
func (r *FailureReport) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c.Count
	}
	return n
}

// FailedCalls returns the function_call messages whose output is a string
// that starts with prefix once leading whitespace is trimmed.
func FailedCalls(msgs []sessionparser.Message, prefix string) []sessionparser.Message {
	var failures []sessionparser.Message
	for _, m := range msgs {
		if m.Type != sessionparser.TypeFunctionCall {
			continue
		}
		out, ok := m.Output.(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(strings.TrimLeftFunc(out, unicode.IsSpace), prefix) {
			failures = append(failures, m)
		}
	}
	return failures
}

// ScanOptions configures a multi-file scan.
type ScanOptions struct {
	Parser  *sessionparser.Parser
	Workers int
	Prefix  string
}

// ScanFailures parses files in parallel and reports failed calls per file
// and overall. Logs that cannot be read are listed in Errors and the scan
// continues with the rest.
func ScanFailures(ctx context.Context, files []string, opts ScanOptions) (*FailureReport, error) {
	if opts.Parser == nil {
		opts.Parser = sessionparser.New()
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultFailurePrefix
	}
	results, err := parseAll(ctx, opts.Parser, files, opts.Workers)
	if err != nil {
		return nil, err
	}

	report := &FailureReport{Files: []FileFailures{}, Counts: []NameCount{}, Errors: []FileError{}}
	counts := make(map[string]int)

	for _, r := range results {
		if r.err != nil {
			report.Errors = append(report.Errors, FileError{Path: r.path, Err: r.err.Error()})
			continue
		}
		report.FilesParsed++

		failures := FailedCalls(r.messages, opts.Prefix)
		if len(failures) == 0 {
			continue
		}
		ff := FileFailures{Path: r.path}
		for _, m := range failures {
			name := UnknownName
			if m.Name != nil && *m.Name != "" {
				name = *m.Name
			}
			ff.Names = append(ff.Names, name)
			counts[name]++
		}
		report.Files = append(report.Files, ff)
	}

	report.Counts = sortCounts(counts)
	return report, nil
}

// sortCounts orders counts by count descending, then name ascending.
func sortCounts(counts map[string]int) []NameCount {
	out := make([]NameCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, NameCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
