package analysis

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/anthropic/codexlog/internal/sessionparser"
)

// FlagReport aggregates the distinct flag sets passed to one tool.
type FlagReport struct {
	Tool              string      `json:"tool"`
	Files             int         `json:"files"`
	TotalCalls        int         `json:"total_calls"`
	ExplicitFlagCalls int         `json:"calls_with_explicit_flags_field"`
	DefaultFlags      []string    `json:"default_flags_assumed_when_missing"`
	Unique            [][]string  `json:"unique_flag_sets_overall"`
	UniqueCount       int         `json:"unique_flag_sets_overall_count"`
	PerFile           []FileFlags `json:"per_file"`
	Errors            []FileError `json:"errors"`
}

// FileFlags lists the distinct flag sets seen in one log.
type FileFlags struct {
	Path        string     `json:"file"`
	Unique      [][]string `json:"unique_flag_sets"`
	UniqueCount int        `json:"unique_count"`
}

// ExtractFlags returns the distinct flag lists passed to tool, sorted by
// length and then lexicographically. A call whose arguments carry no usable
// "flags" list counts as a call with defaults.
func ExtractFlags(msgs []sessionparser.Message, tool string, defaults []string) [][]string {
	set := newFlagSet()
	for _, m := range toolCalls(msgs, tool) {
		flags := callFlags(m)
		if len(flags) == 0 {
			flags = defaults
		}
		set.add(flags)
	}
	return set.sorted()
}

// ScanFlags parses files in parallel and collects flag sets per file and
// overall. Unreadable logs are listed in Errors.
func ScanFlags(ctx context.Context, files []string, tool string, defaults []string, opts ScanOptions) (*FlagReport, error) {
	if opts.Parser == nil {
		opts.Parser = sessionparser.New()
	}
	results, err := parseAll(ctx, opts.Parser, files, opts.Workers)
	if err != nil {
		return nil, err
	}

	report := &FlagReport{
		Tool:         tool,
		DefaultFlags: append([]string{}, defaults...),
		PerFile:      []FileFlags{},
		Errors:       []FileError{},
	}
	overall := newFlagSet()

	for _, r := range results {
		if r.err != nil {
			report.Errors = append(report.Errors, FileError{Path: r.path, Err: r.err.Error()})
			continue
		}
		report.Files++

		for _, m := range toolCalls(r.messages, tool) {
			report.TotalCalls++
			if args, ok := m.Arguments.(map[string]any); ok {
				if _, ok := args["flags"].([]any); ok {
					report.ExplicitFlagCalls++
				}
			}
		}

		unique := ExtractFlags(r.messages, tool, defaults)
		for _, flags := range unique {
			overall.add(flags)
		}
		report.PerFile = append(report.PerFile, FileFlags{
			Path:        r.path,
			Unique:      unique,
			UniqueCount: len(unique),
		})
	}

	report.Unique = overall.sorted()
	report.UniqueCount = len(report.Unique)
	return report, nil
}

// ParseFlagList splits a comma-separated flag list, dropping empty items.
func ParseFlagList(s string) []string {
	var flags []string
	for _, f := range strings.Split(s, ",") {
		if f != "" {
			flags = append(flags, f)
		}
	}
	return flags
}

func toolCalls(msgs []sessionparser.Message, tool string) []sessionparser.Message {
	var calls []sessionparser.Message
	for _, m := range msgs {
		if m.Type == sessionparser.TypeFunctionCall && m.Name != nil && *m.Name == tool {
			calls = append(calls, m)
		}
	}
	return calls
}

// callFlags reads arguments["flags"], keeping non-empty string items.
func callFlags(m sessionparser.Message) []string {
	args, ok := m.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	items, ok := args["flags"].([]any)
	if !ok {
		return nil
	}
	var flags []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			flags = append(flags, s)
		}
	}
	return flags
}

// flagSet deduplicates flag lists by order-sensitive identity.
type flagSet struct {
	seen  map[string]struct{}
	lists [][]string
}

func newFlagSet() *flagSet {
	return &flagSet{seen: make(map[string]struct{})}
}

// add records flags under a length-prefixed key, so no separator inside a
// flag can make two different lists collide.
func (s *flagSet) add(flags []string) {
	var b strings.Builder
	for _, f := range flags {
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	key := b.String()
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.lists = append(s.lists, append([]string{}, flags...))
}

func (s *flagSet) sorted() [][]string {
	out := append([][]string{}, s.lists...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return out
}
