// Package analysis runs whole-log analyses over parsed session messages:
// scanning for failed tool calls and collecting compiler flag sets passed
// to a build tool. Logs are parsed independently and in parallel.
package analysis

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/anthropic/codexlog/internal/sessionparser"
)

// FileError records a log that could not be parsed.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// parsed is the outcome of parsing one file of a scan.
type parsed struct {
	path     string
	messages []sessionparser.Message
	err      error
}

// parseAll parses files with at most workers parses in flight. Results keep
// the order of files. Per-file errors are returned in the results; only
// context cancellation stops the scan.
func parseAll(ctx context.Context, p *sessionparser.Parser, files []string, workers int) ([]parsed, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]parsed, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := p.ParseFile(path)
			results[i] = parsed{path: path, err: err}
			if err == nil {
				results[i].messages = res.Messages
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
