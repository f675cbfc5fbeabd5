package sessionparser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// AccessError reports that a log could not be opened or read. No messages
// are returned alongside it.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("read log %s: %v", e.Path, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Parser converts Codex JSONL logs into messages. A Parser holds only
// configuration; every parse allocates its own state, so one Parser may be
// used from several goroutines.
type Parser struct {
	policy Policy
	log    zerolog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithPolicy sets the drop/render policy.
func WithPolicy(p Policy) Option {
	return func(ps *Parser) { ps.policy = p }
}

// WithLogger sets the logger used for per-line diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(ps *Parser) { ps.log = l }
}

// New creates a Parser with DefaultPolicy and a no-op logger.
func New(opts ...Option) *Parser {
	p := &Parser{
		policy: DefaultPolicy(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseLog parses the log at path with the default policy.
func ParseLog(path string) ([]Message, error) {
	res, err := New().ParseFile(path)
	if err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// ParseFile parses the log at path.
func (p *Parser) ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &AccessError{Path: path, Err: err}
	}
	defer f.Close()

	res, err := p.ParseReader(f)
	if err != nil {
		var ae *AccessError
		if errors.As(err, &ae) {
			ae.Path = path
		}
		return nil, err
	}
	return res, nil
}

// ParseReader parses a log from r. Lines that are blank or not a JSON
// object are skipped; only read errors abort the parse.
func (p *Parser) ParseReader(r io.Reader) (*Result, error) {
	b := newBuilder()
	reader := bufio.NewReader(r)

	for lineno := 1; ; lineno++ {
		raw, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, &AccessError{Err: err}
		}
		if len(raw) > 0 {
			p.consumeLine(b, raw, lineno)
		}
		if err == io.EOF {
			break
		}
	}

	return b.result(), nil
}

func (p *Parser) consumeLine(b *builder, raw []byte, lineno int) {
	b.stats.Lines++

	line := trimLine(raw)
	if len(line) == 0 {
		b.stats.Blank++
		return
	}

	rec, err := decodeRecord(line)
	if err != nil {
		b.stats.Malformed++
		p.log.Debug().Int("line", lineno).Err(err).Msg("skipping undecodable line")
		return
	}
	b.stats.Decoded++

	if !p.dispatch(b, rec, lineno) {
		b.stats.Dropped++
	}
}

// dispatch routes a record by kind. It returns false when the policy
// dropped the record.
func (p *Parser) dispatch(b *builder, rec map[string]any, lineno int) bool {
	kind, _ := scalarField(rec, "type")
	if p.policy.dropKind(kind) {
		p.log.Debug().Int("line", lineno).Str("kind", kind).Msg("dropping record")
		return false
	}

	rawPayload := orEmptyObject(rec["payload"])
	payload := asObject(rawPayload)
	base := Message{
		Timestamp:  recordTimestamp(rec),
		SourceLine: ptr(lineno),
	}

	switch kind {
	case kindSessionMeta, kindTurnContext:
		msg := base
		msg.Type = kind
		msg.Role = ptr("system")
		msg.Content = ptr(FormatJSON(rawPayload))
		msg.Metadata = rawPayload
		b.add(msg)
		return true

	case kindEventMsg:
		return p.handleEvent(b, base, payload)

	case kindResponseItem:
		return p.handleResponse(b, base, payload)
	}

	msg := base
	msg.Type = subtypeOrUnknown(kind)
	msg.Content = ptr(FormatJSON(rawPayload))
	msg.Metadata = rawPayload
	b.add(msg)
	return true
}
