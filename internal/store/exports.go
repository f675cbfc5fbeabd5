package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anthropic/codexlog/internal/sessionparser"
)

// Export describes one stored parse of a session log.
type Export struct {
	ID           string              `json:"id"`
	SourcePath   string              `json:"source_path"`
	CreatedAt    time.Time           `json:"created_at"`
	MessageCount int                 `json:"message_count"`
	Policy       string              `json:"policy"`
	Stats        sessionparser.Stats `json:"stats"`
}

// SaveExport stores every message of res under a new export id. The whole
// export is written in one transaction.
func (s *Store) SaveExport(source, policy string, res *sessionparser.Result) (*Export, error) {
	stats, err := json.Marshal(res.Stats)
	if err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}

	exp := &Export{
		ID:           uuid.NewString(),
		SourcePath:   source,
		CreatedAt:    time.Now().UTC(),
		MessageCount: len(res.Messages),
		Policy:       policy,
		Stats:        res.Stats,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin export: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO exports (id, source_path, created_at, message_count, stats, policy)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.SourcePath, exp.CreatedAt.Format(time.RFC3339Nano),
		exp.MessageCount, string(stats), exp.Policy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert export: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO messages (export_id, seq, timestamp, type, role, content, call_id, name,
		                       arguments, output, metadata, source_line)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range res.Messages {
		args, err := jsonColumn(m.Arguments)
		if err != nil {
			return nil, fmt.Errorf("message %d arguments: %w", i, err)
		}
		output, err := jsonColumn(m.Output)
		if err != nil {
			return nil, fmt.Errorf("message %d output: %w", i, err)
		}
		meta, err := jsonColumn(m.Metadata)
		if err != nil {
			return nil, fmt.Errorf("message %d metadata: %w", i, err)
		}

		_, err = stmt.Exec(
			exp.ID, i, m.Timestamp, m.Type,
			nullString(m.Role), nullString(m.Content), nullString(m.CallID), nullString(m.Name),
			args, output, meta, nullInt(m.SourceLine),
		)
		if err != nil {
			return nil, fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit export: %w", err)
	}
	return exp, nil
}

// ListExports returns all exports, newest first.
func (s *Store) ListExports() ([]Export, error) {
	rows, err := s.db.Query(
		`SELECT id, source_path, created_at, message_count, policy, stats
		 FROM exports
		 ORDER BY created_at DESC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []Export
	for rows.Next() {
		var e Export
		var ts, stats string
		if err := rows.Scan(&e.ID, &e.SourcePath, &ts, &e.MessageCount, &e.Policy, &stats); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse export timestamp %q: %w", ts, err)
		}
		e.CreatedAt = t
		if err := json.Unmarshal([]byte(stats), &e.Stats); err != nil {
			return nil, fmt.Errorf("decode stats for export %s: %w", e.ID, err)
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

// LoadMessages returns the messages of one export in their original order.
// Absent optional fields come back as nil.
func (s *Store) LoadMessages(exportID string) ([]sessionparser.Message, error) {
	rows, err := s.db.Query(
		`SELECT timestamp, type, role, content, call_id, name, arguments, output, metadata, source_line
		 FROM messages
		 WHERE export_id = ?
		 ORDER BY seq ASC`,
		exportID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []sessionparser.Message{}
	for rows.Next() {
		var m sessionparser.Message
		var role, content, callID, name, args, output, meta sql.NullString
		var line sql.NullInt64
		if err := rows.Scan(
			&m.Timestamp, &m.Type, &role, &content, &callID, &name,
			&args, &output, &meta, &line,
		); err != nil {
			return nil, err
		}
		m.Role = stringPtr(role)
		m.Content = stringPtr(content)
		m.CallID = stringPtr(callID)
		m.Name = stringPtr(name)
		if m.Arguments, err = decodeColumn(args); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		if m.Output, err = decodeColumn(output); err != nil {
			return nil, fmt.Errorf("decode output: %w", err)
		}
		if m.Metadata, err = decodeColumn(meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		if line.Valid {
			n := int(line.Int64)
			m.SourceLine = &n
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// jsonColumn renders v as JSON text; nil maps to SQL NULL.
func jsonColumn(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes.TrimRight(buf.Bytes(), "\n")), Valid: true}, nil
}

func decodeColumn(col sql.NullString) (any, error) {
	if !col.Valid {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(col.String)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
