package store

import (
	"encoding/json"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/anthropic/codexlog/internal/sessionparser"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func parseFixture(t *testing.T, lines ...string) *sessionparser.Result {
	t.Helper()
	res, err := sessionparser.New().ParseReader(strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	return res
}

func TestNew_RunsMigrations(t *testing.T) {
	s := setupTestStore(t)

	v, err := currentVersion(s.db)
	if err != nil {
		t.Fatalf("currentVersion: %v", err)
	}
	if v != schemaVersion {
		t.Errorf("schema version = %d, want %d", v, schemaVersion)
	}

	for _, col := range []string{"stats", "policy"} {
		var count int
		err := s.db.QueryRow(
			"SELECT COUNT(*) FROM pragma_table_info('exports') WHERE name = ?", col,
		).Scan(&count)
		if err != nil {
			t.Fatalf("check column %s: %v", col, err)
		}
		if count != 1 {
			t.Errorf("exports.%s: found %d columns, want 1", col, count)
		}
	}
}

func TestNew_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
}

func TestSaveExport_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	res := parseFixture(t,
		`{"timestamp":"t1","type":"event_msg","payload":{"type":"user_message","message":"hi <b>"}}`,
		`{"timestamp":"t2","type":"response_item","payload":{"type":"function_call","call_id":"c1","name":"shell","arguments":"{\"cmd\":[\"ls\"],\"n\":3}"}}`,
		`{"timestamp":"t3","type":"response_item","payload":{"type":"function_call_output","call_id":"c1","output":"{\"exit\":0}"}}`,
		`{"timestamp":"t4","type":"response_item","payload":{"type":"function_call","call_id":"c2","name":"shell","arguments":"not json"}}`,
	)

	exp, err := s.SaveExport("/logs/a.jsonl", "full", res)
	if err != nil {
		t.Fatalf("SaveExport: %v", err)
	}
	if exp.ID == "" || exp.MessageCount != 3 {
		t.Errorf("export = %+v, want id and 3 messages", exp)
	}

	got, err := s.LoadMessages(exp.ID)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if !reflect.DeepEqual(got, res.Messages) {
		gj, _ := json.Marshal(got)
		wj, _ := json.Marshal(res.Messages)
		t.Errorf("LoadMessages mismatch\n got: %s\nwant: %s", gj, wj)
	}

	// Unresolved call keeps an explicit null output.
	if got[2].Output != nil {
		t.Errorf("pending call Output = %v, want nil", got[2].Output)
	}

	count, err := s.MessageCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("MessageCount = %d, want 3", count)
	}
}

func TestSaveExport_Empty(t *testing.T) {
	s := setupTestStore(t)

	exp, err := s.SaveExport("/logs/empty.jsonl", "compact", parseFixture(t, ""))
	if err != nil {
		t.Fatalf("SaveExport: %v", err)
	}
	got, err := s.LoadMessages(exp.ID)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("LoadMessages = %v, want empty non-nil slice", got)
	}
}

func TestListExports(t *testing.T) {
	s := setupTestStore(t)

	res := parseFixture(t,
		`{"type":"event_msg","payload":{"type":"agent_message","message":"done"}}`,
		`not json`,
	)
	first, err := s.SaveExport("/logs/a.jsonl", "full", res)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.SaveExport("/logs/b.jsonl", "compact", res)
	if err != nil {
		t.Fatal(err)
	}

	exports, err := s.ListExports()
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(exports) != 2 {
		t.Fatalf("got %d exports, want 2", len(exports))
	}

	byID := map[string]Export{}
	for _, e := range exports {
		byID[e.ID] = e
	}
	a, ok := byID[first.ID]
	if !ok {
		t.Fatalf("export %s missing", first.ID)
	}
	if a.SourcePath != "/logs/a.jsonl" || a.Policy != "full" || a.MessageCount != 1 {
		t.Errorf("first export = %+v", a)
	}
	if a.Stats.Malformed != 1 || a.Stats.Messages != 1 {
		t.Errorf("first export stats = %+v, want 1 malformed, 1 message", a.Stats)
	}
	if byID[second.ID].Policy != "compact" {
		t.Errorf("second export policy = %q, want %q", byID[second.ID].Policy, "compact")
	}
}

func TestLoadMessages_UnknownExport(t *testing.T) {
	s := setupTestStore(t)

	got, err := s.LoadMessages("no-such-export")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}

func TestDBSizeBytes(t *testing.T) {
	s := setupTestStore(t)

	size, err := s.DBSizeBytes()
	if err != nil {
		t.Fatalf("DBSizeBytes: %v", err)
	}
	if size <= 0 {
		t.Errorf("DBSizeBytes = %d, want > 0", size)
	}
}
