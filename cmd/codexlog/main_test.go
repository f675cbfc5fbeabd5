package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleLog = `{"timestamp":"t1","type":"event_msg","payload":{"type":"user_message","message":"build it"}}
{"timestamp":"t2","type":"response_item","payload":{"type":"function_call","call_id":"c1","name":"shell","arguments":"{\"cmd\":[\"make\"]}"}}
{"timestamp":"t3","type":"response_item","payload":{"type":"function_call_output","call_id":"c1","output":"tool call error: exit 2"}}
{"timestamp":"t4","type":"response_item","payload":{"type":"function_call","call_id":"c2","name":"mcp__kernelmcp__vm_compile_c_and_upload","arguments":"{\"flags\":[\"-O2\"]}"}}
{"timestamp":"t5","type":"turn_context","payload":{"cwd":"/w"}}
not json
`

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeSample(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout.jsonl")
	if err := os.WriteFile(path, []byte(sampleLog), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, path
}

func TestParseCommand(t *testing.T) {
	_, path := writeSample(t)

	out, stderr, err := runCLI(t, "parse", path, "--stats")
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, stderr)
	}

	var msgs []map[string]any
	if err := json.Unmarshal([]byte(out), &msgs); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, out)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[1]["output"] != "tool call error: exit 2" {
		t.Errorf("merged output = %v", msgs[1]["output"])
	}
	if !strings.Contains(stderr, `"malformed": 1`) {
		t.Errorf("stats missing from stderr:\n%s", stderr)
	}
}

func TestParseCommand_CompactPolicy(t *testing.T) {
	_, path := writeSample(t)

	out, _, err := runCLI(t, "parse", path, "--policy", "compact")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var msgs []map[string]any
	if err := json.Unmarshal([]byte(out), &msgs); err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		if m["type"] == "turn_context" {
			t.Errorf("compact policy kept turn_context: %v", m)
		}
	}
}

func TestParseCommand_MissingFile(t *testing.T) {
	if _, _, err := runCLI(t, "parse", filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Fatal("expected error for missing log")
	}
}

func TestFailuresCommand(t *testing.T) {
	dir, path := writeSample(t)

	out, stderr, err := runCLI(t, "failures", dir)
	if err != nil {
		t.Fatalf("failures: %v\n%s", err, stderr)
	}
	want := path + "\n  shell\n\nFailure counts by function:\n   1  shell\n"
	if out != want {
		t.Errorf("failures output =\n%q\nwant\n%q", out, want)
	}
}

func TestFlagsCommand(t *testing.T) {
	dir, _ := writeSample(t)

	out, _, err := runCLI(t, "flags", dir, "--default", "-static")
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	var r struct {
		TotalCalls int        `json:"total_calls"`
		Unique     [][]string `json:"unique_flag_sets_overall"`
	}
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if r.TotalCalls != 1 || len(r.Unique) != 1 || r.Unique[0][0] != "-O2" {
		t.Errorf("flag report = %+v", r)
	}
}

func TestExportAndExportsCommands(t *testing.T) {
	dir, path := writeSample(t)
	db := filepath.Join(t.TempDir(), "sub", "export.db")

	out, stderr, err := runCLI(t, "export", dir, "--db", db)
	if err != nil {
		t.Fatalf("export: %v\n%s", err, stderr)
	}
	fields := strings.Split(strings.TrimSpace(out), "\t")
	if len(fields) != 3 || fields[1] != "4" || fields[2] != path {
		t.Errorf("export output = %q", out)
	}

	out, _, err = runCLI(t, "exports", "--db", db, "--json")
	if err != nil {
		t.Fatalf("exports: %v", err)
	}
	var exports []map[string]any
	if err := json.Unmarshal([]byte(out), &exports); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(exports) != 1 || exports[0]["id"] != fields[0] {
		t.Errorf("exports = %v, want id %s", exports, fields[0])
	}

	out, _, err = runCLI(t, "exports", "--db", db)
	if err != nil {
		t.Fatalf("exports: %v", err)
	}
	if !strings.Contains(out, fields[0]) || !strings.Contains(out, path) {
		t.Errorf("exports table missing export:\n%s", out)
	}
}

func TestBadLogLevel(t *testing.T) {
	_, path := writeSample(t)
	if _, _, err := runCLI(t, "--log-level", "loud", "parse", path); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestScanCommandsFailWhenNothingParses(t *testing.T) {
	dir := t.TempDir()
	if err := os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "x.jsonl")); err != nil {
		t.Skipf("symlink: %v", err)
	}
	db := filepath.Join(t.TempDir(), "export.db")

	for _, args := range [][]string{
		{"failures", dir},
		{"flags", dir},
		{"export", dir, "--db", db},
	} {
		if _, _, err := runCLI(t, args...); err == nil {
			t.Errorf("%s: expected error when no log could be parsed", args[0])
		}
	}
}

func TestScanCommandsToleratePartialFailure(t *testing.T) {
	dir, _ := writeSample(t)
	if err := os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "x.jsonl")); err != nil {
		t.Skipf("symlink: %v", err)
	}
	db := filepath.Join(t.TempDir(), "export.db")

	for _, args := range [][]string{
		{"failures", dir},
		{"flags", dir},
		{"export", dir, "--db", db},
	} {
		if _, stderr, err := runCLI(t, args...); err != nil {
			t.Errorf("%s: %v\n%s", args[0], err, stderr)
		}
	}
}

func TestScanCommandsEmptyDirectory(t *testing.T) {
	out, _, err := runCLI(t, "failures", t.TempDir())
	if err != nil {
		t.Fatalf("failures: %v", err)
	}
	if out != "No failed function calls found.\n" {
		t.Errorf("output = %q", out)
	}
}
