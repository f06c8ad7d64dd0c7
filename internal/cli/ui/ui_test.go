package ui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/conduit-lang/taskprovider/internal/provider"
	"github.com/conduit-lang/taskprovider/internal/store"
	"github.com/conduit-lang/taskprovider/internal/uri"
)

func TestFormat(t *testing.T) {
	out := Format(Message{
		Level:   LevelError,
		Context: "unknown uri",
		Problem: "insert: unknown uri: x/y",
		Detail:  "The provider does not route this identifier.",
		Hints:   []string{"Show configured collections: taskprovider config show"},
		NoColor: true,
	})

	for _, want := range []string{
		"x UNKNOWN URI: insert: unknown uri: x/y",
		"   The provider does not route this identifier.",
		"   → Show configured collections",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if strings.Contains(out, "\x1b[") {
		t.Errorf("expected no ANSI codes with NoColor, got %q", out)
	}
}

func TestFormatWithoutContext(t *testing.T) {
	out := Format(Message{Level: LevelWarning, Problem: "redis disabled", NoColor: true})
	if out != "! redis disabled\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSuccess(t *testing.T) {
	var buf bytes.Buffer
	WriteSuccess(&buf, "created tasks/1", true)
	if buf.String() != "✓ created tasks/1\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestDispatchError(t *testing.T) {
	id := uri.New("a", "b")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unrecognized", &provider.UnrecognizedIdentifierError{Op: "insert", URI: id}, "UNKNOWN URI"},
		{"not initialized", fmt.Errorf("query: %w", provider.ErrNotInitialized), "STORE UNAVAILABLE"},
		{"not implemented", &provider.NotImplementedError{Op: "query"}, "NOT SUPPORTED"},
		{"constraint", &provider.WriteFailedError{Op: "insert", URI: id, Err: store.ErrNotNullViolation}, "CONSTRAINT VIOLATION"},
		{"invalid input", fmt.Errorf("query: %w", store.ErrFieldNotFound), "INVALID INPUT"},
		{"write failed", &provider.WriteFailedError{Op: "insert", URI: id}, "WRITE FAILED"},
		{"other", errors.New("boom"), "ERROR: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := DispatchError(tt.err, true)
			if !strings.Contains(out, tt.want) {
				t.Errorf("expected %q in:\n%s", tt.want, out)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	out := ConfigError(errors.New("authority cannot be empty"), true)
	if !strings.Contains(out, "CONFIGURATION ERROR: authority cannot be empty") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"_id", "description"}, true)
	table.AddRow("1", "buy milk")
	table.AddRow("10")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "_id  description" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "───  ───────────" {
		t.Errorf("unexpected separator %q", lines[1])
	}
	if lines[2] != "1    buy milk" {
		t.Errorf("unexpected row %q", lines[2])
	}
	if lines[3] != "10" {
		t.Errorf("unexpected short row %q", lines[3])
	}
}

func TestTableEmptyHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, nil, true).Render()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestRowColumns(t *testing.T) {
	rows := []contract.Row{
		{"priority": int64(1), "_id": int64(1)},
		{"description": "x", "_id": int64(2)},
	}
	got := strings.Join(RowColumns(rows), ",")
	if got != "_id,description,priority" {
		t.Errorf("unexpected columns %q", got)
	}

	got = strings.Join(RowColumns([]contract.Row{{"b": 1, "a": 2}}), ",")
	if got != "a,b" {
		t.Errorf("unexpected columns without key %q", got)
	}
}

func TestRenderRows(t *testing.T) {
	var buf bytes.Buffer
	RenderRows(&buf, []contract.Row{
		{"_id": int64(1), "description": "buy milk", "priority": nil},
	}, true)

	out := buf.String()
	if !strings.Contains(out, "_id  description  priority") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "1    buy milk\n") {
		t.Errorf("NULL should render empty:\n%s", out)
	}

	buf.Reset()
	RenderRows(&buf, nil, true)
	if buf.String() != "(no rows)\n" {
		t.Errorf("unexpected empty output %q", buf.String())
	}
}

func TestKeyValues(t *testing.T) {
	var buf bytes.Buffer
	KeyValues(&buf, [][2]string{{"uri", "a/tasks"}, {"type", "vnd.a.dir/tasks"}}, true)

	want := "uri:  a/tasks\ntype: vnd.a.dir/tasks\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
