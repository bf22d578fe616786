package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRecord(t *testing.T) {
	m := New()
	m.Record("connect", 10*time.Millisecond, 3, nil)
	m.Record("query", 5*time.Millisecond, 0, errors.New("boom"))

	if len(m.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(m.Operations))
	}
	if m.Operations[1].Attempts != 1 {
		t.Errorf("expected attempts clamped to 1, got %d", m.Operations[1].Attempts)
	}
	if m.Retries() != 2 {
		t.Errorf("expected 2 retries, got %d", m.Retries())
	}
	if m.Failed() != 1 {
		t.Errorf("expected 1 failed op, got %d", m.Failed())
	}
}

func TestNilSafe(t *testing.T) {
	var m *RunMetrics
	m.Record("connect", time.Second, 1, nil)
	m.AddDocuments(3)
	m.AddQueries(1)
	m.Finish(nil)
	if m.Retries() != 0 || m.Failed() != 0 {
		t.Error("nil metrics should report zero")
	}
}

func TestPrintSummary(t *testing.T) {
	m := New()
	m.Backend = "chroma"
	m.Address = "http://chroma:8000"
	m.Collection = "sample_collection"
	m.AddDocuments(15)
	m.AddQueries(4)
	m.Record("connect", time.Millisecond, 1, nil)
	m.Record("add", time.Millisecond, 1, errors.New("refused"))
	m.Finish([]string{"add: refused"})

	var buf bytes.Buffer
	m.PrintSummary(&buf)
	out := buf.String()

	for _, want := range []string{"VECTOR DB RUN REPORT", "chroma", "Documents:   15", "Queries:     4", "FAILED", "add: refused"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestJSON(t *testing.T) {
	m := New()
	m.Backend = "qdrant"
	m.Record("query", time.Millisecond, 2, nil)
	m.Finish(nil)

	data, err := m.JSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["backend"] != "qdrant" {
		t.Errorf("expected backend=qdrant, got %v", decoded["backend"])
	}
	ops, ok := decoded["operations"].([]any)
	if !ok || len(ops) != 1 {
		t.Fatalf("expected 1 operation, got %v", decoded["operations"])
	}
}
