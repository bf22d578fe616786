package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// RunMetrics collects statistics for one demo or query run. A nil *RunMetrics
// is valid and records nothing.
type RunMetrics struct {
	mu sync.Mutex

	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at,omitempty"`
	Duration   time.Duration      `json:"duration_ms,omitempty"`
	Backend    string             `json:"backend"`
	Address    string             `json:"address"`
	Collection string             `json:"collection,omitempty"`
	Documents  int                `json:"documents_added"`
	Queries    int                `json:"queries"`
	Operations []OperationMetrics `json:"operations"`
	Errors     []string           `json:"errors,omitempty"`
}

// OperationMetrics is a single remote operation, including its retries.
type OperationMetrics struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
}

// New starts tracking a run.
func New() *RunMetrics {
	return &RunMetrics{StartedAt: time.Now()}
}

// Record adds one operation. attempts below 1 are stored as 1.
func (m *RunMetrics) Record(name string, d time.Duration, attempts int, err error) {
	if m == nil {
		return
	}
	if attempts < 1 {
		attempts = 1
	}
	op := OperationMetrics{Name: name, Duration: d, Attempts: attempts}
	if err != nil {
		op.Error = err.Error()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Operations = append(m.Operations, op)
}

// AddDocuments counts documents successfully written.
func (m *RunMetrics) AddDocuments(n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.Documents += n
	m.mu.Unlock()
}

// AddQueries counts query texts sent.
func (m *RunMetrics) AddQueries(n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.Queries += n
	m.mu.Unlock()
}

// Retries returns the number of attempts beyond the first, across all operations.
func (m *RunMetrics) Retries() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, op := range m.Operations {
		n += op.Attempts - 1
	}
	return n
}

// Failed returns the number of operations that ended in an error.
func (m *RunMetrics) Failed() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, op := range m.Operations {
		if op.Error != "" {
			n++
		}
	}
	return n
}

// Finish marks the run as complete.
func (m *RunMetrics) Finish(errs []string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
	m.Errors = errs
}

// PrintSummary writes a human-readable summary.
func (m *RunMetrics) PrintSummary(w io.Writer) {
	retries, failed := m.Retries(), m.Failed()

	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║          VECTOR DB RUN REPORT        ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Backend:     %-23s║\n", m.Backend)
	fmt.Fprintf(w, "║ Address:     %-23s║\n", m.Address)
	fmt.Fprintf(w, "║ Collection:  %-23s║\n", m.Collection)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║   Documents:   %d\n", m.Documents)
	fmt.Fprintf(w, "║   Queries:     %d\n", m.Queries)
	fmt.Fprintf(w, "║   Retries:     %d\n", retries)
	fmt.Fprintf(w, "║   Failed ops:  %d\n", failed)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ OPERATIONS\n")
	for _, op := range m.Operations {
		status := "OK"
		if op.Error != "" {
			status = "FAILED"
		}
		fmt.Fprintf(w, "║   %-16s %8s  [%d attempt(s)] %s\n", op.Name, op.Duration.Round(time.Millisecond), op.Attempts, status)
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *RunMetrics) JSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.MarshalIndent(m, "", "  ")
}
