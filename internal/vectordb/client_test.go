package vectordb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/chromademo/internal/metrics"
	"github.com/efebarandurmaz/chromademo/internal/retry"
	"github.com/efebarandurmaz/chromademo/internal/vector"
	"github.com/efebarandurmaz/chromademo/internal/vector/vectortest"
)

var errUnavailable = errors.New("service unavailable")

func errs(n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = errUnavailable
	}
	return out
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testOptions(rec *sleepRecorder) Options {
	p := retry.Fixed(5, 2*time.Second)
	p.Sleep = rec.sleep
	return Options{
		Policy:  p,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Backend: "memory",
	}
}

func mustConnect(t *testing.T, s *vectortest.Server) *Client {
	t.Helper()
	c, err := Connect(context.Background(), s, testOptions(&sleepRecorder{}))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return c
}

func TestConnect_ExhaustsAttempts(t *testing.T) {
	s := vectortest.NewServer()
	s.DialErrs = errs(10)
	rec := &sleepRecorder{}

	_, err := Connect(context.Background(), s, testOptions(rec))
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !errors.Is(err, ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
	if !errors.Is(err, errUnavailable) {
		t.Errorf("expected last cause to be wrapped, got %v", err)
	}
	if s.Dials != 5 {
		t.Errorf("expected exactly 5 dial attempts, got %d", s.Dials)
	}
	if len(rec.delays) != 4 {
		t.Fatalf("expected 4 sleeps, got %d", len(rec.delays))
	}
	for _, d := range rec.delays {
		if d != 2*time.Second {
			t.Errorf("expected 2s delay, got %v", d)
		}
	}
}

func TestConnect_HeartbeatRetry(t *testing.T) {
	s := vectortest.NewServer()
	s.HeartbeatErrs = errs(2)

	c := mustConnect(t, s)
	defer c.Close()

	if s.Dials != 3 {
		t.Errorf("expected 3 dials, got %d", s.Dials)
	}
	if s.Closes != 2 {
		t.Errorf("expected the 2 unhealthy connections to be closed, got %d", s.Closes)
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	s := vectortest.NewServer()
	s.DialErrs = errs(10)
	ctx, cancel := context.WithCancel(context.Background())

	opts := testOptions(&sleepRecorder{})
	opts.Policy.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := Connect(ctx, s, opts)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.Dials != 1 {
		t.Errorf("expected 1 dial before cancel, got %d", s.Dials)
	}
}

func TestConnect_ZeroAttemptsTriesOnce(t *testing.T) {
	s := vectortest.NewServer()
	s.DialErrs = errs(10)
	rec := &sleepRecorder{}

	opts := testOptions(rec)
	opts.Policy = retry.Fixed(0, 10*time.Millisecond)
	opts.Policy.Sleep = rec.sleep

	_, err := Connect(context.Background(), s, opts)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if s.Dials != 1 {
		t.Errorf("expected a single dial, got %d", s.Dials)
	}
	if len(rec.delays) != 0 {
		t.Errorf("expected no sleeps, got %v", rec.delays)
	}
}

func TestConnect_UnsetPolicyUsesDefault(t *testing.T) {
	s := vectortest.NewServer()
	s.DialErrs = errs(1)

	opts := testOptions(&sleepRecorder{})
	opts.Policy = retry.Policy{}

	start := time.Now()
	c, err := Connect(context.Background(), s, opts)
	if err != nil {
		t.Fatalf("expected the default policy to retry, got %v", err)
	}
	defer c.Close()
	if s.Dials != 2 {
		t.Errorf("expected 2 dials, got %d", s.Dials)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Errorf("expected the default 2s delay, waited %v", elapsed)
	}
}

func TestConnect_NilDialer(t *testing.T) {
	if _, err := Connect(context.Background(), nil, Options{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGetOrCreateCollection_ReconnectsEverySecondFailure(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()

	s.GetOrCreateErrs = errs(4)
	coll, err := c.GetOrCreateCollection(context.Background(), "sample_collection", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coll.Name() != "sample_collection" {
		t.Errorf("unexpected collection %q", coll.Name())
	}
	if s.GetOrCreates != 5 {
		t.Errorf("expected 5 attempts, got %d", s.GetOrCreates)
	}
	// initial connect + reconnect after attempts 2 and 4
	if s.Dials != 3 {
		t.Errorf("expected 3 dials, got %d", s.Dials)
	}
	if s.Closes != 2 {
		t.Errorf("expected replaced connections to be closed, got %d", s.Closes)
	}
}

func TestGetOrCreateCollection_Exhausted(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()

	s.GetOrCreateErrs = errs(5)
	_, err := c.GetOrCreateCollection(context.Background(), "sample_collection", nil)
	if !errors.Is(err, errUnavailable) {
		t.Fatalf("expected last remote error, got %v", err)
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 5 {
		t.Errorf("expected ExhaustedError with 5 attempts, got %v", err)
	}
	if s.Dials != 3 {
		t.Errorf("expected no reconnect after the final attempt, got %d dials", s.Dials)
	}
}

func TestGetOrCreateCollection_ReconnectFailureAborts(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()

	s.GetOrCreateErrs = errs(2)
	s.DialErrs = errs(5)

	_, err := c.GetOrCreateCollection(context.Background(), "sample_collection", nil)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if s.GetOrCreates != 2 {
		t.Errorf("expected operation to stop after 2 attempts, got %d", s.GetOrCreates)
	}
}

func TestAddDocuments_GeneratesUniqueIDs(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()

	texts := []string{"a", "b", "c", "d", "e"}
	ids, err := c.AddDocuments(context.Background(), "docs", texts, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != len(texts) {
		t.Fatalf("expected %d ids, got %d", len(texts), len(ids))
	}
	seen := map[string]bool{}
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			t.Fatalf("id %q is not a UUID: %v", id, err)
		}
		if u.Version() != 4 {
			t.Errorf("expected UUIDv4, got version %d", u.Version())
		}
		if seen[id] {
			t.Errorf("duplicate id %s", id)
		}
		seen[id] = true
	}

	stored := s.Collection("docs").Records()
	if len(stored) != len(texts) {
		t.Errorf("expected %d stored records, got %d", len(texts), len(stored))
	}
}

func TestAddDocuments_KeepsCallerData(t *testing.T) {
	s := vectortest.NewServer()
	m := metrics.New()
	opts := testOptions(&sleepRecorder{})
	opts.Metrics = m
	c, err := Connect(context.Background(), s, opts)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	_, err = c.AddDocuments(context.Background(), "docs",
		[]string{"one", "two"},
		[]vector.Metadata{{"source": "Space"}, {"source": "Movies"}},
		[]string{"doc_1", "doc_2"},
		[][]float32{{1, 0}, {0, 1}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := s.Collection("docs").Records()
	if stored[1].ID != "doc_2" || stored[1].Metadata["source"] != "Movies" || stored[1].Embedding[1] != 1 {
		t.Errorf("unexpected stored record: %+v", stored[1])
	}
	if m.Documents != 2 {
		t.Errorf("expected metrics to count 2 documents, got %d", m.Documents)
	}
}

func TestAddDocuments_InvalidInput(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()
	ctx := context.Background()

	tests := []struct {
		name      string
		texts     []string
		metadatas []vector.Metadata
		ids       []string
		embs      [][]float32
	}{
		{"empty", nil, nil, nil, nil},
		{"metadata_len", []string{"a", "b"}, []vector.Metadata{{}}, nil, nil},
		{"ids_len", []string{"a", "b"}, nil, []string{"x"}, nil},
		{"embeddings_len", []string{"a"}, nil, nil, [][]float32{{1}, {2}}},
		{"duplicate_ids", []string{"a", "b"}, nil, []string{"x", "x"}, nil},
		{"empty_id", []string{"a"}, nil, []string{""}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AddDocuments(ctx, "docs", tt.texts, tt.metadatas, tt.ids, tt.embs)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if s.GetOrCreates != 0 {
		t.Errorf("invalid input should not reach the backend, got %d calls", s.GetOrCreates)
	}
}

func TestAddDocuments_BackendError(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()

	s.AddErr = errUnavailable
	_, err := c.AddDocuments(context.Background(), "docs", []string{"a"}, nil, nil, nil)
	if !errors.Is(err, errUnavailable) {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestQuery_SingleTextIsBatched(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()
	ctx := context.Background()

	if _, err := c.AddDocuments(ctx, "docs", []string{"space is big", "cats purr"}, nil, nil, nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := c.Query(ctx, "docs", QueryRequest{Texts: Text("space")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Queries) != 1 {
		t.Fatalf("expected 1 backend query, got %d", len(s.Queries))
	}
	q := s.Queries[0]
	if len(q.Texts) != 1 || q.Texts[0] != "space" {
		t.Errorf("expected one-element batch, got %v", q.Texts)
	}
	if q.NResults != DefaultNResults {
		t.Errorf("expected default n_results %d, got %d", DefaultNResults, q.NResults)
	}
	if len(res.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(res.Groups))
	}
	if docs := res.Documents(0); docs[0] != "space is big" {
		t.Errorf("expected best match first, got %v", docs)
	}
}

func TestQuery_Batch(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()
	ctx := context.Background()

	if _, err := c.AddDocuments(ctx, "docs", []string{"a", "b", "c"}, nil, nil, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	res, err := c.Query(ctx, "docs", QueryRequest{Texts: Texts{"x", "y"}, NResults: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Groups) != 2 || len(res.Group(0)) != 2 || len(res.Group(1)) != 2 {
		t.Errorf("expected 2 groups of 2, got %+v", res.Groups)
	}
}

func TestQuery_FilterMatchesNothing(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()
	ctx := context.Background()

	_, err := c.AddDocuments(ctx, "docs", []string{"a"}, []vector.Metadata{{"source": "Space"}}, nil, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := c.Query(ctx, "docs", QueryRequest{
		Texts: Text("anything"),
		Where: vector.Where{"source": "Nonexistent"},
	})
	if err != nil {
		t.Fatalf("empty result should not be an error: %v", err)
	}
	if !res.Empty() {
		t.Errorf("expected empty result, got %+v", res.Groups)
	}
}

func TestQuery_NoTexts(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()

	if _, err := c.Query(context.Background(), "docs", QueryRequest{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQuery_BackendError(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()

	s.QueryErr = errUnavailable
	if _, err := c.Query(context.Background(), "docs", QueryRequest{Texts: Text("x")}); !errors.Is(err, errUnavailable) {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestListCollections(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		if _, err := c.GetOrCreateCollection(ctx, name, nil); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	names, err := c.ListCollections(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "first" {
		t.Errorf("unexpected names %v", names)
	}

	s.ListErr = errUnavailable
	if _, err := c.ListCollections(ctx); !errors.Is(err, errUnavailable) {
		t.Errorf("expected list error, got %v", err)
	}
}

func TestCollectionInfo(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)
	defer c.Close()
	ctx := context.Background()

	if _, ok := c.CollectionInfo(ctx, "missing"); ok {
		t.Error("expected missing collection to report ok=false")
	}

	texts := []string{"1", "2", "3", "4", "5"}
	if _, err := c.AddDocuments(ctx, "docs", texts, nil, nil, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	info, ok := c.CollectionInfo(ctx, "docs")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if info.Name != "docs" || info.Count != 5 {
		t.Errorf("unexpected info %+v", info)
	}
	if len(info.Sample) != 3 {
		t.Errorf("expected 3 sample records, got %d", len(info.Sample))
	}
}

func TestClose(t *testing.T) {
	s := vectortest.NewServer()
	c := mustConnect(t, s)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	ctx := context.Background()
	if err := c.Heartbeat(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Heartbeat, got %v", err)
	}
	if _, err := c.ListCollections(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from ListCollections, got %v", err)
	}
	if _, err := c.Query(ctx, "docs", QueryRequest{Texts: Text("x")}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Query, got %v", err)
	}
	if _, ok := c.CollectionInfo(ctx, "docs"); ok {
		t.Error("expected CollectionInfo to fail after close")
	}
}

func TestGenerateIDs(t *testing.T) {
	ids := GenerateIDs(100)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}
