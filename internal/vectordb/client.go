// Package vectordb wraps a vector database backend with bounded connection
// retries, periodic reconnects and logging around every remote operation.
package vectordb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/chromademo/internal/metrics"
	"github.com/efebarandurmaz/chromademo/internal/observability"
	"github.com/efebarandurmaz/chromademo/internal/retry"
	"github.com/efebarandurmaz/chromademo/internal/vector"
)

var (
	// ErrConnection is returned when no heartbeat succeeded within the retry budget.
	ErrConnection = errors.New("vector database connection failed")
	// ErrClosed is returned by operations on a closed Client.
	ErrClosed = errors.New("vector database client is closed")
	// ErrInvalidInput is returned for mismatched or empty arguments.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	// DefaultNResults is the number of matches per query text when unset.
	DefaultNResults = 3

	// ReconnectEvery is how many failed get-or-create attempts trigger a reconnect.
	ReconnectEvery = 2

	peekLimit = 3
)

// Options configures a Client.
type Options struct {
	Policy  retry.Policy        // Policy{} uses retry.DefaultPolicy(); MaxAttempts < 1 means one attempt
	Logger  *slog.Logger        // Nil uses slog.Default()
	Metrics *metrics.RunMetrics // Optional
	Backend string              // Backend name for logs and spans
}

// Client is a connected handle to a vector database. It is not safe for
// concurrent use.
type Client struct {
	dialer  vector.Dialer
	policy  retry.Policy
	logger  *slog.Logger
	metrics *metrics.RunMetrics
	name    string

	backend vector.Client
	closed  bool
}

// Connect dials the backend and waits for a successful heartbeat, retrying
// per opts.Policy. On exhaustion the error wraps ErrConnection and the last cause.
func Connect(ctx context.Context, dialer vector.Dialer, opts Options) (*Client, error) {
	if dialer == nil {
		return nil, fmt.Errorf("%w: nil dialer", ErrInvalidInput)
	}
	if opts.Policy.IsZero() {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		dialer:  dialer,
		policy:  opts.Policy,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		name:    opts.Backend,
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Address returns the backend address this client dials.
func (c *Client) Address() string {
	return c.dialer.Address()
}

func (c *Client) connect(ctx context.Context) error {
	addr := c.dialer.Address()
	ctx, span := observability.StartConnectSpan(ctx, c.name, addr)
	defer span.End()

	start := time.Now()
	attempts := 0
	var backend vector.Client

	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		b, err := c.dialer.Dial(ctx)
		if err != nil {
			c.logger.Warn("connection attempt failed",
				"address", addr, "attempt", attempt, "max_attempts", c.policy.Attempts(), "error", err)
			return err
		}
		if err := b.Heartbeat(ctx); err != nil {
			_ = b.Close()
			c.logger.Warn("heartbeat failed",
				"address", addr, "attempt", attempt, "max_attempts", c.policy.Attempts(), "error", err)
			return err
		}
		backend = b
		return nil
	})

	observability.RecordAttempts(span, attempts)
	c.metrics.Record("connect", time.Since(start), attempts, err)

	if err != nil {
		observability.RecordError(span, err)
		c.logger.Error("could not connect to vector database", "address", addr, "attempts", attempts, "error", err)
		return fmt.Errorf("%w: could not connect to %s after %d attempts: %w", ErrConnection, addr, attempts, err)
	}

	if c.backend != nil {
		_ = c.backend.Close()
	}
	c.backend = backend
	c.logger.Info("connected to vector database", "address", addr, "attempts", attempts)
	return nil
}

func (c *Client) check() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Heartbeat pings the backend once.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.backend.Heartbeat(ctx)
}

// GetOrCreateCollection returns the named collection, creating it when absent.
// Every ReconnectEvery failed attempts the connection is re-established
// before trying again. A failed reconnect aborts the operation.
func (c *Client) GetOrCreateCollection(ctx context.Context, name string, md vector.Metadata) (vector.Collection, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	ctx, span := observability.StartVectorSpan(ctx, "get_or_create", name)
	defer span.End()

	start := time.Now()
	attempts := 0
	var coll vector.Collection

	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		col, err := c.backend.GetOrCreateCollection(ctx, name, md)
		if err != nil {
			c.logger.Warn("get or create collection failed",
				"collection", name, "attempt", attempt, "max_attempts", c.policy.Attempts(), "error", err)
			return err
		}
		coll = col
		return nil
	}, c.reconnectHook)

	observability.RecordAttempts(span, attempts)
	c.metrics.Record("get_or_create", time.Since(start), attempts, err)

	if err != nil {
		observability.RecordError(span, err)
		c.logger.Error("could not get or create collection", "collection", name, "attempts", attempts, "error", err)
		return nil, fmt.Errorf("get or create collection %q: %w", name, err)
	}
	return coll, nil
}

func (c *Client) reconnectHook(ctx context.Context, attempt int, _ error) error {
	if attempt%ReconnectEvery != 0 {
		return nil
	}
	c.logger.Info("reconnecting to vector database", "address", c.dialer.Address(), "after_attempt", attempt)
	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// GenerateIDs returns n unique random UUID strings.
func GenerateIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return ids
}

// AddDocuments writes texts to the named collection, creating it if needed.
// metadatas, ids and embeddings may each be nil or must match len(texts).
// Nil ids are replaced by generated UUIDs. The ids used are returned.
func (c *Client) AddDocuments(ctx context.Context, collection string, texts []string, metadatas []vector.Metadata, ids []string, embeddings [][]float32) ([]string, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if err := validateDocuments(texts, metadatas, ids, embeddings); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = GenerateIDs(len(texts))
	}

	coll, err := c.GetOrCreateCollection(ctx, collection, nil)
	if err != nil {
		return nil, err
	}

	records := make([]vector.Record, len(texts))
	for i, text := range texts {
		records[i] = vector.Record{ID: ids[i], Text: text}
		if metadatas != nil {
			records[i].Metadata = metadatas[i]
		}
		if embeddings != nil {
			records[i].Embedding = embeddings[i]
		}
	}

	ctx, span := observability.StartVectorSpan(ctx, "add", collection)
	defer span.End()

	start := time.Now()
	err = coll.Add(ctx, records)
	c.metrics.Record("add", time.Since(start), 1, err)
	if err != nil {
		observability.RecordError(span, err)
		c.logger.Error("error adding documents", "collection", collection, "count", len(records), "error", err)
		return nil, fmt.Errorf("add documents to %q: %w", collection, err)
	}

	c.metrics.AddDocuments(len(records))
	c.logger.Info("added documents", "collection", collection, "count", len(records))
	return ids, nil
}

func validateDocuments(texts []string, metadatas []vector.Metadata, ids []string, embeddings [][]float32) error {
	n := len(texts)
	if n == 0 {
		return fmt.Errorf("%w: no documents", ErrInvalidInput)
	}
	if metadatas != nil && len(metadatas) != n {
		return fmt.Errorf("%w: %d metadatas for %d documents", ErrInvalidInput, len(metadatas), n)
	}
	if embeddings != nil && len(embeddings) != n {
		return fmt.Errorf("%w: %d embeddings for %d documents", ErrInvalidInput, len(embeddings), n)
	}
	if ids == nil {
		return nil
	}
	if len(ids) != n {
		return fmt.Errorf("%w: %d ids for %d documents", ErrInvalidInput, len(ids), n)
	}
	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty id", ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Texts is a batch of query strings.
type Texts []string

// Text wraps a single query string into a one-element batch.
func Text(s string) Texts {
	return Texts{s}
}

// QueryRequest describes a similarity query.
type QueryRequest struct {
	Texts         Texts
	NResults      int // 0 means DefaultNResults
	Where         vector.Where
	WhereDocument *vector.WhereDocument
}

// Query runs a similarity search with one result group per query text.
// A filter matching nothing returns empty groups, not an error.
func (c *Client) Query(ctx context.Context, collection string, req QueryRequest) (vector.QueryResult, error) {
	if err := c.check(); err != nil {
		return vector.QueryResult{}, err
	}
	if len(req.Texts) == 0 {
		return vector.QueryResult{}, fmt.Errorf("%w: no query texts", ErrInvalidInput)
	}
	n := req.NResults
	if n <= 0 {
		n = DefaultNResults
	}

	coll, err := c.GetOrCreateCollection(ctx, collection, nil)
	if err != nil {
		return vector.QueryResult{}, err
	}

	ctx, span := observability.StartVectorSpan(ctx, "query", collection)
	defer span.End()

	start := time.Now()
	res, err := coll.Query(ctx, vector.Query{
		Texts:         []string(req.Texts),
		NResults:      n,
		Where:         req.Where,
		WhereDocument: req.WhereDocument,
	})
	c.metrics.Record("query", time.Since(start), 1, err)
	if err != nil {
		observability.RecordError(span, err)
		c.logger.Error("error querying collection", "collection", collection, "queries", len(req.Texts), "error", err)
		return vector.QueryResult{}, fmt.Errorf("query %q: %w", collection, err)
	}

	matches := 0
	for _, g := range res.Groups {
		matches += len(g)
	}
	observability.RecordQueryResult(span, len(req.Texts), n, matches)
	c.metrics.AddQueries(len(req.Texts))
	c.logger.Debug("query complete", "collection", collection, "queries", len(req.Texts), "matches", matches)
	return res, nil
}

// ListCollections returns the names of all collections.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	start := time.Now()
	names, err := c.backend.ListCollections(ctx)
	c.metrics.Record("list_collections", time.Since(start), 1, err)
	if err != nil {
		c.logger.Error("error listing collections", "error", err)
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

// CollectionInfo summarises an existing collection.
type CollectionInfo struct {
	Name   string
	Count  int
	Sample []vector.Record
}

// CollectionInfo looks up an existing collection and peeks at its first
// records. Failures are logged and reported as ok == false.
func (c *Client) CollectionInfo(ctx context.Context, name string) (CollectionInfo, bool) {
	if err := c.check(); err != nil {
		c.logger.Error("error getting collection info", "collection", name, "error", err)
		return CollectionInfo{}, false
	}
	ctx, span := observability.StartVectorSpan(ctx, "info", name)
	defer span.End()

	info, err := c.collectionInfo(ctx, name)
	if err != nil {
		observability.RecordError(span, err)
		c.logger.Error("error getting collection info", "collection", name, "error", err)
		return CollectionInfo{}, false
	}
	return info, true
}

func (c *Client) collectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	coll, err := c.backend.GetCollection(ctx, name)
	if err != nil {
		return CollectionInfo{}, err
	}
	count, err := coll.Count(ctx)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("count: %w", err)
	}
	sample, err := coll.Peek(ctx, peekLimit)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("peek: %w", err)
	}
	return CollectionInfo{Name: name, Count: count, Sample: sample}, nil
}

// Close releases the backend connection. Further calls return ErrClosed;
// closing twice is a no-op.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.backend == nil {
		return nil
	}
	return c.backend.Close()
}
