// Package vectortest provides an in-memory vector backend with failure
// injection for tests.
package vectortest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/efebarandurmaz/chromademo/internal/vector"
)

// ErrConnClosed is returned by a connection after Close.
var ErrConnClosed = errors.New("vectortest: connection closed")

// Server is an in-memory vector service. It implements vector.Dialer; every
// Dial returns a new connection to the same shared state.
//
// The *Errs queues are consumed one entry per call; a nil entry means success.
type Server struct {
	mu sync.Mutex

	names       []string
	collections map[string]*Collection

	DialErrs        []error
	HeartbeatErrs   []error
	GetOrCreateErrs []error
	AddErr          error
	QueryErr        error
	ListErr         error

	Dials        int
	Heartbeats   int
	GetOrCreates int
	Closes       int
	Queries      []vector.Query
}

// NewServer returns an empty server.
func NewServer() *Server {
	return &Server{collections: make(map[string]*Collection)}
}

func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}

// Address implements vector.Dialer.
func (s *Server) Address() string { return "memory://vectortest" }

// Dial implements vector.Dialer.
func (s *Server) Dial(ctx context.Context) (vector.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Dials++
	if err := pop(&s.DialErrs); err != nil {
		return nil, err
	}
	return &conn{s: s}, nil
}

// Collection returns a stored collection or nil.
func (s *Server) Collection(name string) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[name]
}

type conn struct {
	s      *Server
	closed bool
}

func (c *conn) Heartbeat(ctx context.Context) error {
	if c.closed {
		return ErrConnClosed
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.Heartbeats++
	return pop(&c.s.HeartbeatErrs)
}

func (c *conn) ListCollections(ctx context.Context) ([]string, error) {
	if c.closed {
		return nil, ErrConnClosed
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.ListErr != nil {
		return nil, c.s.ListErr
	}
	return append([]string(nil), c.s.names...), nil
}

func (c *conn) GetOrCreateCollection(ctx context.Context, name string, md vector.Metadata) (vector.Collection, error) {
	if c.closed {
		return nil, ErrConnClosed
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.GetOrCreates++
	if err := pop(&c.s.GetOrCreateErrs); err != nil {
		return nil, err
	}
	if coll, ok := c.s.collections[name]; ok {
		return coll, nil
	}
	coll := &Collection{s: c.s, name: name, Metadata: md}
	c.s.collections[name] = coll
	c.s.names = append(c.s.names, name)
	return coll, nil
}

func (c *conn) GetCollection(ctx context.Context, name string) (vector.Collection, error) {
	if c.closed {
		return nil, ErrConnClosed
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	coll, ok := c.s.collections[name]
	if !ok {
		return nil, vector.ErrCollectionNotFound
	}
	return coll, nil
}

func (c *conn) Close() error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.s.Closes++
	}
	return nil
}

// Collection is an in-memory collection. Records keep insertion order and
// re-adding an id replaces the stored record.
type Collection struct {
	s        *Server
	name     string
	Metadata vector.Metadata
	records  []vector.Record
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Add(ctx context.Context, records []vector.Record) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.AddErr != nil {
		return c.s.AddErr
	}
	for _, r := range records {
		if r.ID == "" {
			return errors.New("vectortest: record without id")
		}
		replaced := false
		for i := range c.records {
			if c.records[i].ID == r.ID {
				c.records[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			c.records = append(c.records, r)
		}
	}
	return nil
}

// Records returns a copy of the stored records.
func (c *Collection) Records() []vector.Record {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return append([]vector.Record(nil), c.records...)
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return len(c.records), nil
}

func (c *Collection) Peek(ctx context.Context, limit int) ([]vector.Record, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if limit > len(c.records) {
		limit = len(c.records)
	}
	return append([]vector.Record(nil), c.records[:limit]...), nil
}

// Query ranks documents by how many query words they contain. Distance is
// 1/(1+hits), ties keep insertion order.
func (c *Collection) Query(ctx context.Context, q vector.Query) (vector.QueryResult, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.Queries = append(c.s.Queries, q)
	if c.s.QueryErr != nil {
		return vector.QueryResult{}, c.s.QueryErr
	}

	var candidates []vector.Record
	for _, r := range c.records {
		if matchesWhere(r, q.Where) && matchesDocument(r, q.WhereDocument) {
			candidates = append(candidates, r)
		}
	}

	res := vector.QueryResult{Groups: make([][]vector.Match, len(q.Texts))}
	for i, text := range q.Texts {
		terms := words(text)
		group := make([]vector.Match, 0, len(candidates))
		for _, r := range candidates {
			hits := 0
			doc := words(r.Text)
			for t := range terms {
				if _, ok := doc[t]; ok {
					hits++
				}
			}
			group = append(group, vector.Match{
				ID:       r.ID,
				Document: r.Text,
				Metadata: r.Metadata,
				Distance: 1 / float64(1+hits),
			})
		}
		sort.SliceStable(group, func(a, b int) bool { return group[a].Distance < group[b].Distance })
		if len(group) > q.NResults {
			group = group[:q.NResults]
		}
		res.Groups[i] = group
	}
	return res, nil
}

func matchesWhere(r vector.Record, where vector.Where) bool {
	for k, v := range where {
		if r.Metadata[k] != v {
			return false
		}
	}
	return true
}

func matchesDocument(r vector.Record, wd *vector.WhereDocument) bool {
	return wd == nil || strings.Contains(r.Text, wd.Contains)
}

func words(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[w] = struct{}{}
	}
	return out
}

var (
	_ vector.Dialer     = (*Server)(nil)
	_ vector.Client     = (*conn)(nil)
	_ vector.Collection = (*Collection)(nil)
)
