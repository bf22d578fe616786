package vector

import (
	"context"
	"errors"
	"sort"
)

// ErrCollectionNotFound is returned by GetCollection when no collection has the name.
var ErrCollectionNotFound = errors.New("collection not found")

// Metadata is the key/value payload attached to a document or collection.
// Values are strings, integers, floats or booleans.
type Metadata map[string]any

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Record is a document stored in a collection.
type Record struct {
	ID        string
	Text      string
	Metadata  Metadata
	Embedding []float32 // Optional; computed by the service or an Embedder when nil
}

// Where restricts results to documents whose metadata equals every given value.
type Where map[string]any

// WhereDocument restricts results to documents whose text contains Contains.
type WhereDocument struct {
	Contains string
}

// Query describes a similarity search over one or more query texts.
type Query struct {
	Texts         []string
	Embeddings    [][]float32 // Optional precomputed query embeddings, one per text
	NResults      int
	Where         Where
	WhereDocument *WhereDocument
}

// Match is one ranked hit for a query text.
type Match struct {
	ID       string
	Document string
	Metadata Metadata
	Distance float64
}

// Similarity converts the distance into a score where higher is more similar.
func (m Match) Similarity() float64 {
	return 1 - m.Distance
}

// QueryResult holds one group of matches per query text, each ordered by
// ascending distance.
type QueryResult struct {
	Groups [][]Match
}

// Group returns the matches for the i-th query text, or nil when out of range.
func (r QueryResult) Group(i int) []Match {
	if i < 0 || i >= len(r.Groups) {
		return nil
	}
	return r.Groups[i]
}

// Documents returns the document texts of the i-th group.
func (r QueryResult) Documents(i int) []string {
	group := r.Group(i)
	docs := make([]string, len(group))
	for j, m := range group {
		docs[j] = m.Document
	}
	return docs
}

// Empty reports whether no group contains a match.
func (r QueryResult) Empty() bool {
	for _, g := range r.Groups {
		if len(g) > 0 {
			return false
		}
	}
	return true
}

// Collection is a named set of documents on the remote service.
type Collection interface {
	// Name returns the collection name.
	Name() string
	// Add stores records. Every record must carry an ID.
	Add(ctx context.Context, records []Record) error
	// Query runs a nearest-neighbour search for each query text.
	Query(ctx context.Context, q Query) (QueryResult, error)
	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
	// Peek returns up to limit stored documents.
	Peek(ctx context.Context, limit int) ([]Record, error)
}

// Client is a connection to a vector database service.
type Client interface {
	// Heartbeat checks that the service is reachable.
	Heartbeat(ctx context.Context) error
	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)
	// GetOrCreateCollection returns the named collection, creating it if needed.
	GetOrCreateCollection(ctx context.Context, name string, metadata Metadata) (Collection, error)
	// GetCollection returns an existing collection or ErrCollectionNotFound.
	GetCollection(ctx context.Context, name string) (Collection, error)
	// Close releases resources.
	Close() error
}

// Dialer opens new Client connections to one service address.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
	// Address identifies the target service in logs and errors.
	Address() string
}
