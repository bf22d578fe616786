// Package chroma implements the vector interfaces on top of the Chroma HTTP API.
package chroma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	chhttp "github.com/amikos-tech/chroma-go/pkg/commons/http"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	defaultef "github.com/amikos-tech/chroma-go/pkg/embeddings/default_ef"

	"github.com/efebarandurmaz/chromademo/internal/vector"
)

// DefaultPort is the port the Chroma server listens on by default.
const DefaultPort = 8000

// includeDistances asks the server for match distances; chroma-go has no
// constant for it.
const includeDistances chroma.Include = "distances"

// Dialer opens HTTP clients to a Chroma server.
type Dialer struct {
	host     string
	port     int
	timeout  time.Duration
	embedder vector.Embedder
}

// NewDialer creates a Chroma dialer. Without an embedder, texts are embedded
// by the client library's default embedding function.
func NewDialer(cfg vector.DialConfig) (*Dialer, error) {
	if cfg.Host == "" {
		return nil, errors.New("chroma host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	return &Dialer{
		host:     cfg.Host,
		port:     port,
		timeout:  cfg.Timeout,
		embedder: cfg.Embedder,
	}, nil
}

// Address returns the base URL of the server.
func (d *Dialer) Address() string {
	return BaseURL(d.host, d.port)
}

// BaseURL builds the server URL from host and port. Hosts that already carry
// a scheme are kept as is.
func BaseURL(host string, port int) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return fmt.Sprintf("%s:%d", strings.TrimSuffix(host, "/"), port)
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func (d *Dialer) Dial(ctx context.Context) (vector.Client, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(d.Address()))
	if err != nil {
		return nil, fmt.Errorf("chroma client: %w", err)
	}
	c := &Client{
		api:      client,
		timeout:  d.timeout,
		embedder: d.embedder,
	}
	if d.embedder != nil {
		c.ef = EmbeddingFunction(d.embedder)
	}
	return c, nil
}

// Client implements vector.Client using chroma-go.
type Client struct {
	api      chroma.Client
	timeout  time.Duration
	embedder vector.Embedder

	ef      embeddings.EmbeddingFunction
	closeEF func() error
}

// embeddingFunction returns the function chroma-go uses for texts sent
// without vectors. Without an embedder the library's ONNX model is loaded
// once per client.
func (c *Client) embeddingFunction() (embeddings.EmbeddingFunction, error) {
	if c.ef != nil {
		return c.ef, nil
	}
	ef, closeEF, err := defaultef.NewDefaultEmbeddingFunction()
	if err != nil {
		return nil, fmt.Errorf("default embedding function: %w", err)
	}
	c.ef, c.closeEF = ef, closeEF
	return ef, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) Heartbeat(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.api.Heartbeat(ctx)
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cols, err := c.api.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name()
	}
	return names, nil
}

func (c *Client) GetOrCreateCollection(ctx context.Context, name string, metadata vector.Metadata) (vector.Collection, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ef, err := c.embeddingFunction()
	if err != nil {
		return nil, err
	}
	opts := []chroma.CreateCollectionOption{chroma.WithEmbeddingFunctionCreate(ef)}
	if len(metadata) > 0 {
		attrs, err := attributes(metadata)
		if err != nil {
			return nil, fmt.Errorf("collection metadata: %w", err)
		}
		opts = append(opts, chroma.WithCollectionMetadataCreate(chroma.NewMetadata(attrs...)))
	}

	col, err := c.api.GetOrCreateCollection(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	return &Collection{client: c, col: col}, nil
}

func (c *Client) GetCollection(ctx context.Context, name string) (vector.Collection, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	ef, err := c.embeddingFunction()
	if err != nil {
		return nil, err
	}
	col, err := c.api.GetCollection(ctx, name, chroma.WithEmbeddingFunctionGet(ef))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %v", vector.ErrCollectionNotFound, name, err)
		}
		return nil, err
	}
	return &Collection{client: c, col: col}, nil
}

func isNotFound(err error) bool {
	var chErr *chhttp.ChromaError
	if errors.As(err, &chErr) && chErr.ErrorCode == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "notfounderror")
}

func (c *Client) Close() error {
	err := c.api.Close()
	if c.closeEF != nil {
		if cerr := c.closeEF(); cerr != nil && err == nil {
			err = cerr
		}
		c.closeEF = nil
	}
	return err
}

// Collection implements vector.Collection for one Chroma collection.
type Collection struct {
	client *Client
	col    chroma.Collection
}

func (col *Collection) Name() string { return col.col.Name() }

func (col *Collection) Add(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := col.client.withTimeout(ctx)
	defer cancel()

	if col.client.embedder != nil {
		if err := vector.EnsureEmbeddings(ctx, col.client.embedder, records); err != nil {
			return err
		}
	}

	ids := make([]chroma.DocumentID, len(records))
	texts := make([]string, len(records))
	metadatas := make([]chroma.DocumentMetadata, len(records))
	var (
		embs        []embeddings.Embedding
		hasMetadata bool
	)
	for i, r := range records {
		ids[i] = chroma.DocumentID(r.ID)
		texts[i] = r.Text

		attrs, err := attributes(r.Metadata)
		if err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
		if len(attrs) > 0 {
			hasMetadata = true
		}
		metadatas[i] = chroma.NewDocumentMetadata(attrs...)

		if len(r.Embedding) > 0 {
			embs = append(embs, embeddings.NewEmbeddingFromFloat32(r.Embedding))
		}
	}
	if len(embs) > 0 && len(embs) != len(records) {
		return fmt.Errorf("embeddings given for %d of %d records", len(embs), len(records))
	}

	opts := []chroma.CollectionAddOption{
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
	}
	if hasMetadata {
		opts = append(opts, chroma.WithMetadatas(metadatas...))
	}
	if len(embs) > 0 {
		opts = append(opts, chroma.WithEmbeddings(embs...))
	}
	return col.col.Add(ctx, opts...)
}

func (col *Collection) Query(ctx context.Context, q vector.Query) (vector.QueryResult, error) {
	ctx, cancel := col.client.withTimeout(ctx)
	defer cancel()

	opts := []chroma.CollectionQueryOption{
		chroma.WithNResults(q.NResults),
		chroma.WithIncludeQuery(chroma.IncludeDocuments, chroma.IncludeMetadatas, includeDistances),
	}

	vectors, err := vector.EmbedQuery(ctx, col.client.embedder, q)
	if err != nil {
		return vector.QueryResult{}, err
	}
	if len(vectors) > 0 {
		embs := make([]embeddings.Embedding, len(vectors))
		for i, v := range vectors {
			embs[i] = embeddings.NewEmbeddingFromFloat32(v)
		}
		opts = append(opts, chroma.WithQueryEmbeddings(embs...))
	} else {
		opts = append(opts, chroma.WithQueryTexts(q.Texts...))
	}

	if len(q.Where) > 0 {
		where, err := buildWhere(q.Where)
		if err != nil {
			return vector.QueryResult{}, err
		}
		opts = append(opts, chroma.WithWhereQuery(where))
	}
	if q.WhereDocument != nil && q.WhereDocument.Contains != "" {
		opts = append(opts, chroma.WithWhereDocumentQuery(chroma.Contains(q.WhereDocument.Contains)))
	}

	qr, err := col.col.Query(ctx, opts...)
	if err != nil {
		return vector.QueryResult{}, err
	}

	idGroups := qr.GetIDGroups()
	docGroups := regroupDocuments(qr.GetDocumentsGroups(), idGroups)
	metaGroups := qr.GetMetadatasGroups()
	distGroups := qr.GetDistancesGroups()

	result := vector.QueryResult{Groups: make([][]vector.Match, len(idGroups))}
	for g, ids := range idGroups {
		matches := make([]vector.Match, len(ids))
		for i, id := range ids {
			m := vector.Match{ID: string(id)}
			if g < len(docGroups) && i < len(docGroups[g]) && docGroups[g][i] != nil {
				m.Document = docGroups[g][i].ContentString()
			}
			if g < len(metaGroups) && i < len(metaGroups[g]) {
				m.Metadata = decodeMetadata(metaGroups[g][i])
			}
			if g < len(distGroups) && i < len(distGroups[g]) {
				m.Distance = float64(distGroups[g][i])
			}
			matches[i] = m
		}
		result.Groups[g] = matches
	}
	return result, nil
}

// regroupDocuments splits documents back into one group per query. chroma-go
// v0.2.5 decodes every document group of a multi-query result into one list.
func regroupDocuments(docs []chroma.Documents, ids []chroma.DocumentIDs) []chroma.Documents {
	if len(docs) != 1 || len(ids) < 2 {
		return docs
	}
	flat := docs[0]
	out := make([]chroma.Documents, len(ids))
	offset := 0
	for g, group := range ids {
		end := offset + len(group)
		if end > len(flat) {
			end = len(flat)
		}
		if offset < end {
			out[g] = flat[offset:end]
		}
		offset = end
	}
	return out
}

func (col *Collection) Count(ctx context.Context) (int, error) {
	ctx, cancel := col.client.withTimeout(ctx)
	defer cancel()
	return col.col.Count(ctx)
}

func (col *Collection) Peek(ctx context.Context, limit int) ([]vector.Record, error) {
	ctx, cancel := col.client.withTimeout(ctx)
	defer cancel()
	res, err := col.col.Get(ctx,
		chroma.WithLimitGet(limit),
		chroma.WithIncludeGet(chroma.IncludeDocuments, chroma.IncludeMetadatas),
	)
	if err != nil {
		return nil, err
	}

	ids := res.GetIDs()
	docs := res.GetDocuments()
	metas := res.GetMetadatas()
	records := make([]vector.Record, len(ids))
	for i, id := range ids {
		r := vector.Record{ID: string(id)}
		if i < len(docs) && docs[i] != nil {
			r.Text = docs[i].ContentString()
		}
		if i < len(metas) {
			r.Metadata = decodeMetadata(metas[i])
		}
		records[i] = r
	}
	return records, nil
}

// attributes converts metadata into chroma attributes in key order.
func attributes(m vector.Metadata) ([]*chroma.MetaAttribute, error) {
	attrs := make([]*chroma.MetaAttribute, 0, len(m))
	for _, k := range m.Keys() {
		switch v := m[k].(type) {
		case string:
			attrs = append(attrs, chroma.NewStringAttribute(k, v))
		case int:
			attrs = append(attrs, chroma.NewIntAttribute(k, int64(v)))
		case int64:
			attrs = append(attrs, chroma.NewIntAttribute(k, v))
		case float64:
			attrs = append(attrs, chroma.NewFloatAttribute(k, v))
		case bool:
			attrs = append(attrs, chroma.NewBoolAttribute(k, v))
		default:
			return nil, fmt.Errorf("unsupported type for metadata field %q: %T", k, v)
		}
	}
	return attrs, nil
}

// buildWhere converts an equality filter into a chroma where clause. Several
// keys are combined with $and.
func buildWhere(w vector.Where) (chroma.WhereClause, error) {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]chroma.WhereClause, 0, len(keys))
	for _, k := range keys {
		clause, err := eq(k, w[k])
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return chroma.And(clauses...), nil
}

func eq(key string, value any) (chroma.WhereClause, error) {
	switch v := value.(type) {
	case string:
		return chroma.EqString(key, v), nil
	case int:
		return chroma.EqInt(key, v), nil
	case int32:
		return chroma.EqInt(key, int(v)), nil
	case int64:
		return chroma.EqInt(key, int(v)), nil
	case float32:
		return chroma.EqFloat(key, v), nil
	case float64:
		return chroma.EqFloat(key, float32(v)), nil
	case bool:
		return chroma.EqBool(key, v), nil
	default:
		return nil, fmt.Errorf("filter %q: unsupported value type %T", key, value)
	}
}

// decodeMetadata flattens document metadata through its JSON form.
func decodeMetadata(md chroma.DocumentMetadata) vector.Metadata {
	if md == nil {
		return nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return nil
	}
	return DecodeMetadataJSON(data)
}

// DecodeMetadataJSON parses a metadata object. Whole numbers become int64.
func DecodeMetadataJSON(data []byte) vector.Metadata {
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil
	}
	out := make(vector.Metadata, len(raw))
	for k, v := range raw {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				out[k] = i
				continue
			}
			if f, err := n.Float64(); err == nil {
				out[k] = f
				continue
			}
		}
		out[k] = v
	}
	return out
}

var (
	_ vector.Dialer     = (*Dialer)(nil)
	_ vector.Client     = (*Client)(nil)
	_ vector.Collection = (*Collection)(nil)
)
