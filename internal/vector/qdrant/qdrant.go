package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/efebarandurmaz/chromademo/internal/vector"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

const (
	// Payload keys holding the caller's id and the document text.
	payloadID       = "id"
	payloadDocument = "document"
)

// pointNamespace derives stable UUID point ids from arbitrary string ids.
var pointNamespace = uuid.MustParse("6f1c6a7e-2b0f-4c55-9a51-1e7d7c0b9a3e")

// Dialer opens gRPC connections to a Qdrant server.
type Dialer struct {
	host     string
	port     int
	timeout  time.Duration
	embedder vector.Embedder
}

// NewDialer creates a Qdrant dialer. Qdrant stores raw vectors only, so an
// embedder is required.
func NewDialer(cfg vector.DialConfig) (*Dialer, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("qdrant backend requires an embedding provider")
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	return &Dialer{
		host:     cfg.Host,
		port:     port,
		timeout:  cfg.Timeout,
		embedder: cfg.Embedder,
	}, nil
}

func (d *Dialer) Address() string {
	return fmt.Sprintf("%s:%d", d.host, d.port)
}

func (d *Dialer) Dial(ctx context.Context) (vector.Client, error) {
	conn, err := grpc.NewClient(d.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Client{
		conn:        conn,
		service:     pb.NewQdrantClient(conn),
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		timeout:     d.timeout,
		embedder:    d.embedder,
	}, nil
}

// Client implements vector.Client using Qdrant.
type Client struct {
	conn        *grpc.ClientConn
	service     pb.QdrantClient
	collections pb.CollectionsClient
	points      pb.PointsClient
	timeout     time.Duration
	embedder    vector.Embedder
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
	_, err := c.service.HealthCheck(ctx, &pb.HealthCheckRequest{})
	return err
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	resp, err := c.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.GetCollections()))
	for _, col := range resp.GetCollections() {
		names = append(names, col.GetName())
	}
	return names, nil
}

func (c *Client) exists(ctx context.Context, name string) (bool, error) {
	resp, err := c.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, err
	}
	return resp.GetResult().GetExists(), nil
}

func (c *Client) GetCollection(ctx context.Context, name string) (vector.Collection, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	ok, err := c.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
	}
	return c.collection(name), nil
}

// GetOrCreateCollection creates missing collections with cosine distance and
// the embedder's dimension. Qdrant has no collection metadata; it is ignored.
func (c *Client) GetOrCreateCollection(ctx context.Context, name string, _ vector.Metadata) (vector.Collection, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	ok, err := c.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return c.collection(name), nil
	}

	sample, err := c.embedder.Embed(ctx, []string{name})
	if err != nil {
		return nil, fmt.Errorf("detecting embedding dimension: %w", err)
	}
	if len(sample) != 1 || len(sample[0]) == 0 {
		return nil, errors.New("detecting embedding dimension: empty embedding")
	}

	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     uint64(len(sample[0])),
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	return c.collection(name), nil
}

func (c *Client) collection(name string) *Collection {
	return &Collection{client: c, name: name}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Collection implements vector.Collection for one Qdrant collection.
type Collection struct {
	client *Client
	name   string
}

func (col *Collection) Name() string { return col.name }

func (col *Collection) Add(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := col.client.withTimeout(ctx)
	defer cancel()

	if err := vector.EnsureEmbeddings(ctx, col.client.embedder, records); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload, err := toPayload(r)
		if err != nil {
			return err
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Embedding}}},
			Payload: payload,
		}
	}

	_, err := col.client.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: col.name,
		Points:         points,
		Wait:           proto.Bool(true),
	})
	return err
}

func (col *Collection) Query(ctx context.Context, q vector.Query) (vector.QueryResult, error) {
	ctx, cancel := col.client.withTimeout(ctx)
	defer cancel()

	vectors, err := vector.EmbedQuery(ctx, col.client.embedder, q)
	if err != nil {
		return vector.QueryResult{}, err
	}
	filter, err := BuildFilter(q.Where, q.WhereDocument)
	if err != nil {
		return vector.QueryResult{}, err
	}

	result := vector.QueryResult{Groups: make([][]vector.Match, len(vectors))}
	for i, vec := range vectors {
		resp, err := col.client.points.Search(ctx, &pb.SearchPoints{
			CollectionName: col.name,
			Vector:         vec,
			Limit:          uint64(q.NResults),
			Filter:         filter,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return vector.QueryResult{}, err
		}

		matches := make([]vector.Match, 0, len(resp.GetResult()))
		for _, pt := range resp.GetResult() {
			id, doc, meta := fromPayload(pt.GetPayload())
			if id == "" {
				id = pt.GetId().GetUuid()
			}
			matches = append(matches, vector.Match{
				ID:       id,
				Document: doc,
				Metadata: meta,
				Distance: 1 - float64(pt.GetScore()),
			})
		}
		result.Groups[i] = matches
	}
	return result, nil
}

func (col *Collection) Count(ctx context.Context) (int, error) {
	ctx, cancel := col.client.withTimeout(ctx)
	defer cancel()
	resp, err := col.client.points.Count(ctx, &pb.CountPoints{
		CollectionName: col.name,
		Exact:          proto.Bool(true),
	})
	if err != nil {
		return 0, err
	}
	return int(resp.GetResult().GetCount()), nil
}

func (col *Collection) Peek(ctx context.Context, limit int) ([]vector.Record, error) {
	ctx, cancel := col.client.withTimeout(ctx)
	defer cancel()
	resp, err := col.client.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: col.name,
		Limit:          proto.Uint32(uint32(limit)),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}
	records := make([]vector.Record, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		id, doc, meta := fromPayload(pt.GetPayload())
		if id == "" {
			id = pt.GetId().GetUuid()
		}
		records = append(records, vector.Record{ID: id, Text: doc, Metadata: meta})
	}
	return records, nil
}

// PointID maps a caller id to the UUID Qdrant stores it under. UUIDs map to themselves.
func PointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// BuildFilter converts metadata and document predicates into a Qdrant filter.
// It returns nil when there is nothing to filter on.
func BuildFilter(where vector.Where, doc *vector.WhereDocument) (*pb.Filter, error) {
	var must []*pb.Condition

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		match, err := toMatch(where[k])
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", k, err)
		}
		must = append(must, fieldCondition(k, match))
	}
	if doc != nil && doc.Contains != "" {
		must = append(must, fieldCondition(payloadDocument, &pb.Match{MatchValue: &pb.Match_Text{Text: doc.Contains}}))
	}

	if len(must) == 0 {
		return nil, nil
	}
	return &pb.Filter{Must: must}, nil
}

func fieldCondition(key string, match *pb.Match) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Match: match},
		},
	}
}

func toMatch(v any) (*pb.Match, error) {
	switch val := v.(type) {
	case string:
		return &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: val}}, nil
	case int:
		return &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(val)}}, nil
	case int64:
		return &pb.Match{MatchValue: &pb.Match_Integer{Integer: val}}, nil
	case bool:
		return &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: val}}, nil
	default:
		return nil, fmt.Errorf("unsupported match value type %T", v)
	}
}

func toPayload(r vector.Record) (map[string]*pb.Value, error) {
	payload := map[string]*pb.Value{
		payloadID:       {Kind: &pb.Value_StringValue{StringValue: r.ID}},
		payloadDocument: {Kind: &pb.Value_StringValue{StringValue: r.Text}},
	}
	for k, v := range r.Metadata {
		if k == payloadID || k == payloadDocument {
			return nil, fmt.Errorf("metadata key %q is reserved", k)
		}
		switch val := v.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
		default:
			return nil, fmt.Errorf("unsupported type for payload field %q: %T", k, v)
		}
	}
	return payload, nil
}

func fromPayload(payload map[string]*pb.Value) (id, doc string, meta vector.Metadata) {
	meta = vector.Metadata{}
	for k, v := range payload {
		switch k {
		case payloadID:
			id = v.GetStringValue()
			continue
		case payloadDocument:
			doc = v.GetStringValue()
			continue
		}
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			meta[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			meta[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			meta[k] = kind.DoubleValue
		case *pb.Value_BoolValue:
			meta[k] = kind.BoolValue
		}
	}
	return id, doc, meta
}

var (
	_ vector.Dialer     = (*Dialer)(nil)
	_ vector.Client     = (*Client)(nil)
	_ vector.Collection = (*Collection)(nil)
)
