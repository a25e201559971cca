package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// recordIDKey keeps the original string ID in the payload; Qdrant only accepts
// unsigned integers or UUIDs as point IDs.
const recordIDKey = "record_id"

// pointNamespace seeds the UUIDv5 point IDs.
var pointNamespace = uuid.MustParse("6f1c2d0e-5a8b-4f7e-9c3d-2b1a0e9f8d7c")

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Addr       string
	Collection string
	Dimension  int
	Logger     *slog.Logger
}

// QdrantStore implements VectorStore over the Qdrant gRPC API.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	cfg         QdrantConfig
	logger      *slog.Logger
}

// NewQdrantStore dials Qdrant and creates the collection if it does not exist.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6334"
	}
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant: %w", err)
	}

	s := newQdrantStore(qdrant.NewPointsClient(conn), qdrant.NewCollectionsClient(conn), cfg)
	s.conn = conn
	if err := s.ensureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func newQdrantStore(points qdrant.PointsClient, collections qdrant.CollectionsClient, cfg QdrantConfig) *QdrantStore {
	if cfg.Collection == "" {
		cfg.Collection = "hikma-fatwas"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &QdrantStore{
		points:      points,
		collections: collections,
		cfg:         cfg,
		logger:      cfg.Logger.With("component", "qdrant_store", "collection", cfg.Collection),
	}
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	_, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: s.cfg.Collection})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("get qdrant collection: %w", err)
	}

	s.logger.Info("collection not found, creating it", "dimension", s.cfg.Dimension)
	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(s.cfg.Dimension),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create qdrant collection: %w", err)
	}
	return nil
}

// Close releases the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// PointID maps a record ID to its deterministic Qdrant point UUID.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

// Upsert writes vectors and waits for the write to be applied.
func (s *QdrantStore) Upsert(ctx context.Context, vectors []Vector) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}

	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		payload := cloneMetadata(v.Metadata)
		if payload == nil {
			payload = make(map[string]any, 1)
		}
		payload[recordIDKey] = v.ID

		values, err := qdrant.TryValueMap(payload)
		if err != nil {
			return 0, fmt.Errorf("payload for %s: %w", v.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(v.ID)),
			Vectors: qdrant.NewVectors(v.Values...),
			Payload: values,
		})
	}

	resp, err := s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant upsert: %w", err)
	}
	st := resp.GetResult().GetStatus()
	if st != qdrant.UpdateStatus_Acknowledged && st != qdrant.UpdateStatus_Completed {
		return 0, fmt.Errorf("qdrant upsert status: %s", st)
	}
	return len(points), nil
}

// Fetch returns the vectors that exist among ids.
func (s *QdrantStore) Fetch(ctx context.Context, ids []string) (map[string]Vector, error) {
	out := make(map[string]Vector, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(PointID(id))
	}

	resp, err := s.points.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.cfg.Collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get: %w", err)
	}

	for _, p := range resp.GetResult() {
		id, metadata := splitPayload(p.GetPayload(), p.GetId())
		out[id] = Vector{
			ID:       id,
			Values:   denseValues(p.GetVectors()),
			Metadata: metadata,
		}
	}
	return out, nil
}

// Delete removes the selected points. All deletes every point in the collection.
func (s *QdrantStore) Delete(ctx context.Context, req DeleteRequest) error {
	var selector *qdrant.PointsSelector
	switch {
	case req.All:
		selector = qdrant.NewPointsSelectorFilter(&qdrant.Filter{})
	case len(req.IDs) > 0:
		pointIDs := make([]*qdrant.PointId, len(req.IDs))
		for i, id := range req.IDs {
			pointIDs[i] = qdrant.NewIDUUID(PointID(id))
		}
		selector = qdrant.NewPointsSelector(pointIDs...)
	default:
		return ErrNoIDs
	}

	_, err := s.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         selector,
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

// DescribeStats reports the collection's point count and vector size.
func (s *QdrantStore) DescribeStats(ctx context.Context) (*IndexStats, error) {
	resp, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: s.cfg.Collection})
	if err != nil {
		return nil, fmt.Errorf("qdrant collection info: %w", err)
	}
	info := resp.GetResult()
	dim := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if dim == 0 {
		dim = s.cfg.Dimension
	}
	count := int64(info.GetPointsCount())
	return &IndexStats{
		TotalVectorCount: count,
		Dimension:        dim,
		Namespaces:       map[string]int64{s.cfg.Collection: count},
	}, nil
}

// Query runs a similarity search with optional keyword equality filters.
func (s *QdrantStore) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	search := &qdrant.SearchPoints{
		CollectionName: s.cfg.Collection,
		Vector:         req.Vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(req.Filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(req.Filter))
		for k, v := range req.Filter {
			switch val := v.(type) {
			case int:
				must = append(must, qdrant.NewMatchInt(k, int64(val)))
			case int64:
				must = append(must, qdrant.NewMatchInt(k, val))
			default:
				must = append(must, qdrant.NewMatch(k, fmt.Sprint(val)))
			}
		}
		search.Filter = &qdrant.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]Match, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		id, metadata := splitPayload(p.GetPayload(), p.GetId())
		matches = append(matches, Match{ID: id, Score: float64(p.GetScore()), Metadata: metadata})
	}
	return matches, nil
}

// splitPayload recovers the record ID and the plain metadata map.
func splitPayload(payload map[string]*qdrant.Value, pointID *qdrant.PointId) (string, map[string]any) {
	metadata := make(map[string]any, len(payload))
	id := pointID.GetUuid()
	for k, v := range payload {
		if k == recordIDKey {
			id = v.GetStringValue()
			continue
		}
		metadata[k] = valueToAny(v)
	}
	return id, metadata
}

func valueToAny(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

func denseValues(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData()
}
