// Package semantic owns all Qdrant operations: chunk upsert, similarity
// search, source-tag lookups, and collection maintenance.
package semantic

import (
	"context"
	"fmt"

	"github.com/DocQueryAI/docquery-mvp/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// pointsAPI is the subset of the Qdrant points service this store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of the Qdrant collections service this store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of the Qdrant collection holding document chunks.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients creates a VectorStore over existing service clients.
// Intended for tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection if it does not exist. Cosine
// distance, so scores come back as similarities: higher is better. Safe to
// call repeatedly.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// EnsureSourceIndex creates the keyword payload index on the source field
// used by ExistsSource and DeleteBySource. Idempotent; invoked after each
// bulk insert.
func (v *VectorStore) EnsureSourceIndex(ctx context.Context) error {
	wait := true
	ft := pb.FieldType_FieldTypeKeyword
	_, err := v.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: v.collection,
		Wait:           &wait,
		FieldName:      "source",
		FieldType:      &ft,
	})
	if err != nil {
		return fmt.Errorf("semantic: create source index: %w", err)
	}
	return nil
}

// DeleteCollection drops the whole collection. Used by operational tooling.
func (v *VectorStore) DeleteCollection(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", v.collection, err)
	}
	return nil
}

// ExistsSource reports whether any chunk carries the given source tag.
// This is the ingestion idempotency check.
func (v *VectorStore) ExistsSource(ctx context.Context, source string) (bool, error) {
	n, err := v.countBySource(ctx, source)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Upsert stores embedded chunks. Point IDs are derived from source and chunk
// position, so re-inserting the same document overwrites rather than
// duplicates.
func (v *VectorStore) Upsert(ctx context.Context, chunks []domain.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: chunkPointID(c.Source, i)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"text":    {Kind: &pb.Value_StringValue{StringValue: c.Text}},
				"source":  {Kind: &pb.Value_StringValue{StringValue: c.Source}},
				"page_no": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.PageNo)}},
			},
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(chunks), err)
	}
	return nil
}

// Search returns up to k nearest chunks, best match first.
func (v *VectorStore) Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievedChunk, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]domain.RetrievedChunk, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		results[i] = retrievedFromPoint(p)
	}
	return results, nil
}

// DeleteBySource removes every chunk tagged with source and returns how many
// existed immediately before the deletion. Zero is valid: not-found is not
// an error at this layer.
func (v *VectorStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	n, err := v.countBySource(ctx, source)
	if err != nil {
		return 0, err
	}

	wait := true
	_, err = v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: sourceFilter(source),
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("semantic: delete by source %s: %w", source, err)
	}
	return n, nil
}

func (v *VectorStore) countBySource(ctx context.Context, source string) (int, error) {
	exact := true
	resp, err := v.points.Count(ctx, &pb.CountPoints{
		CollectionName: v.collection,
		Filter:         sourceFilter(source),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("semantic: count by source %s: %w", source, err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func sourceFilter(source string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "source",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: source},
					},
				},
			},
		}},
	}
}

// chunkPointID derives a deterministic UUID from the source and chunk position.
func chunkPointID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", source, index))).String()
}

func retrievedFromPoint(p *pb.ScoredPoint) domain.RetrievedChunk {
	rc := domain.RetrievedChunk{Score: p.GetScore()}
	payload := p.GetPayload()
	if v, ok := payload["text"]; ok {
		rc.Text = v.GetStringValue()
	}
	if v, ok := payload["source"]; ok {
		rc.Source = v.GetStringValue()
	}
	if v, ok := payload["page_no"]; ok {
		rc.PageNo = int(v.GetIntegerValue())
	}
	return rc
}
