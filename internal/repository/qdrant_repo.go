package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// pointNamespace seeds the UUIDv5 point ids so that the same stored row always
// maps to the same Qdrant point.
var pointNamespace = uuid.MustParse("6f1c2b8e-3d4a-5b6c-8d7e-9f0a1b2c3d4e")

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API key (enables TLS automatically)
	UseTLS          bool
	VectorDimension int
}

// MirrorPoint is one stored embedding row as seen by the vector mirror.
type MirrorPoint struct {
	Table      string
	SourceID   string
	Kind       string
	ChunkIndex *int
	Content    string
	Vector     []float32
}

// PointID returns the deterministic Qdrant point id of the row.
func (p *MirrorPoint) PointID() string {
	return GeneratePointID(p.Table, p.SourceID, p.Kind, p.ChunkIndex)
}

// GeneratePointID derives a UUIDv5 from the identity of an embedding row.
func GeneratePointID(table, sourceID, kind string, chunkIndex *int) string {
	idx := "-"
	if chunkIndex != nil {
		idx = strconv.Itoa(*chunkIndex)
	}
	name := table + "/" + sourceID + "/" + kind + "/" + idx
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository mirrors stored embedding rows into a Qdrant collection.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	if cfg.VectorDimension <= 0 {
		return nil, fmt.Errorf("qdrant: vector dimension must be positive")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: cfg.VectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist and checks the
// vector size of an existing one.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Mirror upserts one embedding row as a point.
func (r *QdrantRepository) Mirror(ctx context.Context, point *MirrorPoint) error {
	if len(point.Vector) != r.vectorDimension {
		return fmt.Errorf("mirror %s/%s: vector has %d dimensions, collection expects %d",
			point.Table, point.SourceID, len(point.Vector), r.vectorDimension)
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: point.PointID()},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: point.Vector},
					},
				},
				Payload: mirrorPayload(point),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func mirrorPayload(point *MirrorPoint) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"table":     {Kind: &pb.Value_StringValue{StringValue: point.Table}},
		"source_id": {Kind: &pb.Value_StringValue{StringValue: point.SourceID}},
		"kind":      {Kind: &pb.Value_StringValue{StringValue: point.Kind}},
		"content":   {Kind: &pb.Value_StringValue{StringValue: point.Content}},
	}
	if point.ChunkIndex != nil {
		payload["chunk_index"] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(*point.ChunkIndex)}}
	}
	return payload
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	params := info.GetConfig().GetParams()
	if params == nil {
		return 0, false
	}
	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil && single.GetSize() > 0 {
		return single.GetSize(), true
	}
	for _, vectorParams := range vectors.GetParamsMap().GetMap() {
		if vectorParams.GetSize() > 0 {
			return vectorParams.GetSize(), true
		}
	}
	return 0, false
}
