// Package mongodb implements the project and chunk stores on MongoDB.
// Task brokering stays on a SQL backend; see the storage factory.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Collection names.
const (
	ProjectsCollection = "projects"
	ChunksCollection   = "chunks"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "ragpipe"

// Store holds a client and the two collections.
type Store struct {
	client   *mongo.Client
	projects *mongo.Collection
	chunks   *mongo.Collection
}

// NewStore connects to uri, selects database and ensures indexes.
func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}

	opts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		projects: db.Collection(ProjectsCollection),
		chunks:   db.Collection(ChunksCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.projects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "project_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating project index: %w", err)
	}

	_, err = s.chunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chunk_project_id", Value: 1}}},
		{Keys: bson.D{
			{Key: "chunk_project_id", Value: 1},
			{Key: "source_path", Value: 1},
			{Key: "chunk_order", Value: 1},
		}},
	})
	if err != nil {
		return fmt.Errorf("creating chunk indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ProjectStore returns a ProjectStore interface backed by this store.
func (s *Store) ProjectStore() driven.ProjectStore {
	return &projectStore{coll: s.projects}
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{coll: s.chunks}
}

// ==================== Project Store ====================

type projectDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	ProjectID   string             `bson:"project_id"`
	Description string             `bson:"description"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func (d projectDoc) toDomain() *domain.Project {
	return &domain.Project{
		ID:          d.ID.Hex(),
		ProjectID:   d.ProjectID,
		Description: d.Description,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type projectStore struct {
	coll *mongo.Collection
}

var _ driven.ProjectStore = (*projectStore)(nil)

// FindOrCreate reads first, inserts on miss and re-reads when a concurrent
// insert wins the unique index.
func (s *projectStore) FindOrCreate(ctx context.Context, projectID string) (*domain.Project, error) {
	if err := domain.ValidateProjectID(projectID); err != nil {
		return nil, err
	}

	p, err := s.Get(ctx, projectID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	doc := projectDoc{
		ID:        primitive.NewObjectID(),
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return s.Get(ctx, projectID)
		}
		return nil, fmt.Errorf("inserting project: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *projectStore) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	var doc projectDoc
	err := s.coll.FindOne(ctx, bson.M{"project_id": projectID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding project: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *projectStore) List(ctx context.Context, page, pageSize int) ([]domain.Project, int, error) {
	page, pageSize = domain.NormalisePage(page, pageSize)

	total, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("counting projects: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "project_id", Value: 1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing projects: %w", err)
	}
	defer cur.Close(ctx)

	projects := []domain.Project{}
	for cur.Next(ctx) {
		var doc projectDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("decoding project: %w", err)
		}
		projects = append(projects, *doc.toDomain())
	}
	return projects, domain.TotalPages(int(total), pageSize), cur.Err()
}

// ==================== Chunk Store ====================

// chunkDoc uses the same field names as domain.ChunkRecord.
type chunkDoc struct {
	ID         string         `bson:"_id"`
	ProjectRef string         `bson:"chunk_project_id"`
	Text       string         `bson:"chunk_text"`
	Ordinal    int            `bson:"chunk_order"`
	SourcePath string         `bson:"source_path"`
	Metadata   map[string]any `bson:"chunk_metadata"`
	CreatedAt  time.Time      `bson:"created_at"`
}

func (d chunkDoc) toDomain() domain.Chunk {
	return domain.Chunk{
		ID:         d.ID,
		ProjectRef: d.ProjectRef,
		Text:       d.Text,
		Ordinal:    d.Ordinal,
		SourcePath: d.SourcePath,
		Metadata:   plainMap(d.Metadata),
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

// plainMap converts decoded bson.M values back to map[string]any so
// metadata helpers can type-assert nested documents.
func plainMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch nested := v.(type) {
		case bson.M:
			out[k] = plainMap(nested)
		case map[string]any:
			out[k] = plainMap(nested)
		default:
			out[k] = v
		}
	}
	return out
}

type chunkStore struct {
	coll *mongo.Collection
}

var _ driven.ChunkStore = (*chunkStore)(nil)

func (s *chunkStore) InsertMany(ctx context.Context, chunks []domain.Chunk, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = driven.DefaultInsertBatchSize
	}

	now := time.Now().UTC()
	inserted := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		docs := make([]any, 0, end-start)
		for _, c := range chunks[start:end] {
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			docs = append(docs, chunkDoc{
				ID:         c.ID,
				ProjectRef: c.ProjectRef,
				Text:       c.Text,
				Ordinal:    c.Ordinal,
				SourcePath: c.SourcePath,
				Metadata:   c.Metadata,
				CreatedAt:  createdAt,
			})
		}
		if _, err := s.coll.InsertMany(ctx, docs); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return inserted, fmt.Errorf("inserting chunks: %w", domain.ErrAlreadyExists)
			}
			return inserted, fmt.Errorf("inserting chunks: %w", err)
		}
		inserted += end - start
	}
	return inserted, nil
}

func (s *chunkStore) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	var doc chunkDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding chunk: %w", err)
	}
	c := doc.toDomain()
	return &c, nil
}

func (s *chunkStore) DeleteByProject(ctx context.Context, projectRef string) (int, error) {
	return s.deleteMany(ctx, bson.M{"chunk_project_id": projectRef})
}

func (s *chunkStore) ListBySource(ctx context.Context, projectRef, sourcePath string) ([]domain.Chunk, error) {
	filter := bson.M{"chunk_project_id": projectRef, "source_path": sourcePath}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "chunk_order", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer cur.Close(ctx)

	var chunks []domain.Chunk
	for cur.Next(ctx) {
		var doc chunkDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding chunk: %w", err)
		}
		chunks = append(chunks, doc.toDomain())
	}
	return chunks, cur.Err()
}

func (s *chunkStore) DeleteBySource(ctx context.Context, projectRef, sourcePath string) (int, error) {
	return s.deleteMany(ctx, bson.M{"chunk_project_id": projectRef, "source_path": sourcePath})
}

func (s *chunkStore) CountByProject(ctx context.Context, projectRef string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"chunk_project_id": projectRef})
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return int(n), nil
}

func (s *chunkStore) deleteMany(ctx context.Context, filter bson.M) (int, error) {
	res, err := s.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	return int(res.DeletedCount), nil
}
