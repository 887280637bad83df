package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/oklog/ulid/v2"

	"github.com/custodia-labs/ragpipe/internal/adapters/driven/storage/postgres/migrations"
	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// uniqueViolation is the SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// Store provides the storage ports over a single connection pool.
type Store struct {
	db *sql.DB
}

// NewStore connects to dsn, verifies the connection and runs migrations.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// DB exposes the pool so the pgvector index can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ProjectStore returns a ProjectStore interface backed by this store.
func (s *Store) ProjectStore() driven.ProjectStore {
	return &projectStore{db: s.db}
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{db: s.db}
}

// TaskBroker returns a TaskBroker interface backed by this store.
func (s *Store) TaskBroker() driven.TaskBroker {
	return &taskBroker{db: s.db}
}

func (s *Store) migrate(ctx context.Context, fsys embed.FS) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Project Store ====================

type projectStore struct {
	db *sql.DB
}

var _ driven.ProjectStore = (*projectStore)(nil)

func (s *projectStore) FindOrCreate(ctx context.Context, projectID string) (*domain.Project, error) {
	if err := domain.ValidateProjectID(projectID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, project_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (project_id) DO NOTHING
	`, uuid.NewString(), projectID, now); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return s.Get(ctx, projectID)
}

func (s *projectStore) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	var p domain.Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, description, created_at, updated_at
		FROM projects WHERE project_id = $1
	`, projectID).Scan(&p.ID, &p.ProjectID, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	return &p, nil
}

func (s *projectStore) List(ctx context.Context, page, pageSize int) ([]domain.Project, int, error) {
	page, pageSize = domain.NormalisePage(page, pageSize)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting projects: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, description, created_at, updated_at
		FROM projects ORDER BY created_at, project_id
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, domain.TotalPages(total, pageSize), rows.Err()
}

// ==================== Chunk Store ====================

type chunkStore struct {
	db *sql.DB
}

var _ driven.ChunkStore = (*chunkStore)(nil)

func (s *chunkStore) InsertMany(ctx context.Context, chunks []domain.Chunk, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = driven.DefaultInsertBatchSize
	}

	inserted := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		if err := s.insertBatch(ctx, chunks[start:end]); err != nil {
			return inserted, err
		}
		inserted += end - start
	}
	return inserted, nil
}

// insertBatch writes one batch as a single multi-row INSERT.
func (s *chunkStore) insertBatch(ctx context.Context, batch []domain.Chunk) error {
	const cols = 7
	now := time.Now().UTC()
	placeholders := make([]string, len(batch))
	args := make([]any, 0, len(batch)*cols)

	for i, c := range batch {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		n := i * cols
		placeholders[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
		args = append(args, c.ID, c.ProjectRef, c.Text, c.Ordinal, c.SourcePath, metaJSON, createdAt)
	}

	query := "INSERT INTO chunks (id, project_ref, text, ordinal, source_path, metadata, created_at) VALUES " +
		strings.Join(placeholders, ", ")
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inserting chunks: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting chunks: %w", err)
	}
	return nil
}

func (s *chunkStore) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	chunks, err := s.query(ctx, `
		SELECT id, project_ref, text, ordinal, source_path, metadata, created_at
		FROM chunks WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.ErrNotFound
	}
	return &chunks[0], nil
}

func (s *chunkStore) DeleteByProject(ctx context.Context, projectRef string) (int, error) {
	return s.exec(ctx, "DELETE FROM chunks WHERE project_ref = $1", projectRef)
}

func (s *chunkStore) ListBySource(ctx context.Context, projectRef, sourcePath string) ([]domain.Chunk, error) {
	return s.query(ctx, `
		SELECT id, project_ref, text, ordinal, source_path, metadata, created_at
		FROM chunks WHERE project_ref = $1 AND source_path = $2
		ORDER BY ordinal
	`, projectRef, sourcePath)
}

func (s *chunkStore) DeleteBySource(ctx context.Context, projectRef, sourcePath string) (int, error) {
	return s.exec(ctx, "DELETE FROM chunks WHERE project_ref = $1 AND source_path = $2", projectRef, sourcePath)
}

func (s *chunkStore) CountByProject(ctx context.Context, projectRef string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE project_ref = $1", projectRef).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func (s *chunkStore) query(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var metaJSON []byte
		if err := rows.Scan(&c.ID, &c.ProjectRef, &c.Text, &c.Ordinal, &c.SourcePath, &metaJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *chunkStore) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return int(n), nil
}

// ==================== Task Broker ====================

type taskBroker struct {
	db *sql.DB
}

var _ driven.TaskBroker = (*taskBroker)(nil)

func (b *taskBroker) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil || task.Name == "" {
		return domain.ErrInvalidInput
	}
	if task.ID == "" {
		task.ID = ulid.Make().String()
	}
	if task.Queue == "" {
		task.Queue = domain.QueueFor(task.Name)
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO tasks (id, name, queue, payload, state, enqueued_at)
		VALUES ($1, $2, $3, $4, 'pending', $5)
	`, task.ID, string(task.Name), task.Queue, task.Payload, task.EnqueuedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("%w: enqueue: %v", domain.ErrBrokerUnavailable, err)
	}
	return nil
}

// Dequeue leases the oldest available row. SKIP LOCKED lets concurrent
// workers pass over rows another transaction is claiming.
func (b *taskBroker) Dequeue(ctx context.Context, queue string, lease time.Duration) (*domain.Task, error) {
	var (
		t    domain.Task
		name string
	)
	err := b.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET state = 'active', lease_until = NOW() + $2::double precision * INTERVAL '1 millisecond', attempts = attempts + 1
		WHERE id = (
			SELECT id FROM tasks
			WHERE queue = $1
			  AND (state = 'pending' OR (state = 'active' AND lease_until <= NOW()))
			ORDER BY enqueued_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, queue, payload, attempts, enqueued_at
	`, queue, lease.Milliseconds()).Scan(&t.ID, &name, &t.Queue, &t.Payload, &t.Attempts, &t.EnqueuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dequeue: %v", domain.ErrBrokerUnavailable, err)
	}
	t.Name = domain.TaskName(name)
	return &t, nil
}

func (b *taskBroker) Ack(ctx context.Context, taskID string, result domain.TaskResult) error {
	if result.FinishedAt.IsZero() {
		result.FinishedAt = time.Now().UTC()
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}

	var id string
	err = b.db.QueryRowContext(ctx, `
		UPDATE tasks SET state = 'done', result = $2,
			done_at = CASE WHEN state = 'done' THEN done_at ELSE NOW() END
		WHERE id = $1
		RETURNING id
	`, taskID, resultJSON).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: ack: %v", domain.ErrBrokerUnavailable, err)
	}
	return nil
}

func (b *taskBroker) Get(ctx context.Context, taskID string) (*domain.TaskInfo, error) {
	var (
		info   domain.TaskInfo
		name   string
		state  string
		result []byte
	)
	err := b.db.QueryRowContext(ctx, `
		SELECT id, name, queue, payload, attempts, state, result, enqueued_at
		FROM tasks WHERE id = $1
	`, taskID).Scan(&info.Task.ID, &name, &info.Task.Queue, &info.Task.Payload,
		&info.Task.Attempts, &state, &result, &info.Task.EnqueuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	info.Task.Name = domain.TaskName(name)
	info.State = domain.TaskState(state)

	if len(result) > 0 {
		var r domain.TaskResult
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("unmarshalling result: %w", err)
		}
		info.Result = &r
	}
	return &info, nil
}

func (b *taskBroker) PurgeResults(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := b.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE state = 'done' AND done_at < NOW() - $1::double precision * INTERVAL '1 millisecond'
	`, olderThan.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("purging results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return int(n), nil
}

func (b *taskBroker) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
