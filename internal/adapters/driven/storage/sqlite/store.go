package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/ragpipe/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to
// all storage interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (creating if needed) the database at dbPath.
// If dbPath is empty, defaults to ~/.ragpipe/data/ragpipe.db.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".ragpipe", "data", "ragpipe.db")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		now:  func() time.Time { return time.Now().UTC() },
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ProjectStore returns a ProjectStore interface backed by this store.
func (s *Store) ProjectStore() driven.ProjectStore {
	return &projectStore{store: s}
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{store: s}
}

// TaskBroker returns a TaskBroker interface backed by this store.
func (s *Store) TaskBroker() driven.TaskBroker {
	return &taskBroker{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Project Store ====================

// projectStore implements driven.ProjectStore.
type projectStore struct {
	store *Store
}

var _ driven.ProjectStore = (*projectStore)(nil)

// FindOrCreate inserts the project if absent and reads back the stored row.
// The unique index on project_id makes concurrent callers converge.
func (s *projectStore) FindOrCreate(ctx context.Context, projectID string) (*domain.Project, error) {
	if err := domain.ValidateProjectID(projectID); err != nil {
		return nil, err
	}

	now := s.store.now()
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO projects (id, project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO NOTHING
	`, uuid.NewString(), projectID, now, now)
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	return s.Get(ctx, projectID)
}

// Get retrieves a project by human id.
func (s *projectStore) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, project_id, description, created_at, updated_at
		FROM projects WHERE project_id = ?
	`, projectID)

	var p domain.Project
	if err := row.Scan(&p.ID, &p.ProjectID, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	return &p, nil
}

// List returns one page of projects ordered by creation time.
func (s *projectStore) List(ctx context.Context, page, pageSize int) ([]domain.Project, int, error) {
	page, pageSize = domain.NormalisePage(page, pageSize)

	var total int
	if err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting projects: %w", err)
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, project_id, description, created_at, updated_at
		FROM projects ORDER BY created_at, project_id
		LIMIT ? OFFSET ?
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

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

// InsertMany writes chunks in batches, one transaction per batch.
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

func (s *chunkStore) insertBatch(ctx context.Context, batch []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, project_ref, text, ordinal, source_path, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := s.store.now()
	for _, c := range batch {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.ProjectRef, c.Text, c.Ordinal,
			c.SourcePath, string(metaJSON), createdAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("chunk %s: %w", c.ID, domain.ErrAlreadyExists)
			}
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves a chunk.
func (s *chunkStore) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, project_ref, text, ordinal, source_path, metadata, created_at
		FROM chunks WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying chunk: %w", err)
	}
	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.ErrNotFound
	}
	return &chunks[0], nil
}

// DeleteByProject removes all chunks of a project.
func (s *chunkStore) DeleteByProject(ctx context.Context, projectRef string) (int, error) {
	return s.exec(ctx, "DELETE FROM chunks WHERE project_ref = ?", projectRef)
}

// ListBySource returns the chunks of one file in ordinal order.
func (s *chunkStore) ListBySource(ctx context.Context, projectRef, sourcePath string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, project_ref, text, ordinal, source_path, metadata, created_at
		FROM chunks WHERE project_ref = ? AND source_path = ?
		ORDER BY ordinal
	`, projectRef, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	return scanChunks(rows)
}

// DeleteBySource removes the chunks of one file.
func (s *chunkStore) DeleteBySource(ctx context.Context, projectRef, sourcePath string) (int, error) {
	return s.exec(ctx, "DELETE FROM chunks WHERE project_ref = ? AND source_path = ?", projectRef, sourcePath)
}

// CountByProject returns the number of chunks a project holds.
func (s *chunkStore) CountByProject(ctx context.Context, projectRef string) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE project_ref = ?", projectRef).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func (s *chunkStore) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.store.db.ExecContext(ctx, query, args...)
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

// taskBroker implements driven.TaskBroker on the tasks table. Times are
// stored as unix nanoseconds so lease comparisons stay in SQL.
type taskBroker struct {
	store *Store
}

var _ driven.TaskBroker = (*taskBroker)(nil)

// Enqueue inserts a pending task.
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
		task.EnqueuedAt = b.store.now()
	}

	_, err := b.store.db.ExecContext(ctx, `
		INSERT INTO tasks (id, name, queue, payload, attempts, state, enqueued_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, task.ID, string(task.Name), task.Queue, task.Payload, string(domain.TaskPending), task.EnqueuedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("enqueuing task: %w", err)
	}
	return nil
}

// Dequeue leases the oldest available task in a single UPDATE ... RETURNING.
func (b *taskBroker) Dequeue(ctx context.Context, queue string, lease time.Duration) (*domain.Task, error) {
	now := b.store.now()
	row := b.store.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET state = 'active', lease_until = ?, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM tasks
			WHERE queue = ?
			  AND (state = 'pending' OR (state = 'active' AND lease_until <= ?))
			ORDER BY enqueued_at, id
			LIMIT 1
		)
		RETURNING id, name, queue, payload, attempts, enqueued_at
	`, now.Add(lease).UnixNano(), queue, now.UnixNano())

	var (
		t          domain.Task
		name       string
		enqueuedAt int64
	)
	if err := row.Scan(&t.ID, &name, &t.Queue, &t.Payload, &t.Attempts, &enqueuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: dequeue: %v", domain.ErrBrokerUnavailable, err)
	}
	t.Name = domain.TaskName(name)
	t.EnqueuedAt = time.Unix(0, enqueuedAt).UTC()
	return &t, nil
}

// Ack marks a task done and stores its result.
func (b *taskBroker) Ack(ctx context.Context, taskID string, result domain.TaskResult) error {
	now := b.store.now()
	if result.FinishedAt.IsZero() {
		result.FinishedAt = now
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}

	res, err := b.store.db.ExecContext(ctx, `
		UPDATE tasks SET state = 'done', result = ?, done_at = ?
		WHERE id = ? AND state != 'done'
	`, string(resultJSON), now.UnixNano(), taskID)
	if err != nil {
		return fmt.Errorf("%w: ack: %v", domain.ErrBrokerUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := b.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE id = ?", taskID).Scan(&exists); err != nil {
			return fmt.Errorf("checking task: %w", err)
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
	}
	return nil
}

// Get returns a task with its state and result.
func (b *taskBroker) Get(ctx context.Context, taskID string) (*domain.TaskInfo, error) {
	row := b.store.db.QueryRowContext(ctx, `
		SELECT id, name, queue, payload, attempts, state, result, enqueued_at
		FROM tasks WHERE id = ?
	`, taskID)

	var (
		info       domain.TaskInfo
		name       string
		state      string
		result     sql.NullString
		enqueuedAt int64
	)
	if err := row.Scan(&info.Task.ID, &name, &info.Task.Queue, &info.Task.Payload,
		&info.Task.Attempts, &state, &result, &enqueuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	info.Task.Name = domain.TaskName(name)
	info.Task.EnqueuedAt = time.Unix(0, enqueuedAt).UTC()
	info.State = domain.TaskState(state)

	if result.Valid && result.String != "" {
		var r domain.TaskResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("unmarshalling result: %w", err)
		}
		info.Result = &r
	}
	return &info, nil
}

// PurgeResults deletes finished tasks older than olderThan.
func (b *taskBroker) PurgeResults(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := b.store.now().Add(-olderThan).UnixNano()
	res, err := b.store.db.ExecContext(ctx, "DELETE FROM tasks WHERE state = 'done' AND done_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return int(n), nil
}

// Ping checks the database connection.
func (b *taskBroker) Ping(ctx context.Context) error {
	if err := b.store.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}
	return nil
}

// ==================== Helper Functions ====================

func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var metaJSON string
		if err := rows.Scan(&c.ID, &c.ProjectRef, &c.Text, &c.Ordinal,
			&c.SourcePath, &metaJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
