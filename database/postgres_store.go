package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type PostgresStore struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, maxConns int32, log *logger.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &types.ConfigError{Key: "postgres.dsn", Reason: "invalid connection string", Err: err}
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PostgresStore{db: pool, log: log}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// Migrate applies the embedded migrations in filename order. Every statement
// is idempotent, so running it twice is harmless.
func (s *PostgresStore) Migrate(ctx context.Context, dimension int) error {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		raw, err := migrationFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		sql := strings.ReplaceAll(string(raw), "{{dimension}}", strconv.Itoa(dimension))
		s.log.Info("Applying migration", "file", entry.Name())
		if _, err := s.db.Exec(ctx, sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc *types.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	query := `
		INSERT INTO documents (id, user_id, filename, file_type, file_size, page_count, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Exec(ctx, query,
		doc.ID, doc.UserID, doc.Filename, doc.FileType, doc.FileSize,
		doc.PageCount, doc.Content, doc.Metadata, doc.CreatedAt,
	)
	if err != nil {
		return "", types.NewStoreError("insert document", err)
	}
	return doc.ID, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return types.NewStoreError("delete document", err)
	}
	return nil
}

// InsertChunksBatch writes all chunks in one transaction.
func (s *PostgresStore) InsertChunksBatch(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return types.NewStoreError("insert chunks", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO document_chunks (id, document_id, user_id, chunk_index, content, token_count, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8, $9)
	`
	batch := &pgx.Batch{}
	now := time.Now()
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		batch.Queue(query,
			c.ID, c.DocumentID, c.UserID, c.ChunkIndex, c.Content, c.TokenCount,
			pgvector.NewVector(c.Embedding), c.Metadata, c.CreatedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return types.NewStoreError("insert chunks", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewStoreError("insert chunks", err)
	}
	return nil
}

func (s *PostgresStore) DeleteChunksForDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return types.NewStoreError("delete chunks", err)
	}
	return nil
}

func (s *PostgresStore) SimilaritySearch(ctx context.Context, q types.VectorQuery) ([]types.SearchResult, error) {
	query := `
		SELECT c.id, c.document_id, d.filename, c.content, c.chunk_index,
		       1 - (c.embedding <=> $1::vector) AS similarity,
		       d.metadata, c.metadata
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.user_id = $2
		  AND ($3::text[] IS NULL OR c.document_id = ANY($3::text[]))
		  AND 1 - (c.embedding <=> $1::vector) >= $4
		ORDER BY c.embedding <=> $1::vector, c.id
		LIMIT $5
	`
	var docIDs []string
	if len(q.DocumentIDs) > 0 {
		docIDs = q.DocumentIDs
	}

	rows, err := s.db.Query(ctx, query,
		pgvector.NewVector(q.Embedding), q.UserID, docIDs, q.SimilarityThreshold, q.MatchCount,
	)
	if err != nil {
		return nil, types.NewStoreError("similarity search", err)
	}
	defer rows.Close()

	var results []types.SearchResult
	for rows.Next() {
		var r types.SearchResult
		if err := rows.Scan(
			&r.ChunkID, &r.DocumentID, &r.Filename, &r.Content, &r.ChunkIndex,
			&r.Similarity, &r.DocumentMetadata, &r.ChunkMetadata,
		); err != nil {
			return nil, types.NewStoreError("scan search result", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStoreError("similarity search", err)
	}
	return results, nil
}

func (s *PostgresStore) InsertConversation(ctx context.Context, conv *types.Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	conv.UpdatedAt = conv.CreatedAt
	if conv.DocumentIDs == nil {
		conv.DocumentIDs = []string{}
	}

	query := `
		INSERT INTO conversations (id, user_id, title, document_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.Exec(ctx, query,
		conv.ID, conv.UserID, conv.Title, conv.DocumentIDs, conv.CreatedAt, conv.UpdatedAt,
	); err != nil {
		return "", types.NewStoreError("insert conversation", err)
	}
	return conv.ID, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id, userID string) (*types.Conversation, error) {
	query := `
		SELECT id, user_id, title, document_ids, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2
	`
	var c types.Conversation
	err := s.db.QueryRow(ctx, query, id, userID).Scan(
		&c.ID, &c.UserID, &c.Title, &c.DocumentIDs, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, types.NewStoreError("get conversation", err)
	}
	return &c, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, msg *types.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	sources := msg.Sources
	if sources == nil {
		sources = []types.Source{}
	}

	query := `
		INSERT INTO messages (id, conversation_id, user_id, role, content, sources, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.db.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.UserID, msg.Role, msg.Content, sources, msg.TokenCount, msg.CreatedAt,
	); err != nil {
		return "", types.NewStoreError("insert message", err)
	}
	return msg.ID, nil
}

func (s *PostgresStore) UpdateConversationTimestamp(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE conversations SET updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return types.NewStoreError("touch conversation", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID string) ([]types.Document, error) {
	query := `
		SELECT id, user_id, filename, file_type, file_size, page_count, metadata, created_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, types.NewStoreError("list documents", err)
	}
	defer rows.Close()

	docs := make([]types.Document, 0)
	for rows.Next() {
		var d types.Document
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.Filename, &d.FileType, &d.FileSize, &d.PageCount, &d.Metadata, &d.CreatedAt,
		); err != nil {
			return nil, types.NewStoreError("scan document", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStoreError("list documents", err)
	}
	return docs, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]types.Conversation, error) {
	query := `
		SELECT id, user_id, title, document_ids, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, types.NewStoreError("list conversations", err)
	}
	defer rows.Close()

	convs := make([]types.Conversation, 0)
	for rows.Next() {
		var c types.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.DocumentIDs, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, types.NewStoreError("scan conversation", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStoreError("list conversations", err)
	}
	return convs, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID, userID string) ([]types.Message, error) {
	query := `
		SELECT id, conversation_id, user_id, role, content, sources, token_count, created_at
		FROM messages
		WHERE conversation_id = $1 AND user_id = $2
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, query, conversationID, userID)
	if err != nil {
		return nil, types.NewStoreError("list messages", err)
	}
	defer rows.Close()

	msgs := make([]types.Message, 0)
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content, &m.Sources, &m.TokenCount, &m.CreatedAt,
		); err != nil {
			return nil, types.NewStoreError("scan message", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStoreError("list messages", err)
	}
	return msgs, nil
}

// DeleteDocumentCascade removes the document (chunks follow through the
// foreign key) and unpins it from every conversation, in one transaction.
func (s *PostgresStore) DeleteDocumentCascade(ctx context.Context, documentID, userID string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, types.NewStoreError("delete document", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND user_id = $2`, documentID, userID)
	if err != nil {
		return false, types.NewStoreError("delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET document_ids = array_remove(document_ids, $1) WHERE $1 = ANY(document_ids)`,
		documentID,
	); err != nil {
		return false, types.NewStoreError("unpin document", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, types.NewStoreError("delete document", err)
	}
	return true, nil
}
