package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"crawshaw.io/sqlite"

	"github.com/localforge/memorybank/internal/vector"
)

// Options configures the SQLite-backed engine.
type Options struct {
	// StorePath is the SQLite database file holding the index.
	StorePath string

	// SimilarityThreshold is the default minimum similarity for search
	// results when the caller does not supply one.
	SimilarityThreshold float64

	// AutoChunk embeds long texts in chunks and averages the chunk vectors.
	AutoChunk bool

	// ChunkSize is the auto-chunk threshold in characters. Zero means
	// DefaultChunkSize.
	ChunkSize int

	// DedupeExact skips indexing when a document with identical text is
	// already present.
	DedupeExact bool

	// DedupeFuzzyThreshold skips indexing when an existing document's
	// similarity to the new text is at or above this value. Zero disables
	// fuzzy deduplication.
	DedupeFuzzyThreshold float64

	// TemporalBoost nudges recently stored documents up the ranking.
	TemporalBoost bool
}

// temporalHalfLife is the age at which the recency boost halves.
const temporalHalfLife = 30 * 24 * time.Hour

// SQLiteEngine implements Engine over a single SQLite connection, with
// embeddings stored as blobs and cosine similarity computed in process.
// It is not safe for concurrent use; the operation queue serializes access.
type SQLiteEngine struct {
	opts     Options
	embedder vector.Embedder
	conn     *sqlite.Conn
}

// NewSQLiteEngine creates an engine instance. Initialize must be called
// before any other operation.
func NewSQLiteEngine(opts Options, embedder vector.Embedder) *SQLiteEngine {
	return &SQLiteEngine{opts: opts, embedder: embedder}
}

// Initialize opens the database, creates the schema, and initializes the
// embedder. The embedder step may be slow or network-dependent, which is why
// callers drive Initialize through the retry policy. Idempotent on success.
func (e *SQLiteEngine) Initialize(ctx context.Context) error {
	if e.conn != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := sqlite.OpenConn(e.opts.StorePath, sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_READWRITE)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := execSimple(conn, createTableSQL); err != nil {
		conn.Close()
		return fmt.Errorf("failed to create table: %w", err)
	}

	if err := e.embedder.Initialize(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	e.conn = conn
	slog.Info("Search engine initialized", "store_path", e.opts.StorePath)
	return nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS memory_docs (
	id TEXT PRIMARY KEY,
	doc_text TEXT NOT NULL,
	text_hash TEXT NOT NULL,
	metadata TEXT,
	embedding BLOB NOT NULL,
	created INTEGER NOT NULL
);`

// Close closes the engine and releases the database connection.
func (e *SQLiteEngine) Close() error {
	if e.conn != nil {
		err := e.conn.Close()
		e.conn = nil
		return err
	}
	return nil
}

func (e *SQLiteEngine) ready() error {
	if e.conn == nil {
		return errors.New("engine not initialized")
	}
	return nil
}

// IndexDocument persists and indexes one document. Empty text is rejected.
// Depending on configuration, documents duplicating existing content are
// silently skipped.
func (e *SQLiteEngine) IndexDocument(ctx context.Context, doc Document) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.indexOne(ctx, doc)
}

// IndexBatch persists and indexes documents inside one transaction, which
// amortizes fsync cost compared to repeated single calls.
func (e *SQLiteEngine) IndexBatch(ctx context.Context, docs []Document) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	if err := execSimple(e.conn, "BEGIN;"); err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	for _, doc := range docs {
		if err := e.indexOne(ctx, doc); err != nil {
			if rbErr := execSimple(e.conn, "ROLLBACK;"); rbErr != nil {
				slog.Warn("Rollback failed after batch error", "error", rbErr)
			}
			return err
		}
	}
	if err := execSimple(e.conn, "COMMIT;"); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (e *SQLiteEngine) indexOne(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.Text == "" {
		return fmt.Errorf("document %q has empty text", doc.ID)
	}
	if doc.ID == "" {
		return errors.New("document has empty id")
	}

	textHash := hashText(doc.Text)
	if e.opts.DedupeExact {
		dup, err := e.hasTextHash(textHash, doc.ID)
		if err != nil {
			return err
		}
		if dup {
			slog.Debug("Skipping exact duplicate", "id", doc.ID)
			return nil
		}
	}

	embedding, err := e.embedText(doc.Text)
	if err != nil {
		return fmt.Errorf("failed to embed document %q: %w", doc.ID, err)
	}

	if e.opts.DedupeFuzzyThreshold > 0 {
		dup, err := e.hasNearDuplicate(embedding, doc.ID)
		if err != nil {
			return err
		}
		if dup {
			slog.Debug("Skipping near duplicate", "id", doc.ID)
			return nil
		}
	}

	embeddingBytes, err := vector.Float32SliceToBytes(embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding for %q: %w", doc.ID, err)
	}

	metadataJSON := []byte("{}")
	if doc.Metadata != nil {
		metadataJSON, err = json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %q: %w", doc.ID, err)
		}
	}

	stmt, err := e.conn.Prepare(`
	INSERT OR REPLACE INTO memory_docs (id, doc_text, text_hash, metadata, embedding, created)
	VALUES (?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, doc.ID)
	stmt.BindText(2, doc.Text)
	stmt.BindText(3, textHash)
	stmt.BindText(4, string(metadataJSON))
	stmt.BindBytes(5, embeddingBytes)
	stmt.BindInt64(6, documentTimestamp(doc).Unix())

	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("failed to insert document %q: %w", doc.ID, err)
	}
	return nil
}

// embedText produces the document vector, chunking long texts when
// configured and averaging the chunk embeddings.
func (e *SQLiteEngine) embedText(text string) ([]float32, error) {
	chunkSize := e.opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	if !e.opts.AutoChunk || len(text) <= chunkSize {
		return e.embedder.CreateEmbedding(text)
	}

	chunks := splitChunks(text, chunkSize)
	embeddings := make([][]float32, 0, len(chunks))
	for _, chunk := range chunks {
		emb, err := e.embedder.CreateEmbedding(chunk)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, emb)
	}
	return vector.Mean(embeddings)
}

// Search embeds the query, ranks every stored document by cosine
// similarity, applies the similarity threshold and optional temporal boost,
// and truncates to opts.Limit.
func (e *SQLiteEngine) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryEmbedding, err := e.embedder.CreateEmbedding(query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	minSimilarity := opts.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = e.opts.SimilarityThreshold
	}

	rows, err := e.scanAll()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var results []SearchResult
	for _, row := range rows {
		similarity, err := vector.CosineSimilarity(queryEmbedding, row.embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to score document %q: %w", row.id, err)
		}

		score := clamp01(similarity)
		if e.opts.TemporalBoost {
			score = boostRecent(score, now.Sub(row.created))
		}
		if score < minSimilarity {
			continue
		}

		results = append(results, SearchResult{
			Text:       row.text,
			Similarity: score,
			Metadata:   row.metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Remove deletes a document by id, reporting whether it existed.
func (e *SQLiteEngine) Remove(ctx context.Context, id string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	stmt, err := e.conn.Prepare(`DELETE FROM memory_docs WHERE id = ?;`)
	if err != nil {
		return false, fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, id)
	if _, err := stmt.Step(); err != nil {
		return false, fmt.Errorf("failed to delete document %q: %w", id, err)
	}

	return e.conn.Changes() > 0, nil
}

// Size reports the number of indexed documents.
func (e *SQLiteEngine) Size(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	stmt, err := e.conn.Prepare(`SELECT COUNT(*) FROM memory_docs;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare count statement: %w", err)
	}
	defer stmt.Reset()

	hasRow, err := stmt.Step()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	if !hasRow {
		return 0, errors.New("count query returned no row")
	}
	return stmt.ColumnInt(0), nil
}

// Clear removes all documents irreversibly, reporting how many were removed.
func (e *SQLiteEngine) Clear(ctx context.Context) (int, error) {
	count, err := e.Size(ctx)
	if err != nil {
		return 0, err
	}

	if err := execSimple(e.conn, `DELETE FROM memory_docs;`); err != nil {
		return 0, fmt.Errorf("failed to clear documents: %w", err)
	}

	slog.Info("Cleared document index", "count", count)
	return count, nil
}

type storedRow struct {
	id        string
	text      string
	metadata  map[string]any
	embedding []float32
	created   time.Time
}

func (e *SQLiteEngine) scanAll() ([]storedRow, error) {
	stmt, err := e.conn.Prepare(`
	SELECT id, doc_text, metadata, embedding, created FROM memory_docs
	ORDER BY created DESC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Reset()

	var rows []storedRow
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("failed to scan documents: %w", err)
		}
		if !hasRow {
			break
		}

		row := storedRow{
			id:      stmt.ColumnText(0),
			text:    stmt.ColumnText(1),
			created: time.Unix(stmt.ColumnInt64(4), 0),
		}

		if metaJSON := stmt.ColumnText(2); metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &row.metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for entry %s: %w", row.id, err)
			}
		}

		embeddingBytes := make([]byte, stmt.ColumnLen(3))
		stmt.ColumnBytes(3, embeddingBytes)
		row.embedding, err = vector.BytesToFloat32Slice(embeddingBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for entry %s: %w", row.id, err)
		}

		rows = append(rows, row)
	}
	return rows, nil
}

func (e *SQLiteEngine) hasTextHash(textHash, excludeID string) (bool, error) {
	stmt, err := e.conn.Prepare(`SELECT COUNT(*) FROM memory_docs WHERE text_hash = ? AND id != ?;`)
	if err != nil {
		return false, fmt.Errorf("failed to prepare dedupe statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, textHash)
	stmt.BindText(2, excludeID)
	hasRow, err := stmt.Step()
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate text: %w", err)
	}
	return hasRow && stmt.ColumnInt(0) > 0, nil
}

func (e *SQLiteEngine) hasNearDuplicate(embedding []float32, excludeID string) (bool, error) {
	rows, err := e.scanAll()
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.id == excludeID {
			continue
		}
		similarity, err := vector.CosineSimilarity(embedding, row.embedding)
		if err != nil {
			continue // dimension mismatch from an older model; not a duplicate
		}
		if clamp01(similarity) >= e.opts.DedupeFuzzyThreshold {
			return true, nil
		}
	}
	return false, nil
}

// documentTimestamp prefers an explicit metadata timestamp so re-imported
// documents keep their original recency.
func documentTimestamp(doc Document) time.Time {
	if doc.Metadata != nil {
		switch v := doc.Metadata["timestamp"].(type) {
		case time.Time:
			return v
		case string:
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return ts
			}
		case int64:
			return time.Unix(v, 0)
		case float64:
			return time.Unix(int64(v), 0)
		}
	}
	return time.Now()
}

// boostRecent blends a recency bonus into the score while keeping it in
// [0,1]. The bonus halves every temporalHalfLife.
func boostRecent(score float64, age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	decay := math.Exp2(-age.Hours() / temporalHalfLife.Hours())
	return clamp01(score + (1-score)*0.1*decay)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// execSimple runs a statement that takes no bindings and returns no rows.
func execSimple(conn *sqlite.Conn, sql string) error {
	stmt, err := conn.Prepare(sql)
	if err != nil {
		return err
	}
	defer stmt.Reset()
	_, err = stmt.Step()
	return err
}
