// Package store persists the indexed corpus between the index and search
// commands: document content, ordered metadata, and embeddings.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/studyrag/studyrag/internal/corpus"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id        INTEGER PRIMARY KEY,
	content   TEXT NOT NULL,
	metadata  TEXT NOT NULL,
	embedding BLOB
);
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// State keys.
const (
	// StateKeyEmbeddingModel records which model produced the stored
	// embeddings. A different model at load time means the vectors are
	// unusable and the corpus must be re-indexed.
	StateKeyEmbeddingModel = "embedding_model"
)

// DocumentStore is a SQLite-backed corpus store.
type DocumentStore struct {
	db *sql.DB
}

// Open opens (and initializes if needed) a document store at path.
func Open(path string) (*DocumentStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DocumentStore{db: db}, nil
}

// Replace clears the store and writes docs with their embeddings in a
// single transaction. Document order is preserved by the integer key.
func (s *DocumentStore) Replace(ctx context.Context, docs []corpus.Document, embeddings [][]float32, model string) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("docs and embeddings length mismatch: %d vs %d", len(docs), len(embeddings))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, content, metadata, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, i, doc.Content, string(meta), encodeVector(embeddings[i])); err != nil {
			return fmt.Errorf("insert document %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		StateKeyEmbeddingModel, model); err != nil {
		return fmt.Errorf("record embedding model: %w", err)
	}

	return tx.Commit()
}

// Load reads all documents and embeddings in insertion order.
func (s *DocumentStore) Load(ctx context.Context) ([]corpus.Document, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content, metadata, embedding FROM documents ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []corpus.Document
	var embeddings [][]float32
	for rows.Next() {
		var content, meta string
		var blob []byte
		if err := rows.Scan(&content, &meta, &blob); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}

		var metadata corpus.Metadata
		if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
			return nil, nil, fmt.Errorf("unmarshal metadata: %w", err)
		}

		docs = append(docs, corpus.NewDocument(content, metadata))
		embeddings = append(embeddings, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, embeddings, nil
}

// EmbeddingModel returns the model recorded at index time, or "" when the
// store is fresh.
func (s *DocumentStore) EmbeddingModel(ctx context.Context) (string, error) {
	var model string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state WHERE key = ?`, StateKeyEmbeddingModel).Scan(&model)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read embedding model: %w", err)
	}
	return model, nil
}

// Count returns the number of stored documents.
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}

// encodeVector serializes a float32 vector as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(v)*4))
	for _, x := range v {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(x))
		buf.Write(b[:])
	}
	return buf.Bytes()
}

// decodeVector deserializes little-endian bytes into a float32 vector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
