package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// ErrIndexNotFound is returned by Open when no index exists at the path.
// The caller should scrape and rebuild.
var ErrIndexNotFound = errors.New("index not found")

const (
	metaEmbeddingModel = "embedding_model"
	metaDimension      = "dimension"
)

// Index is the persisted vector index over scraped site chunks, backed by
// SQLite + sqlite-vec. After startup it is read-only and safe for
// unsynchronized concurrent Search calls.
type Index struct {
	db        *sql.DB
	dimension int
}

// Open opens an existing index. It fails with ErrIndexNotFound if nothing
// is persisted at path.
func Open(path string) (*Index, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w at %s", ErrIndexNotFound, path)
	}
	return open(path)
}

// Create prepares a fresh index at path, replacing any prior index there.
func Create(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove prior index: %w", err)
	}
	return open(path)
}

func open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	ix := &Index{db: db}
	if dim, err := ix.GetMeta(metaDimension); err != nil {
		db.Close()
		return nil, fmt.Errorf("read dimension: %w", err)
	} else if dim != "" {
		ix.dimension, err = strconv.Atoi(dim)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("corrupt dimension metadata %q", dim)
		}
	}
	return ix, nil
}

// Rebuild replaces the full contents of the index with the given chunks and
// their embeddings. All vectors must share one dimension; model is recorded
// so a later build with a different embedding model is detectable.
func (ix *Index) Rebuild(model string, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("mismatched chunks (%d) and vectors (%d)", len(chunks), len(vectors))
	}
	dimension := 0
	if len(vectors) > 0 {
		dimension = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dimension)
		}
	}

	// Recreate the vec table so the dimension matches this build.
	if _, err := ix.db.Exec("DROP TABLE IF EXISTS vec_chunks"); err != nil {
		return fmt.Errorf("drop vec table: %w", err)
	}
	if dimension > 0 {
		stmt := fmt.Sprintf(
			"CREATE VIRTUAL TABLE vec_chunks USING vec0(chunk_id INTEGER PRIMARY KEY, embedding float[%d])",
			dimension,
		)
		if _, err := ix.db.Exec(stmt); err != nil {
			return fmt.Errorf("create vec table: %w", err)
		}
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM documents"); err != nil {
		return err
	}

	docIDs := make(map[string]int64)
	seqs := make(map[string]int)
	insertChunk, err := tx.Prepare("INSERT INTO chunks (document_id, seq, content) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer insertChunk.Close()
	insertVec, err := tx.Prepare("INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer insertVec.Close()

	for i, c := range chunks {
		docID, ok := docIDs[c.Source]
		if !ok {
			res, err := tx.Exec("INSERT INTO documents (source) VALUES (?)", c.Source)
			if err != nil {
				return fmt.Errorf("insert document %s: %w", c.Source, err)
			}
			docID, err = res.LastInsertId()
			if err != nil {
				return err
			}
			docIDs[c.Source] = docID
		}

		res, err := insertChunk.Exec(docID, seqs[c.Source], c.Content)
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
		seqs[c.Source]++
		chunkID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %d: %w", chunkID, err)
		}
		if _, err := insertVec.Exec(chunkID, blob); err != nil {
			return fmt.Errorf("insert embedding for chunk %d: %w", chunkID, err)
		}
	}

	if err := setMetaTx(tx, metaEmbeddingModel, model); err != nil {
		return err
	}
	if err := setMetaTx(tx, metaDimension, strconv.Itoa(dimension)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	ix.dimension = dimension
	return nil
}

// Search finds the k stored chunks closest to the query embedding, ranked
// by ascending distance. An index with no stored vectors answers with an
// empty result, not an error. A query vector whose dimension disagrees with
// the stored vectors is an error.
func (ix *Index) Search(queryEmbedding []float32, k int) ([]SearchResult, error) {
	if ix.dimension == 0 {
		return nil, nil
	}
	if len(queryEmbedding) != ix.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(queryEmbedding), ix.dimension)
	}

	blob, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}
	rows, err := ix.db.Query(`
		SELECT v.distance, c.content, d.source
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance
	`, blob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Distance, &r.Content, &r.Source); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Count returns the number of indexed chunks.
func (ix *Index) Count() (int, error) {
	var n int
	err := ix.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// Dimension returns the embedding dimension of the stored vectors, or 0 for
// an empty index.
func (ix *Index) Dimension() int { return ix.dimension }

// EmbeddingModel returns the model name recorded at build time.
func (ix *Index) EmbeddingModel() (string, error) {
	return ix.GetMeta(metaEmbeddingModel)
}

// GetMeta returns a metadata value by key, or "" if not set.
func (ix *Index) GetMeta(key string) (string, error) {
	var value string
	err := ix.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func setMetaTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}
