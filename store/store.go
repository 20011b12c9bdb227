package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Document represents a row in the documents table.
type Document struct {
	ID           int64      `json:"id"`
	Filename     string     `json:"filename"`
	Title        string     `json:"title,omitempty"`
	SourceURL    string     `json:"source_url,omitempty"`
	LocalPath    string     `json:"local_path,omitempty"`
	ContentHash  string     `json:"content_hash,omitempty"`
	PageCount    int        `json:"page_count,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    string     `json:"created_at"`
	UpdatedAt    string     `json:"updated_at"`
}

// Block represents a row in the document_blocks table: one finalized,
// typed span of merged text. BlockIndex is dense and unique per document.
type Block struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	PageNumber int     `json:"page_number"`
	BlockIndex int     `json:"block_index"`
	BlockType  string  `json:"block_type"`
	Text       string  `json:"text"`
	FontSize   float64 `json:"font_size,omitempty"` // 0 is stored as NULL
	IsBold     bool    `json:"is_bold"`
}

// Chunk represents a row in the chunks table.
type Chunk struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Page       int    `json:"page"`
	Text       string `json:"text"`
}

// Asset represents a cropped figure/table image row with caption fields.
type Asset struct {
	ID            int64      `json:"id"`
	DocumentID    int64      `json:"document_id"`
	PageNumber    int        `json:"page_number"`
	AssetType     string     `json:"asset_type"` // "figure" or "table"
	LocalPath     string     `json:"local_path"`
	CaptionText   string     `json:"caption_text,omitempty"`
	CaptionModel  string     `json:"caption_model,omitempty"`
	TableContent  string     `json:"table_content,omitempty"`
	TableModel    string     `json:"table_model,omitempty"`
	CaptionStatus string     `json:"caption_status"`
	CaptionError  string     `json:"caption_error,omitempty"`
	CaptionedAt   *time.Time `json:"captioned_at,omitempty"`
}

// RetrievalResult holds a chunk with its retrieval score and document info.
type RetrievalResult struct {
	ChunkID    int64   `json:"chunk_id"`
	DocumentID int64   `json:"document_id"`
	Text       string  `json:"text"`
	Page       int     `json:"page"`
	Filename   string  `json:"filename"`
	Title      string  `json:"title,omitempty"`
	Score      float64 `json:"score"`
}

// Store wraps the SQLite database for all docstruct persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Document operations ---

// InsertDocument creates a new document row. Returns the document ID.
func (s *Store) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	status := doc.Status
	if status == "" {
		status = StatusPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (filename, title, source_url, local_path, content_hash, page_count, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, doc.Filename, nullString(doc.Title), nullString(doc.SourceURL),
		nullString(doc.LocalPath), nullString(doc.ContentHash), nullInt(doc.PageCount), status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, title, source_url, local_path, content_hash,
			page_count, status, error_message, processed_at, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// ListDocuments returns all documents ordered by creation time, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, title, source_url, local_path, content_hash,
			page_count, status, error_message, processed_at, created_at, updated_at
		FROM documents ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// MarkDocumentFailed sets status to failed with the given error message
// and stamps processed_at. The message is truncated to a bounded length.
func (s *Store) MarkDocumentFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, error_message = ?,
			processed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, StatusFailed, truncate(errMsg, MaxErrorLength), id)
	return err
}

// MaxErrorLength bounds persisted error messages.
const MaxErrorLength = 2000

// DeleteDocument removes a document and cascades to all related data.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_chunks WHERE chunk_id IN (
				SELECT id FROM chunks WHERE document_id = ?
			)`, id); err != nil {
			return err
		}
		// Chunk deletion triggers clean up FTS.
		for _, q := range []string{
			"DELETE FROM chunks WHERE document_id = ?",
			"DELETE FROM document_blocks WHERE document_id = ?",
			"DELETE FROM document_assets WHERE document_id = ?",
			"DELETE FROM documents WHERE id = ?",
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Block operations ---

// ReplaceBlocks persists a freshly extracted block set for a document in
// one transaction: (optionally) delete the old set, insert the new one,
// and update the document's page count and status to text_structured.
// Commits exactly once; any failure rolls the whole write back.
//
// With overwrite=false it is a no-op returning 0 if any block already
// exists for the document. The skipped flag reports that case.
func (s *Store) ReplaceBlocks(ctx context.Context, docID int64, blocks []Block, pageCount int, overwrite bool) (inserted int, skipped bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if !overwrite {
			var one int
			err := tx.QueryRowContext(ctx,
				"SELECT 1 FROM document_blocks WHERE document_id = ? LIMIT 1", docID).Scan(&one)
			if err == nil {
				skipped = true
				return nil
			}
			if err != sql.ErrNoRows {
				return err
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM document_blocks WHERE document_id = ?", docID); err != nil {
				return err
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO document_blocks (document_id, page_number, block_index, block_type, text, font_size, is_bold)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range blocks {
			if _, err := stmt.ExecContext(ctx, docID, b.PageNumber, b.BlockIndex,
				b.BlockType, b.Text, nullFloat(b.FontSize), b.IsBold); err != nil {
				return err
			}
			inserted++
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET page_count = ?, status = ?, error_message = NULL,
				processed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, pageCount, StatusTextStructured, docID)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	if skipped {
		return 0, true, nil
	}
	return inserted, false, nil
}

// GetBlocks returns all blocks for a document ordered by block_index.
func (s *Store) GetBlocks(ctx context.Context, docID int64) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, page_number, block_index, block_type, text, font_size, is_bold
		FROM document_blocks WHERE document_id = ? ORDER BY block_index
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		var fontSize sql.NullFloat64
		var isBold sql.NullBool
		if err := rows.Scan(&b.ID, &b.DocumentID, &b.PageNumber, &b.BlockIndex,
			&b.BlockType, &b.Text, &fontSize, &isBold); err != nil {
			return nil, err
		}
		b.FontSize = fontSize.Float64
		b.IsBold = isBold.Bool
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// --- Chunk operations ---

// ReplaceChunks persists the chunk set and its embeddings for a document
// in one transaction and advances the document status to embedded.
// embeddings must be parallel to chunks; a nil embeddings slice stores
// chunks without vectors.
//
// With overwrite=false it is a no-op returning 0 if any chunk already
// exists for the document.
func (s *Store) ReplaceChunks(ctx context.Context, docID int64, chunks []Chunk, embeddings [][]float32, overwrite bool) (inserted int, skipped bool, err error) {
	if embeddings != nil && len(embeddings) != len(chunks) {
		return 0, false, fmt.Errorf("embeddings length %d does not match chunks length %d", len(embeddings), len(chunks))
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if !overwrite {
			var one int
			err := tx.QueryRowContext(ctx,
				"SELECT 1 FROM chunks WHERE document_id = ? LIMIT 1", docID).Scan(&one)
			if err == nil {
				skipped = true
				return nil
			}
			if err != sql.ErrNoRows {
				return err
			}
		} else {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM vec_chunks WHERE chunk_id IN (
					SELECT id FROM chunks WHERE document_id = ?
				)`, docID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM chunks WHERE document_id = ?", docID); err != nil {
				return err
			}
		}

		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO chunks (document_id, page, text) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, c := range chunks {
			res, err := stmt.ExecContext(ctx, docID, c.Page, c.Text)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if embeddings != nil {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)",
					id, serializeFloat32(embeddings[i])); err != nil {
					return err
				}
			}
			inserted++
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET status = ?, error_message = NULL,
				processed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, StatusEmbedded, docID)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	if skipped {
		return 0, true, nil
	}
	return inserted, false, nil
}

// GetChunksByDocument returns all chunks for a document in insertion order.
func (s *Store) GetChunksByDocument(ctx context.Context, docID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, page, text FROM chunks
		WHERE document_id = ? ORDER BY id
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var page sql.NullInt64
		if err := rows.Scan(&c.ID, &c.DocumentID, &page, &c.Text); err != nil {
			return nil, err
		}
		c.Page = int(page.Int64)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// --- Asset operations ---

// InsertAsset records a cropped figure/table asset for a document.
func (s *Store) InsertAsset(ctx context.Context, a Asset) (int64, error) {
	status := a.CaptionStatus
	if status == "" {
		status = CaptionPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO document_assets (document_id, page_number, asset_type, local_path, caption_status)
		VALUES (?, ?, ?, ?, ?)
	`, a.DocumentID, a.PageNumber, a.AssetType, a.LocalPath, status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListAssets returns all assets for a document ordered by id.
func (s *Store) ListAssets(ctx context.Context, docID int64) ([]Asset, error) {
	return s.queryAssets(ctx, `
		SELECT id, document_id, page_number, asset_type, local_path,
			caption_text, caption_model, table_content, table_model,
			caption_status, caption_error, captioned_at
		FROM document_assets WHERE document_id = ? ORDER BY id
	`, docID)
}

// ListPendingAssets returns assets of a document still awaiting captions.
func (s *Store) ListPendingAssets(ctx context.Context, docID int64) ([]Asset, error) {
	return s.queryAssets(ctx, `
		SELECT id, document_id, page_number, asset_type, local_path,
			caption_text, caption_model, table_content, table_model,
			caption_status, caption_error, captioned_at
		FROM document_assets WHERE document_id = ? AND caption_status = ? ORDER BY id
	`, docID, CaptionPending)
}

func (s *Store) queryAssets(ctx context.Context, query string, args ...any) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		var page sql.NullInt64
		var captionText, captionModel, tableContent, tableModel, captionErr sql.NullString
		var captionedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.DocumentID, &page, &a.AssetType, &a.LocalPath,
			&captionText, &captionModel, &tableContent, &tableModel,
			&a.CaptionStatus, &captionErr, &captionedAt); err != nil {
			return nil, err
		}
		a.PageNumber = int(page.Int64)
		a.CaptionText = captionText.String
		a.CaptionModel = captionModel.String
		a.TableContent = tableContent.String
		a.TableModel = tableModel.String
		a.CaptionError = captionErr.String
		if captionedAt.Valid {
			t := captionedAt.Time
			a.CaptionedAt = &t
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// UpdateAssetCaption stores a successful caption result for an asset.
func (s *Store) UpdateAssetCaption(ctx context.Context, id int64, captionText, captionModel, tableContent, tableModel string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_assets SET caption_text = ?, caption_model = ?,
			table_content = ?, table_model = ?, caption_status = ?,
			caption_error = NULL, captioned_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, nullString(captionText), nullString(captionModel),
		nullString(tableContent), nullString(tableModel), CaptionDone, id)
	return err
}

// MarkAssetCaptionFailed records a caption failure with a bounded message.
func (s *Store) MarkAssetCaptionFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_assets SET caption_status = ?, caption_error = ?,
			captioned_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, CaptionFailed, truncate(errMsg, MaxErrorLength), id)
	return err
}

// --- Search operations ---

// VectorSearch performs a KNN search returning the top-k nearest chunks.
// docID > 0 restricts results to one document.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k int, docID int64) ([]RetrievalResult, error) {
	query := `
		SELECT v.chunk_id, v.distance, c.text, c.page, c.document_id,
			d.filename, COALESCE(d.title, '')
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE v.embedding MATCH ? AND k = ?`
	args := []any{serializeFloat32(queryEmbedding), k}
	if docID > 0 {
		query += " AND c.document_id = ?"
		args = append(args, docID)
	}
	query += " ORDER BY v.distance"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RetrievalResult
	for rows.Next() {
		var r RetrievalResult
		var distance float64
		var page sql.NullInt64
		if err := rows.Scan(&r.ChunkID, &distance, &r.Text, &page,
			&r.DocumentID, &r.Filename, &r.Title); err != nil {
			return nil, err
		}
		r.Page = int(page.Int64)
		// Convert distance to similarity score (1 - distance for cosine)
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// FTSSearch performs a full-text search using FTS5 BM25 ranking.
// docID > 0 restricts results to one document.
func (s *Store) FTSSearch(ctx context.Context, query string, limit int, docID int64) ([]RetrievalResult, error) {
	sqlQuery := `
		SELECT f.rowid, f.rank, c.text, c.page, c.document_id,
			d.filename, COALESCE(d.title, '')
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE chunks_fts MATCH ?`
	args := []any{query}
	if docID > 0 {
		sqlQuery += " AND c.document_id = ?"
		args = append(args, docID)
	}
	sqlQuery += " ORDER BY f.rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RetrievalResult
	for rows.Next() {
		var r RetrievalResult
		var rank float64
		var page sql.NullInt64
		if err := rows.Scan(&r.ChunkID, &rank, &r.Text, &page,
			&r.DocumentID, &r.Filename, &r.Title); err != nil {
			return nil, err
		}
		r.Page = int(page.Int64)
		// FTS5 rank is negative (lower = better), convert to positive score
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	d := &Document{}
	var title, sourceURL, localPath, contentHash, errMsg sql.NullString
	var pageCount sql.NullInt64
	var processedAt sql.NullTime
	err := row.Scan(&d.ID, &d.Filename, &title, &sourceURL, &localPath, &contentHash,
		&pageCount, &d.Status, &errMsg, &processedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Title = title.String
	d.SourceURL = sourceURL.String
	d.LocalPath = localPath.String
	d.ContentHash = contentHash.String
	d.PageCount = int(pageCount.Int64)
	d.ErrorMessage = errMsg.String
	if processedAt.Valid {
		t := processedAt.Time
		d.ProcessedAt = &t
	}
	return d, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
