package store

import "fmt"

// Block type vocabulary persisted in document_blocks.block_type.
const (
	BlockTitle     = "TITLE"
	BlockParagraph = "PARAGRAPH"
	BlockListItem  = "LIST_ITEM"
)

// Document status vocabulary. The engine only ever writes these; the
// surrounding system owns the full life cycle.
const (
	StatusPending        = "pending"
	StatusTextStructured = "text_structured"
	StatusEmbedded       = "embedded"
	StatusFailed         = "failed"
)

// Asset caption status vocabulary.
const (
	CaptionPending = "pending"
	CaptionDone    = "done"
	CaptionFailed  = "failed"
)

// Asset type vocabulary persisted in document_assets.asset_type.
const (
	AssetFigure = "figure"
	AssetTable  = "table"
)

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Document registry
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    filename TEXT NOT NULL,
    title TEXT,
    source_url TEXT,
    local_path TEXT,
    content_hash TEXT,
    page_count INTEGER,
    status TEXT NOT NULL DEFAULT 'pending',
    error_message TEXT,
    processed_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Typed structure blocks produced by extraction.
-- block_index is dense and unique per document.
CREATE TABLE IF NOT EXISTS document_blocks (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    block_index INTEGER NOT NULL,
    block_type TEXT NOT NULL,
    text TEXT NOT NULL,
    font_size REAL,
    is_bold BOOLEAN,
    UNIQUE(document_id, block_index)
);

-- Context-preserving chunks built from blocks.
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page INTEGER,
    text TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Cropped figure/table assets with caption fields. Rows are created by
-- the external cropping component; captioning fills the caption fields.
CREATE TABLE IF NOT EXISTS document_assets (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page_number INTEGER,
    asset_type TEXT NOT NULL,
    local_path TEXT NOT NULL,
    caption_text TEXT,
    caption_model TEXT,
    table_content TEXT,
    table_model TEXT,
    caption_status TEXT NOT NULL DEFAULT 'pending',
    caption_error TEXT,
    captioned_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Vector embeddings via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Full-text search via FTS5
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    text,
    content='chunks',
    content_rowid='id',
    tokenize='porter unicode61'
);

-- FTS triggers to keep index in sync
CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
    INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
END;

-- Indexes
CREATE INDEX IF NOT EXISTS idx_blocks_document ON document_blocks(document_id, block_index);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_assets_document ON document_assets(document_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`, embeddingDim)
}
