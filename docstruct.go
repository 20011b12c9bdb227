// Package docstruct turns PDF documents into typed structural blocks,
// contextual chunks with embeddings, and captioned figure/table assets,
// all persisted in SQLite for hybrid retrieval.
package docstruct

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brunobiangulo/docstruct/caption"
	"github.com/brunobiangulo/docstruct/chunker"
	"github.com/brunobiangulo/docstruct/extract"
	"github.com/brunobiangulo/docstruct/llm"
	"github.com/brunobiangulo/docstruct/pdftext"
	"github.com/brunobiangulo/docstruct/report"
	"github.com/brunobiangulo/docstruct/retrieval"
	"github.com/brunobiangulo/docstruct/store"
)

// TextSource yields a document's page count and raw per-page lines.
// The default implementation reads PDFs; tests substitute fakes.
type TextSource interface {
	Read(ctx context.Context, path string) (*pdftext.Result, error)
}

// Engine is the main entry point for the document structuring pipeline.
type Engine interface {
	// AddDocument registers a file in the document registry.
	// Returns the new document ID; the file is not processed yet.
	AddDocument(ctx context.Context, path string) (int64, error)

	// ExtractStructure reads the document's PDF and replaces its typed
	// block set. With overwrite=false it is a no-op when blocks exist.
	ExtractStructure(ctx context.Context, documentID int64, overwrite bool) (*ExtractResult, error)

	// ChunkAndEmbed builds contextual chunks from the stored blocks,
	// embeds them, and replaces the chunk set. With overwrite=false it
	// is a no-op when chunks exist.
	ChunkAndEmbed(ctx context.Context, documentID int64, overwrite bool) (*EmbedResult, error)

	// CaptionAssets captions the document's figure/table assets with
	// the vision model.
	CaptionAssets(ctx context.Context, documentID int64, opts caption.Options) (*caption.Summary, error)

	// Search runs hybrid retrieval over stored chunks.
	Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]store.RetrievalResult, *retrieval.SearchTrace, error)

	// Ask answers a question grounded in retrieved chunks.
	Ask(ctx context.Context, question string, opts retrieval.SearchOptions) (*retrieval.Answer, error)

	// ExportBlocks writes the document's block audit workbook to path.
	ExportBlocks(ctx context.Context, documentID int64, path string) error

	// ListDocuments returns all registered documents.
	ListDocuments(ctx context.Context) ([]store.Document, error)

	// Delete removes a document and all associated data.
	Delete(ctx context.Context, documentID int64) error

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// ExtractResult summarizes a structure extraction run.
type ExtractResult struct {
	DocumentID     int64 `json:"document_id"`
	PagesProcessed int   `json:"pages_processed"`
	BlocksCreated  int   `json:"blocks_created"`
	TitlesCount    int   `json:"titles_count"`
	ListItemsCount int   `json:"list_items_count"`
	Skipped        bool  `json:"skipped,omitempty"`
}

// EmbedResult summarizes a chunk-and-embed run.
type EmbedResult struct {
	DocumentID     int64  `json:"document_id"`
	ChunksCreated  int    `json:"chunks_created"`
	EmbeddingModel string `json:"embedding_model"`
	Skipped        bool   `json:"skipped,omitempty"`
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	store     *store.Store
	source    TextSource
	embedLLM  llm.Provider
	chatLLM   llm.Provider
	visionLLM llm.VisionProvider
	retriever *retrieval.Engine
}

// New creates an engine with the given configuration.
func New(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dbPath := cfg.resolveDBPath()

	s, err := store.New(dbPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	embedLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	chatLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.Chat.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}

	var visionLLM llm.VisionProvider
	if cfg.Vision.Provider != "" {
		visionLLM, err = llm.NewVisionProvider(llm.Config{
			Provider: cfg.Vision.Provider,
			Model:    cfg.Vision.Model,
			BaseURL:  cfg.Vision.BaseURL,
			APIKey:   cfg.Vision.APIKey,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating vision provider: %w", err)
		}
	}

	retriever := retrieval.New(s, embedLLM, chatLLM, retrieval.Config{
		WeightVector: cfg.WeightVector,
		WeightFTS:    cfg.WeightFTS,
	})

	return &engine{
		cfg:       cfg,
		store:     s,
		source:    pdftext.NewReader(),
		embedLLM:  embedLLM,
		chatLLM:   chatLLM,
		visionLLM: visionLLM,
		retriever: retriever,
	}, nil
}

// AddDocument registers a file in the document registry.
func (e *engine) AddDocument(ctx context.Context, path string) (int64, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}
	hash, err := fileHash(absPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFileMissing, err)
	}

	docID, err := e.store.InsertDocument(ctx, store.Document{
		Filename:    filepath.Base(absPath),
		LocalPath:   absPath,
		ContentHash: hash,
		Status:      store.StatusPending,
	})
	if err != nil {
		return 0, fmt.Errorf("registering document: %w", err)
	}
	slog.Info("document registered", "doc_id", docID, "file", filepath.Base(absPath))
	return docID, nil
}

// ExtractStructure runs the PDF through line extraction, boilerplate
// removal, classification, and merging, then replaces the block set.
func (e *engine) ExtractStructure(ctx context.Context, documentID int64, overwrite bool) (*ExtractResult, error) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}

	if doc.LocalPath == "" || !fileExists(doc.LocalPath) {
		msg := fmt.Sprintf("local_path_missing: %s", doc.LocalPath)
		if merr := e.store.MarkDocumentFailed(ctx, documentID, msg); merr != nil {
			return nil, merr
		}
		return nil, fmt.Errorf("%w: %s", ErrFileMissing, doc.LocalPath)
	}

	slog.Info("extract: reading document", "doc_id", documentID, "file", doc.Filename)
	start := time.Now()

	src, err := e.source.Read(ctx, doc.LocalPath)
	if err != nil {
		e.store.MarkDocumentFailed(ctx, documentID, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	blocks, summary := extract.BuildBlocks(src.Pages, extract.Config{
		BoilerplateMinPages: e.cfg.BoilerplateMinPages,
		HeaderFooterBand:    e.cfg.HeaderFooterBand,
	})

	inserted, skipped, err := e.store.ReplaceBlocks(ctx, documentID, blocks, src.PageCount, overwrite)
	if err != nil {
		e.store.MarkDocumentFailed(ctx, documentID, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if skipped {
		slog.Info("extract: blocks already exist, skipping", "doc_id", documentID)
		return &ExtractResult{DocumentID: documentID, Skipped: true}, nil
	}

	slog.Info("extract: complete",
		"doc_id", documentID,
		"file", doc.Filename,
		"pages", summary.PagesProcessed,
		"blocks", inserted,
		"titles", summary.TitlesCount,
		"list_items", summary.ListItemsCount,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &ExtractResult{
		DocumentID:     documentID,
		PagesProcessed: summary.PagesProcessed,
		BlocksCreated:  inserted,
		TitlesCount:    summary.TitlesCount,
		ListItemsCount: summary.ListItemsCount,
	}, nil
}

// ChunkAndEmbed builds chunks from the stored blocks, annotates them
// with asset captions, embeds them in batches, and replaces the chunk
// set in one transaction.
func (e *engine) ChunkAndEmbed(ctx context.Context, documentID int64, overwrite bool) (*EmbedResult, error) {
	if _, err := e.store.GetDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}

	result := &EmbedResult{DocumentID: documentID, EmbeddingModel: e.cfg.Embedding.Model}

	// Skip before paying for embeddings when the chunk set exists.
	if !overwrite {
		existing, err := e.store.GetChunksByDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			slog.Info("embed: chunks already exist, skipping", "doc_id", documentID)
			result.Skipped = true
			return result, nil
		}
	}

	blocks, err := e.store.GetBlocks(ctx, documentID)
	if err != nil {
		return nil, err
	}

	chunks := chunker.ChunkBlocks(blocks, e.cfg.MaxChunkChars)

	assets, err := e.store.ListAssets(ctx, documentID)
	if err != nil {
		return nil, err
	}
	chunker.AnnotateAssets(chunks, chunker.AssetTextsByPage(assets))

	slog.Info("embed: chunking complete",
		"doc_id", documentID, "blocks", len(blocks), "chunks", len(chunks))

	embeddings, err := e.embedChunks(ctx, chunks)
	if err != nil {
		e.store.MarkDocumentFailed(ctx, documentID, err.Error())
		return nil, err
	}

	start := time.Now()
	inserted, skipped, err := e.store.ReplaceChunks(ctx, documentID, chunks, embeddings, overwrite)
	if err != nil {
		e.store.MarkDocumentFailed(ctx, documentID, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if skipped {
		result.Skipped = true
		return result, nil
	}

	slog.Info("embed: complete",
		"doc_id", documentID,
		"chunks", inserted,
		"model", e.cfg.Embedding.Model,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	result.ChunksCreated = inserted
	return result, nil
}

// embedChunks embeds chunk texts in batches, verifying every vector has
// the configured dimension before anything is persisted.
func (e *engine) embedChunks(ctx context.Context, chunks []store.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	batchSize := e.cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedLLM.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(batch), end-start)
		}
		for _, emb := range batch {
			if len(emb) != e.cfg.EmbeddingDim {
				return nil, fmt.Errorf("%w: expected %d, got %d for model %s",
					ErrDimensionMismatch, e.cfg.EmbeddingDim, len(emb), e.cfg.Embedding.Model)
			}
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

// CaptionAssets captions the document's assets with the vision model.
func (e *engine) CaptionAssets(ctx context.Context, documentID int64, opts caption.Options) (*caption.Summary, error) {
	if e.visionLLM == nil {
		return nil, fmt.Errorf("%w: no vision provider configured", ErrCaptioningFailed)
	}
	if _, err := e.store.GetDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}

	label := e.cfg.Vision.Provider + ":" + e.cfg.Vision.Model
	c := caption.New(e.store, e.visionLLM, label)
	summary, err := c.CaptionAssets(ctx, documentID, opts)
	if err != nil {
		return summary, fmt.Errorf("%w: %v", ErrCaptioningFailed, err)
	}
	return summary, nil
}

// Search runs hybrid retrieval over stored chunks.
func (e *engine) Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]store.RetrievalResult, *retrieval.SearchTrace, error) {
	results, trace, err := e.retriever.Search(ctx, query, opts)
	if err != nil {
		return nil, trace, err
	}
	if len(results) == 0 {
		return nil, trace, ErrNoResults
	}
	return results, trace, nil
}

// Ask answers a question grounded in retrieved chunks.
func (e *engine) Ask(ctx context.Context, question string, opts retrieval.SearchOptions) (*retrieval.Answer, error) {
	return e.retriever.Ask(ctx, question, opts)
}

// ExportBlocks writes the block audit workbook for a document.
func (e *engine) ExportBlocks(ctx context.Context, documentID int64, path string) error {
	return report.WriteBlocksXLSX(ctx, e.store, documentID, path)
}

// ListDocuments returns all registered documents.
func (e *engine) ListDocuments(ctx context.Context) ([]store.Document, error) {
	return e.store.ListDocuments(ctx)
}

// Delete removes a document and all its associated data.
func (e *engine) Delete(ctx context.Context, documentID int64) error {
	return e.store.DeleteDocument(ctx, documentID)
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	return e.store.Close()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
