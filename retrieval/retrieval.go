// Package retrieval performs hybrid search over stored chunks, fusing
// vector similarity and FTS5 full-text matches with Reciprocal Rank
// Fusion, and answers questions grounded in the retrieved sources.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/docstruct/llm"
	"github.com/brunobiangulo/docstruct/store"
)

// Config holds retrieval engine configuration.
type Config struct {
	WeightVector float64
	WeightFTS    float64
}

// SearchOptions configures a single search operation.
type SearchOptions struct {
	// MaxResults caps the fused result count; 0 means the default of 20.
	MaxResults int
	// DocumentID > 0 restricts the search to one document.
	DocumentID int64
	WeightVec  float64
	WeightFTS  float64
}

// SearchTrace records the breakdown of a hybrid search operation.
type SearchTrace struct {
	VecResults   int                       `json:"vec_results"`
	FTSResults   int                       `json:"fts_results"`
	FusedResults int                       `json:"fused_results"`
	VecWeight    float64                   `json:"vec_weight"`
	FTSWeight    float64                   `json:"fts_weight"`
	MaxRequested int                       `json:"max_requested"`
	FTSQuery     string                    `json:"fts_query"`
	ElapsedMs    int64                     `json:"elapsed_ms"`
	PerResult    map[int64]FusedResultInfo `json:"per_result,omitempty"`
}

// Answer is a chat-synthesized response with the sources it drew on.
type Answer struct {
	Text    string                  `json:"text"`
	Sources []store.RetrievalResult `json:"sources"`
	Model   string                  `json:"model"`
}

// Engine performs hybrid retrieval combining vector and FTS search.
type Engine struct {
	store    *store.Store
	embedder llm.Provider
	chat     llm.Provider
	cfg      Config
}

// New creates a retrieval engine. chat is used by Ask; pass nil when
// only Search is needed.
func New(s *store.Store, embedder llm.Provider, chat llm.Provider, cfg Config) *Engine {
	return &Engine{
		store:    s,
		embedder: embedder,
		chat:     chat,
		cfg:      cfg,
	}
}

// Search runs vector and FTS retrieval concurrently and fuses the
// result sets with RRF. Returns fused results and a SearchTrace with
// the full breakdown.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]store.RetrievalResult, *SearchTrace, error) {
	if opts.MaxResults == 0 {
		opts.MaxResults = 20
	}
	if opts.WeightVec == 0 {
		opts.WeightVec = e.cfg.WeightVector
	}
	if opts.WeightFTS == 0 {
		opts.WeightFTS = e.cfg.WeightFTS
	}

	trace := &SearchTrace{
		VecWeight:    opts.WeightVec,
		FTSWeight:    opts.WeightFTS,
		MaxRequested: opts.MaxResults,
	}

	ftsQuery := sanitizeFTSQuery(query)
	trace.FTSQuery = ftsQuery

	slog.Debug("retrieval: starting hybrid search",
		"query_len", len(query), "max_results", opts.MaxResults,
		"weights", fmt.Sprintf("vec=%.1f fts=%.1f", opts.WeightVec, opts.WeightFTS))
	searchStart := time.Now()

	type result struct {
		results []store.RetrievalResult
		err     error
	}

	vecCh := make(chan result, 1)
	ftsCh := make(chan result, 1)

	go func() {
		r, err := e.vectorSearch(ctx, query, opts.MaxResults, opts.DocumentID)
		vecCh <- result{r, err}
	}()

	go func() {
		r, err := e.store.FTSSearch(ctx, ftsQuery, opts.MaxResults, opts.DocumentID)
		ftsCh <- result{r, err}
	}()

	vecRes := <-vecCh
	ftsRes := <-ftsCh

	if vecRes.err != nil {
		slog.Warn("retrieval: vector search failed", "error", vecRes.err)
	}
	if ftsRes.err != nil {
		slog.Warn("retrieval: fts search failed", "error", ftsRes.err)
	}
	trace.VecResults = len(vecRes.results)
	trace.FTSResults = len(ftsRes.results)

	fused, infoMap := fuseRRF(
		vecRes.results, ftsRes.results,
		opts.WeightVec, opts.WeightFTS,
		opts.MaxResults,
	)

	trace.FusedResults = len(fused)
	trace.PerResult = infoMap
	trace.ElapsedMs = time.Since(searchStart).Milliseconds()

	if len(fused) == 0 {
		// If both methods failed, surface the first error.
		if vecRes.err != nil {
			return nil, trace, fmt.Errorf("vector search: %w", vecRes.err)
		}
		if ftsRes.err != nil {
			return nil, trace, fmt.Errorf("fts search: %w", ftsRes.err)
		}
	}

	return fused, trace, nil
}

// Ask searches for relevant chunks and synthesizes an answer grounded
// in them, citing filenames and pages.
func (e *Engine) Ask(ctx context.Context, question string, opts SearchOptions) (*Answer, error) {
	if e.chat == nil {
		return nil, fmt.Errorf("retrieval: no chat provider configured")
	}

	sources, _, err := e.Search(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("retrieval: no matching chunks for question")
	}

	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: askSystemPrompt},
			{Role: "user", Content: buildAskPrompt(question, buildContext(sources))},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("answer synthesis: %w", err)
	}

	return &Answer{
		Text:    strings.TrimSpace(resp.Content),
		Sources: sources,
		Model:   resp.Model,
	}, nil
}

// vectorSearch generates an embedding for the query and searches vec_chunks.
func (e *Engine) vectorSearch(ctx context.Context, query string, k int, docID int64) ([]store.RetrievalResult, error) {
	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return e.store.VectorSearch(ctx, embeddings[0], k, docID)
}

const askSystemPrompt = `You are a precise document analysis assistant. Answer questions based ONLY on the provided context.
Rules:
1. Only state facts that are directly supported by the provided sources.
2. Cite sources by referencing the document filename and page when possible.
3. If the context doesn't contain enough information to answer, say so explicitly.
4. Be concise but thorough.`

func buildContext(chunks []store.RetrievalResult) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "--- Source %d: %s", i+1, c.Filename)
		if c.Page > 0 {
			fmt.Fprintf(&b, " | Page %d", c.Page)
		}
		b.WriteString(" ---\n")
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func buildAskPrompt(question, context string) string {
	return fmt.Sprintf(`Context:
%s

Question: %s

Provide a detailed answer based only on the context above. Cite specific sources.`, context, question)
}
