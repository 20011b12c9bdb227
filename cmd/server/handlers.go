package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brunobiangulo/docstruct"
	"github.com/brunobiangulo/docstruct/caption"
	"github.com/brunobiangulo/docstruct/retrieval"
)

type handler struct {
	engine docstruct.Engine
}

func newHandler(e docstruct.Engine) *handler {
	return &handler{engine: e}
}

// uploadDir resolves where uploaded documents are stored. Files must
// outlive the request: extraction reads them again later.
func uploadDir() (string, error) {
	if dir := os.Getenv("DOCSTRUCT_UPLOAD_DIR"); dir != "" {
		return dir, os.MkdirAll(dir, 0o755)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".docstruct", "uploads")
	return dir, os.MkdirAll(dir, 0o755)
}

// POST /documents
// Accepts a multipart file upload or JSON with a file path.
func (h *handler) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			// Sanitise filename to prevent path traversal.
			safeName := filepath.Base(header.Filename)

			dir, err := uploadDir()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to resolve upload dir")
				slog.Error("resolving upload dir", "error", err)
				return
			}
			destPath := filepath.Join(dir, safeName)
			dst, err := os.Create(destPath)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("creating upload file", "error", err)
				return
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			dst.Close()

			docID, err := h.engine.AddDocument(ctx, destPath)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "registration failed")
				slog.Error("add document error", "error", err)
				return
			}

			writeJSON(w, http.StatusOK, map[string]any{
				"document_id": docID,
				"filename":    safeName,
			})
			return
		}
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	docID, err := h.engine.AddDocument(ctx, absPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		slog.Error("add document error", "path", absPath, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID,
		"path":        absPath,
	})
}

// POST /documents/{id}/extract
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Overwrite bool `json:"overwrite"`
	}
	decodeOptionalBody(r, &req)

	result, err := h.engine.ExtractStructure(ctx, docID, req.Overwrite)
	if err != nil {
		writeEngineError(w, err, "extraction failed")
		slog.Error("extract error", "document_id", docID, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /documents/{id}/embed
func (h *handler) handleEmbed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Overwrite bool `json:"overwrite"`
	}
	decodeOptionalBody(r, &req)

	result, err := h.engine.ChunkAndEmbed(ctx, docID, req.Overwrite)
	if err != nil {
		writeEngineError(w, err, "embedding failed")
		slog.Error("embed error", "document_id", docID, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /documents/{id}/caption
func (h *handler) handleCaption(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Overwrite  bool `json:"overwrite"`
		Limit      int  `json:"limit"`
		SkipTables bool `json:"skip_tables"`
	}
	decodeOptionalBody(r, &req)

	summary, err := h.engine.CaptionAssets(ctx, docID, caption.Options{
		Overwrite:  req.Overwrite,
		Limit:      req.Limit,
		SkipTables: req.SkipTables,
	})
	if err != nil {
		writeEngineError(w, err, "captioning failed")
		slog.Error("caption error", "document_id", docID, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// POST /documents/{id}/export
// Writes the block audit workbook and streams it back.
func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}

	tmp, err := os.CreateTemp("", "docstruct-blocks-*.xlsx")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := h.engine.ExportBlocks(r.Context(), docID, tmpPath); err != nil {
		writeEngineError(w, err, "export failed")
		slog.Error("export error", "document_id", docID, "error", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="blocks.xlsx"`)
	http.ServeFile(w, r, tmpPath)
}

// POST /search
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		Query      string  `json:"query"`
		MaxResults int     `json:"max_results,omitempty"`
		DocumentID int64   `json:"document_id,omitempty"`
		WeightVec  float64 `json:"weight_vector,omitempty"`
		WeightFTS  float64 `json:"weight_fts,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.MaxResults < 0 || req.MaxResults > 100 {
		req.MaxResults = 0 // use default
	}

	results, trace, err := h.engine.Search(ctx, req.Query, retrieval.SearchOptions{
		MaxResults: req.MaxResults,
		DocumentID: req.DocumentID,
		WeightVec:  req.WeightVec,
		WeightFTS:  req.WeightFTS,
	})
	if err != nil {
		if errors.Is(err, docstruct.ErrNoResults) {
			writeJSON(w, http.StatusOK, map[string]any{"results": []any{}, "trace": trace})
			return
		}
		writeError(w, http.StatusInternalServerError, "search failed")
		slog.Error("search error", "query", req.Query, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"trace":   trace,
	})
}

// POST /ask
func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req struct {
		Question   string `json:"question"`
		MaxResults int    `json:"max_results,omitempty"`
		DocumentID int64  `json:"document_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := h.engine.Ask(ctx, req.Question, retrieval.SearchOptions{
		MaxResults: req.MaxResults,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ask failed")
		slog.Error("ask error", "question", req.Question, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}

	if err := h.engine.Delete(r.Context(), docID); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		slog.Error("delete error", "document_id", docID, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		slog.Error("list documents error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func docIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return 0, false
	}
	return id, true
}

// decodeOptionalBody decodes a JSON body if one is present; an empty
// body leaves the target at its zero value.
func decodeOptionalBody(r *http.Request, v any) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(v)
}

// writeEngineError maps sentinel errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, docstruct.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, docstruct.ErrFileMissing):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
