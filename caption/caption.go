// Package caption generates descriptions for cropped figure and table
// assets using a vision model, and persists them on the asset rows.
package caption

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brunobiangulo/docstruct/llm"
	"github.com/brunobiangulo/docstruct/store"
)

const (
	figurePrompt = "Give a concise description (1-2 sentences), then add a 'Data' section " +
		"listing the readable labels, axes, series, and values. Do not guess values. " +
		"If this is a chart, mention the visible trends."

	tablePrompt = "Return only a JSON object with the keys caption and content. " +
		"caption must summarize the table and point out trends or key figures. " +
		"content must be a Markdown table if possible, otherwise a plain-text table. " +
		"Do not add any text outside the JSON."

	defaultMaxTokens = 512
)

// tableTokens mark an asset type as tabular.
var tableTokens = []string{"table", "grid", "tabular"}

// Captioner drives a vision provider over a document's stored assets.
type Captioner struct {
	store      *store.Store
	vision     llm.VisionProvider
	modelLabel string
	maxTokens  int
}

// New returns a Captioner. modelLabel identifies the provider and model
// recorded on captioned rows, e.g. "ollama:llama3.2-vision".
func New(st *store.Store, vision llm.VisionProvider, modelLabel string) *Captioner {
	return &Captioner{
		store:      st,
		vision:     vision,
		modelLabel: modelLabel,
		maxTokens:  defaultMaxTokens,
	}
}

// Options controls a captioning run.
type Options struct {
	// Overwrite re-captions assets that already have a result.
	Overwrite bool
	// Limit caps how many assets are processed; 0 means no cap.
	Limit int
	// SkipTables leaves tabular assets untouched.
	SkipTables bool
}

// Summary reports the outcome of a captioning run.
type Summary struct {
	Processed int `json:"processed"`
	Captioned int `json:"captioned"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// CaptionAssets captions a document's pending assets (or all of them
// with Overwrite). Per-asset failures are recorded on the asset row and
// do not abort the run.
func (c *Captioner) CaptionAssets(ctx context.Context, docID int64, opts Options) (*Summary, error) {
	var assets []store.Asset
	var err error
	if opts.Overwrite {
		assets, err = c.store.ListAssets(ctx, docID)
	} else {
		assets, err = c.store.ListPendingAssets(ctx, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}

	summary := &Summary{}
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if opts.Limit > 0 && summary.Processed >= opts.Limit {
			break
		}

		isTable := isTableAsset(a)
		if isTable && opts.SkipTables {
			summary.Skipped++
			continue
		}
		summary.Processed++

		start := time.Now()
		caption, content, err := c.captionOne(ctx, a, isTable)
		if err != nil {
			slog.Warn("captioning asset failed",
				"asset_id", a.ID,
				"doc_id", docID,
				"error", err,
			)
			if merr := c.store.MarkAssetCaptionFailed(ctx, a.ID, err.Error()); merr != nil {
				return summary, fmt.Errorf("recording caption failure: %w", merr)
			}
			summary.Failed++
			continue
		}

		tableModel := ""
		if content != "" {
			tableModel = c.modelLabel
		}
		if err := c.store.UpdateAssetCaption(ctx, a.ID, caption, c.modelLabel, content, tableModel); err != nil {
			return summary, fmt.Errorf("saving caption: %w", err)
		}
		summary.Captioned++

		slog.Debug("asset captioned",
			"asset_id", a.ID,
			"type", a.AssetType,
			"elapsed", time.Since(start),
		)
	}
	return summary, nil
}

func (c *Captioner) captionOne(ctx context.Context, a store.Asset, isTable bool) (caption, content string, err error) {
	dataURL, err := imageDataURL(a.LocalPath)
	if err != nil {
		return "", "", err
	}

	prompt := figurePrompt
	if isTable {
		prompt = tablePrompt
	}

	resp, err := c.vision.ChatWithImages(ctx, llm.VisionChatRequest{
		Messages: []llm.VisionMessage{
			{
				Role: "user",
				Content: []llm.ContentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &llm.ImageURL{URL: dataURL}},
				},
			},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", "", fmt.Errorf("vision request: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if isTable {
		caption, content = ParseTableResponse(text)
	} else {
		caption = text
	}
	if caption == "" && content == "" {
		return "", "", fmt.Errorf("empty caption response")
	}
	return caption, content, nil
}

// isTableAsset reports whether the asset type names a tabular crop.
func isTableAsset(a store.Asset) bool {
	label := strings.ToLower(a.AssetType)
	for _, token := range tableTokens {
		if strings.Contains(label, token) {
			return true
		}
	}
	return false
}

// imageDataURL reads the asset image and encodes it as a base64 data URL.
func imageDataURL(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("asset has no local path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading asset image: %w", err)
	}
	return "data:" + imageMIMEType(path) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// imageMIMEType guesses the MIME type from the file extension, defaulting
// to JPEG.
func imageMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ParseTableResponse extracts caption and content from a table response.
// Models asked for bare JSON still wrap it in prose or code fences often
// enough that the parse has to hunt for the outermost object and fall
// back to plain text when no JSON is found.
func ParseTableResponse(text string) (caption, content string) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return "", ""
	}

	candidates := []string{cleaned}
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			candidates = append([]string{cleaned[start : end+1]}, candidates...)
		}
	}

	for _, candidate := range candidates {
		var data map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &data); err != nil {
			continue
		}
		caption = decodeField(data["caption"])
		content = decodeField(data["content"])
		return caption, content
	}

	// No JSON found: first line becomes the caption, the whole text the
	// table content.
	firstLine, _, _ := strings.Cut(cleaned, "\n")
	return strings.TrimSpace(firstLine), cleaned
}

// decodeField renders a JSON field as trimmed text. Strings decode
// normally; objects and arrays are kept as indented JSON.
func decodeField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if v == nil {
		return ""
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	return strings.TrimSpace(string(out))
}
