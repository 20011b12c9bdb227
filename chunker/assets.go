package chunker

import (
	"strings"

	"github.com/brunobiangulo/docstruct/store"
)

// assetLabel is the fixed prefix line introducing caption text.
const assetLabel = "Related figure/table:"

// AssetText renders one captioned asset as appendable text: the label
// line (with the caption inline when present) followed by any table
// content. Returns "" for assets with neither.
func AssetText(a store.Asset) string {
	caption := strings.TrimSpace(a.CaptionText)
	table := strings.TrimSpace(a.TableContent)
	if caption == "" && table == "" {
		return ""
	}
	var lines []string
	if caption != "" {
		lines = append(lines, assetLabel+" "+caption)
	} else {
		lines = append(lines, assetLabel)
	}
	if table != "" {
		lines = append(lines, table)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// AssetTextsByPage groups rendered asset texts by page number, keeping
// asset order. Assets without a page or without any caption content are
// skipped.
func AssetTextsByPage(assets []store.Asset) map[int][]string {
	byPage := make(map[int][]string)
	for _, a := range assets {
		if a.PageNumber == 0 {
			continue
		}
		if text := AssetText(a); text != "" {
			byPage[a.PageNumber] = append(byPage[a.PageNumber], text)
		}
	}
	return byPage
}

// AnnotateAssets appends each page's caption text, newline-joined, to
// the last chunk on that page. Captions are page-scoped rather than
// block-scoped, so this is an approximation. Pages with no caption data
// or no chunk are left untouched. Chunks are modified in place.
func AnnotateAssets(chunks []store.Chunk, byPage map[int][]string) {
	for page, texts := range byPage {
		assetText := strings.TrimSpace(strings.Join(texts, "\n"))
		if assetText == "" {
			continue
		}
		for i := len(chunks) - 1; i >= 0; i-- {
			if chunks[i].Page == page {
				chunks[i].Text = strings.TrimSpace(chunks[i].Text + "\n" + assetText)
				break
			}
		}
	}
}
