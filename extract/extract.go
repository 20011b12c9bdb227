// Package extract converts a page-oriented stream of typeset text lines
// into a semantically typed block sequence: titles, paragraphs, and list
// items, with repeating running headers and footers removed.
//
// The pipeline is a chain of pure functions over line features — extract,
// detect boilerplate, classify, merge — so each stage is unit-testable
// in isolation from PDF I/O.
package extract

import (
	"github.com/brunobiangulo/docstruct/store"
)

// Config controls structure extraction.
type Config struct {
	// BoilerplateMinPages is the number of distinct pages a header/footer
	// signature must recur on before it is stripped. Fixed count rather
	// than a page fraction; documents shorter than this never have
	// boilerplate removed.
	BoilerplateMinPages int

	// HeaderFooterBand is the fraction of page height at the top and
	// bottom treated as the header/footer band.
	HeaderFooterBand float64
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{
		BoilerplateMinPages: 6,
		HeaderFooterBand:    0.1,
	}
}

// Summary reports what a document-level extraction produced.
type Summary struct {
	PagesProcessed int `json:"pages_processed"`
	BlocksCreated  int `json:"blocks_created"`
	TitlesCount    int `json:"titles_count"`
	ListItemsCount int `json:"list_items_count"`
}

// BuildBlocks runs the full document-level extraction over raw pages:
// line normalization, whole-document boilerplate filtering, per-page
// classification, and merging. Block indices are dense across the whole
// document in page order.
func BuildBlocks(pages []Page, cfg Config) ([]store.Block, Summary) {
	if cfg.BoilerplateMinPages <= 0 {
		cfg.BoilerplateMinPages = 6
	}
	if cfg.HeaderFooterBand <= 0 {
		cfg.HeaderFooterBand = 0.1
	}

	allLines := make([][]Line, len(pages))
	for i, p := range pages {
		allLines[i] = ExtractLines(p, cfg.HeaderFooterBand)
	}

	keys := BoilerplateKeys(allLines, cfg.BoilerplateMinPages)

	var blocks []store.Block
	nextIndex := 0
	for _, lines := range allLines {
		filtered := FilterBoilerplate(lines, keys)
		blocks = append(blocks, BuildPageBlocks(filtered, &nextIndex)...)
	}

	summary := Summary{
		PagesProcessed: len(pages),
		BlocksCreated:  len(blocks),
	}
	for _, b := range blocks {
		switch b.BlockType {
		case store.BlockTitle:
			summary.TitlesCount++
		case store.BlockListItem:
			summary.ListItemsCount++
		}
	}
	return blocks, summary
}
