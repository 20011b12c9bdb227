// Package chunker repackages a document's typed block sequence into
// bounded-length, context-preserving text chunks. Blocks are grouped
// into sections anchored at titles, sections into paragraph-terminated
// units, and units are greedily packed into chunks with a one-paragraph
// overlap carried across each split.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/brunobiangulo/docstruct/store"
)

// DefaultMaxChars is the chunk size bound when none is configured.
const DefaultMaxChars = 2000

// Section is the content owned by one TITLE block until the next.
// Blocks preceding the first title form an implicit section with an
// empty title. Sections are in-memory only, never persisted.
type Section struct {
	Page   int
	Title  string
	Blocks []store.Block // non-title blocks in document order
}

// Unit is the atomic item the splitter packs: a run of segments ending
// at a paragraph boundary. ParagraphText is the terminating paragraph's
// own text, used as the overlap seed; empty for a trailing run with no
// terminating paragraph.
type Unit struct {
	Text          string
	ParagraphText string
}

// BuildSections walks the ordered block stream once, opening a new
// section at every TITLE block.
func BuildSections(blocks []store.Block) []Section {
	var sections []Section
	current := Section{}

	flush := func() {
		if current.Title != "" || len(current.Blocks) > 0 {
			sections = append(sections, current)
		}
	}

	for _, b := range blocks {
		if b.BlockType == store.BlockTitle {
			flush()
			current = Section{Page: b.PageNumber, Title: b.Text}
			continue
		}
		if current.Page == 0 {
			current.Page = b.PageNumber
		}
		current.Blocks = append(current.Blocks, b)
	}
	flush()

	return sections
}

// BuildUnits converts a section's blocks into the unit sequence.
// Consecutive list items collapse into one newline-joined segment; a run
// of segments closes into a unit when a paragraph segment ends it.
func BuildUnits(sec Section) []Unit {
	type segment struct {
		blockType string
		text      string
	}

	var segments []segment
	var listBuffer []string
	for _, b := range sec.Blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		if b.BlockType == store.BlockListItem {
			listBuffer = append(listBuffer, text)
			continue
		}
		if len(listBuffer) > 0 {
			segments = append(segments, segment{store.BlockListItem, strings.Join(listBuffer, "\n")})
			listBuffer = nil
		}
		segments = append(segments, segment{b.BlockType, text})
	}
	if len(listBuffer) > 0 {
		segments = append(segments, segment{store.BlockListItem, strings.Join(listBuffer, "\n")})
	}

	var units []Unit
	var run []string
	for _, seg := range segments {
		run = append(run, seg.text)
		if seg.blockType == store.BlockParagraph {
			text := strings.TrimSpace(strings.Join(run, "\n"))
			if text != "" {
				units = append(units, Unit{Text: text, ParagraphText: seg.text})
			}
			run = nil
		}
	}
	if len(run) > 0 {
		text := strings.TrimSpace(strings.Join(run, "\n"))
		if text != "" {
			units = append(units, Unit{Text: text})
		}
	}
	return units
}

// composeChunkText joins the section title and unit texts with newlines.
func composeChunkText(title string, units []Unit) string {
	parts := make([]string, 0, len(units)+1)
	if title != "" {
		parts = append(parts, title)
	}
	for _, u := range units {
		if u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// SplitUnits greedily packs units into chunk texts bounded by maxChars.
// When a chunk closes on overflow, the next chunk is seeded with the
// last packed unit's ParagraphText so context survives the split. A
// single unit larger than the bound is emitted uncut.
func SplitUnits(title string, units []Unit, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	title = strings.TrimSpace(title)

	if len(units) == 0 {
		if title != "" {
			return []string{title}
		}
		return nil
	}

	var chunks []string
	var current []Unit

	for _, unit := range units {
		candidate := composeChunkText(title, append(current[:len(current):len(current)], unit))
		if len(current) > 0 && utf8.RuneCountInString(candidate) > maxChars {
			if text := composeChunkText(title, current); text != "" {
				chunks = append(chunks, text)
			}
			overlap := current[len(current)-1].ParagraphText
			current = nil
			if overlap != "" {
				current = append(current, Unit{Text: overlap, ParagraphText: overlap})
			}
		}
		current = append(current, unit)
	}

	if len(current) > 0 {
		if text := composeChunkText(title, current); text != "" {
			chunks = append(chunks, text)
		}
	}
	return chunks
}

// ChunkBlocks converts a document's ordered block stream into chunks.
// Each chunk carries the page of its section anchor. Sections that
// produce no content chunks but have a title emit a title-only chunk.
func ChunkBlocks(blocks []store.Block, maxChars int) []store.Chunk {
	var chunks []store.Chunk
	for _, sec := range BuildSections(blocks) {
		page := sec.Page
		if page == 0 {
			page = 1
		}
		texts := SplitUnits(sec.Title, BuildUnits(sec), maxChars)
		for _, text := range texts {
			chunks = append(chunks, store.Chunk{Page: page, Text: text})
		}
	}
	return chunks
}
