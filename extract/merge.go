package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/brunobiangulo/docstruct/store"
)

// titleMergeMaxLen bounds both sides of a TITLE+TITLE merge; headings
// that have already grown past it stop absorbing neighbours.
const titleMergeMaxLen = 80

// openBlock is the merger's single accumulator: the one block currently
// being grown. It is closed and reopened whenever the incoming line does
// not continue it.
type openBlock struct {
	blockType  string
	text       string
	pageNumber int
	fontSize   float64
	isBold     bool
}

// shouldMerge decides whether a classified line continues the open block.
func shouldMerge(cur *openBlock, blockType, text string, pageNumber int) bool {
	if cur.blockType != blockType {
		return false
	}
	switch blockType {
	case store.BlockTitle:
		if cur.pageNumber != pageNumber {
			return false
		}
		return utf8.RuneCountInString(cur.text) <= titleMergeMaxLen &&
			utf8.RuneCountInString(text) <= titleMergeMaxLen
	case store.BlockListItem:
		return true
	case store.BlockParagraph:
		// A period followed by an uppercase start reads as a new paragraph.
		return !(endsWithPeriod(cur.text) && startsWithUpper(text))
	}
	return false
}

// appendText joins the incoming line onto the open block's text:
// newline-joined for list items, space-joined otherwise.
func appendText(base, addition, blockType string) string {
	if base == "" {
		return addition
	}
	if addition == "" {
		return base
	}
	if blockType == store.BlockListItem {
		return strings.TrimSpace(base + "\n" + addition)
	}
	return NormalizeText(base + " " + addition)
}

// finalizeType reapplies the long-lowercase title demotion after merging,
// since accumulation can push a heading past the length ceiling.
func finalizeType(blockType, text string) string {
	if blockType == store.BlockTitle &&
		utf8.RuneCountInString(text) > titleDemoteLen &&
		uppercaseRatio(text) < titleDemoteUpperRatio {
		return store.BlockParagraph
	}
	return blockType
}

func endsWithPeriod(text string) bool {
	return strings.HasSuffix(strings.TrimRight(text, " \t\n"), ".")
}

// BuildPageBlocks classifies and merges one page's filtered lines into
// finalized blocks. nextIndex supplies (and advances) the document-wide
// dense block index.
func BuildPageBlocks(lines []Line, nextIndex *int) []store.Block {
	if len(lines) == 0 {
		return nil
	}
	median := MedianFontSize(lines)

	var blocks []store.Block
	var cur *openBlock

	close := func() {
		if cur == nil {
			return
		}
		blocks = append(blocks, store.Block{
			PageNumber: cur.pageNumber,
			BlockIndex: *nextIndex,
			BlockType:  finalizeType(cur.blockType, cur.text),
			Text:       cur.text,
			FontSize:   cur.fontSize,
			IsBold:     cur.isBold,
		})
		*nextIndex++
		cur = nil
	}

	for _, line := range lines {
		blockType := Classify(line.Text, line.FontSize, line.IsBold, median)

		if cur != nil && shouldMerge(cur, blockType, line.Text, line.PageNumber) {
			cur.text = appendText(cur.text, line.Text, blockType)
			if line.FontSize > cur.fontSize {
				cur.fontSize = line.FontSize
			}
			cur.isBold = cur.isBold || line.IsBold
			continue
		}

		close()
		cur = &openBlock{
			blockType:  blockType,
			text:       line.Text,
			pageNumber: line.PageNumber,
			fontSize:   line.FontSize,
			isBold:     line.IsBold,
		}
	}
	close()

	return blocks
}
