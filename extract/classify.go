package extract

import (
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/brunobiangulo/docstruct/store"
)

// listPrefixRe matches bullet glyphs and "1.", "1)", "a.", "(a)" style
// numbering markers at the start of a line.
var listPrefixRe = regexp.MustCompile(
	`^\s*(?:[-*\x{2022}\x{2013}\x{25a0}\x{25aa}\x{25cf}\x{25e6}\x{2023}\x{00b7}\x{2219}]|\d{1,3}[.)]|[a-zA-Z][.)]|\([a-zA-Z0-9]{1,3}\))\s+`)

const (
	// titleFontFactor is how far above the page median a font must be to
	// read as a heading.
	titleFontFactor = 1.2
	// boldTitleMaxLen is the rune ceiling for the bold-short title rule.
	boldTitleMaxLen = 120
	// titleDemoteLen: a candidate title longer than this with a low
	// uppercase ratio is really a sentence.
	titleDemoteLen = 80
	// titleDemoteUpperRatio is the uppercase ratio below which long
	// candidates are demoted.
	titleDemoteUpperRatio = 0.5
)

// MedianFontSize returns the median over lines with positive font size,
// or 0 if there are none. Even-length inputs average the two middles.
func MedianFontSize(lines []Line) float64 {
	var sizes []float64
	for _, l := range lines {
		if l.FontSize > 0 {
			sizes = append(sizes, l.FontSize)
		}
	}
	if len(sizes) == 0 {
		return 0
	}
	sort.Float64s(sizes)
	mid := len(sizes) / 2
	if len(sizes)%2 == 1 {
		return sizes[mid]
	}
	return (sizes[mid-1] + sizes[mid]) / 2
}

// Classify assigns a block type to a single line. Rules apply in order:
// list-marker prefix wins, then the typography-based title test with its
// demotion guards, and everything else is a paragraph.
func Classify(text string, fontSize float64, isBold bool, medianFontSize float64) string {
	if listPrefixRe.MatchString(text) {
		return store.BlockListItem
	}

	isTitle := false
	if medianFontSize > 0 && fontSize > medianFontSize*titleFontFactor {
		isTitle = true
	} else if isBold && utf8.RuneCountInString(text) < boldTitleMaxLen {
		isTitle = true
	}

	if isTitle {
		if startsWithLower(text) {
			return store.BlockParagraph
		}
		// Long bolded sentences are not headings.
		if utf8.RuneCountInString(text) > titleDemoteLen && uppercaseRatio(text) < titleDemoteUpperRatio {
			return store.BlockParagraph
		}
		return store.BlockTitle
	}
	return store.BlockParagraph
}

// uppercaseRatio is the share of uppercase letters among all letters,
// 0 if the text has no letters.
func uppercaseRatio(text string) float64 {
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func startsWithLower(text string) bool {
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		return unicode.IsLower(r)
	}
	return false
}

func startsWithUpper(text string) bool {
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		return unicode.IsUpper(r)
	}
	return false
}
