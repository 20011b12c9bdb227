package extract

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	pageNumberRe = regexp.MustCompile(`^\d{1,3}$`)
	// Runs of anything that is not a letter collapse to a single space
	// when computing a boilerplate key.
	boilerplateCleanRe = regexp.MustCompile(`[^\p{L}]+`)
)

// Span is one typeset run within a physical line, as reported by the
// PDF text source.
type Span struct {
	Text     string
	FontSize float64
	FontName string
	Bold     bool
}

// RawLine is one physical text line on a page, with its vertical extent
// in page coordinates (top-origin).
type RawLine struct {
	Spans  []Span
	Y0, Y1 float64
}

// Page is the raw per-page input to extraction.
type Page struct {
	Number int // 1-based
	Height float64
	Lines  []RawLine
}

// Line is a normalized line ready for classification. Ephemeral: produced
// per page and consumed immediately by the block builder.
type Line struct {
	PageNumber     int
	Text           string
	FontSize       float64
	IsBold         bool
	HeaderFooter   bool
	BoilerplateKey string // set only for header/footer-band lines
}

// NormalizeText collapses whitespace runs to single spaces and trims.
func NormalizeText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// IsPageNumber reports whether a trimmed line is a bare 1-3 digit folio.
func IsPageNumber(s string) bool {
	return pageNumberRe.MatchString(strings.TrimSpace(s))
}

// normalizeBoilerplate computes the case-folded, digit/punctuation-stripped
// signature used to detect repeating headers and footers.
func normalizeBoilerplate(s string) string {
	return NormalizeText(boilerplateCleanRe.ReplaceAllString(strings.ToLower(s), " "))
}

// spanIsBold reports whether a span renders bold, either by flag or by
// font name ("TimesNewRoman-Bold", "Arial,Bold", ...).
func spanIsBold(sp Span) bool {
	return sp.Bold || strings.Contains(strings.ToLower(sp.FontName), "bold")
}

// ExtractLines normalizes a page's raw lines. Bare page numbers are
// dropped. A line's font size is the max across its spans; it is bold if
// any span is. Lines whose vertical extent lies within the top or bottom
// band fraction of the page height are flagged header/footer and get a
// boilerplate key.
func ExtractLines(p Page, band float64) []Line {
	var lines []Line
	for _, raw := range p.Lines {
		var parts []string
		fontSize := 0.0
		bold := false
		for _, sp := range raw.Spans {
			text := NormalizeText(sp.Text)
			if text == "" {
				continue
			}
			parts = append(parts, text)
			if sp.FontSize > fontSize {
				fontSize = sp.FontSize
			}
			if spanIsBold(sp) {
				bold = true
			}
		}
		text := NormalizeText(strings.Join(parts, " "))
		if text == "" || IsPageNumber(text) {
			continue
		}

		line := Line{
			PageNumber: p.Number,
			Text:       text,
			FontSize:   fontSize,
			IsBold:     bold,
		}
		if p.Height > 0 {
			top := p.Height * band
			bottom := p.Height * (1 - band)
			if raw.Y1 <= top || raw.Y0 >= bottom {
				line.HeaderFooter = true
				line.BoilerplateKey = normalizeBoilerplate(text)
			}
		}
		lines = append(lines, line)
	}
	return lines
}
