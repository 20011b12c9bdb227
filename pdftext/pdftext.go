// Package pdftext reads per-line text and font metrics from a PDF file.
// It is the engine's text source: it resolves the page count and, per
// page, an ordered list of lines with span-level font name, size, and
// vertical extent, leaving all interpretation to the extract package.
package pdftext

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ledongthuc/pdf"

	"github.com/brunobiangulo/docstruct/extract"
)

// rowTolerance is the Y distance within which characters belong to the
// same physical line.
const rowTolerance = 3.0

// wordGapFactor is the fraction of the font size an X gap must exceed to
// count as a word boundary.
const wordGapFactor = 0.3

// Result is what reading a document produces.
type Result struct {
	PageCount int
	Pages     []extract.Page
}

// Reader extracts raw pages from PDF files.
type Reader struct{}

// NewReader returns a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read opens the PDF at path and returns its pages as raw line records.
// Pages that fail to yield content are returned empty rather than
// failing the whole document.
func (r *Reader) Read(ctx context.Context, path string) (*Result, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	result := &Result{PageCount: totalPages}

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		raw := extract.Page{Number: i}
		if !page.V.IsNull() {
			raw.Height = pageHeight(page)
			raw.Lines = buildLines(page.Content().Text, raw.Height)
		}
		result.Pages = append(result.Pages, raw)
	}
	return result, nil
}

// pageHeight reads the page height from the MediaBox.
func pageHeight(page pdf.Page) float64 {
	box := page.V.Key("MediaBox")
	if box.Len() >= 4 {
		return box.Index(3).Float64() - box.Index(1).Float64()
	}
	return 0
}

// buildLines groups a page's text elements into physical lines and spans.
// PDF coordinates are bottom-origin; the returned vertical extents are
// converted to top-origin so the header band is small Y.
func buildLines(texts []pdf.Text, height float64) []extract.RawLine {
	rows := groupIntoRows(texts)

	var lines []extract.RawLine
	for _, row := range rows {
		sort.Slice(row, func(i, j int) bool { return row[i].X < row[j].X })

		line := extract.RawLine{}
		yMin, yMax := math.Inf(1), math.Inf(-1)
		var cur *extract.Span
		lastEnd := 0.0

		for _, t := range row {
			if t.S == "" {
				continue
			}
			if t.Y < yMin {
				yMin = t.Y
			}
			if top := t.Y + t.FontSize; top > yMax {
				yMax = top
			}

			sep := ""
			if cur != nil {
				gap := t.X - lastEnd
				threshold := wordGapFactor * t.FontSize
				if threshold <= 0 {
					threshold = 3.0
				}
				if gap > threshold {
					sep = " "
				}
			}

			if cur != nil && t.Font == cur.FontName && t.FontSize == cur.FontSize {
				cur.Text += sep + t.S
			} else {
				if cur != nil {
					line.Spans = append(line.Spans, *cur)
				}
				cur = &extract.Span{
					Text:     t.S,
					FontSize: t.FontSize,
					FontName: t.Font,
				}
			}
			lastEnd = t.X + t.W
		}
		if cur != nil {
			line.Spans = append(line.Spans, *cur)
		}
		if len(line.Spans) == 0 {
			continue
		}

		if height > 0 && yMax >= yMin {
			line.Y0 = height - yMax
			line.Y1 = height - yMin
		}
		lines = append(lines, line)
	}
	return lines
}

// groupIntoRows clusters text elements by Y coordinate within
// rowTolerance, ordered top of page first.
func groupIntoRows(texts []pdf.Text) [][]pdf.Text {
	var rows [][]pdf.Text
	var rowY []float64

	for _, t := range texts {
		placed := false
		for i, y := range rowY {
			if math.Abs(t.Y-y) <= rowTolerance {
				rows[i] = append(rows[i], t)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, []pdf.Text{t})
			rowY = append(rowY, t.Y)
		}
	}

	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	// Larger Y first: PDF Y grows upward.
	sort.SliceStable(order, func(a, b int) bool { return rowY[order[a]] > rowY[order[b]] })

	sorted := make([][]pdf.Text, len(rows))
	for i, idx := range order {
		sorted[i] = rows[idx]
	}
	return sorted
}
