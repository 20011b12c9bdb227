package pdftext

import (
	"testing"

	"github.com/ledongthuc/pdf"
)

func txt(s string, x, y, size float64, font string) pdf.Text {
	return pdf.Text{Font: font, FontSize: size, X: x, Y: y, W: float64(len(s)) * size * 0.5, S: s}
}

func TestBuildLinesGroupsByRow(t *testing.T) {
	texts := []pdf.Text{
		txt("World", 60, 700, 12, "Helvetica"),
		txt("Hello", 10, 701, 12, "Helvetica"),
		txt("Second line", 10, 680, 12, "Helvetica"),
	}

	lines := buildLines(texts, 800)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if got := lines[0].Spans[0].Text; got != "Hello World" {
		t.Errorf("first line = %q, want %q", got, "Hello World")
	}
	if got := lines[1].Spans[0].Text; got != "Second line" {
		t.Errorf("second line = %q, want %q", got, "Second line")
	}
}

func TestBuildLinesSplitsSpansOnFontChange(t *testing.T) {
	texts := []pdf.Text{
		txt("Bold", 10, 700, 14, "Helvetica-Bold"),
		txt("plain", 50, 700, 12, "Helvetica"),
	}

	lines := buildLines(texts, 800)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	spans := lines[0].Spans
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].FontName != "Helvetica-Bold" || spans[1].FontName != "Helvetica" {
		t.Errorf("span fonts = %q, %q", spans[0].FontName, spans[1].FontName)
	}
}

func TestBuildLinesTopOriginConversion(t *testing.T) {
	texts := []pdf.Text{
		txt("footer", 10, 20, 10, "Helvetica"),
	}

	lines := buildLines(texts, 800)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	// Bottom of page in PDF space is large Y in top-origin space.
	if lines[0].Y0 < 700 {
		t.Errorf("Y0 = %f, want near page bottom (>= 700)", lines[0].Y0)
	}
}

func TestBuildLinesMergesTightGlyphs(t *testing.T) {
	texts := []pdf.Text{
		txt("a", 10, 700, 12, "Helvetica"),
		txt("b", 16.2, 700, 12, "Helvetica"),
	}

	lines := buildLines(texts, 800)
	if got := lines[0].Spans[0].Text; got != "ab" {
		t.Errorf("merged text = %q, want %q (no space for sub-threshold gap)", got, "ab")
	}
}
