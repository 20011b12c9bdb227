// Package report exports a document's structured blocks to an XLSX
// workbook for manual review of the extraction output.
package report

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/docstruct/store"
)

const blocksSheet = "Blocks"

// WriteBlocksXLSX writes a workbook with one row per block plus a
// summary sheet with per-type counts, and saves it at path.
func WriteBlocksXLSX(ctx context.Context, st *store.Store, docID int64, path string) error {
	doc, err := st.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	blocks, err := st.GetBlocks(ctx, docID)
	if err != nil {
		return fmt.Errorf("loading blocks: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", blocksSheet)

	headers := []string{"Page", "Index", "Type", "Font Size", "Bold", "Text"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(blocksSheet, cell, h)
	}

	counts := map[string]int{}
	for i, b := range blocks {
		row := i + 2
		f.SetCellValue(blocksSheet, cellName(1, row), b.PageNumber)
		f.SetCellValue(blocksSheet, cellName(2, row), b.BlockIndex)
		f.SetCellValue(blocksSheet, cellName(3, row), b.BlockType)
		if b.FontSize > 0 {
			f.SetCellValue(blocksSheet, cellName(4, row), b.FontSize)
		}
		f.SetCellValue(blocksSheet, cellName(5, row), b.IsBold)
		f.SetCellValue(blocksSheet, cellName(6, row), b.Text)
		counts[b.BlockType]++
	}

	f.SetColWidth(blocksSheet, "A", "E", 10)
	f.SetColWidth(blocksSheet, "F", "F", 100)

	if err := writeSummarySheet(f, doc, len(blocks), counts); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, doc *store.Document, total int, counts map[string]int) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]any{
		{"Filename", doc.Filename},
		{"Pages", doc.PageCount},
		{"Status", doc.Status},
		{"Total blocks", total},
		{"Titles", counts[store.BlockTitle]},
		{"Paragraphs", counts[store.BlockParagraph]},
		{"List items", counts[store.BlockListItem]},
	}
	for i, r := range rows {
		f.SetCellValue(sheet, cellName(1, i+1), r[0])
		f.SetCellValue(sheet, cellName(2, i+1), r[1])
	}
	f.SetColWidth(sheet, "A", "B", 20)
	return nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
