//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestDocument(t *testing.T, s *Store, filename string) int64 {
	t.Helper()
	id, err := s.InsertDocument(context.Background(), Document{
		Filename:    filename,
		LocalPath:   "/tmp/" + filename,
		ContentHash: "hash-" + filename,
	})
	if err != nil {
		t.Fatalf("inserting document: %v", err)
	}
	return id
}

func TestInsertAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertTestDocument(t, s, "report.pdf")

	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("getting document: %v", err)
	}
	if doc.Filename != "report.pdf" {
		t.Errorf("Filename = %q", doc.Filename)
	}
	if doc.Status != StatusPending {
		t.Errorf("Status = %q, want %q", doc.Status, StatusPending)
	}
	if doc.LocalPath != "/tmp/report.pdf" {
		t.Errorf("LocalPath = %q", doc.LocalPath)
	}
}

func TestReplaceBlocksLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := insertTestDocument(t, s, "doc.pdf")

	blocks := []Block{
		{PageNumber: 1, BlockIndex: 0, BlockType: BlockTitle, Text: "Heading", FontSize: 16, IsBold: true},
		{PageNumber: 1, BlockIndex: 1, BlockType: BlockParagraph, Text: "Body."},
		{PageNumber: 2, BlockIndex: 2, BlockType: BlockListItem, Text: "- item"},
	}

	inserted, skipped, err := s.ReplaceBlocks(ctx, docID, blocks, 2, false)
	if err != nil {
		t.Fatalf("first ReplaceBlocks: %v", err)
	}
	if inserted != 3 || skipped {
		t.Errorf("inserted=%d skipped=%v, want 3/false", inserted, skipped)
	}

	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		t.Fatalf("getting document: %v", err)
	}
	if doc.Status != StatusTextStructured {
		t.Errorf("Status = %q, want %q", doc.Status, StatusTextStructured)
	}
	if doc.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", doc.PageCount)
	}
	if doc.ProcessedAt == nil {
		t.Errorf("ProcessedAt not stamped")
	}

	// Without overwrite the second call is a no-op.
	inserted, skipped, err = s.ReplaceBlocks(ctx, docID, blocks[:1], 2, false)
	if err != nil {
		t.Fatalf("second ReplaceBlocks: %v", err)
	}
	if inserted != 0 || !skipped {
		t.Errorf("inserted=%d skipped=%v, want 0/true", inserted, skipped)
	}

	// With overwrite the old set is replaced.
	inserted, skipped, err = s.ReplaceBlocks(ctx, docID, blocks[:1], 1, true)
	if err != nil {
		t.Fatalf("overwrite ReplaceBlocks: %v", err)
	}
	if inserted != 1 || skipped {
		t.Errorf("inserted=%d skipped=%v, want 1/false", inserted, skipped)
	}

	got, err := s.GetBlocks(ctx, docID)
	if err != nil {
		t.Fatalf("getting blocks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d blocks after overwrite, want 1", len(got))
	}
	if got[0].Text != "Heading" || got[0].FontSize != 16 || !got[0].IsBold {
		t.Errorf("block = %+v", got[0])
	}
}

func TestGetBlocksNullFontSize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := insertTestDocument(t, s, "doc.pdf")

	if _, _, err := s.ReplaceBlocks(ctx, docID, []Block{
		{PageNumber: 1, BlockIndex: 0, BlockType: BlockParagraph, Text: "No size."},
	}, 1, false); err != nil {
		t.Fatalf("ReplaceBlocks: %v", err)
	}

	got, err := s.GetBlocks(ctx, docID)
	if err != nil {
		t.Fatalf("GetBlocks: %v", err)
	}
	if got[0].FontSize != 0 {
		t.Errorf("FontSize = %v, want 0 round-tripped through NULL", got[0].FontSize)
	}
}

func TestReplaceChunksWithEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := insertTestDocument(t, s, "doc.pdf")

	chunks := []Chunk{
		{Page: 1, Text: "The solar panel efficiency is measured quarterly."},
		{Page: 2, Text: "Wind turbine maintenance follows a strict schedule."},
	}
	embeddings := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}

	inserted, skipped, err := s.ReplaceChunks(ctx, docID, chunks, embeddings, false)
	if err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	if inserted != 2 || skipped {
		t.Errorf("inserted=%d skipped=%v, want 2/false", inserted, skipped)
	}

	doc, _ := s.GetDocument(ctx, docID)
	if doc.Status != StatusEmbedded {
		t.Errorf("Status = %q, want %q", doc.Status, StatusEmbedded)
	}

	// A mismatched embeddings slice is rejected up front.
	if _, _, err := s.ReplaceChunks(ctx, docID, chunks, embeddings[:1], true); err == nil {
		t.Errorf("mismatched embeddings accepted")
	}

	// No-op without overwrite.
	inserted, skipped, err = s.ReplaceChunks(ctx, docID, chunks, embeddings, false)
	if err != nil {
		t.Fatalf("second ReplaceChunks: %v", err)
	}
	if inserted != 0 || !skipped {
		t.Errorf("inserted=%d skipped=%v, want 0/true", inserted, skipped)
	}

	got, err := s.GetChunksByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("GetChunksByDocument: %v", err)
	}
	if len(got) != 2 || got[0].Page != 1 || got[1].Page != 2 {
		t.Errorf("chunks = %+v", got)
	}
}

func TestVectorSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := insertTestDocument(t, s, "doc.pdf")

	chunks := []Chunk{
		{Page: 1, Text: "alpha"},
		{Page: 2, Text: "beta"},
		{Page: 3, Text: "gamma"},
	}
	embeddings := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
	if _, _, err := s.ReplaceChunks(ctx, docID, chunks, embeddings, false); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	results, err := s.VectorSearch(ctx, []float32{0, 1, 0, 0}, 2, 0)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Text != "beta" {
		t.Errorf("nearest = %q, want beta", results[0].Text)
	}
	if results[0].Page != 2 || results[0].Filename != "doc.pdf" {
		t.Errorf("result metadata = %+v", results[0])
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
}

func TestVectorSearchDocumentFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docA := insertTestDocument(t, s, "a.pdf")
	docB := insertTestDocument(t, s, "b.pdf")

	emb := [][]float32{{1, 0, 0, 0}}
	if _, _, err := s.ReplaceChunks(ctx, docA, []Chunk{{Page: 1, Text: "from a"}}, emb, false); err != nil {
		t.Fatalf("ReplaceChunks a: %v", err)
	}
	if _, _, err := s.ReplaceChunks(ctx, docB, []Chunk{{Page: 1, Text: "from b"}}, emb, false); err != nil {
		t.Fatalf("ReplaceChunks b: %v", err)
	}

	results, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 10, docB)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != docB {
		t.Errorf("filtered results = %+v, want only document %d", results, docB)
	}
}

func TestFTSSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := insertTestDocument(t, s, "doc.pdf")

	chunks := []Chunk{
		{Page: 1, Text: "The calibration procedure for pressure sensors."},
		{Page: 2, Text: "Unrelated content about office furniture."},
	}
	if _, _, err := s.ReplaceChunks(ctx, docID, chunks, nil, false); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	results, err := s.FTSSearch(ctx, "calibration", 10, 0)
	if err != nil {
		t.Fatalf("FTSSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !strings.Contains(results[0].Text, "calibration") {
		t.Errorf("result text = %q", results[0].Text)
	}
	if results[0].Score <= 0 {
		t.Errorf("Score = %v, want positive", results[0].Score)
	}

	// Document filter excludes other documents.
	other := insertTestDocument(t, s, "other.pdf")
	if _, _, err := s.ReplaceChunks(ctx, other, []Chunk{{Page: 1, Text: "calibration elsewhere"}}, nil, false); err != nil {
		t.Fatalf("ReplaceChunks other: %v", err)
	}
	results, err = s.FTSSearch(ctx, "calibration", 10, docID)
	if err != nil {
		t.Fatalf("filtered FTSSearch: %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != docID {
		t.Errorf("filtered results = %+v", results)
	}
}

func TestFTSIndexFollowsChunkRewrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := insertTestDocument(t, s, "doc.pdf")

	if _, _, err := s.ReplaceChunks(ctx, docID, []Chunk{{Page: 1, Text: "obsolete terminology"}}, nil, false); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	if _, _, err := s.ReplaceChunks(ctx, docID, []Chunk{{Page: 1, Text: "replacement wording"}}, nil, true); err != nil {
		t.Fatalf("overwrite ReplaceChunks: %v", err)
	}

	stale, err := s.FTSSearch(ctx, "obsolete", 10, 0)
	if err != nil {
		t.Fatalf("FTSSearch: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("stale FTS rows survived the rewrite: %+v", stale)
	}
	fresh, err := s.FTSSearch(ctx, "replacement", 10, 0)
	if err != nil {
		t.Fatalf("FTSSearch: %v", err)
	}
	if len(fresh) != 1 {
		t.Errorf("got %d fresh results, want 1", len(fresh))
	}
}

func TestMarkDocumentFailedTruncates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := insertTestDocument(t, s, "doc.pdf")

	long := strings.Repeat("e", MaxErrorLength+500)
	if err := s.MarkDocumentFailed(ctx, docID, long); err != nil {
		t.Fatalf("MarkDocumentFailed: %v", err)
	}

	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", doc.Status, StatusFailed)
	}
	if len(doc.ErrorMessage) != MaxErrorLength {
		t.Errorf("error message length = %d, want %d", len(doc.ErrorMessage), MaxErrorLength)
	}
}

func TestAssetCaptionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := insertTestDocument(t, s, "doc.pdf")

	figID, err := s.InsertAsset(ctx, Asset{DocumentID: docID, PageNumber: 3, AssetType: AssetFigure, LocalPath: "/tmp/fig.png"})
	if err != nil {
		t.Fatalf("InsertAsset: %v", err)
	}
	tblID, err := s.InsertAsset(ctx, Asset{DocumentID: docID, PageNumber: 5, AssetType: AssetTable, LocalPath: "/tmp/tbl.png"})
	if err != nil {
		t.Fatalf("InsertAsset: %v", err)
	}

	pending, err := s.ListPendingAssets(ctx, docID)
	if err != nil {
		t.Fatalf("ListPendingAssets: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending assets, want 2", len(pending))
	}

	if err := s.UpdateAssetCaption(ctx, figID, "A line chart of monthly output.", "ollama:llava", "", ""); err != nil {
		t.Fatalf("UpdateAssetCaption: %v", err)
	}
	if err := s.MarkAssetCaptionFailed(ctx, tblID, "vision model timeout"); err != nil {
		t.Fatalf("MarkAssetCaptionFailed: %v", err)
	}

	assets, err := s.ListAssets(ctx, docID)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(assets))
	}

	fig := assets[0]
	if fig.CaptionStatus != CaptionDone || fig.CaptionText != "A line chart of monthly output." {
		t.Errorf("captioned asset = %+v", fig)
	}
	if fig.CaptionedAt == nil {
		t.Errorf("CaptionedAt not stamped")
	}

	tbl := assets[1]
	if tbl.CaptionStatus != CaptionFailed || tbl.CaptionError != "vision model timeout" {
		t.Errorf("failed asset = %+v", tbl)
	}

	pending, err = s.ListPendingAssets(ctx, docID)
	if err != nil {
		t.Fatalf("ListPendingAssets: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending assets after processing, want 0", len(pending))
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := insertTestDocument(t, s, "doc.pdf")

	if _, _, err := s.ReplaceBlocks(ctx, docID, []Block{
		{PageNumber: 1, BlockIndex: 0, BlockType: BlockParagraph, Text: "Body."},
	}, 1, false); err != nil {
		t.Fatalf("ReplaceBlocks: %v", err)
	}
	if _, _, err := s.ReplaceChunks(ctx, docID, []Chunk{{Page: 1, Text: "searchable body"}},
		[][]float32{{1, 0, 0, 0}}, true); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	if _, err := s.InsertAsset(ctx, Asset{DocumentID: docID, PageNumber: 1, AssetType: AssetFigure, LocalPath: "/tmp/f.png"}); err != nil {
		t.Fatalf("InsertAsset: %v", err)
	}

	if err := s.DeleteDocument(ctx, docID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if _, err := s.GetDocument(ctx, docID); err == nil {
		t.Errorf("document still present after delete")
	}
	blocks, err := s.GetBlocks(ctx, docID)
	if err != nil {
		t.Fatalf("GetBlocks: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("%d blocks survived delete", len(blocks))
	}
	chunks, err := s.GetChunksByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("GetChunksByDocument: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("%d chunks survived delete", len(chunks))
	}
	if results, err := s.FTSSearch(ctx, "searchable", 10, 0); err != nil {
		t.Fatalf("FTSSearch: %v", err)
	} else if len(results) != 0 {
		t.Errorf("FTS rows survived delete: %+v", results)
	}
	assets, err := s.ListAssets(ctx, docID)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 0 {
		t.Errorf("%d assets survived delete", len(assets))
	}
}
