package retrieval

import (
	"strings"
	"testing"

	"github.com/brunobiangulo/docstruct/store"
)

func res(chunkID int64, text string) store.RetrievalResult {
	return store.RetrievalResult{ChunkID: chunkID, Text: text, Filename: "doc.pdf"}
}

func TestFuseRRFRanksSharedResultsFirst(t *testing.T) {
	vec := []store.RetrievalResult{res(1, "a"), res(2, "b"), res(3, "c")}
	fts := []store.RetrievalResult{res(3, "c"), res(4, "d")}

	fused, info := fuseRRF(vec, fts, 1.0, 1.0, 10)

	if len(fused) != 4 {
		t.Fatalf("got %d fused results, want 4", len(fused))
	}
	// Chunk 3 appears in both sets so it should rank first.
	if fused[0].ChunkID != 3 {
		t.Errorf("top result = chunk %d, want chunk 3", fused[0].ChunkID)
	}
	i3 := info[3]
	if len(i3.Methods) != 2 {
		t.Errorf("chunk 3 methods = %v, want both vector and fts", i3.Methods)
	}
	if i3.VecRank != 3 || i3.FTSRank != 1 {
		t.Errorf("chunk 3 ranks = vec %d fts %d, want 3 and 1", i3.VecRank, i3.FTSRank)
	}
}

func TestFuseRRFWeights(t *testing.T) {
	vec := []store.RetrievalResult{res(1, "a")}
	fts := []store.RetrievalResult{res(2, "b")}

	// With FTS weighted heavily, its top result must win.
	fused, _ := fuseRRF(vec, fts, 0.1, 10.0, 10)
	if fused[0].ChunkID != 2 {
		t.Errorf("top result = chunk %d, want chunk 2 with boosted fts weight", fused[0].ChunkID)
	}
}

func TestFuseRRFMaxResults(t *testing.T) {
	vec := []store.RetrievalResult{res(1, "a"), res(2, "b"), res(3, "c")}

	fused, _ := fuseRRF(vec, nil, 1.0, 1.0, 2)
	if len(fused) != 2 {
		t.Errorf("got %d results, want 2", len(fused))
	}
}

func TestFuseRRFScoreMonotonic(t *testing.T) {
	vec := []store.RetrievalResult{res(1, "a"), res(2, "b"), res(3, "c")}
	fts := []store.RetrievalResult{res(2, "b"), res(1, "a")}

	fused, _ := fuseRRF(vec, fts, 1.0, 1.0, 0)
	for i := 1; i < len(fused); i++ {
		if fused[i].Score > fused[i-1].Score {
			t.Errorf("scores not descending at %d: %f > %f", i, fused[i].Score, fused[i-1].Score)
		}
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "multi-word builds phrase plus terms",
			query: "pump maintenance schedule",
			want:  `"pump maintenance schedule" OR pump OR maintenance OR schedule`,
		},
		{
			name:  "special characters stripped",
			query: `"pump" (schedule)`,
			want:  `"pump schedule" OR pump OR schedule`,
		},
		{
			name:  "stop words dropped from term list",
			query: "what is the pump",
			want:  `"what is the pump" OR pump`,
		},
		{
			name:  "single word",
			query: "pump",
			want:  "pump",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeFTSQuery(tt.query); got != tt.want {
				t.Errorf("sanitizeFTSQuery(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestBuildContextIncludesPages(t *testing.T) {
	chunks := []store.RetrievalResult{
		{ChunkID: 1, Filename: "manual.pdf", Page: 12, Text: "Check the valve."},
		{ChunkID: 2, Filename: "manual.pdf", Text: "No page recorded."},
	}

	got := buildContext(chunks)
	if !strings.Contains(got, "Source 1: manual.pdf | Page 12") {
		t.Errorf("context missing page header:\n%s", got)
	}
	if strings.Contains(got, "Source 2: manual.pdf | Page") {
		t.Errorf("context should omit page for unpaged chunk:\n%s", got)
	}
	if !strings.Contains(got, "Check the valve.") {
		t.Errorf("context missing chunk text:\n%s", got)
	}
}
