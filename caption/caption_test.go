package caption

import (
	"testing"

	"github.com/brunobiangulo/docstruct/store"
)

func TestParseTableResponse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantCaption string
		wantContent string
	}{
		{
			name:        "bare json",
			input:       `{"caption": "Revenue by quarter", "content": "| Q | Rev |\n|---|---|"}`,
			wantCaption: "Revenue by quarter",
			wantContent: "| Q | Rev |\n|---|---|",
		},
		{
			name:        "json in code fence",
			input:       "```json\n{\"caption\": \"Summary\", \"content\": \"a | b\"}\n```",
			wantCaption: "Summary",
			wantContent: "a | b",
		},
		{
			name:        "json with surrounding prose",
			input:       "Here is the result:\n{\"caption\": \"Counts\", \"content\": \"x\"}\nHope this helps.",
			wantCaption: "Counts",
			wantContent: "x",
		},
		{
			name:        "plain text fallback",
			input:       "Population by region\nNorth: 10\nSouth: 20",
			wantCaption: "Population by region",
			wantContent: "Population by region\nNorth: 10\nSouth: 20",
		},
		{
			name:        "empty",
			input:       "   ",
			wantCaption: "",
			wantContent: "",
		},
		{
			name:        "structured content rendered as json",
			input:       `{"caption": "Rows", "content": {"a": 1}}`,
			wantCaption: "Rows",
			wantContent: "{\n  \"a\": 1\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caption, content := ParseTableResponse(tt.input)
			if caption != tt.wantCaption {
				t.Errorf("caption = %q, want %q", caption, tt.wantCaption)
			}
			if content != tt.wantContent {
				t.Errorf("content = %q, want %q", content, tt.wantContent)
			}
		})
	}
}

func TestIsTableAsset(t *testing.T) {
	tests := []struct {
		assetType string
		want      bool
	}{
		{"table", true},
		{"Table", true},
		{"data_grid", true},
		{"tabular_region", true},
		{"figure", false},
		{"chart", false},
		{"", false},
	}

	for _, tt := range tests {
		got := isTableAsset(store.Asset{AssetType: tt.assetType})
		if got != tt.want {
			t.Errorf("isTableAsset(%q) = %v, want %v", tt.assetType, got, tt.want)
		}
	}
}

func TestImageMIMEType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"fig.png", "image/png"},
		{"fig.PNG", "image/png"},
		{"fig.webp", "image/webp"},
		{"fig.jpg", "image/jpeg"},
		{"fig.jpeg", "image/jpeg"},
		{"fig", "image/jpeg"},
	}
	for _, tt := range tests {
		if got := imageMIMEType(tt.path); got != tt.want {
			t.Errorf("imageMIMEType(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
