package markdown

import (
	"strings"
	"testing"
)

func TestRenderHTML(t *testing.T) {
	s := NewService()

	tests := []struct {
		name    string
		input   string
		wantSub string
	}{
		{name: "empty", input: "", wantSub: ""},
		{name: "emphasis", input: "an *introduction*", wantSub: "<em>introduction</em>"},
		{name: "heading", input: "# Show Notes", wantSub: `<h1 id="show-notes">Show Notes</h1>`},
		{name: "gfm strikethrough", input: "~~old~~ new", wantSub: "<del>old</del>"},
		{name: "link", input: "[feed](https://example.com/feed)", wantSub: `<a href="https://example.com/feed">feed</a>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.RenderHTML(tc.input)
			if err != nil {
				t.Fatalf("RenderHTML(%q) error = %v", tc.input, err)
			}
			if tc.wantSub == "" {
				if got != "" {
					t.Fatalf("RenderHTML(empty) = %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tc.wantSub) {
				t.Fatalf("RenderHTML(%q) = %q, want substring %q", tc.input, got, tc.wantSub)
			}
		})
	}
}
