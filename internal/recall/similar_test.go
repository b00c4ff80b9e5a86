package recall

import (
	"testing"

	"github.com/kokistudios/ideas/internal/idea"
)

func TestFastSimilarityCheck(t *testing.T) {
	existing := []idea.Idea{
		{ID: "a", Title: "Build a backyard greenhouse"},
		{ID: "b", Title: "Learn the cello"},
		{ID: "c", Title: "Backyard greenhouse build, cheap version"},
	}

	tests := []struct {
		name       string
		title      string
		wantIDs    []string
		confidence string
	}{
		{"exact after normalization", "build a BACKYARD greenhouse!", []string{"a", "c"}, "high"},
		{"keyword overlap", "Greenhouse for the backyard", []string{"a"}, ""},
		{"unrelated", "Write a novel", nil, ""},
		{"blank", "   ", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FastSimilarityCheck(existing, tt.title)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %+v, want ids %v", got, tt.wantIDs)
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("match %d = %s, want %s", i, got[i].ID, id)
				}
			}
			if tt.confidence != "" && got[0].Confidence != tt.confidence {
				t.Errorf("confidence = %s, want %s", got[0].Confidence, tt.confidence)
			}
		})
	}
}

func TestJaccardSimilarity(t *testing.T) {
	a := map[string]bool{"one": true, "two": true}
	b := map[string]bool{"two": true, "three": true}
	if got := jaccardSimilarity(a, b); got < 0.33 || got > 0.34 {
		t.Errorf("jaccard = %v, want 1/3", got)
	}
	if got := jaccardSimilarity(nil, nil); got != 0 {
		t.Errorf("empty sets should score 0, got %v", got)
	}
}
