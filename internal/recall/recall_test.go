package recall

import (
	"strings"
	"testing"
	"time"

	"github.com/kokistudios/ideas/internal/idea"
)

var base = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func sampleIdeas() []idea.Idea {
	return []idea.Idea{
		{ID: "seed-0-garden", Title: "Garden", Note: "grow tomatoes", Created: base},
		{ID: "seed-1-zine", Title: "Zine about gardens", Created: base.Add(time.Minute)},
		{ID: "u-1", Title: "Compost bin", Note: `<p>for the <a href="https://x.example">garden</a></p>`, Created: base.Add(2 * time.Minute)},
		{ID: "u-2", Title: "Bike trip", Created: base.Add(3 * time.Minute)},
	}
}

func ids(r *Result) []string {
	var out []string
	for _, si := range r.Ideas {
		out = append(out, si.ID)
	}
	return out
}

func TestSearch_TierOrder(t *testing.T) {
	r := Search(sampleIdeas(), Query{Text: "Garden"})
	got := strings.Join(ids(r), ",")
	want := "seed-0-garden,seed-1-zine,u-1"
	if got != want {
		t.Fatalf("Search order = %s, want %s", got, want)
	}
	if r.Ideas[0].Tier != MatchExactTitle || r.Ideas[1].Tier != MatchTitle || r.Ideas[2].Tier != MatchNote {
		t.Errorf("unexpected tiers: %v %v %v", r.Ideas[0].Tier, r.Ideas[1].Tier, r.Ideas[2].Tier)
	}
}

func TestSearch_ByID(t *testing.T) {
	r := Search(sampleIdeas(), Query{Text: "u-2"})
	if len(r.Ideas) != 1 || r.Ideas[0].Tier != MatchID {
		t.Fatalf("expected a single id match, got %+v", r.Ideas)
	}
}

func TestSearch_EmptyQueryIsRecent(t *testing.T) {
	r := Search(sampleIdeas(), Query{MaxResults: 2})
	if got := strings.Join(ids(r), ","); got != "u-2,u-1" {
		t.Errorf("recent = %s, want u-2,u-1", got)
	}
	for _, si := range r.Ideas {
		if si.Tier != MatchRecent {
			t.Errorf("expected recent tier, got %v", si.Tier)
		}
	}
}

func TestSearch_Filters(t *testing.T) {
	if r := Search(sampleIdeas(), Query{Text: "garden", SeedsOnly: true}); len(r.Ideas) != 2 {
		t.Errorf("seeds only: got %v", ids(r))
	}
	if r := Search(sampleIdeas(), Query{Text: "garden", UserOnly: true}); len(r.Ideas) != 1 || r.Ideas[0].ID != "u-1" {
		t.Errorf("user only: got %v", ids(r))
	}
}

func TestSearch_NoteMarkupNotMatched(t *testing.T) {
	// link targets survive as markdown links
	if r := Search(sampleIdeas(), Query{Text: "x.example"}); len(r.Ideas) != 1 {
		t.Errorf("expected the linked note to match, got %v", ids(r))
	}
	if r := Search(sampleIdeas(), Query{Text: "<p>"}); len(r.Ideas) != 0 {
		t.Errorf("tags should not match, got %v", ids(r))
	}
}

func TestMatchTier_Labels(t *testing.T) {
	tests := []struct {
		tier   MatchTier
		label  string
		strong bool
	}{
		{MatchID, "id", true},
		{MatchExactTitle, "exact-title", true},
		{MatchTitle, "title", false},
		{MatchNote, "note", false},
		{MatchRecent, "recent", false},
	}
	for _, tt := range tests {
		if tt.tier.TierLabel() != tt.label {
			t.Errorf("TierLabel(%d) = %q, want %q", tt.tier, tt.tier.TierLabel(), tt.label)
		}
		if tt.tier.IsStrong() != tt.strong {
			t.Errorf("IsStrong(%d) = %v, want %v", tt.tier, tt.tier.IsStrong(), tt.strong)
		}
	}
}

func TestFormatTerminal(t *testing.T) {
	out := FormatTerminal(Search(sampleIdeas(), Query{Text: "bike"}))
	if !strings.Contains(out, "[title] Bike trip (u-2)") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if out := FormatTerminal(Search(nil, Query{Text: "none"})); !strings.Contains(out, `No ideas match "none"`) {
		t.Errorf("unexpected empty output: %q", out)
	}
}
