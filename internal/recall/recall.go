package recall

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kokistudios/ideas/internal/idea"
	"github.com/kokistudios/ideas/internal/render"
)

type Query struct {
	Text       string // matched against id, title, and note text
	SeedsOnly  bool
	UserOnly   bool
	MaxResults int // 0 = default (20)
}

type MatchTier int

const (
	MatchID         MatchTier = iota // highest relevance
	MatchExactTitle
	MatchTitle
	MatchNote
	MatchRecent // no query text
)

func (m MatchTier) TierLabel() string {
	switch m {
	case MatchID:
		return "id"
	case MatchExactTitle:
		return "exact-title"
	case MatchTitle:
		return "title"
	case MatchNote:
		return "note"
	case MatchRecent:
		return "recent"
	default:
		return "unknown"
	}
}

func (m MatchTier) IsStrong() bool {
	return m <= MatchExactTitle
}

type ScoredIdea struct {
	idea.Idea
	Tier MatchTier
}

type Result struct {
	Query Query
	Ideas []ScoredIdea
}

// Search ranks the ideas matching q, strongest tier first and newest first
// within a tier. An empty query returns the most recent ideas.
func Search(ideas []idea.Idea, q Query) *Result {
	limit := q.MaxResults
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(strings.TrimSpace(q.Text))

	var scored []ScoredIdea
	for _, it := range ideas {
		if q.SeedsOnly && !idea.IsSeedID(it.ID) {
			continue
		}
		if q.UserOnly && idea.IsSeedID(it.ID) {
			continue
		}
		if needle == "" {
			scored = append(scored, ScoredIdea{it, MatchRecent})
			continue
		}
		if tier, ok := match(it, needle); ok {
			scored = append(scored, ScoredIdea{it, tier})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Tier != scored[j].Tier {
			return scored[i].Tier < scored[j].Tier
		}
		return scored[i].Created.After(scored[j].Created)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return &Result{Query: q, Ideas: scored}
}

func match(it idea.Idea, needle string) (MatchTier, bool) {
	title := strings.ToLower(it.Title)
	switch {
	case strings.ToLower(it.ID) == needle:
		return MatchID, true
	case title == needle:
		return MatchExactTitle, true
	case strings.Contains(title, needle):
		return MatchTitle, true
	case strings.Contains(strings.ToLower(render.NoteMarkdown(it.Note)), needle):
		return MatchNote, true
	}
	return 0, false
}

func FormatTerminal(r *Result) string {
	if len(r.Ideas) == 0 {
		if r.Query.Text == "" {
			return "No ideas yet."
		}
		return fmt.Sprintf("No ideas match %q.", r.Query.Text)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Found %d idea(s):\n", len(r.Ideas)))
	for _, si := range r.Ideas {
		b.WriteString(fmt.Sprintf("  - [%s] %s (%s)\n", si.Tier.TierLabel(), si.Title, si.ID))
	}
	return b.String()
}
