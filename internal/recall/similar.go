package recall

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kokistudios/ideas/internal/idea"
)

type SimilarMatch struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	SimilarityReason string `json:"similarity_reason"`
	Confidence       string `json:"confidence"` // "high", "medium"
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true, "might": true,
	"this": true, "that": true, "these": true, "those": true,
	"i": true, "we": true, "you": true, "my": true, "our": true, "it": true, "they": true,
	"what": true, "which": true, "who": true, "when": true, "where": true, "why": true, "how": true,
	"idea": true, "ideas": true,
}

// FastSimilarityCheck finds existing ideas whose titles look like title:
// an exact match after normalization, or keyword overlap (Jaccard) of at
// least 60%. Returns nil if nothing is similar.
func FastSimilarityCheck(existing []idea.Idea, title string) []SimilarMatch {
	normalizedProposed := normalizeText(title)
	if normalizedProposed == "" {
		return nil
	}
	proposedKeywords := extractKeywords(title)

	var matches []SimilarMatch
	for _, it := range existing {
		if normalizeText(it.Title) == normalizedProposed {
			matches = append(matches, SimilarMatch{
				ID:               it.ID,
				Title:            it.Title,
				SimilarityReason: "Exact match on normalized title",
				Confidence:       "high",
			})
			continue
		}

		similarity := jaccardSimilarity(proposedKeywords, extractKeywords(it.Title))
		if similarity >= 0.6 {
			confidence := "medium"
			if similarity >= 0.8 {
				confidence = "high"
			}
			matches = append(matches, SimilarMatch{
				ID:               it.ID,
				Title:            it.Title,
				SimilarityReason: "High keyword overlap in title",
				Confidence:       confidence,
			})
		}
	}
	return matches
}

func normalizeText(text string) string {
	text = strings.ToLower(text)

	text = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return ' '
		}
		return r
	}, text)

	return strings.Join(strings.Fields(text), " ")
}

func extractKeywords(text string) map[string]bool {
	keywords := make(map[string]bool)
	for _, word := range nonWord.Split(strings.ToLower(text), -1) {
		if len(word) > 2 && !stopWords[word] {
			keywords[word] = true
		}
	}
	return keywords
}

func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	union := len(b)
	for k := range a {
		if b[k] {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}
