package kb

import (
	"regexp"
	"sort"
	"strings"
)

// stopwords covers common English and Chinese function words, per
// §4.7's "tokenize the query removing stopwords".
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "of": true,
	"to": true, "and": true, "or": true, "in": true, "on": true, "for": true,
	"with": true, "what": true, "how": true, "why": true, "does": true,
	"的": true, "了": true, "是": true, "在": true, "和": true, "与": true,
	"这": true, "那": true, "有": true, "吗": true, "么": true,
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if !stopwords[t] {
			out = append(out, t)
		}
	}
	return out
}

// keywordHit is a chunk's score from the keyword route, plus the
// number of distinct matched query terms (used for the ≥2-match
// boost).
type keywordHit struct {
	chunkID       string
	score         float64
	matchedTerms  int
}

// keywordSearch scores each chunk by the sum of term counts, weighted
// by earliest position (earlier matches score higher), per §4.7's
// keyword route description.
func keywordSearch(query string, chunks []Chunk, topK int) []keywordHit {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	var hits []keywordHit
	for _, c := range chunks {
		lower := strings.ToLower(c.Content)
		var score float64
		matched := 0
		for _, term := range terms {
			idx := strings.Index(lower, term)
			if idx < 0 {
				continue
			}
			matched++
			count := strings.Count(lower, term)
			positionWeight := 1.0 / (1.0 + float64(idx)/float64(max(len(lower), 1)))
			score += float64(count) * positionWeight
		}
		if matched == 0 {
			continue
		}
		if matched >= 2 {
			score *= 1.2
		}
		hits = append(hits, keywordHit{chunkID: c.ID, score: score, matchedTerms: matched})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
