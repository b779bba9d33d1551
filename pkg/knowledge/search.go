package knowledge

import (
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_-]+`) //nolint:gochecknoglobals

// stopWords are common English words excluded from term extraction.
//
//nolint:gochecknoglobals
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"as": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "should": true, "could": true, "may": true, "might": true,
	"must": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "you": true, "he": true, "she": true,
	"it": true, "we": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
}

const maxKeyTerms = 20

// ExtractKeyTerms tokenizes a problem statement and returns the top terms by
// frequency, stop words and very short tokens excluded.
func ExtractKeyTerms(text string) []string {
	tokens := tokenPattern.FindAllString(text, -1)

	freq := make(map[string]int)
	for _, token := range tokens {
		lower := strings.ToLower(token)
		if len(lower) < 3 || stopWords[lower] {
			continue
		}
		freq[lower]++
	}

	type termFreq struct {
		term string
		freq int
	}
	sorted := make([]termFreq, 0, len(freq))
	for term, f := range freq {
		sorted = append(sorted, termFreq{term, f})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].freq != sorted[j].freq {
			return sorted[i].freq > sorted[j].freq
		}
		return sorted[i].term < sorted[j].term
	})

	if len(sorted) > maxKeyTerms {
		sorted = sorted[:maxKeyTerms]
	}

	terms := make([]string, len(sorted))
	for i, tf := range sorted {
		terms[i] = tf.term
	}
	return terms
}
