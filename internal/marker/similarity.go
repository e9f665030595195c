package marker

import "strings"

// stopWords is a fixed list excluded from the significant-word set, per
// §4.3's word-overlap similarity metric.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "to": true,
	"of": true, "in": true, "on": true, "at": true, "for": true, "with": true,
	"about": true, "is": true, "are": true, "was": true, "were": true,
	"this": true, "that": true, "it": true, "as": true, "by": true, "be": true,
	"my": true, "me": true, "you": true, "your": true,
}

// Similar reports whether two task descriptions are likely duplicates: at
// least half of the smaller description's significant words (length ≥3,
// stop words excluded, case-folded) also appear in the larger one. Symmetric
// and reflexive by construction (§8 testable property 8).
func Similar(a, b string) bool {
	wa, wb := significantWords(a), significantWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}

	small, big := wa, wb
	if len(wb) < len(wa) {
		small, big = wb, wa
	}

	overlap := 0
	for w := range small {
		if big[w] {
			overlap++
		}
	}
	return float64(overlap)/float64(len(small)) >= 0.5
}

func significantWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:'\"()[]")
		if len(w) < 3 || stopWords[w] {
			continue
		}
		out[w] = true
	}
	return out
}
