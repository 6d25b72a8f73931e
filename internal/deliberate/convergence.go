package deliberate

import "strings"

// convergenceScore measures how aligned the panel's positions are as the
// mean pairwise Jaccard overlap of their word sets, in [0, 1]. This is a
// cheap lexical proxy; it avoids spending an extra provider call per round.
func convergenceScore(positions []string) float64 {
	if len(positions) < 2 {
		return 1.0
	}

	sets := make([]map[string]struct{}, len(positions))
	for i, p := range positions {
		sets[i] = wordSet(p)
	}

	var total float64
	var pairs int
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return total / float64(pairs)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) < 4 {
			// Skip stop-word-sized tokens.
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
