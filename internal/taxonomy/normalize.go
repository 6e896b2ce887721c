package taxonomy

import (
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"genrify/internal/providers"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a folded tag to
// match a canonical name. High on purpose: a wrong genre is worse than a
// dropped tag.
const fuzzyThreshold = 0.92

// NormalizedTagSet is one provider's tag set projected onto the taxonomy.
type NormalizedTagSet struct {
	// Weights maps canonical labels to this provider's vote mass. When any
	// tag matched, the weights sum to 1.0.
	Weights map[Label]float64
	// Dropped counts raw tags that matched nothing in the taxonomy.
	Dropped int
	// Stale marks tag sets recovered from an expired cache entry.
	Stale bool
}

// Empty reports whether no tags survived normalization.
func (n NormalizedTagSet) Empty() bool {
	return len(n.Weights) == 0
}

// Lookup resolves a single raw tag to a canonical label. Resolution order is
// alias table, exact canonical name, then fuzzy match against all canonical
// names.
func (t *Taxonomy) Lookup(raw string) (Label, bool) {
	folded := Fold(raw)
	if folded == "" {
		return Label{}, false
	}
	if label, ok := t.aliases[folded]; ok {
		return label, true
	}
	if label, ok := t.byFolded[folded]; ok {
		return label, true
	}
	return t.fuzzyLookup(folded)
}

func (t *Taxonomy) fuzzyLookup(folded string) (Label, bool) {
	jw := metrics.NewJaroWinkler()
	var best Label
	var bestName string
	bestScore := 0.0
	for name, label := range t.byFolded {
		score := strutil.Similarity(folded, name, jw)
		// Ties resolve to the lexically smallest name so the lookup does not
		// depend on map iteration order.
		if score > bestScore || (score == bestScore && bestScore > 0 && name < bestName) {
			bestScore = score
			bestName = name
			best = label
		}
	}
	if bestScore >= fuzzyThreshold {
		return best, true
	}
	return Label{}, false
}

// Normalize projects a provider's raw tag set onto the taxonomy.
//
// Matched tag weights are merged per label (two raw tags resolving to the same
// label add up) and rescaled so the surviving mass sums to 1.0. Raw weights
// below one are floored to one so a zero-count tag still votes.
func (t *Taxonomy) Normalize(raw providers.RawTagSet) NormalizedTagSet {
	out := NormalizedTagSet{Weights: make(map[Label]float64)}

	total := 0.0
	for tag, weight := range raw {
		label, ok := t.Lookup(tag)
		if !ok {
			out.Dropped++
			continue
		}
		if weight < 1 {
			weight = 1
		}
		out.Weights[label] += weight
		total += weight
	}

	if total == 0 {
		out.Weights = nil
		return out
	}
	for label, weight := range out.Weights {
		out.Weights[label] = weight / total
	}
	return out
}
