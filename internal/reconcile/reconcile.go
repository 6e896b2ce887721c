// Package reconcile merges per-provider normalized tag sets into a single
// genre and subgenre assignment by trust-weighted voting.
//
// # Voting
//
// Each provider contributes its configured trust as vote mass, distributed
// over its normalized tag weights. Subgenre votes count toward their parent
// genre as well, so "Progressive House" and "house" agree on the House genre
// rather than splitting it. Stale tag sets (served from an expired cache
// entry) contribute at a reduced multiplier.
//
// # Determinism
//
// Given the same votes, the decision is identical regardless of provider
// iteration order. Ties are broken by the highest single contributing trust,
// then lexically by name.
package reconcile

import (
	"sort"

	"genrify/internal/taxonomy"
)

// UnknownGenre marks tracks for which no provider produced a usable label.
const UnknownGenre = "Unknown"

// Vote is one provider's contribution to a track's decision.
type Vote struct {
	Provider string
	Tags     taxonomy.NormalizedTagSet
}

// Decision is the reconciled assignment for one track.
type Decision struct {
	Genre    string
	Subgenre string
	// Confidence is the winning genre's share of all contributed vote mass,
	// in (0, 1]. Zero when the genre is Unknown.
	Confidence float64
}

// Engine reconciles votes under a fixed trust configuration. Read-only after
// construction; safe for concurrent use.
type Engine struct {
	trust             map[string]float64
	staleWeight       float64
	subgenreThreshold float64
}

// Config tunes the voting engine.
type Config struct {
	// TrustWeights maps provider name to vote trust. Providers absent from
	// the map vote with trust 1.0.
	TrustWeights map[string]float64
	// StaleWeight multiplies the trust of stale tag sets. Expected in [0, 1].
	StaleWeight float64
	// SubgenreThreshold is the minimum share of the winning genre's vote a
	// subgenre must hold to be reported. Expected in [0, 1].
	SubgenreThreshold float64
}

// NewEngine builds an engine from config, applying defaults for zero values.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		trust:             make(map[string]float64, len(cfg.TrustWeights)),
		staleWeight:       cfg.StaleWeight,
		subgenreThreshold: cfg.SubgenreThreshold,
	}
	for provider, w := range cfg.TrustWeights {
		if w > 0 {
			e.trust[provider] = w
		}
	}
	if e.staleWeight <= 0 {
		e.staleWeight = 0.5
	}
	if e.subgenreThreshold <= 0 {
		e.subgenreThreshold = 0.2
	}
	return e
}

func (e *Engine) trustOf(provider string) float64 {
	if w, ok := e.trust[provider]; ok {
		return w
	}
	return 1.0
}

type tally struct {
	vote     float64            // total mass for the genre
	maxTrust float64            // highest single contributing trust, for ties
	subVotes map[string]float64 // subgenre → mass within this genre
}

// Reconcile merges the votes into a decision. Votes with empty tag sets
// contribute nothing; with no usable votes at all the decision is Unknown
// with zero confidence.
func (e *Engine) Reconcile(votes []Vote) Decision {
	tallies := make(map[string]*tally)
	totalMass := 0.0

	for _, v := range votes {
		if v.Tags.Empty() {
			continue
		}
		trust := e.trustOf(v.Provider)
		if v.Tags.Stale {
			trust *= e.staleWeight
		}
		if trust <= 0 {
			continue
		}
		totalMass += trust

		for label, weight := range v.Tags.Weights {
			mass := trust * weight
			t := tallies[label.Genre]
			if t == nil {
				t = &tally{subVotes: make(map[string]float64)}
				tallies[label.Genre] = t
			}
			t.vote += mass
			if trust > t.maxTrust {
				t.maxTrust = trust
			}
			if label.Subgenre != "" {
				t.subVotes[label.Subgenre] += mass
			}
		}
	}

	if totalMass == 0 || len(tallies) == 0 {
		return Decision{Genre: UnknownGenre}
	}

	genre := pickWinner(tallies)
	winner := tallies[genre]

	decision := Decision{
		Genre:      genre,
		Confidence: winner.vote / totalMass,
	}
	if sub, share := pickSubgenre(winner); share >= e.subgenreThreshold {
		decision.Subgenre = sub
	}
	return decision
}

func pickWinner(tallies map[string]*tally) string {
	names := make([]string, 0, len(tallies))
	for name := range tallies {
		names = append(names, name)
	}
	sort.Strings(names)

	best := names[0]
	for _, name := range names[1:] {
		t, b := tallies[name], tallies[best]
		switch {
		case t.vote > b.vote:
			best = name
		case t.vote == b.vote && t.maxTrust > b.maxTrust:
			best = name
		}
	}
	return best
}

func pickSubgenre(t *tally) (string, float64) {
	if t.vote == 0 || len(t.subVotes) == 0 {
		return "", 0
	}
	names := make([]string, 0, len(t.subVotes))
	for name := range t.subVotes {
		names = append(names, name)
	}
	sort.Strings(names)

	best := names[0]
	for _, name := range names[1:] {
		if t.subVotes[name] > t.subVotes[best] {
			best = name
		}
	}
	return best, t.subVotes[best] / t.vote
}
