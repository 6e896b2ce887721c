package enrich

import (
	"fmt"

	"genrify/internal/providers"
)

// ProgressUpdate represents a progress event during an enrichment run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	PhaseStart Phase = iota
	PhaseTrack
	PhaseProviderDown
	PhaseAggregate
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseTrack:
		return "track"
	case PhaseProviderDown:
		return "provider_down"
	case PhaseAggregate:
		return "aggregate"
	case PhaseDone:
		return "done"
	default:
		return ""
	}
}

func startUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseStart,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Enriching %d tracks...", total),
	}
}

func trackUpdate(step, total int, track providers.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseTrack,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Processed %s - %s", track.Artist, track.Title),
		Data:    track,
	}
}

func providerDownUpdate(step, total int, provider string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseProviderDown,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Provider %s disabled for the rest of this run", provider),
		Data:    provider,
	}
}

func aggregateUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseAggregate,
		Step:    total,
		Total:   total,
		Message: "Aggregating playlist statistics...",
	}
}

func doneUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDone,
		Step:    total,
		Total:   total,
		Message: "Enrichment complete",
	}
}
