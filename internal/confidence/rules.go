package confidence

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/mrwolf/geolocator/internal/geo"
)

// clamp is the shared shape of every capping rule.
func clamp(current, limit float64, reason string) Step {
	if current <= limit {
		return Step{Confidence: current}
	}
	return Step{Confidence: limit, Reason: reason, Fired: true}
}

// HedgingPenalty subtracts PerHit points per hedging-term occurrence in the
// raw reply, up to MaxPenalty. It is the only subtractive rule.
type HedgingPenalty struct {
	Terms      Vocabulary
	PerHit     float64
	MaxPenalty float64
}

func (r HedgingPenalty) Name() string { return "hedging_penalty" }

func (r HedgingPenalty) Apply(in Input, current float64) Step {
	count := r.Terms.Occurrences(in.RawText)
	if count == 0 || current <= 0 {
		return Step{Confidence: current}
	}
	penalty := math.Min(float64(count)*r.PerHit, r.MaxPenalty)
	next := math.Max(0, current-penalty)
	return Step{
		Confidence: next,
		Reason:     fmt.Sprintf("uncertain language detected (%d occurrences), reduced by %.0f points", count, current-next),
		Fired:      true,
	}
}

// EvidenceCap caps confidence when no clue names tier-one evidence.
type EvidenceCap struct {
	Strong Vocabulary
	Cap    float64
}

func (r EvidenceCap) Name() string { return "tier1_evidence_cap" }

func (r EvidenceCap) Apply(in Input, current float64) Step {
	if r.Strong.CountMatching(in.Narrative.Clues) > 0 {
		return Step{Confidence: current}
	}
	return clamp(current, r.Cap, fmt.Sprintf("no specific evidence among clues, capped at %.0f", r.Cap))
}

// CombinedEvidenceCap caps confidence when there is no tier-one clue and
// fewer than MinSupporting tier-two clues.
type CombinedEvidenceCap struct {
	Strong        Vocabulary
	Supporting    Vocabulary
	MinSupporting int
	Cap           float64
}

func (r CombinedEvidenceCap) Name() string { return "tier2_evidence_cap" }

func (r CombinedEvidenceCap) Apply(in Input, current float64) Step {
	clues := in.Narrative.Clues
	if r.Strong.CountMatching(clues) > 0 || r.Supporting.CountMatching(clues) >= r.MinSupporting {
		return Step{Confidence: current}
	}
	return clamp(current, r.Cap, fmt.Sprintf("insufficient supporting evidence, capped at %.0f", r.Cap))
}

// CoordinateRange caps confidence for coordinates outside WGS84 bounds and
// marks the outcome invalid.
type CoordinateRange struct {
	Cap float64
}

func (r CoordinateRange) Name() string { return "coordinate_range" }

func (r CoordinateRange) Apply(in Input, current float64) Step {
	c := in.Candidate
	if geo.InRange(c.Lat, c.Lng) {
		return Step{Confidence: current}
	}
	step := clamp(current, r.Cap, fmt.Sprintf("coordinates out of range (%.4f, %.4f), capped at %.0f", c.Lat, c.Lng, r.Cap))
	step.Invalidate = true
	return step
}

// WaterBody caps confidence for points that land in open ocean.
type WaterBody struct {
	Cap float64
}

func (r WaterBody) Name() string { return "water_body" }

func (r WaterBody) Apply(in Input, current float64) Step {
	ocean, water := geo.IsLikelyWater(in.Candidate.Lat, in.Candidate.Lng)
	if !water {
		return Step{Confidence: current}
	}
	return clamp(current, r.Cap, fmt.Sprintf("coordinates appear to be in the %s Ocean, capped at %.0f", ocean, r.Cap))
}

// ClueCount caps confidence when fewer than Min clues were given.
type ClueCount struct {
	Min int
	Cap float64
}

func (r ClueCount) Name() string { return fmt.Sprintf("clue_count_min_%d", r.Min) }

func (r ClueCount) Apply(in Input, current float64) Step {
	n := len(in.Narrative.Clues)
	if n >= r.Min {
		return Step{Confidence: current}
	}
	return clamp(current, r.Cap, fmt.Sprintf("only %d clues provided, capped at %.0f", n, r.Cap))
}

// GenericDescription caps confidence when the description leans on generic
// scenery words more than MaxOccurrences times.
type GenericDescription struct {
	Terms          Vocabulary
	MaxOccurrences int
	Cap            float64
}

func (r GenericDescription) Name() string { return "generic_description" }

func (r GenericDescription) Apply(in Input, current float64) Step {
	n := r.Terms.Occurrences(in.Narrative.Description)
	if n <= r.MaxOccurrences {
		return Step{Confidence: current}
	}
	return clamp(current, r.Cap, fmt.Sprintf("description is generic (%d generic terms), capped at %.0f", n, r.Cap))
}

// UnknownLocation caps confidence when the model admits it does not know the
// city or country.
type UnknownLocation struct {
	Cap float64
}

func (r UnknownLocation) Name() string { return "unknown_location" }

func (r UnknownLocation) Apply(in Input, current float64) Step {
	c := in.Candidate
	if !containsFold(c.City, "unknown") && !containsFold(c.Country, "unknown") {
		return Step{Confidence: current}
	}
	return clamp(current, r.Cap, fmt.Sprintf("location reported as unknown, capped at %.0f", r.Cap))
}

// ReasoningLength caps confidence when the reasoning is shorter than
// MinChars characters.
type ReasoningLength struct {
	MinChars int
	Cap      float64
}

func (r ReasoningLength) Name() string { return "reasoning_length" }

func (r ReasoningLength) Apply(in Input, current float64) Step {
	n := utf8.RuneCountInString(in.Narrative.Reasoning)
	if n >= r.MinChars {
		return Step{Confidence: current}
	}
	return clamp(current, r.Cap, fmt.Sprintf("reasoning too brief (%d characters), capped at %.0f", n, r.Cap))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
