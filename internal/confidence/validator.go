// Package confidence calibrates a model's self-reported confidence. A rule set
// is an ordered list of rules, each of which may only lower the running value.
// The first rule subtracts; every later one clamps, so order is significant
// and is preserved exactly.
package confidence

import (
	"math"

	"github.com/mrwolf/geolocator/internal/analysis"
)

// DefaultValidThreshold is the lowest final confidence reported as valid.
const DefaultValidThreshold = 20

// Input is everything a rule may inspect. RawText is the full model reply.
type Input struct {
	Candidate analysis.LocationCandidate
	Narrative analysis.AnalysisNarrative
	RawText   string
}

// NewInput builds an Input from a parsed reply and the text it came from.
func NewInput(reply *analysis.Reply, raw string) Input {
	return Input{
		Candidate: reply.Location,
		Narrative: reply.Analysis,
		RawText:   raw,
	}
}

// Outcome is the calibrated result. Reasons and Fired line up index for index.
type Outcome struct {
	IsValid    bool     `json:"is_valid"`
	Confidence int      `json:"confidence"`
	Reasons    []string `json:"reasons"`
	Fired      []string `json:"fired"`
}

// Validator produces an Outcome. Implementations must be pure.
type Validator interface {
	Validate(in Input) Outcome
}

// Step is what a rule reports back for one application.
type Step struct {
	Confidence float64
	Reason     string
	Fired      bool
	// Invalidate forces IsValid=false regardless of the final number. It is
	// honoured even when the step did not fire.
	Invalidate bool
}

// Rule is one heuristic in a RuleSet.
type Rule interface {
	Name() string
	Apply(in Input, current float64) Step
}

// RuleSet is an ordered, named list of rules.
type RuleSet struct {
	Name           string
	Rules          []Rule
	ValidThreshold int
}

var _ Validator = (*RuleSet)(nil)

// Validate runs every rule in order and normalises the result into [0,100].
func (rs *RuleSet) Validate(in Input) Outcome {
	out := Outcome{Reasons: []string{}, Fired: []string{}}

	current := float64(in.Candidate.ConfidenceRaw)
	invalid := false

	for _, rule := range rs.Rules {
		step := rule.Apply(in, current)
		if step.Invalidate {
			invalid = true
		}
		if !step.Fired {
			continue
		}
		// A misbehaving rule must not raise the value.
		current = math.Min(current, step.Confidence)
		out.Reasons = append(out.Reasons, step.Reason)
		out.Fired = append(out.Fired, rule.Name())
	}

	out.Confidence = normalize(current)
	out.IsValid = !invalid && out.Confidence >= rs.ValidThreshold
	return out
}

func normalize(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}
