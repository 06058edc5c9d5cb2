package confidence

import (
	"fmt"
	"sort"
)

// Tiered is the canonical rule set.
func Tiered() *RuleSet {
	return &RuleSet{
		Name:           "tiered",
		ValidThreshold: DefaultValidThreshold,
		Rules: []Rule{
			HedgingPenalty{Terms: HedgingTerms, PerHit: 10, MaxPenalty: 40},
			EvidenceCap{Strong: TierOneEvidence, Cap: 70},
			CombinedEvidenceCap{Strong: TierOneEvidence, Supporting: TierTwoEvidence, MinSupporting: 2, Cap: 50},
			CoordinateRange{Cap: 20},
			WaterBody{Cap: 15},
			ClueCount{Min: 2, Cap: 40},
			ClueCount{Min: 1, Cap: 20},
			GenericDescription{Terms: GenericDescriptionTerms, MaxOccurrences: 2, Cap: 40},
			UnknownLocation{Cap: 30},
			ReasoningLength{MinChars: 50, Cap: 50},
		},
	}
}

// Lenient is the earlier, looser rule set: a smaller hedging penalty, no
// evidence tiers and wider caps. Kept for comparing calibrations.
func Lenient() *RuleSet {
	return &RuleSet{
		Name:           "lenient",
		ValidThreshold: DefaultValidThreshold,
		Rules: []Rule{
			HedgingPenalty{Terms: HedgingTerms, PerHit: 5, MaxPenalty: 20},
			CoordinateRange{Cap: 20},
			WaterBody{Cap: 30},
			ClueCount{Min: 1, Cap: 40},
			UnknownLocation{Cap: 30},
			ReasoningLength{MinChars: 20, Cap: 60},
		},
	}
}

var registry = map[string]func() *RuleSet{
	"tiered":  Tiered,
	"lenient": Lenient,
}

// Lookup returns a fresh copy of the named rule set.
func Lookup(name string) (*RuleSet, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown rule set %q (available: %v)", name, Names())
	}
	return build(), nil
}

// Names lists registered rule sets in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
