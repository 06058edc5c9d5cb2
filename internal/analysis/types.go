// Package analysis turns a raw multimodal-model reply into a typed location
// guess. The model is asked for JSON but routinely wraps it in prose or
// markdown fences, so extraction scans for balanced objects rather than
// trusting the reply to be clean.
package analysis

// LocationCandidate is the model's guessed location.
type LocationCandidate struct {
	City          string  `json:"city"`
	Country       string  `json:"country"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	ConfidenceRaw int     `json:"confidence"`
}

// AnalysisNarrative is the model's explanation. Clue order is the model's
// own relevance order.
type AnalysisNarrative struct {
	Description string   `json:"description"`
	Clues       []string `json:"clues"`
	Reasoning   string   `json:"reasoning"`
}

// Reply is one parsed model answer.
type Reply struct {
	Location LocationCandidate `json:"location"`
	Analysis AnalysisNarrative `json:"analysis"`
}
