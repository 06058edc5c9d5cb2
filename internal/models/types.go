package models

import (
	"mime/multipart"
	"time"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Location is the model's guessed place
type Location struct {
	City    string  `json:"city"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Narrative is the model's explanation, clues in the model's order
type Narrative struct {
	Description string   `json:"description"`
	Clues       []string `json:"clues"`
	Reasoning   string   `json:"reasoning"`
}

// Analysis is returned by analyze, validate and the history endpoints
type Analysis struct {
	ID            string     `json:"id,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	ImageHash     string     `json:"image_hash,omitempty"`
	Location      Location   `json:"location"`
	Analysis      Narrative  `json:"analysis"`
	ConfidenceRaw int        `json:"confidence_raw"`
	Confidence    int        `json:"confidence"`
	IsValid       bool       `json:"is_valid"`
	Reasons       []string   `json:"reasons"`
	Fired         []string   `json:"fired"`
	RuleSet       string     `json:"rule_set"`
	Place         string     `json:"place,omitempty"`
	DistanceKm    *float64   `json:"distance_km,omitempty"`
	Cached        bool       `json:"cached,omitempty"`
	Report        string     `json:"report,omitempty"`
}

// ValidateRequest carries a raw model reply to calibrate without calling the model
type ValidateRequest struct {
	Reply string `json:"reply" required:"true" description:"Raw model reply text"`
}

// AnalysesResponse is returned by the history endpoint
type AnalysesResponse struct {
	Analyses []Analysis `json:"analyses"`
	Total    int        `json:"total"`
}

// DeleteResponse is returned after deleting an analysis
type DeleteResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HealthResponse is returned by the health endpoint. Model is a live check;
// ModelMonitor is the outcome of the last scheduled one.
type HealthResponse struct {
	Status       string `json:"status"`
	Model        string `json:"model"`
	ModelMonitor string `json:"model_monitor,omitempty"`
	Database     string `json:"database"`
	Reports      string `json:"reports"`
	Version      string `json:"version"`
}

// AnalyzeForm documents the multipart upload for the OpenAPI schema
type AnalyzeForm struct {
	Image *multipart.FileHeader `formData:"image" required:"true" description:"JPEG, PNG, WebP or GIF photo"`
}

// HistoryQuery documents the history endpoint's query parameters
type HistoryQuery struct {
	Limit int    `query:"limit" description:"Maximum number of analyses, default 50, max 200"`
	Since string `query:"since" description:"RFC3339 lower bound on created_at"`
}

// AnalysisPath documents the {id} path parameter
type AnalysisPath struct {
	ID string `path:"id"`
}
