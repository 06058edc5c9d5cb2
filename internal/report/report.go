// Package report keeps a human-readable copy of every analysis on disk: one
// Markdown file per analysis under Reports/ and an append-only JSONL log
// under Log/.
package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Analysis is what a report is rendered from.
type Analysis struct {
	ID            string
	Actor         string
	Created       time.Time
	ImageHash     string
	City          string
	Country       string
	Lat           float64
	Lng           float64
	ConfidenceRaw int
	Confidence    int
	IsValid       bool
	Reasons       []string
	RuleSet       string
	Description   string
	Clues         []string
	Reasoning     string
	Place         string
	DistanceKm    *float64
}

// Writer owns the report directory.
type Writer struct {
	basePath string
	logLock  sync.Mutex
}

func NewWriter(basePath string) *Writer {
	return &Writer{basePath: basePath}
}

func (w *Writer) BasePath() string {
	return w.basePath
}

// WriteReport renders a to Reports/YYYY-MM-DD/<id>.md and returns the path
// relative to the base directory.
func (w *Writer) WriteReport(a Analysis) (string, error) {
	relPath := filepath.Join("Reports", a.Created.UTC().Format("2006-01-02"), a.ID+".md")
	fullPath := filepath.Join(w.basePath, relPath)

	if err := WriteFileAtomic(fullPath, []byte(Render(a))); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return relPath, nil
}

// Render builds the Markdown body with YAML frontmatter.
func Render(a Analysis) string {
	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "id: %s\n", a.ID)
	fmt.Fprintf(&sb, "created: %s\n", a.Created.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "actor: %s\n", a.Actor)
	fmt.Fprintf(&sb, "image_hash: %s\n", a.ImageHash)
	fmt.Fprintf(&sb, "confidence: %d\n", a.Confidence)
	fmt.Fprintf(&sb, "confidence_raw: %d\n", a.ConfidenceRaw)
	fmt.Fprintf(&sb, "valid: %t\n", a.IsValid)
	fmt.Fprintf(&sb, "rule_set: %s\n", a.RuleSet)
	sb.WriteString("---\n\n")

	fmt.Fprintf(&sb, "# %s, %s\n\n", orUnknown(a.City), orUnknown(a.Country))
	fmt.Fprintf(&sb, "Coordinates: %.5f, %.5f\n\n", a.Lat, a.Lng)
	if a.IsValid {
		fmt.Fprintf(&sb, "Confidence: **%d%%** (model said %d%%)\n\n", a.Confidence, a.ConfidenceRaw)
	} else {
		fmt.Fprintf(&sb, "Confidence: **%d%%** (model said %d%%), not a usable guess\n\n", a.Confidence, a.ConfidenceRaw)
	}
	if a.Place != "" {
		fmt.Fprintf(&sb, "Geocoded: %s", a.Place)
		if a.DistanceKm != nil {
			fmt.Fprintf(&sb, " (%.1f km from the given coordinates)", *a.DistanceKm)
		}
		sb.WriteString("\n\n")
	}

	if len(a.Reasons) > 0 {
		sb.WriteString("## Adjustments\n\n")
		for _, r := range a.Reasons {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
		sb.WriteString("\n")
	}

	if a.Description != "" {
		sb.WriteString("## Description\n\n")
		sb.WriteString(a.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Clues\n\n")
	if len(a.Clues) == 0 {
		sb.WriteString("None given.\n\n")
	}
	for i, c := range a.Clues {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}
	if len(a.Clues) > 0 {
		sb.WriteString("\n")
	}

	if a.Reasoning != "" {
		sb.WriteString("## Reasoning\n\n")
		sb.WriteString(a.Reasoning)
		sb.WriteString("\n")
	}

	return sb.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

// LogEntry is one line of Log/analyses.jsonl.
type LogEntry struct {
	ID         string `json:"id"`
	TS         string `json:"ts"`
	Actor      string `json:"actor"`
	ImageHash  string `json:"image_hash,omitempty"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Confidence int    `json:"confidence"`
	Valid      bool   `json:"valid"`
	Status     string `json:"status"`
	Report     string `json:"report,omitempty"`
}

// Status values for LogEntry.
const (
	StatusCompleted = "completed"
	StatusDeleted   = "deleted"
	StatusPruned    = "pruned"
)

// NewLogEntry fills a LogEntry from a and stamps it with the current time.
func NewLogEntry(a Analysis, status, reportPath string) LogEntry {
	return LogEntry{
		ID:         a.ID,
		TS:         time.Now().UTC().Format(time.RFC3339),
		Actor:      a.Actor,
		ImageHash:  a.ImageHash,
		City:       a.City,
		Country:    a.Country,
		Confidence: a.Confidence,
		Valid:      a.IsValid,
		Status:     status,
		Report:     reportPath,
	}
}

// LogAnalysis appends entry to Log/analyses.jsonl. Concurrent calls are
// serialised.
func (w *Writer) LogAnalysis(entry LogEntry) error {
	w.logLock.Lock()
	defer w.logLock.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling analysis log: %w", err)
	}

	if err := AppendLine(filepath.Join(w.basePath, "Log", "analyses.jsonl"), line); err != nil {
		return fmt.Errorf("appending analysis log: %w", err)
	}
	return nil
}
