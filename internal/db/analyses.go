package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AnalysisRecord is a stored analysis.
type AnalysisRecord struct {
	ID            string
	Actor         string
	ImageHash     string
	City          string
	Country       string
	Lat           float64
	Lng           float64
	ConfidenceRaw int
	Confidence    int
	IsValid       bool
	Reasons       []string
	Fired         []string
	RuleSet       string
	Description   string
	Clues         []string
	Reasoning     string
	RawReply      string
	Place         string
	DistanceKm    *float64
	CreatedAt     time.Time
}

const analysisColumns = `id, actor, image_hash, city, country, lat, lng, confidence_raw, confidence,
	is_valid, reasons, fired, rule_set, description, clues, reasoning, raw_reply, place, distance_km, created_at`

// SaveAnalysis inserts a record. A zero CreatedAt is stamped with now.
func (db *DB) SaveAnalysis(rec *AnalysisRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	reasons, err := marshalList(rec.Reasons)
	if err != nil {
		return fmt.Errorf("encoding reasons: %w", err)
	}
	fired, err := marshalList(rec.Fired)
	if err != nil {
		return fmt.Errorf("encoding fired rules: %w", err)
	}
	clues, err := marshalList(rec.Clues)
	if err != nil {
		return fmt.Errorf("encoding clues: %w", err)
	}

	var distance sql.NullFloat64
	if rec.DistanceKm != nil {
		distance = sql.NullFloat64{Float64: *rec.DistanceKm, Valid: true}
	}

	_, err = db.conn.Exec(`
		INSERT INTO analyses (`+analysisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Actor, rec.ImageHash, rec.City, rec.Country, rec.Lat, rec.Lng,
		rec.ConfidenceRaw, rec.Confidence, rec.IsValid, reasons, fired, rec.RuleSet,
		rec.Description, clues, rec.Reasoning, rec.RawReply, rec.Place, distance,
		formatTime(rec.CreatedAt))
	return err
}

// GetAnalysis returns one of actor's analyses, or nil if there is none.
func (db *DB) GetAnalysis(actor, id string) (*AnalysisRecord, error) {
	row := db.conn.QueryRow(`
		SELECT `+analysisColumns+`
		FROM analyses
		WHERE id = ? AND actor = ?
	`, id, actor)

	rec, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListAnalyses returns actor's analyses newest first. since may be nil and a
// non-positive limit means no limit.
func (db *DB) ListAnalyses(actor string, since *time.Time, limit int) ([]AnalysisRecord, error) {
	var query strings.Builder
	query.WriteString(`SELECT ` + analysisColumns + ` FROM analyses WHERE actor = ?`)
	args := []any{actor}

	if since != nil {
		query.WriteString(` AND created_at >= ?`)
		args = append(args, formatTime(*since))
	}
	query.WriteString(` ORDER BY created_at DESC`)
	if limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// DeleteAnalysis removes one of actor's analyses and reports whether it existed.
func (db *DB) DeleteAnalysis(actor, id string) (bool, error) {
	result, err := db.conn.Exec(`DELETE FROM analyses WHERE id = ? AND actor = ?`, id, actor)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// PruneAnalyses deletes every analysis created before the cutoff.
func (db *DB) PruneAnalyses(before time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM analyses WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountAnalyses counts actor's analyses; an empty actor counts all of them.
func (db *DB) CountAnalyses(actor string) (int, error) {
	var n int
	var err error
	if actor == "" {
		err = db.conn.QueryRow(`SELECT COUNT(*) FROM analyses`).Scan(&n)
	} else {
		err = db.conn.QueryRow(`SELECT COUNT(*) FROM analyses WHERE actor = ?`, actor).Scan(&n)
	}
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*AnalysisRecord, error) {
	var rec AnalysisRecord
	var reasons, fired, clues, createdStr string
	var description, reasoning, place sql.NullString
	var distance sql.NullFloat64

	err := s.Scan(&rec.ID, &rec.Actor, &rec.ImageHash, &rec.City, &rec.Country, &rec.Lat, &rec.Lng,
		&rec.ConfidenceRaw, &rec.Confidence, &rec.IsValid, &reasons, &fired, &rec.RuleSet,
		&description, &clues, &reasoning, &rec.RawReply, &place, &distance, &createdStr)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(reasons), &rec.Reasons); err != nil {
		return nil, fmt.Errorf("decoding reasons of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(fired), &rec.Fired); err != nil {
		return nil, fmt.Errorf("decoding fired rules of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(clues), &rec.Clues); err != nil {
		return nil, fmt.Errorf("decoding clues of %s: %w", rec.ID, err)
	}
	rec.Description = description.String
	rec.Reasoning = reasoning.String
	rec.Place = place.String
	if distance.Valid {
		d := distance.Float64
		rec.DistanceKm = &d
	}
	rec.CreatedAt = parseTime(createdStr)
	return &rec, nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}
