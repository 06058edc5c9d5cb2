package api

import (
	"time"

	"github.com/mrwolf/geolocator/internal/db"
	"github.com/mrwolf/geolocator/internal/locator"
	"github.com/mrwolf/geolocator/internal/models"
	"github.com/mrwolf/geolocator/internal/report"
)

func recordFromResult(id, actor, ruleSet string, res *locator.Result) *db.AnalysisRecord {
	loc := res.Reply.Location
	narrative := res.Reply.Analysis
	rec := &db.AnalysisRecord{
		ID:            id,
		Actor:         actor,
		ImageHash:     res.ImageHash,
		City:          loc.City,
		Country:       loc.Country,
		Lat:           loc.Lat,
		Lng:           loc.Lng,
		ConfidenceRaw: loc.ConfidenceRaw,
		Confidence:    res.Outcome.Confidence,
		IsValid:       res.Outcome.IsValid,
		Reasons:       res.Outcome.Reasons,
		Fired:         res.Outcome.Fired,
		RuleSet:       ruleSet,
		Description:   narrative.Description,
		Clues:         narrative.Clues,
		Reasoning:     narrative.Reasoning,
		RawReply:      res.RawReply,
		DistanceKm:    res.DistanceKm,
		CreatedAt:     time.Now().UTC(),
	}
	if res.Place != nil {
		rec.Place = res.Place.DisplayName
	}
	return rec
}

func fromRecord(rec *db.AnalysisRecord) models.Analysis {
	created := rec.CreatedAt
	return models.Analysis{
		ID:        rec.ID,
		CreatedAt: &created,
		ImageHash: rec.ImageHash,
		Location: models.Location{
			City:    rec.City,
			Country: rec.Country,
			Lat:     rec.Lat,
			Lng:     rec.Lng,
		},
		Analysis: models.Narrative{
			Description: rec.Description,
			Clues:       nonNil(rec.Clues),
			Reasoning:   rec.Reasoning,
		},
		ConfidenceRaw: rec.ConfidenceRaw,
		Confidence:    rec.Confidence,
		IsValid:       rec.IsValid,
		Reasons:       nonNil(rec.Reasons),
		Fired:         nonNil(rec.Fired),
		RuleSet:       rec.RuleSet,
		Place:         rec.Place,
		DistanceKm:    rec.DistanceKm,
	}
}

func fromResult(res *locator.Result, ruleSet string) models.Analysis {
	loc := res.Reply.Location
	out := models.Analysis{
		ImageHash: res.ImageHash,
		Location: models.Location{
			City:    loc.City,
			Country: loc.Country,
			Lat:     loc.Lat,
			Lng:     loc.Lng,
		},
		Analysis: models.Narrative{
			Description: res.Reply.Analysis.Description,
			Clues:       nonNil(res.Reply.Analysis.Clues),
			Reasoning:   res.Reply.Analysis.Reasoning,
		},
		ConfidenceRaw: loc.ConfidenceRaw,
		Confidence:    res.Outcome.Confidence,
		IsValid:       res.Outcome.IsValid,
		Reasons:       nonNil(res.Outcome.Reasons),
		Fired:         nonNil(res.Outcome.Fired),
		RuleSet:       ruleSet,
		DistanceKm:    res.DistanceKm,
		Cached:        res.Cached,
	}
	if res.Place != nil {
		out.Place = res.Place.DisplayName
	}
	return out
}

func reportFromRecord(rec *db.AnalysisRecord) report.Analysis {
	return report.Analysis{
		ID:            rec.ID,
		Actor:         rec.Actor,
		Created:       rec.CreatedAt,
		ImageHash:     rec.ImageHash,
		City:          rec.City,
		Country:       rec.Country,
		Lat:           rec.Lat,
		Lng:           rec.Lng,
		ConfidenceRaw: rec.ConfidenceRaw,
		Confidence:    rec.Confidence,
		IsValid:       rec.IsValid,
		Reasons:       rec.Reasons,
		RuleSet:       rec.RuleSet,
		Description:   rec.Description,
		Clues:         rec.Clues,
		Reasoning:     rec.Reasoning,
		Place:         rec.Place,
		DistanceKm:    rec.DistanceKm,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
