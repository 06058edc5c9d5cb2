// Package app wires configuration into the collaborators shared by the
// server and the CLI.
package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mrwolf/geolocator/internal/config"
	"github.com/mrwolf/geolocator/internal/confidence"
	"github.com/mrwolf/geolocator/internal/geocode"
	"github.com/mrwolf/geolocator/internal/llm"
	"github.com/mrwolf/geolocator/internal/locator"
	"github.com/mrwolf/geolocator/internal/metrics"
)

// Pipeline is a configured model client and the locator built on it.
type Pipeline struct {
	Model   *llm.Client
	RuleSet *confidence.RuleSet
	Locator *locator.Locator
}

// NewPipeline builds the analysis pipeline described by cfg.
func NewPipeline(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*Pipeline, error) {
	ruleSet, err := confidence.Lookup(cfg.RuleSet)
	if err != nil {
		return nil, fmt.Errorf("selecting rule set: %w", err)
	}

	model := llm.NewClient(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaTimeout)

	// CallTimeout leaves room for three attempts plus the 1s and 2s backoffs.
	opts := locator.Options{
		CacheSize:   cfg.CacheSize,
		CacheTTL:    cfg.CacheTTL,
		CallTimeout: 3*cfg.OllamaTimeout + 3*time.Second,
		Metrics:     m,
		Logger:      logger.Named("locator"),
	}
	if cfg.GeocoderOn {
		opts.Geocoder = geocode.NewClient(cfg.GeocoderURL, cfg.GeocoderAgent, cfg.GeocoderRPS)
	}

	return &Pipeline{
		Model:   model,
		RuleSet: ruleSet,
		Locator: locator.New(model, ruleSet, opts),
	}, nil
}
