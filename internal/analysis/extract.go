package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var requiredLocationFields = []string{"city", "country", "lat", "lng", "confidence"}

// envelope keeps the nested objects raw so presence can be checked before
// decoding into typed fields.
type envelope struct {
	Location map[string]json.RawMessage `json:"location"`
	Analysis *AnalysisNarrative         `json:"analysis"`
}

// Extract finds the first balanced JSON object in text that carries both a
// location and an analysis key, and decodes it. Example objects that appear
// earlier in surrounding prose are skipped, and a span that does not decode
// is searched for nested objects before moving on.
func Extract(text string) (*Reply, error) {
	spans := Candidates(text)
	if len(spans) == 0 {
		return nil, ErrNoJSONFound
	}

	var f finder
	if reply := f.first(spans); reply != nil {
		return reply, nil
	}

	if f.shape != nil {
		return nil, f.shape
	}
	return nil, f.malformed
}

// finder keeps the first error of each kind seen while searching.
type finder struct {
	malformed error
	shape     error
}

func (f *finder) first(spans []string) *Reply {
	for _, span := range spans {
		reply, err := decode(span)
		if err == nil {
			return reply
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			if f.malformed == nil {
				f.malformed = fmt.Errorf("%w: %v", ErrMalformedJSON, err)
			}
		} else if f.shape == nil {
			// A parsed object with the wrong shape says more than a syntax
			// error from some other fragment.
			f.shape = err
		}

		if inner := Candidates(span[1 : len(span)-1]); len(inner) > 0 {
			if reply := f.first(inner); reply != nil {
				return reply
			}
		}
	}
	return nil
}

func decode(span string) (*Reply, error) {
	var env envelope
	if err := json.Unmarshal([]byte(span), &env); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMissingField, err)
	}

	if env.Location == nil {
		return nil, fmt.Errorf("%w: location", ErrMissingField)
	}
	if env.Analysis == nil {
		return nil, fmt.Errorf("%w: analysis", ErrMissingField)
	}
	for _, field := range requiredLocationFields {
		raw, ok := env.Location[field]
		if !ok || isNull(raw) {
			return nil, fmt.Errorf("%w: location.%s", ErrMissingField, field)
		}
	}

	loc, err := decodeLocation(env.Location)
	if err != nil {
		return nil, err
	}

	return &Reply{Location: loc, Analysis: *env.Analysis}, nil
}

func decodeLocation(fields map[string]json.RawMessage) (LocationCandidate, error) {
	var loc LocationCandidate

	if err := json.Unmarshal(fields["city"], &loc.City); err != nil {
		return loc, fmt.Errorf("%w: location.city: %v", ErrMissingField, err)
	}
	if err := json.Unmarshal(fields["country"], &loc.Country); err != nil {
		return loc, fmt.Errorf("%w: location.country: %v", ErrMissingField, err)
	}

	var err error
	if loc.Lat, err = number(fields["lat"]); err != nil {
		return loc, fmt.Errorf("%w: location.lat: %v", ErrMissingField, err)
	}
	if loc.Lng, err = number(fields["lng"]); err != nil {
		return loc, fmt.Errorf("%w: location.lng: %v", ErrMissingField, err)
	}

	conf, err := number(fields["confidence"])
	if err != nil {
		return loc, fmt.Errorf("%w: location.confidence: %v", ErrMissingField, err)
	}
	loc.ConfidenceRaw = int(math.Round(min(max(conf, 0), 100)))

	return loc, nil
}

// number accepts a JSON number or a numeric string; models do both.
func number(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
