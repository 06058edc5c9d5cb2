// Package locator runs the full analysis of one photograph: model call,
// reply extraction, confidence calibration and geocoding annotation.
// Results are cached by image digest and concurrent requests for the same
// image share a single model call.
package locator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mrwolf/geolocator/internal/analysis"
	"github.com/mrwolf/geolocator/internal/confidence"
	"github.com/mrwolf/geolocator/internal/geo"
	"github.com/mrwolf/geolocator/internal/geocode"
	"github.com/mrwolf/geolocator/internal/metrics"
)

var (
	ErrEmptyImage       = errors.New("empty image")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrUnusableReply    = errors.New("the AI did not return a usable answer")
)

// SupportedTypes are the MIME types accepted by Locate.
var SupportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Generator is the model capability the locator needs.
type Generator interface {
	Vision(ctx context.Context, prompt string, images [][]byte) (string, error)
}

// Result is one completed analysis.
type Result struct {
	ImageHash  string             `json:"image_hash,omitempty"`
	Reply      analysis.Reply     `json:"reply"`
	Outcome    confidence.Outcome `json:"outcome"`
	RawReply   string             `json:"raw_reply"`
	Place      *geocode.Place     `json:"place,omitempty"`
	DistanceKm *float64           `json:"distance_km,omitempty"`
	Cached     bool               `json:"cached"`
}

// Options configures a Locator. Zero values disable the cache and geocoding.
// CallTimeout bounds a shared model call; zero leaves it unbounded.
type Options struct {
	CacheSize   int
	CacheTTL    time.Duration
	CallTimeout time.Duration
	Geocoder    geocode.Geocoder
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Locator is safe for concurrent use.
type Locator struct {
	gen         Generator
	validator   confidence.Validator
	geocoder    geocode.Geocoder
	cache       *expirable.LRU[string, *Result]
	group       singleflight.Group
	callTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// New creates a Locator.
func New(gen Generator, validator confidence.Validator, opts Options) *Locator {
	l := &Locator{
		gen:         gen,
		validator:   validator,
		geocoder:    opts.Geocoder,
		callTimeout: opts.CallTimeout,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
	if l.metrics == nil {
		l.metrics = metrics.New()
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if opts.CacheSize > 0 {
		l.cache = expirable.NewLRU[string, *Result](opts.CacheSize, nil, opts.CacheTTL)
	}
	return l
}

// Digest is the hex SHA-256 of the full image.
func Digest(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// Locate analyzes one image. An empty contentType is sniffed from the bytes.
func (l *Locator) Locate(ctx context.Context, image []byte, contentType string) (*Result, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	mt, err := mediaType(image, contentType)
	if err != nil {
		return nil, err
	}

	digest := Digest(image)
	if l.cache != nil {
		if hit, ok := l.cache.Get(digest); ok {
			l.metrics.CacheHitsTotal.Inc()
			res := *hit
			res.Cached = true
			return &res, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The shared call is detached from the caller that started it, so one
	// caller giving up does not fail the others. Each caller stops waiting
	// on its own ctx below.
	ch := l.group.DoChan(digest, func() (any, error) {
		callCtx, cancel := l.callContext(ctx)
		defer cancel()
		return l.analyze(callCtx, digest, image)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		l.logger.Debug("image located",
			zap.String("image_hash", digest),
			zap.String("type", mt),
			zap.Bool("shared", r.Shared))
		return &res, nil
	}
}

func (l *Locator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if l.callTimeout > 0 {
		return context.WithTimeout(ctx, l.callTimeout)
	}
	return context.WithCancel(ctx)
}

// Evaluate extracts and calibrates an already obtained model reply.
func (l *Locator) Evaluate(raw string) (*Result, error) {
	reply, err := analysis.Extract(raw)
	if err != nil {
		l.metrics.ObserveFailure()
		return nil, fmt.Errorf("%w: %w", ErrUnusableReply, err)
	}

	outcome := l.validator.Validate(confidence.NewInput(reply, raw))
	l.metrics.ObserveOutcome(outcome.IsValid, outcome.Confidence, outcome.Fired)

	return &Result{
		Reply:    *reply,
		Outcome:  outcome,
		RawReply: raw,
	}, nil
}

func (l *Locator) analyze(ctx context.Context, digest string, image []byte) (*Result, error) {
	start := time.Now()
	raw, err := l.gen.Vision(ctx, Prompt, [][]byte{image})
	l.metrics.ObserveModelCall(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		l.metrics.ObserveFailure()
		l.logger.Warn("model call failed", zap.String("image_hash", digest), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	res, err := l.Evaluate(raw)
	if err != nil {
		l.logger.Warn("unusable model reply",
			zap.String("image_hash", digest),
			zap.Int("reply_bytes", len(raw)),
			zap.Error(err))
		return nil, err
	}
	res.ImageHash = digest

	l.annotate(ctx, res)

	if l.cache != nil {
		l.cache.Add(digest, res)
	}
	return res, nil
}

// annotate attaches a geocoded place and its distance from the model's
// coordinates. A named city is looked up directly; when the model gave no
// usable city the coordinates are reverse geocoded instead. Failures are
// logged and otherwise ignored.
func (l *Locator) annotate(ctx context.Context, res *Result) {
	if l.geocoder == nil {
		return
	}
	loc := res.Reply.Location
	if !geo.InRange(loc.Lat, loc.Lng) {
		return
	}

	var (
		place *geocode.Place
		err   error
		query string
	)
	if loc.City == "" || strings.Contains(strings.ToLower(loc.City), "unknown") {
		query = fmt.Sprintf("%.5f,%.5f", loc.Lat, loc.Lng)
		place, err = l.geocoder.Reverse(ctx, loc.Lat, loc.Lng)
	} else {
		query = loc.City
		if loc.Country != "" {
			query += ", " + loc.Country
		}
		place, err = l.geocoder.Search(ctx, query)
	}
	if err != nil {
		l.logger.Info("geocoding skipped", zap.String("query", query), zap.Error(err))
		return
	}

	d := geo.DistanceKm(loc.Lat, loc.Lng, place.Lat, place.Lng)
	res.Place = place
	res.DistanceKm = &d
}

func mediaType(image []byte, contentType string) (string, error) {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(image)
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, contentType)
	}
	if !SupportedTypes[mt] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mt)
	}
	return mt, nil
}
