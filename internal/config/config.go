package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mrwolf/geolocator/internal/confidence"
)

const envPrefix = "GEO_"

// Config is read from GEO_* variables. GEO_TOKENS is a comma-separated list
// of token:actor pairs, so tokens may contain neither "," nor ":".
type Config struct {
	Port           string            `env:"PORT" envDefault:"8080"`
	DBPath         string            `env:"DB_PATH"`
	ReportsPath    string            `env:"REPORTS_PATH"`
	OllamaURL      string            `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel    string            `env:"OLLAMA_MODEL" envDefault:"llava:13b"`
	OllamaTimeout  time.Duration     `env:"OLLAMA_TIMEOUT" envDefault:"120s"`
	Tokens         map[string]string `env:"TOKENS" envSeparator:"," envKeyValSeparator:":"`
	RuleSet        string            `env:"RULE_SET" envDefault:"tiered"`
	CacheSize      int               `env:"CACHE_SIZE" envDefault:"256"`
	CacheTTL       time.Duration     `env:"CACHE_TTL" envDefault:"24h"`
	RateLimit      int               `env:"RATE_LIMIT" envDefault:"30"`
	RetentionDays  int               `env:"RETENTION_DAYS" envDefault:"90"`
	GeocoderURL    string            `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org"`
	GeocoderRPS    float64           `env:"GEOCODER_RPS" envDefault:"1"`
	GeocoderAgent  string            `env:"GEOCODER_USER_AGENT" envDefault:"geolocator/1.0"`
	GeocoderOn     bool              `env:"GEOCODER_ENABLED" envDefault:"false"`
	LogLevel       string            `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string            `env:"LOG_FORMAT" envDefault:"json"`
	Timezone       string            `env:"TIMEZONE" envDefault:"Europe/London"`
	MaxUploadBytes int64             `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
}

// Load reads GEO_* variables and validates the result.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse reads GEO_* variables without validating them. The CLI uses it
// because most of its commands need neither tokens nor a database.
func Parse() (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: envPrefix})
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("GEO_DB_PATH is required")
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("GEO_TOKENS must name at least one token:actor pair")
	}
	for token, actor := range c.Tokens {
		if token == "" || actor == "" {
			return fmt.Errorf("GEO_TOKENS has an empty token or actor")
		}
		// Pairs are split at the first ":", so a colon in a token leaks the
		// rest of the token into the actor name.
		if strings.Contains(actor, ":") {
			return fmt.Errorf("GEO_TOKENS: actor %q contains ':' (tokens and actors may not contain ':')", actor)
		}
	}
	if _, err := confidence.Lookup(c.RuleSet); err != nil {
		return fmt.Errorf("GEO_RULE_SET: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("GEO_TIMEZONE: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("GEO_LOG_FORMAT must be json or console")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("GEO_RATE_LIMIT must be positive")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("GEO_RETENTION_DAYS must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("GEO_MAX_UPLOAD_BYTES must be positive")
	}
	if c.GeocoderOn && c.GeocoderRPS <= 0 {
		return fmt.Errorf("GEO_GEOCODER_RPS must be positive")
	}
	return nil
}

// ActorFromToken maps a bearer token to the actor it was issued to.
func (c *Config) ActorFromToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	actor, ok := c.Tokens[token]
	return actor, ok
}

// Actors lists every configured actor once, in name order.
func (c *Config) Actors() []string {
	seen := make(map[string]bool, len(c.Tokens))
	var actors []string
	for _, actor := range c.Tokens {
		if !seen[actor] {
			seen[actor] = true
			actors = append(actors, actor)
		}
	}
	slices.Sort(actors)
	return actors
}

// Retention is how long analyses are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
