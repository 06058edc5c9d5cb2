package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mrwolf/geolocator/internal/analysis"
	"github.com/mrwolf/geolocator/internal/db"
	"github.com/mrwolf/geolocator/internal/locator"
)

const reply = `Looking at this image:
{"location":{"city":"Berlin","country":"Germany","lat":52.52,"lng":13.405,"confidence":85},` +
	`"analysis":{"description":"urban street scene","clues":["Bundesgasse street sign","Deutsche Bahn logo"],` +
	`"reasoning":"Clear German signage and transit branding observed throughout the frame confirming location precisely"}}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GEO_RULE_SET", "tiered")

	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"validate": false, "locate": false, "history": false, "rules": false, "ping": false}
	for _, cmd := range newRootCmd().Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
			if cmd.Short == "" {
				t.Errorf("%s should have a Short description", cmd.Name())
			}
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s command not registered", name)
		}
	}
}

func TestValidateFromStdin(t *testing.T) {
	out, err := execute(t, reply, "validate", "-")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	var res locator.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.Outcome.Confidence != 85 || !res.Outcome.IsValid {
		t.Errorf("unexpected outcome %+v", res.Outcome)
	}
}

func TestValidateLenientFlag(t *testing.T) {
	noClues := strings.Replace(reply, `["Bundesgasse street sign","Deutsche Bahn logo"]`, `[]`, 1)

	tiered, err := execute(t, noClues, "validate")
	if err != nil {
		t.Fatalf("validate tiered: %v", err)
	}
	lenient, err := execute(t, noClues, "validate", "--rule-set", "lenient")
	if err != nil {
		t.Fatalf("validate lenient: %v", err)
	}

	var a, b locator.Result
	json.Unmarshal([]byte(tiered), &a)
	json.Unmarshal([]byte(lenient), &b)
	if a.Outcome.Confidence != 20 {
		t.Errorf("tiered: expected 20, got %d", a.Outcome.Confidence)
	}
	if b.Outcome.Confidence != 40 {
		t.Errorf("lenient: expected 40, got %d", b.Outcome.Confidence)
	}
}

func TestValidateUnusableReply(t *testing.T) {
	_, err := execute(t, "no idea, sorry", "validate")
	if !errors.Is(err, locator.ErrUnusableReply) || !errors.Is(err, analysis.ErrNoJSONFound) {
		t.Errorf("expected unusable reply error, got %v", err)
	}
}

func TestRules(t *testing.T) {
	out, err := execute(t, "", "rules", "--terms")
	if err != nil {
		t.Fatalf("rules: %v", err)
	}

	for _, s := range []string{"rule set: tiered", "hedging_penalty", "reasoning_length", "valid at or above: 20", "maybe"} {
		if !strings.Contains(out, s) {
			t.Errorf("rules output missing %q", s)
		}
	}
}

func TestHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "geo.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	rec := &db.AnalysisRecord{
		ID: "ana_1", Actor: "alice", City: "Berlin", Country: "Germany",
		ConfidenceRaw: 85, Confidence: 75, IsValid: true, RuleSet: "tiered",
		RawReply: "{}", CreatedAt: time.Now(),
	}
	if err := database.SaveAnalysis(rec); err != nil {
		t.Fatalf("saving analysis: %v", err)
	}
	database.Close()

	out, err := execute(t, "", "history", "--actor", "alice", "--db", dbPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "ana_1") || !strings.Contains(out, "Berlin, Germany") {
		t.Errorf("unexpected history output:\n%s", out)
	}
}

func TestHistoryRequiresActor(t *testing.T) {
	if _, err := execute(t, "", "history", "--db", "/tmp/unused.db"); err == nil {
		t.Error("expected error without --actor")
	}
	if _, err := execute(t, "", "history", "--actor", "alice", "--all", "--db", "/tmp/unused.db"); err == nil {
		t.Error("expected error with both --actor and --all")
	}
}

func TestHistoryAllActors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "geo.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	for _, rec := range []*db.AnalysisRecord{
		{ID: "ana_a", Actor: "alice", City: "Berlin", Country: "Germany", RuleSet: "tiered", RawReply: "{}"},
		{ID: "ana_b", Actor: "bob", City: "Lima", Country: "Peru", RuleSet: "tiered", RawReply: "{}"},
		{ID: "ana_c", Actor: "carol", City: "Oslo", Country: "Norway", RuleSet: "tiered", RawReply: "{}"},
	} {
		if err := database.SaveAnalysis(rec); err != nil {
			t.Fatalf("saving analysis: %v", err)
		}
	}
	database.Close()

	t.Setenv("GEO_TOKENS", "a1:alice,b1:bob")
	out, err := execute(t, "", "history", "--all", "--db", dbPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "ana_a") || !strings.Contains(out, "ana_b") {
		t.Errorf("expected both configured actors in output:\n%s", out)
	}
	if strings.Contains(out, "ana_c") {
		t.Errorf("unconfigured actor should not be listed:\n%s", out)
	}
	if strings.Index(out, "ana_a") > strings.Index(out, "ana_b") {
		t.Errorf("actors should be listed in name order:\n%s", out)
	}
}

func TestHistoryAllWithoutTokens(t *testing.T) {
	t.Setenv("GEO_TOKENS", "")
	if _, err := execute(t, "", "history", "--all", "--db", filepath.Join(t.TempDir(), "geo.db")); err == nil {
		t.Error("expected error when no actors are configured")
	}
}

func TestPing(t *testing.T) {
	prompts := make(chan string, 1)
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			var req struct {
				Prompt string   `json:"prompt"`
				Images []string `json:"images"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			prompts <- req.Prompt
			if len(req.Images) != 0 {
				t.Errorf("ping should not send images, got %d", len(req.Images))
			}
			w.Write([]byte(`{"model":"llava:13b","response":" ready\n","done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ollama.Close()

	t.Setenv("GEO_OLLAMA_URL", ollama.URL)
	out, err := execute(t, "", "ping", "--prompt", "say ready")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	select {
	case got := <-prompts:
		if got != "say ready" {
			t.Errorf("expected prompt %q, got %q", "say ready", got)
		}
	default:
		t.Error("model was never asked to generate")
	}
	for _, s := range []string{"model: llava:13b", "answer: ready", "latency: "} {
		if !strings.Contains(out, s) {
			t.Errorf("ping output missing %q:\n%s", s, out)
		}
	}
}

func TestPingUnreachable(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ollama.Close()

	t.Setenv("GEO_OLLAMA_URL", ollama.URL)
	if _, err := execute(t, "", "ping"); err == nil {
		t.Error("expected error when ollama is down")
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.JPG":  "image/jpeg",
		"b.png":  "image/png",
		"c.webp": "image/webp",
		"d.txt":  "",
	}
	for path, want := range tests {
		if got := contentTypeFor(path); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", path, got, want)
		}
	}
}
