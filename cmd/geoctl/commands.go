package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrwolf/geolocator/internal/app"
	"github.com/mrwolf/geolocator/internal/confidence"
	"github.com/mrwolf/geolocator/internal/db"
	"github.com/mrwolf/geolocator/internal/llm"
	"github.com/mrwolf/geolocator/internal/locator"
	"github.com/mrwolf/geolocator/internal/logging"
	"github.com/mrwolf/geolocator/internal/metrics"
)

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Calibrate a saved model reply",
		Long: `Extract the location JSON from a saved model reply and run the calibration rules over it.
No model is called. Reads stdin when the file is "-" or omitted.

Examples:
  geoctl validate reply.txt
  cat reply.txt | geoctl validate -
  geoctl validate --rule-set lenient reply.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("reading reply: %w", err)
			}

			ruleSet, err := confidence.Lookup(opts.cfg.RuleSet)
			if err != nil {
				return err
			}

			l := locator.New(nil, ruleSet, locator.Options{})
			res, err := l.Evaluate(string(raw))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newLocateCmd(opts *options) *cobra.Command {
	var timeout time.Duration
	var verbose bool

	cmd := &cobra.Command{
		Use:   "locate <image>",
		Short: "Run the full pipeline against the configured model",
		Long: `Send an image to the configured Ollama vision model and print the calibrated result.

Examples:
  geoctl locate photo.jpg
  GEO_OLLAMA_MODEL=llava:34b geoctl locate --timeout 5m photo.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading image: %w", err)
			}

			logger := zap.NewNop()
			if verbose {
				if logger, err = logging.New("debug", "console"); err != nil {
					return err
				}
			}

			pipeline, err := app.NewPipeline(opts.cfg, metrics.New(), logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := pipeline.Locator.Locate(ctx, image, contentTypeFor(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "overall timeout including retries")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline steps to stderr")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	var actor string
	var all bool
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent analyses from the database",
		Long: `List recent analyses, newest first, for one actor or for every actor in GEO_TOKENS.

Examples:
  geoctl history --actor alice
  geoctl history --all --limit 5
  geoctl history --actor alice --limit 5 --db /var/lib/geolocator/geo.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.DBPath == "" {
				return fmt.Errorf("no database: pass --db or set GEO_DB_PATH")
			}

			actors := []string{actor}
			if all {
				actors = opts.cfg.Actors()
				if len(actors) == 0 {
					return fmt.Errorf("no actors configured: set GEO_TOKENS")
				}
			}

			database, err := db.Open(opts.cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tACTOR\tCREATED\tLOCATION\tRAW\tFINAL\tVALID")
			for _, a := range actors {
				records, err := database.ListAnalyses(a, nil, limit)
				if err != nil {
					return fmt.Errorf("listing analyses for %s: %w", a, err)
				}
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s, %s\t%d\t%d\t%t\n",
						r.ID, r.Actor, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.City, r.Country,
						r.ConfidenceRaw, r.Confidence, r.IsValid)
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "actor whose history to list")
	cmd.Flags().BoolVar(&all, "all", false, "list history for every configured actor")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of analyses per actor")
	cmd.MarkFlagsOneRequired("actor", "all")
	cmd.MarkFlagsMutuallyExclusive("actor", "all")
	return cmd
}

func newPingCmd(opts *options) *cobra.Command {
	var prompt string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured model is reachable and answers",
		Long: `Check the Ollama server, then send a short text prompt to the configured model and
print its answer with the round-trip time. Unlike the server's health check this
loads the model, so the first ping after a restart can be slow.

Examples:
  geoctl ping
  GEO_OLLAMA_URL=http://gpu-box:11434 geoctl ping --timeout 5m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := llm.NewClient(opts.cfg.OllamaURL, opts.cfg.OllamaModel, opts.cfg.OllamaTimeout)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := client.HealthCheck(ctx); err != nil {
				return fmt.Errorf("ollama at %s: %w", opts.cfg.OllamaURL, err)
			}

			start := time.Now()
			answer, err := client.Generate(ctx, prompt)
			if err != nil {
				return fmt.Errorf("model %s: %w", client.Model(), err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model: %s\n", client.Model())
			fmt.Fprintf(out, "latency: %s\n", time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(out, "answer: %s\n", strings.TrimSpace(answer))
			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "Reply with the single word: ready", "text prompt to send")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout including model load")
	return cmd
}

func newRulesCmd(opts *options) *cobra.Command {
	var showTerms bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the active rule set and vocabularies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleSet, err := confidence.Lookup(opts.cfg.RuleSet)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rule set: %s (available: %s)\n", ruleSet.Name, strings.Join(confidence.Names(), ", "))
			fmt.Fprintf(out, "valid at or above: %d\n\n", ruleSet.ValidThreshold)
			for i, rule := range ruleSet.Rules {
				fmt.Fprintf(out, "%2d. %s\n", i+1, rule.Name())
			}

			vocabularies := []struct {
				name  string
				terms confidence.Vocabulary
			}{
				{"hedging", confidence.HedgingTerms},
				{"tier 1 evidence", confidence.TierOneEvidence},
				{"tier 2 evidence", confidence.TierTwoEvidence},
				{"generic description", confidence.GenericDescriptionTerms},
			}
			fmt.Fprintln(out)
			for _, v := range vocabularies {
				fmt.Fprintf(out, "%s: %d terms\n", v.name, len(v.terms))
				if showTerms {
					fmt.Fprintf(out, "  %s\n", strings.Join(v.terms, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTerms, "terms", false, "list every vocabulary term")
	return cmd
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	return ""
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
