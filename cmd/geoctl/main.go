// Package main implements geoctl, the operator CLI for the geolocator
// service. It runs the analysis pipeline locally and reads the history
// database directly.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mrwolf/geolocator/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the persistent flags, defaulted from GEO_* variables.
type options struct {
	cfg     *config.Config
	ruleSet string
	dbPath  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "geoctl",
		Short: "Operate the geolocator service from the command line",
		Long: `geoctl runs the photo geolocation pipeline locally and inspects stored analyses.

Settings default to the same GEO_* environment variables the server reads.`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg != nil {
				return nil
			}
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("rule-set") {
				opts.ruleSet = cfg.RuleSet
			}
			if !cmd.Flags().Changed("db") {
				opts.dbPath = cfg.DBPath
			}
			cfg.RuleSet = opts.ruleSet
			cfg.DBPath = opts.dbPath
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.ruleSet, "rule-set", "", "calibration rule set (default from GEO_RULE_SET)")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (default from GEO_DB_PATH)")

	root.AddCommand(
		newValidateCmd(opts),
		newLocateCmd(opts),
		newHistoryCmd(opts),
		newRulesCmd(opts),
		newPingCmd(opts),
	)
	return root
}
