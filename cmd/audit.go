package cmd

import (
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmshred/internal/audit"
	"github.com/wegman-software/osmshred/internal/logger"
	"github.com/wegman-software/osmshred/internal/normalize"
)

var auditCmd = &cobra.Command{
	Use:   "audit <input.osm>",
	Short: "List unexpected street types found in addr:street",
	Long: `Scan the nodes and ways of an OSM extract and print every street type
(the last word of addr:street) that is not in the expected list, with the
street names that use it. Use the report to extend the street mapping in
a --rules file.`,
	Args: cobra.ExactArgs(1),
	Run:  runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&cfg.RulesFile, "rules", "", "YAML file overriding the normalization rules")
}

func runAudit(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.ForRun("audit")

	rules := normalize.DefaultRules()
	if cfg.RulesFile != "" {
		var err error
		if rules, err = normalize.LoadRules(cfg.RulesFile); err != nil {
			exitWithError("invalid rules", err)
		}
	}
	norm, err := normalize.New(rules, log)
	if err != nil {
		exitWithError("invalid rules", err)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	report, err := audit.Run(ctx, cfg.InputFile, norm)
	if err != nil {
		exitWithError("audit failed", err)
	}
	if err := report.WriteTable(os.Stdout); err != nil {
		exitWithError("audit failed", err)
	}

	log.Info("Audit complete",
		zap.Int64("elements", report.Elements),
		zap.Int("unexpected_types", len(report.Entries)),
	)
}
