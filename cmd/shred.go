package cmd

import (
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmshred/internal/logger"
	"github.com/wegman-software/osmshred/internal/pipeline"
)

var shredCmd = &cobra.Command{
	Use:   "shred <input.osm>",
	Short: "Shred an OSM extract into five tables",
	Long: `Stream the nodes and ways of an OSM extract and write them to

  nodes, nodes_tags, ways, ways_tags, ways_nodes

in the output directory, one file per table with a header row. Relations
are skipped. With --validate every element is checked against the record
schema and the run stops at the first violation.`,
	Args: cobra.ExactArgs(1),
	Run:  runShred,
}

func init() {
	rootCmd.AddCommand(shredCmd)

	shredCmd.Flags().BoolVar(&cfg.Validate, "validate", false, "Validate every element before writing it")
	shredCmd.Flags().StringVarP(&cfg.Format, "format", "f", cfg.Format, "Output format: csv or parquet")
	shredCmd.Flags().StringVar(&cfg.RulesFile, "rules", "", "YAML file overriding the normalization rules")
	shredCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per Parquet row group")
}

func runShred(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.ForRun("shred")

	if err := cfg.ValidateShred(); err != nil {
		exitWithError("invalid configuration", err)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	stats, err := pipeline.New(cfg, pipeline.WithLogger(log)).Run(ctx)
	if err != nil {
		exitWithError("shred failed", err)
	}

	log.Info("Shred complete",
		zap.String("output_dir", cfg.OutputDir),
		zap.Int64("elements", stats.Elements),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)),
	)
}
