package cmd

import (
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmshred/internal/config"
	"github.com/wegman-software/osmshred/internal/loader"
	"github.com/wegman-software/osmshred/internal/logger"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the shredded CSV tables into PostgreSQL or SQLite",
	Long: `Load the five CSV files of the output directory into a database.

This stage:
  1. Creates the tables nodes, ways, nodes_tags, ways_tags, ways_nodes
     with foreign keys from tags and memberships to their owners
  2. Empties them, or drops and recreates them with --drop-existing
  3. Loads nodes and ways, then the tables that reference them

PostgreSQL is loaded with parallel COPY streams; SQLite row by row in one
transaction per table.`,
	Run: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVar(&cfg.Driver, "driver", cfg.Driver, "Database driver: postgres or sqlite")
	loadCmd.Flags().StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	loadCmd.Flags().BoolVar(&cfg.DropExisting, "drop-existing", false, "Drop existing tables before loading")
}

func runLoad(cmd *cobra.Command, args []string) {
	log := logger.ForRun("load")

	if err := cfg.ValidateLoad(); err != nil {
		exitWithError("invalid configuration", err)
	}

	fields := []zap.Field{zap.String("input_dir", cfg.OutputDir), zap.String("driver", cfg.Driver)}
	if cfg.Driver == config.DriverSQLite {
		fields = append(fields, zap.String("path", cfg.SQLitePath))
	} else {
		fields = append(fields,
			zap.String("database", cfg.DBName),
			zap.String("host", cfg.DBHost),
			zap.Int("port", cfg.DBPort),
			zap.String("user", cfg.DBUser),
			zap.String("schema", cfg.DBSchema))
	}
	log.Info("Starting load", fields...)

	ctx, cancel := signalContext(log)
	defer cancel()

	start := time.Now()

	ldr, err := loader.New(ctx, cfg, log)
	if err != nil {
		exitWithError("failed to create loader", err)
	}
	defer ldr.Close()

	stats, err := ldr.Load(ctx)
	if err != nil {
		exitWithError("load failed", err)
	}

	elapsed := time.Since(start)

	log.Info("Load complete",
		zap.Duration("duration", elapsed.Round(time.Second)),
		zap.Int64("rows", stats.RowsLoaded),
		zap.Float64("throughput_rows_s", float64(stats.RowsLoaded)/elapsed.Seconds()),
	)
}
