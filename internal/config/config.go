package config

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// Output formats for the shredded record files
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Database drivers supported by the load command
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the global configuration for a shred, audit or load run
type Config struct {
	// Input settings
	InputFile string
	RulesFile string // Optional YAML file overriding the normalization rules

	// Output settings
	OutputDir string
	Format    string
	BatchSize int // Rows per Parquet row group

	// Processing settings
	Validate bool

	// Database settings
	Driver       string
	SQLitePath   string
	DBHost       string
	DBPort       int
	DBName       string
	DBUser       string
	DBPassword   string
	DBSchema     string
	DropExisting bool

	// Logging and metrics
	Verbose         bool
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for progress and system metrics logging
	MetricsFile     string        // Prometheus textfile written at the end of a run
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OutputDir:       "./osm_csv",
		Format:          FormatCSV,
		BatchSize:       100000,
		Driver:          DriverPostgres,
		SQLitePath:      "osm.db",
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "osm",
		DBUser:          "postgres",
		DBSchema:        "public",
		MetricsInterval: 30 * time.Second,
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// ValidateShred checks that the configuration is valid for shredding
func (c *Config) ValidateShred() error {
	if c.InputFile == "" {
		return eris.New("config: input file is required")
	}
	if c.OutputDir == "" {
		return eris.New("config: output directory is required")
	}
	switch c.Format {
	case FormatCSV, FormatParquet:
	default:
		return eris.Errorf("config: format must be %s or %s (got %q)", FormatCSV, FormatParquet, c.Format)
	}
	if c.Format == FormatParquet && c.BatchSize < 1 {
		return eris.New("config: batch size must be at least 1")
	}
	return nil
}

// ValidateLoad checks that the configuration is valid for loading
func (c *Config) ValidateLoad() error {
	if c.OutputDir == "" {
		return eris.New("config: output directory is required")
	}
	switch c.Driver {
	case DriverPostgres:
		if c.DBSchema == "" {
			return eris.New("config: database schema is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return eris.New("config: sqlite path is required")
		}
	default:
		return eris.Errorf("config: driver must be %s or %s (got %q)", DriverPostgres, DriverSQLite, c.Driver)
	}
	return nil
}
