// Package config provides configuration management for the pivot grid viewer
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/paveg/pivotgrid/internal/pivot"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "PIVOTGRID_"

// Default configuration values
const (
	DefaultDatabasePath   = "datamart.db"
	DefaultQuery          = "SELECT * FROM ecommerce_sales"
	DefaultListenAddr     = ":8080"
	DefaultPageSize       = 25
	MaxPageSize           = 1000
	DefaultExportFileName = "pivot_table.csv"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Config represents the viewer configuration
type Config struct {
	// Row source
	DatabasePath string `json:"database_path" yaml:"database_path" env:"DATABASE_PATH"`
	Query        string `json:"query" yaml:"query" env:"QUERY"`
	// Queries names the extra queries clients may select. Any other query
	// text is rejected.
	Queries map[string]string `json:"queries" yaml:"queries"`

	// HTTP surface and presentation
	ListenAddr     string `json:"listen_addr" yaml:"listen_addr" env:"LISTEN_ADDR"`
	PageSize       int    `json:"page_size" yaml:"page_size" env:"PAGE_SIZE"`
	ExportFileName string `json:"export_file_name" yaml:"export_file_name" env:"EXPORT_FILE_NAME"`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `json:"log_format" yaml:"log_format" env:"LOG_FORMAT"`

	// Filter controls
	CategoricalColumn   string   `json:"categorical_column" yaml:"categorical_column" env:"CATEGORICAL_COLUMN"`
	CategoricalDefaults []string `json:"categorical_defaults" yaml:"categorical_defaults" env:"CATEGORICAL_DEFAULTS" envSeparator:","`
	RangeColumn         string   `json:"range_column" yaml:"range_column" env:"RANGE_COLUMN"`

	// Initial pivot selection
	DefaultRows    []string  `json:"default_rows" yaml:"default_rows" env:"DEFAULT_ROWS" envSeparator:","`
	DefaultColumns []string  `json:"default_columns" yaml:"default_columns" env:"DEFAULT_COLUMNS" envSeparator:","`
	DefaultValues  string    `json:"default_values" yaml:"default_values" env:"DEFAULT_VALUES"`
	DefaultAgg     pivot.Agg `json:"default_agg" yaml:"default_agg" env:"DEFAULT_AGG"`

	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled" env:"METRICS_ENABLED"`
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		DatabasePath:        DefaultDatabasePath,
		Query:               DefaultQuery,
		ListenAddr:          DefaultListenAddr,
		PageSize:            DefaultPageSize,
		ExportFileName:      DefaultExportFileName,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
		CategoricalColumn:   "Ecommerce",
		CategoricalDefaults: []string{"LAZADA", "SHOPEE"},
		RangeColumn:         "Year",
		DefaultRows:         []string{"Year"},
		DefaultColumns:      []string{"Ecommerce"},
		DefaultValues:       "QTY",
		DefaultAgg:          pivot.AggSum,
		MetricsEnabled:      true,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("DatabasePath must be set")
	}
	if strings.TrimSpace(c.Query) == "" {
		return fmt.Errorf("Query must be set")
	}
	for name, text := range c.Queries {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(text) == "" {
			return fmt.Errorf("Queries entries need a name and a query, got %q", name)
		}
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("ListenAddr must be set")
	}
	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		return fmt.Errorf("PageSize must be between 1 and %d, got %d", MaxPageSize, c.PageSize)
	}
	if c.ExportFileName == "" || c.ExportFileName != filepath.Base(c.ExportFileName) {
		return fmt.Errorf("ExportFileName must be a bare file name, got %q", c.ExportFileName)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LogFormat must be text or json, got %q", c.LogFormat)
	}
	if _, err := c.DefaultAgg.MarshalText(); err != nil {
		return fmt.Errorf("DefaultAgg: %w", err)
	}
	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.Query == "" {
		c.Query = defaults.Query
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if c.PageSize == 0 {
		c.PageSize = defaults.PageSize
	}
	if c.ExportFileName == "" {
		c.ExportFileName = defaults.ExportFileName
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaults.LogFormat
	}
	if c.CategoricalColumn == "" {
		c.CategoricalColumn = defaults.CategoricalColumn
	}
	if c.CategoricalDefaults == nil {
		c.CategoricalDefaults = defaults.CategoricalDefaults
	}
	if c.RangeColumn == "" {
		c.RangeColumn = defaults.RangeColumn
	}
	if c.DefaultRows == nil {
		c.DefaultRows = defaults.DefaultRows
	}
	if c.DefaultColumns == nil {
		c.DefaultColumns = defaults.DefaultColumns
	}
	if c.DefaultValues == "" {
		c.DefaultValues = defaults.DefaultValues
	}

	// Booleans and DefaultAgg (whose zero value is sum) are kept as given.
	return c
}

// DefaultPivot returns the pivot selection shown before any interaction.
func (c *Config) DefaultPivot() pivot.Spec {
	return pivot.Spec{
		Rows:    append([]string(nil), c.DefaultRows...),
		Columns: append([]string(nil), c.DefaultColumns...),
		Values:  c.DefaultValues,
		Agg:     c.DefaultAgg,
	}
}

// LoadFromJSON loads configuration from JSON data
func LoadFromJSON(data []byte) (Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromYAML loads configuration from YAML data
func LoadFromYAML(data []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing YAML configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromFile loads configuration from a JSON or YAML file
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".json":
		return LoadFromJSON(data)
	case ".yaml", ".yml":
		return LoadFromYAML(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// ApplyEnv overrides fields from PIVOTGRID_* variables. A nil environ
// reads the process environment. Unset variables leave fields untouched.
func (c *Config) ApplyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load builds the effective configuration: defaults, then the file at path
// (if path is not empty), then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	config := NewConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return Config{}, err
		}
		config = loaded
	}

	if err := config.ApplyEnv(nil); err != nil {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
