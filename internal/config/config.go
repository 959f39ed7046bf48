package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/pdf-field-reconciler/internal/logging"
	"github.com/a3tai/pdf-field-reconciler/internal/merge"
	"github.com/a3tai/pdf-field-reconciler/internal/textfilter"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = logging.FormatJSON
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB

	// EnvPrefix prefixes every environment variable, e.g. FIELD_RECONCILER_IOU.
	EnvPrefix = "FIELD_RECONCILER"
)

// Config holds all configuration for the field reconciler binaries
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// PDFDirectory resolves relative PDF and candidate file paths.
	PDFDirectory string

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	LogFormat   string
	MaxFileSize int64 // Maximum PDF file size in bytes
	ConfigFile  string

	// Reconciliation
	IoUThreshold         float64
	Debug                bool
	MarkMerged           bool
	Workers              int
	TextOverlap          float64
	InferLabels          bool
	GenericLabelPrefixes []string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:         ModeStdio,
		Host:         DefaultHost,
		Port:         DefaultPort,
		PDFDirectory: currentDir,
		Version:      "1.0.0",
		ServerName:   "pdf-field-reconciler",
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		MaxFileSize:  DefaultMaxFileSize,
		IoUThreshold: merge.DefaultIoUThreshold,
		Workers:      1,
		TextOverlap:  textfilter.DefaultThreshold,
		InferLabels:  true,
	}
}

// LoadFromFlags parses command line flags, environment and the optional
// config file and returns a configuration. Binaries may register extra
// flags on pflag.CommandLine before calling it.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	if err := readConfigFile(); err != nil {
		return nil, err
	}

	populateConfigFromViper(cfg)

	if cfg.PDFDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.PDFDirectory); err == nil {
			cfg.PDFDirectory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("logformat", cfg.LogFormat)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("config", "")
	viper.SetDefault("iou", cfg.IoUThreshold)
	viper.SetDefault("debug", cfg.Debug)
	viper.SetDefault("mark-merged", cfg.MarkMerged)
	viper.SetDefault("workers", cfg.Workers)
	viper.SetDefault("text-overlap", cfg.TextOverlap)
	viper.SetDefault("infer-labels", cfg.InferLabels)
	viper.SetDefault("generic_label_prefixes", []string{})
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP/SSE")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.PDFDirectory, "Base directory for relative PDF and candidate paths")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.String("logformat", cfg.LogFormat, "Log format (json, console)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.String("config", "", "Optional config file (yaml, json or toml)")
	pflag.Float64("iou", cfg.IoUThreshold, "IoU above which two candidates are the same field, within [0,1]")
	pflag.Bool("debug", cfg.Debug, "Log every merge decision")
	pflag.Bool("mark-merged", cfg.MarkMerged, "Tag fields that absorbed another detection with source 'merged'")
	pflag.Int("workers", cfg.Workers, "Pages reconciled concurrently (1 is sequential)")
	pflag.Float64("text-overlap", cfg.TextOverlap, "Drop fields with at least this fraction of their area on printed text")
	pflag.Bool("infer-labels", cfg.InferLabels, "Label unnamed widgets from nearby printed text")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "host", "port", "dir", "loglevel", "logformat", "maxfilesize", "config",
		"iou", "debug", "mark-merged", "workers", "text-overlap", "infer-labels",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nPDF Field Reconciler - merges form field detections from several detectors\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %s_MODE          Server mode\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_DIR           Base directory\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_LOGLEVEL      Log level\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_IOU           IoU threshold\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_MARK_MERGED   Tag merged fields\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_WORKERS       Page concurrency\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_TEXT_OVERLAP  Text overlap threshold\n", EnvPrefix)
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// readConfigFile merges the --config file, when given, under flags and env.
func readConfigFile() error {
	path := viper.GetString("config")
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.LogFormat = viper.GetString("logformat")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.ConfigFile = viper.GetString("config")
	cfg.IoUThreshold = viper.GetFloat64("iou")
	cfg.Debug = viper.GetBool("debug")
	cfg.MarkMerged = viper.GetBool("mark-merged")
	cfg.Workers = viper.GetInt("workers")
	cfg.TextOverlap = viper.GetFloat64("text-overlap")
	cfg.InferLabels = viper.GetBool("infer-labels")
	cfg.GenericLabelPrefixes = viper.GetStringSlice("generic_label_prefixes")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Port only matters when listening
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}

	// A missing directory is allowed so clients can pass placeholders like
	// ${workspaceRoot}; it is never created.
	if info, err := os.Stat(c.PDFDirectory); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot access PDF directory %s: %w", c.PDFDirectory, err)
	} else if err == nil && !info.IsDir() {
		return fmt.Errorf("PDF directory %s is not a directory", c.PDFDirectory)
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatConsole {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.LogFormat)
	}

	if math.IsNaN(c.IoUThreshold) || c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("%w: got %v", merge.ErrInvalidThreshold, c.IoUThreshold)
	}

	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}

	if math.IsNaN(c.TextOverlap) {
		return errors.New("text overlap threshold must be a number")
	}

	if _, err := merge.NewLabelMatcher(c.GenericLabelPrefixes); err != nil {
		return fmt.Errorf("invalid generic_label_prefixes: %w", err)
	}

	return nil
}

// MergeConfig translates the reconciliation settings for merge.New.
func (c *Config) MergeConfig(logger *zerolog.Logger) merge.Config {
	mc := merge.DefaultConfig()
	mc.IoUThreshold = c.IoUThreshold
	mc.Debug = c.Debug
	mc.MarkMerged = c.MarkMerged
	mc.Workers = c.Workers
	mc.GenericLabelPrefixes = c.GenericLabelPrefixes
	mc.Logger = logger
	return mc
}

// Logger builds the process logger. Output goes to stderr in every mode so
// stdout stays free for the MCP protocol and CLI results.
func (c *Config) Logger() (zerolog.Logger, error) {
	level := c.LogLevel
	if c.Debug {
		level = "debug"
	}
	logger, err := logging.New(level, c.LogFormat, os.Stderr)
	if err != nil {
		return logger, err
	}
	return logger.With().Str("service", c.ServerName).Logger(), nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug" || c.Debug
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, PDFDirectory: %s, LogLevel: %s, MaxFileSize: %d, "+
		"IoU: %.2f, Workers: %d, MarkMerged: %t, TextOverlap: %.2f}",
		c.Mode, c.Host, c.Port, c.PDFDirectory, c.LogLevel, c.MaxFileSize,
		c.IoUThreshold, c.Workers, c.MarkMerged, c.TextOverlap)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
