// Package main is the entry point for the security gateway.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/secgate-io/secgate/internal/config"
	"github.com/secgate-io/secgate/internal/observability/logging"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags.configPath, logger)

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("SECGATE_CONFIG_PATH", "configs/secgate.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("SECGATE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("SECGATE_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("secgate %s (built %s, commit %s)\n", version, buildTime, gitCommit)
}

// initLogger creates the process logger from CLI flags.
func initLogger(flags cliFlags) *logging.Logger {
	logger, err := logging.NewLogger(&logging.Config{
		Level:  logging.Level(flags.logLevel),
		Format: logging.Format(flags.logFormat),
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadConfig loads the configuration file, falling back to defaults when
// the file does not exist.
func loadConfig(path string, logger *logging.Logger) *config.GatewayConfig {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("config file not found, using defaults",
			zap.String("path", path))
		return config.DefaultConfig()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Fatal("failed to load configuration",
			zap.String("path", path),
			zap.Error(err))
	}

	logger.Info("configuration loaded", zap.String("path", path))
	return cfg
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
