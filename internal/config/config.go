package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chainid/console/internal/collection"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CHAINID_"

type Config struct {
	Port            int
	StacksDir       string
	DataDir         string
	DockerHost      string // empty: DOCKER_HOST or the default socket
	Fixture         string // YAML daemon fixture; replaces the daemon when set
	Dev             bool
	LogLevel        slog.Level // Parsed log level (debug, info, warn, error)
	LogFile         string     // empty: log to stderr
	NoAuth          bool       // Skip authentication (all endpoints open)
	Pprof           bool       // Enable /debug/pprof/ endpoints
	PageSize        int        // default rows per table page
	RefreshDebounce time.Duration
}

// Parse reads the command line and the environment.
func Parse() *Config {
	cfg, err := Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Load builds a Config from args and getenv. Environment variables override
// flags when set.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("chainid", flag.ContinueOnError)

	var logLevel string
	fs.IntVar(&cfg.Port, "port", 5001, "HTTP server port")
	fs.StringVar(&cfg.StacksDir, "stacks-dir", "/opt/stacks", "Path to stacks directory")
	fs.StringVar(&cfg.DataDir, "data-dir", "./data", "Path to data directory (BoltDB)")
	fs.StringVar(&cfg.DockerHost, "docker-host", "", "Docker daemon URI (default: DOCKER_HOST or the local socket)")
	fs.StringVar(&cfg.Fixture, "docker-fixture", "", "Serve tables from a YAML fixture instead of a Docker daemon")
	fs.BoolVar(&cfg.Dev, "dev", false, "Development mode (serve frontend from filesystem, seed admin)")
	fs.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Write logs to this file with rotation instead of stderr")
	fs.BoolVar(&cfg.NoAuth, "no-auth", false, "Disable authentication (all endpoints open)")
	fs.BoolVar(&cfg.Pprof, "pprof", false, "Enable /debug/pprof/ endpoints")
	fs.IntVar(&cfg.PageSize, "page-size", collection.DefaultPageSize, "Default rows per table page (0 shows all rows)")
	fs.DurationVar(&cfg.RefreshDebounce, "refresh-debounce", 200*time.Millisecond, "Delay before refreshing a table after a change")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	env := func(name string) string { return getenv(EnvPrefix + name) }

	if v := env("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%sPORT: %w", EnvPrefix, err)
		}
		cfg.Port = p
	}
	if v := env("STACKS_DIR"); v != "" {
		cfg.StacksDir = v
	}
	if v := env("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := env("DOCKER_HOST"); v != "" {
		cfg.DockerHost = v
	}
	if v := env("DOCKER_FIXTURE"); v != "" {
		cfg.Fixture = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		logLevel = v
	}
	if v := env("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if isTrue(env("NO_AUTH")) {
		cfg.NoAuth = true
	}
	if isTrue(env("PPROF")) {
		cfg.Pprof = true
	}
	if isTrue(env("DEV")) {
		cfg.Dev = true
	}
	if v := env("PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%sPAGE_SIZE: %w", EnvPrefix, err)
		}
		cfg.PageSize = n
	}
	if v := env("REFRESH_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%sREFRESH_DEBOUNCE: %w", EnvPrefix, err)
		}
		cfg.RefreshDebounce = d
	}

	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("page size must not be negative, got %d", cfg.PageSize)
	}
	cfg.LogLevel = parseLogLevel(logLevel)

	return cfg, nil
}

func isTrue(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
