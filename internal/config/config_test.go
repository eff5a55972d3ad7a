package config

import (
	"log/slog"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(nil, envMap(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 5001 || cfg.StacksDir != "/opt/stacks" || cfg.DataDir != "./data" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.PageSize != 10 || cfg.RefreshDebounce != 200*time.Millisecond {
		t.Errorf("table defaults = %d, %v", cfg.PageSize, cfg.RefreshDebounce)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.NoAuth || cfg.Dev || cfg.LogFile != "" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadFlagsAndEnv(t *testing.T) {
	t.Parallel()

	cfg, err := Load(
		[]string{"--port", "8080", "--page-size", "25", "--log-level", "warn", "--stacks-dir", "/srv/stacks"},
		envMap(map[string]string{
			"CHAINID_PORT":             "9090",
			"CHAINID_NO_AUTH":          "true",
			"CHAINID_LOG_FILE":         "/var/log/chainid.log",
			"CHAINID_REFRESH_DEBOUNCE": "1s",
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9090 {
		t.Errorf("env should override the port flag, got %d", cfg.Port)
	}
	if cfg.PageSize != 25 || cfg.StacksDir != "/srv/stacks" || cfg.LogLevel != slog.LevelWarn {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if !cfg.NoAuth || cfg.LogFile != "/var/log/chainid.log" || cfg.RefreshDebounce != time.Second {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"bad port env", nil, map[string]string{"CHAINID_PORT": "http"}},
		{"negative page size", []string{"--page-size", "-1"}, nil},
		{"bad debounce", nil, map[string]string{"CHAINID_REFRESH_DEBOUNCE": "soon"}},
		{"unknown flag", []string{"--bogus"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Load(tt.args, envMap(tt.env)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
