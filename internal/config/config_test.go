package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/refcheck/internal/flags"
	"github.com/zjrosen/refcheck/internal/tracing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, "http://localhost:8000", cfg.Server.BaseURL)
	require.Equal(t, 30*time.Second, cfg.Server.Timeout)
	require.Equal(t, 50, cfg.History.Limit)
	require.Equal(t, 10*time.Minute, cfg.Cache.DetailTTL)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, tracing.ExporterFile, cfg.Tracing.Exporter)
	require.NoError(t, Validate(cfg))
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		name    string
		server  ServerConfig
		want    string
		wantErr bool
	}{
		{name: "http", server: ServerConfig{BaseURL: "http://localhost:8000"}, want: "ws://localhost:8000"},
		{name: "https with path", server: ServerConfig{BaseURL: "https://refs.example.com/"}, want: "wss://refs.example.com"},
		{name: "explicit", server: ServerConfig{BaseURL: "http://a", WSURL: "wss://b/"}, want: "wss://b"},
		{name: "bad scheme", server: ServerConfig{BaseURL: "ftp://a"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.server.WebSocketURL()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestValidateServer(t *testing.T) {
	require.ErrorContains(t, ValidateServer(ServerConfig{}), "base_url is required")
	require.ErrorContains(t, ValidateServer(ServerConfig{BaseURL: "http://a", WSURL: "http://b"}), "ws_url")
	require.ErrorContains(t, ValidateServer(ServerConfig{BaseURL: "http://a", Timeout: -time.Second}), "timeout")
	require.ErrorContains(t, ValidateServer(ServerConfig{BaseURL: "http://a", PingInterval: time.Millisecond}), "ping_interval")
	require.NoError(t, ValidateServer(ServerConfig{BaseURL: "http://a", WSURL: "ws://b"}))
}

func TestValidateHistory(t *testing.T) {
	require.NoError(t, ValidateHistory(HistoryConfig{Limit: 0}))
	require.Error(t, ValidateHistory(HistoryConfig{Limit: -1}))
	require.Error(t, ValidateHistory(HistoryConfig{Limit: 5000}))
}

func TestValidate_RelativeDBPath(t *testing.T) {
	cfg := Defaults()
	cfg.State.DBPath = "state.db"
	require.ErrorContains(t, Validate(cfg), "state.db_path")

	cfg.State.DBPath = ":memory:"
	require.NoError(t, Validate(cfg))
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Log.Level = "loud"
	require.ErrorContains(t, Validate(cfg), "log.level")
}

func TestValidateTracing(t *testing.T) {
	require.NoError(t, ValidateTracing(tracing.Config{}))
	require.Error(t, ValidateTracing(tracing.Config{SampleRate: 1.5}))
	require.Error(t, ValidateTracing(tracing.Config{Exporter: "zipkin"}))
	require.ErrorContains(t, ValidateTracing(tracing.Config{Enabled: true, Exporter: tracing.ExporterFile}), "file_path")
	require.ErrorContains(t, ValidateTracing(tracing.Config{Enabled: true, Exporter: tracing.ExporterOTLP}), "otlp_endpoint")
	// Path requirements only apply when enabled.
	require.NoError(t, ValidateTracing(tracing.Config{Exporter: tracing.ExporterFile}))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`server:
  base_url: https://refs.example.com
  timeout: 45s
history:
  limit: 20
model: openai
`), 0o600))

	cfg, used, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, used)
	require.Equal(t, "https://refs.example.com", cfg.Server.BaseURL)
	require.Equal(t, 45*time.Second, cfg.Server.Timeout)
	require.Equal(t, 30*time.Second, cfg.Server.PingInterval, "unset keys keep defaults")
	require.Equal(t, 20, cfg.History.Limit)
	require.Equal(t, "openai", cfg.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: openai\n"), 0o600))
	t.Setenv("REFCHECK_SERVER_BASE_URL", "http://env.example:9000")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://env.example:9000", cfg.Server.BaseURL)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history:\n  limit: -3\n"), 0o600))

	_, _, err := Load(path)
	require.ErrorContains(t, err, "history.limit")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestWriteDefaultConfig_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, _, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Defaults().Server, cfg.Server)
	require.Equal(t, Defaults().History, cfg.History)
	require.Equal(t, "anthropic", cfg.Model)
}

func TestLoad_FlagsDefaultAndOverride(t *testing.T) {
	cfg, _, err := Load(writeTemp(t, "model: openai\n"))
	require.NoError(t, err)
	require.True(t, flags.New(cfg.Flags).Enabled(flags.FlagSessionPersistence))

	cfg, _, err = Load(writeTemp(t, "flags:\n  session-persistence: false\n"))
	require.NoError(t, err)
	require.False(t, flags.New(cfg.Flags).Enabled(flags.FlagSessionPersistence))
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
