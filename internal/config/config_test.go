package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.ListenAddr)
	require.Equal(t, 512, cfg.Server.BodyLimitMB)
	require.Equal(t, 300*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, "https://dashscope.aliyuncs.com/compatible-mode/v1", cfg.DashScope.CompatibleBaseURL)
	require.Equal(t, "https://dashscope.aliyuncs.com/api/v1", cfg.DashScope.APIBaseURL)
	require.Equal(t, 3*time.Second, cfg.DashScope.TaskPollInterval)
	require.False(t, cfg.Observability.EnableOTLP)
	require.True(t, cfg.Observability.EnableMetrics)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen_addr: ":9000"
  body_limit_mb: 64
dashscope:
  task_poll_interval: 10s
  http_timeout: 120s
`), 0o600))

	cfg, err := Load(Options{ConfigFile: path, EnvFile: filepath.Join(dir, "missing.env")})
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.ListenAddr)
	require.Equal(t, 64, cfg.Server.BodyLimitMB)
	require.Equal(t, 10*time.Second, cfg.DashScope.TaskPollInterval)
	require.Equal(t, 120*time.Second, cfg.DashScope.HTTPTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GATEWAY_SERVER_LISTEN_ADDR", ":7000")
	t.Setenv("GATEWAY_DASHSCOPE_TASK_POLL_INTERVAL", "1s")

	cfg, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Server.ListenAddr)
	require.Equal(t, time.Second, cfg.DashScope.TaskPollInterval)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Server:    ServerConfig{ListenAddr: ":8080", BodyLimitMB: 512},
		DashScope: DashScopeConfig{CompatibleBaseURL: "http://a", APIBaseURL: "http://b", HTTPTimeout: time.Second, TaskPollInterval: time.Second},
	}
	require.NoError(t, valid.Validate())

	missingAddr := valid
	missingAddr.Server.ListenAddr = " "
	require.Error(t, missingAddr.Validate())

	badPoll := valid
	badPoll.DashScope.TaskPollInterval = 0
	require.Error(t, badPoll.Validate())
}
