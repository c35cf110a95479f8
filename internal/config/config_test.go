package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 75, cfg.Alert.Enter)
	assert.Equal(t, 60, cfg.Alert.Exit)
	assert.Equal(t, 70, cfg.Trust.Threshold)
	assert.Equal(t, 300, cfg.Behavior.Capacity())
	assert.Equal(t, "0", cfg.Capture.Source)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFile_DefaultsOnly(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_YAMLOverrides(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
capture:
  source: testdata/walk.mp4
  width: 0
  height: 0
  loop: true
perimeter:
  safe_line: 0.3
alert:
  enter_threshold: 80
redis:
  enabled: true
  ttl: 2m
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "testdata/walk.mp4", cfg.Capture.Source)
	assert.True(t, cfg.Capture.Loop)
	assert.Equal(t, 0.3, cfg.Perimeter.SafeLine)
	assert.Equal(t, 0.7, cfg.Perimeter.WarningLine, "unset keys keep defaults")
	assert.Equal(t, 80, cfg.Alert.Enter)
	assert.Equal(t, 60, cfg.Alert.Exit)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadFile_EnvBeatsFile(t *testing.T) {
	path := writeConfig(t, "alert:\n  exit_threshold: 55\n")
	t.Setenv("INTENT_ALERT_EXIT_THRESHOLD", "50")
	t.Setenv("INTENT_REDIS_ADDR", "redis:6380")
	t.Setenv("INTENT_WEB_PORT", "9090")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Alert.Exit)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 9090, cfg.Web.Port)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"exit above enter", func(c *Config) { c.Alert.Exit = 80 }},
		{"exit equals enter", func(c *Config) { c.Alert.Exit = c.Alert.Enter }},
		{"threshold out of range", func(c *Config) { c.Alert.Enter = 101 }},
		{"bands out of order", func(c *Config) { c.Perimeter.WarningLine = 0.95 }},
		{"band outside frame", func(c *Config) { c.Perimeter.DangerLine = 1.2 }},
		{"loop on device", func(c *Config) { c.Capture.Loop = true }},
		{"empty source", func(c *Config) { c.Capture.Source = "" }},
		{"unknown detector", func(c *Config) { c.Detector.Kind = "ssd" }},
		{"yolo without model", func(c *Config) { c.Detector.ModelPath = "" }},
		{"short trust history", func(c *Config) { c.Trust.HistoryFrames = 5 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"bad codec", func(c *Config) { c.Record.Codec = "h264x" }},
		{"zero port", func(c *Config) { c.Web.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_HOGNeedsNoModel(t *testing.T) {
	cfg := Default()
	cfg.Detector.Kind = "hog"
	cfg.Detector.ModelPath = ""
	assert.NoError(t, cfg.Validate())
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"INTENT_REDIS_ADDR", "redis.addr"},
		{"INTENT_ALERT_ENTER_THRESHOLD", "alert.enter_threshold"},
		{"INTENT_LOG_LEVEL", "log.level"},
		{"INTENT_DEBUG", ""},
		{"INTENT_", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envTransformFunc(tt.in), tt.in)
	}
}

func TestFindConfigFile_EnvPath(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n")
	t.Setenv(ConfigPathEnvVar, path)
	assert.Equal(t, path, findConfigFile())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestPipeline(t *testing.T) {
	cfg := Default()
	cfg.Alert.Enter = 85
	p := cfg.Pipeline()
	assert.Equal(t, 85, p.Alert.Enter)
	assert.Equal(t, cfg.Trust, p.Trust)
	assert.Equal(t, cfg.Behavior, p.Behavior)
}
