// ABOUTME: Tests for config loading and validation
// ABOUTME: Covers defaults, YAML overrides and logging setup
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadServerDefaults(t *testing.T) {
	conf, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, 5004, conf.RTPPort)
	assert.Equal(t, 5*time.Second, conf.ReceiverTimeout)
	assert.Equal(t, audio.HighestQuality(), conf.Quality.Quality())
	assert.True(t, conf.Adaptation.Enabled)
}

func TestLoadServerOverrides(t *testing.T) {
	path := writeConfig(t, `
name: kitchen
rtp_port: 6000
receiver_timeout: 2s
quality:
  sample_rate: 22050
  bits: 12
  channels: 2
limits:
  total: 64000
  layers: [20000, 0, 0]
logging:
  level: debug
`)
	conf, err := LoadServer(path)
	require.NoError(t, err)

	assert.Equal(t, "kitchen", conf.Name)
	assert.Equal(t, 6000, conf.RTPPort)
	assert.Equal(t, 8927, conf.StatusPort, "unset keys keep defaults")
	assert.Equal(t, 2*time.Second, conf.ReceiverTimeout)
	assert.Equal(t, "22050Hz/12bit/2ch", conf.Quality.Quality().String())
	assert.Equal(t, 64000, conf.Limits.Limits().Total)
	assert.Equal(t, 20000, conf.Limits.Limits().Layers[0])
	assert.Equal(t, logrus.DebugLevel, conf.Logging.LogLevel())
}

func TestLoadServerRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port", "rtp_port: 0"},
		{"packet size", "max_packet_size: 10"},
		{"log level", "logging:\n  level: loud"},
		{"adaptation", "adaptation:\n  decrease_loss: 0.01\n  increase_loss: 0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadServer(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadPlayer(t *testing.T) {
	conf, err := LoadPlayer(writeConfig(t, "server: 10.0.0.2:5004\nframe_buffer_size: 6\n"))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:5004", conf.Server)
	assert.Equal(t, 6, conf.FrameBufferSize)
	assert.Equal(t, time.Second, conf.ReportInterval)

	_, err = LoadPlayer(writeConfig(t, "volume: 150"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadPlayer(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetLevel(logrus.InfoLevel)

	path := filepath.Join(t.TempDir(), "test.log")
	closer, err := SetupLogging(LoggingConfig{Level: "debug", File: path}, false)
	require.NoError(t, err)

	logrus.WithField("component", "test").Debug("hello")
	require.NoError(t, closer.Close())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hello")
	assert.Contains(t, string(body), "component=test")

	_, err = SetupLogging(LoggingConfig{File: filepath.Join(t.TempDir(), "missing", "x.log")}, true)
	assert.Error(t, err)
}
