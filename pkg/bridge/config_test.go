package bridge

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigYaml(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata", "bridge_config.yaml"))

	require.NoError(t, err)

	assert.Equal(t, "mqtt", cfg.Broker.Kind)
	assert.Equal(t, "mqtt.example.org", cfg.Broker.Host)
	assert.Equal(t, 8883, cfg.Broker.Port)
	assert.True(t, cfg.Broker.TLS)
	assert.Equal(t, "bridge", cfg.Broker.Username)
	assert.Equal(t, "hunter2", cfg.Broker.Password)
	assert.Equal(t, "meshnet", cfg.Broker.RootTopic)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.Broker.Reconnect.MinDelay))
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.Broker.Reconnect.MaxDelay))

	assert.Equal(t, "alpha", cfg.Mesh.Id)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 57600, cfg.Serial.Baud)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata", "minimal_config.yaml"))

	require.NoError(t, err)

	assert.Equal(t, "mqtt", cfg.Broker.Kind)
	assert.Equal(t, DEFAULT_MQTT_PORT, cfg.Broker.Port)
	assert.Equal(t, "meshcore", cfg.Broker.RootTopic)
	assert.Equal(t, 1*time.Second, time.Duration(cfg.Broker.Reconnect.MinDelay))
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.Broker.Reconnect.MaxDelay))
	assert.Equal(t, DEFAULT_BAUD_RATE, cfg.Serial.Baud)
}

func TestLoadConfigValidation(t *testing.T) {
	_, err := LoadConfig(filepath.Join("testdata", "invalid_config.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.kind")
	assert.Contains(t, err.Error(), "broker.host is required")
	assert.Contains(t, err.Error(), "mesh.id is required")
	assert.Contains(t, err.Error(), "serial.port is required")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join("testdata", "no_such_file.yaml"))
	assert.Error(t, err)
}
