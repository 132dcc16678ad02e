package bridge

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DEFAULT_MQTT_PORT = 1883
	DEFAULT_NATS_PORT = 4222
	DEFAULT_BAUD_RATE = 115200

	defaultRootTopic = "meshcore"

	defaultReconnectMin = 1 * time.Second
	defaultReconnectMax = 120 * time.Second
)

// Duration parses human readable durations ("1s", "2m") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	tmp, err := time.ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(tmp)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

type Config struct {
	Broker BrokerConfig `yaml:"broker"`
	Mesh   MeshConfig   `yaml:"mesh"`
	Serial SerialConfig `yaml:"serial"`
}

type BrokerConfig struct {
	// Kind selects the backend: "mqtt" (default) or "nats".
	Kind      string          `yaml:"kind"`
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	TLS       bool            `yaml:"tls"`
	Username  string          `yaml:"username"`
	Password  string          `yaml:"password"`
	RootTopic string          `yaml:"root_topic"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	MinDelay Duration `yaml:"min_delay"`
	MaxDelay Duration `yaml:"max_delay"`
}

type MeshConfig struct {
	// Id identifies this bridge instance on the broker. It scopes the
	// publish topic and filters out the bridge's own messages.
	Id string `yaml:"id"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// LoadConfig reads and validates the bridge configuration. All validation
// failures are collected into a single error.
func LoadConfig(configFile string) (*Config, error) {
	f, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	config := &Config{}
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	config.applyDefaults()

	return config, nil
}

func (c *Config) validate() error {
	var errors []string

	switch c.Broker.Kind {
	case "", "mqtt", "nats":
	default:
		errors = append(errors, fmt.Sprintf("unknown broker.kind %q", c.Broker.Kind))
	}

	if c.Broker.Host == "" {
		errors = append(errors, "broker.host is required")
	}

	if c.Mesh.Id == "" {
		errors = append(errors, "mesh.id is required")
	}

	if c.Serial.Port == "" {
		errors = append(errors, "serial.port is required")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Broker.Kind == "" {
		c.Broker.Kind = "mqtt"
	}

	if c.Broker.Port == 0 {
		switch c.Broker.Kind {
		case "nats":
			c.Broker.Port = DEFAULT_NATS_PORT
		default:
			c.Broker.Port = DEFAULT_MQTT_PORT
		}
	}

	if c.Broker.RootTopic == "" {
		c.Broker.RootTopic = defaultRootTopic
	}

	if c.Broker.Reconnect.MinDelay == 0 {
		c.Broker.Reconnect.MinDelay = Duration(defaultReconnectMin)
	}

	if c.Broker.Reconnect.MaxDelay == 0 {
		c.Broker.Reconnect.MaxDelay = Duration(defaultReconnectMax)
	}

	if c.Serial.Baud == 0 {
		c.Serial.Baud = DEFAULT_BAUD_RATE
	}
}
