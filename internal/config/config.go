package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Stream  StreamConfig  `yaml:"stream"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Log     LogConfig     `yaml:"log"`
}

// BackendConfig holds camera backend configuration.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
}

// StreamConfig holds preview stream parameters requested on start.
type StreamConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// HTTPConfig holds local HTTP API configuration.
type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	CORSAll bool   `yaml:"cors_allow_all"`
}

// MQTTConfig holds MQTT bridge configuration.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	StationID   string `yaml:"station_id"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:8000",
		},
		Stream: StreamConfig{
			Width:  640,
			Height: 480,
		},
		HTTP: HTTPConfig{
			Addr: ":8093",
		},
		MQTT: MQTTConfig{
			TopicPrefix: "previewd",
			StationID:   "station_01",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file at path, then overlays environment
// variables. If path is empty, only defaults + env vars are used.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
			// file not found is ok, use defaults
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Stream.Width <= 0 || cfg.Stream.Height <= 0 {
		return cfg, fmt.Errorf("config: stream width/height must be positive (got %dx%d)", cfg.Stream.Width, cfg.Stream.Height)
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of the config.
// Env vars take precedence over YAML values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PREVIEWD_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("PREVIEWD_STREAM_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.Width = n
		}
	}
	if v := os.Getenv("PREVIEWD_STREAM_HEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.Height = n
		}
	}
	if v := os.Getenv("PREVIEWD_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("PREVIEWD_CORS_ALLOW_ALL"); v != "" {
		cfg.HTTP.CORSAll = parseBool(v)
	}
	if v := os.Getenv("PREVIEWD_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("PREVIEWD_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("PREVIEWD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("PREVIEWD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("PREVIEWD_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("PREVIEWD_MQTT_STATION_ID"); v != "" {
		cfg.MQTT.StationID = v
	}
	if v := os.Getenv("PREVIEWD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PREVIEWD_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	b, _ := strconv.ParseBool(s)
	return b
}
