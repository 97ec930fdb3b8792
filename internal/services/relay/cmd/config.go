package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/services/relay"
)

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	Topic       string `yaml:"topic"`
	QoS         int    `yaml:"qos"`
	DedupTTLSec int    `yaml:"dedup_ttl_sec"` // 0 = dedup disabilitato
}

type InfluxConfig struct {
	URL             string `yaml:"url"` // vuoto = storico disabilitato
	Token           string `yaml:"token"`
	Org             string `yaml:"org"`
	Bucket          string `yaml:"bucket"`
	BatchSize       int    `yaml:"batch_size"`
	FlushIntervalMs int    `yaml:"flush_interval_ms"`
}

type Config struct {
	TwinsURL   string `yaml:"twins_url"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms"`

	CBFails      int `yaml:"cb_fails"`
	CBOpenMs     int `yaml:"cb_open_ms"`
	CBIntervalMs int `yaml:"cb_interval_ms"`

	HTTPPort       string   `yaml:"http_port"`
	IngressPath    string   `yaml:"ingress_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AcceptTypes    []string `yaml:"accept_types"`
	GRPCHealthPort string   `yaml:"grpc_health_port"` // vuoto = disabilitato

	MQTT   MQTTConfig   `yaml:"mqtt"`
	Influx InfluxConfig `yaml:"influx"`

	RedisAddr      string `yaml:"redis_addr"` // vuoto = last value disabilitato
	LastValueTTLMs int    `yaml:"last_value_ttl_ms"`

	LogLevel string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		APIVersion:   "2023-10-31",
		TimeoutMs:    10000,
		CBFails:      5,
		CBOpenMs:     30000,
		CBIntervalMs: 60000,

		HTTPPort:       "8080",
		IngressPath:    "/api/events",
		AllowedOrigins: []string{"eventgrid.azure.net"},
		GRPCHealthPort: "9090",

		MQTT: MQTTConfig{
			Host:        "localhost",
			Port:        1883,
			ClientID:    "twins-relay",
			Topic:       "devices/+/messages/events",
			QoS:         1,
			DedupTTLSec: 120,
		},
		Influx: InfluxConfig{
			Org:             "iot",
			Bucket:          "telemetry",
			BatchSize:       100,
			FlushIntervalMs: 1000,
		},
		LastValueTTLMs: int((24 * time.Hour).Milliseconds()),
		LogLevel:       "info",
	}
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func envBool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

// envList legge una lista separata da virgole.
func envList(k string, d []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// loadConfig applies defaults, then the YAML file named by RELAY_CONFIG
// (if any), then environment variables.
func loadConfig() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.TwinsURL = envStr("ADT_SERVICE_URL", cfg.TwinsURL)
	cfg.APIVersion = envStr("ADT_API_VERSION", cfg.APIVersion)
	cfg.TimeoutMs = envInt("TIMEOUT_MS", cfg.TimeoutMs)
	cfg.CBFails = envInt("CB_FAILS", cfg.CBFails)
	cfg.CBOpenMs = envInt("CB_OPEN_MS", cfg.CBOpenMs)
	cfg.CBIntervalMs = envInt("CB_INTERVAL_MS", cfg.CBIntervalMs)

	cfg.HTTPPort = envStr("PORT", cfg.HTTPPort)
	cfg.IngressPath = envStr("INGRESS_PATH", cfg.IngressPath)
	cfg.AllowedOrigins = envList("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.AcceptTypes = envList("ACCEPT_TYPES", cfg.AcceptTypes)
	cfg.GRPCHealthPort = envStr("GRPC_HEALTH_PORT", cfg.GRPCHealthPort)

	cfg.MQTT.Enabled = envBool("MQTT_ENABLED", cfg.MQTT.Enabled)
	cfg.MQTT.Host = envStr("MQTT_HOST", cfg.MQTT.Host)
	cfg.MQTT.Port = envInt("MQTT_PORT", cfg.MQTT.Port)
	cfg.MQTT.User = envStr("MQTT_USER", cfg.MQTT.User)
	cfg.MQTT.Password = envStr("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.ClientID = envStr("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Topic = envStr("MQTT_TOPIC", cfg.MQTT.Topic)
	cfg.MQTT.QoS = envInt("MQTT_QOS", cfg.MQTT.QoS)
	cfg.MQTT.DedupTTLSec = envInt("MQTT_DEDUP_TTL_SEC", cfg.MQTT.DedupTTLSec)

	cfg.Influx.URL = envStr("INFLUX_URL", cfg.Influx.URL)
	cfg.Influx.Token = envStr("INFLUX_TOKEN", cfg.Influx.Token)
	cfg.Influx.Org = envStr("INFLUX_ORG", cfg.Influx.Org)
	cfg.Influx.Bucket = envStr("INFLUX_BUCKET", cfg.Influx.Bucket)
	cfg.Influx.BatchSize = envInt("INFLUX_BATCH_SIZE", cfg.Influx.BatchSize)
	cfg.Influx.FlushIntervalMs = envInt("INFLUX_FLUSH_INTERVAL_MS", cfg.Influx.FlushIntervalMs)

	cfg.RedisAddr = envStr("REDIS_ADDR", cfg.RedisAddr)
	cfg.LastValueTTLMs = envInt("LAST_VALUE_TTL_MS", cfg.LastValueTTLMs)

	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

// Validate fails when a setting needed to serve events is missing.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TwinsURL) == "" {
		return fmt.Errorf("%w: ADT_SERVICE_URL not set", relay.ErrConfigurationMissing)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT_QOS %d", c.MQTT.QoS)
	}
	if !strings.HasPrefix(c.IngressPath, "/") {
		return fmt.Errorf("invalid INGRESS_PATH %q", c.IngressPath)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})).
		With("service", "twins-relay")
}
