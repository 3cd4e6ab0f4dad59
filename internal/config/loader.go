package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config captures configuration values for the tracker service.
type Config struct {
	HTTPPort     int
	SQLiteDSN    string
	QueryTimeout time.Duration
	Timezone     string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

// fileConfig mirrors Config for the optional TOML file layer.
type fileConfig struct {
	HTTPPort     int      `toml:"http_port"`
	SQLiteDSN    string   `toml:"sqlite_dsn"`
	QueryTimeout string   `toml:"query_timeout"`
	Timezone     string   `toml:"timezone"`
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
	KafkaGroupID string   `toml:"kafka_group_id"`
}

// Load builds the service configuration. Defaults are applied first, then
// the TOML file named by TRACKER_CONFIG_FILE (if set), then individual
// environment variables. Environment values win over file values.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:     8080,
		SQLiteDSN:    "file:tracker.db?_foreign_keys=on",
		QueryTimeout: 15 * time.Second,
		Timezone:     "Local",
		KafkaTopic:   "sensor-samples",
		KafkaGroupID: "tracker-ingest",
	}

	invalid := make([]string, 0, 2)

	if path := strings.TrimSpace(os.Getenv("TRACKER_CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if portValue := strings.TrimSpace(os.Getenv("TRACKER_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "TRACKER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("TRACKER_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if timeoutValue := strings.TrimSpace(os.Getenv("TRACKER_QUERY_TIMEOUT")); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "TRACKER_QUERY_TIMEOUT")
		} else {
			cfg.QueryTimeout = timeout
		}
	}

	if tz := strings.TrimSpace(os.Getenv("TRACKER_TIMEZONE")); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			invalid = append(invalid, "TRACKER_TIMEZONE")
		} else {
			cfg.Timezone = tz
		}
	}

	if brokers := strings.TrimSpace(os.Getenv("TRACKER_KAFKA_BROKERS")); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}
	if topic := strings.TrimSpace(os.Getenv("TRACKER_KAFKA_TOPIC")); topic != "" {
		cfg.KafkaTopic = topic
	}
	if group := strings.TrimSpace(os.Getenv("TRACKER_KAFKA_GROUP_ID")); group != "" {
		cfg.KafkaGroupID = group
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// IngestEnabled reports whether the Kafka ingest worker should start.
func (c Config) IngestEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func applyFile(cfg *Config, path string) error {
	var file fileConfig
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}

	if file.HTTPPort > 0 {
		cfg.HTTPPort = file.HTTPPort
	}
	if file.SQLiteDSN != "" {
		cfg.SQLiteDSN = file.SQLiteDSN
	}
	if file.QueryTimeout != "" {
		timeout, err := time.ParseDuration(file.QueryTimeout)
		if err != nil || timeout <= 0 {
			return fmt.Errorf("config file %s: invalid query_timeout %q", path, file.QueryTimeout)
		}
		cfg.QueryTimeout = timeout
	}
	if file.Timezone != "" {
		cfg.Timezone = file.Timezone
	}
	if len(file.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = file.KafkaBrokers
	}
	if file.KafkaTopic != "" {
		cfg.KafkaTopic = file.KafkaTopic
	}
	if file.KafkaGroupID != "" {
		cfg.KafkaGroupID = file.KafkaGroupID
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
