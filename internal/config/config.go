// Package config loads the service configuration from YAML and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/aretw0/commentmail/pkg/core"
	"github.com/aretw0/commentmail/pkg/notify"
)

// Config is the root configuration.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Store    StoreConfig    `yaml:"store"`
	Mail     MailConfig     `yaml:"mail"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Sources  SourcesConfig  `yaml:"sources"`
	Triggers []string       `yaml:"triggers" env:"COMMENTMAIL_TRIGGERS" env-default:"narrow"`
	// Match is a doublestar glob over object paths (wiki/Space/Page/Class/N)
	// restricting the narrow trigger. Empty means every comment object.
	Match   string        `yaml:"match"   env:"COMMENTMAIL_MATCH"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type SiteConfig struct {
	Name        string `yaml:"name"         env:"COMMENTMAIL_SITE_NAME"    env-default:"XWiki"`
	DefaultWiki string `yaml:"default_wiki" env:"COMMENTMAIL_DEFAULT_WIKI" env-default:"xwiki"`
}

type StoreConfig struct {
	Root     string `yaml:"root"      env:"COMMENTMAIL_STORE_ROOT" env-default:"./wiki"`
	ReadOnly bool   `yaml:"read_only" env:"COMMENTMAIL_STORE_READ_ONLY"`
}

// MailConfig implements core.MailConfiguration.
type MailConfig struct {
	Properties map[string]string `yaml:"properties" env:"COMMENTMAIL_MAIL_PROPERTIES"`
	User       string            `yaml:"username"   env:"COMMENTMAIL_MAIL_USERNAME"`
	Secret     string            `yaml:"password"   env:"COMMENTMAIL_MAIL_PASSWORD"`
	Timeout    time.Duration     `yaml:"timeout"    env:"COMMENTMAIL_MAIL_TIMEOUT"    env-default:"30s"`
}

func (m MailConfig) AllProperties() map[string]string { return m.Properties }
func (m MailConfig) Username() string                 { return m.User }
func (m MailConfig) Password() string                 { return m.Secret }

var _ core.MailConfiguration = MailConfig{}

type DeliveryConfig struct {
	// LogPath is the SQLite file recording delivery outcomes. Empty disables it.
	LogPath string `yaml:"log_path" env:"COMMENTMAIL_DELIVERY_LOG"`
}

type SourcesConfig struct {
	FS    FSSourceConfig    `yaml:"fs"`
	Kafka KafkaSourceConfig `yaml:"kafka"`
}

type FSSourceConfig struct {
	Disabled bool          `yaml:"disabled" env:"COMMENTMAIL_FS_DISABLED"`
	Pattern  string        `yaml:"pattern"  env:"COMMENTMAIL_FS_PATTERN"  env-default:"**/*.md"`
	Debounce time.Duration `yaml:"debounce" env:"COMMENTMAIL_FS_DEBOUNCE" env-default:"50ms"`
}

type KafkaSourceConfig struct {
	Enabled bool     `yaml:"enabled"  env:"COMMENTMAIL_KAFKA_ENABLED"`
	Brokers []string `yaml:"brokers"  env:"COMMENTMAIL_KAFKA_BROKERS"`
	Topic   string   `yaml:"topic"    env:"COMMENTMAIL_KAFKA_TOPIC"    env-default:"comment-events"`
	GroupID string   `yaml:"group_id" env:"COMMENTMAIL_KAFKA_GROUP_ID" env-default:"commentmail"`
}

type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `yaml:"addr" env:"COMMENTMAIL_METRICS_ADDR"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"COMMENTMAIL_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"COMMENTMAIL_LOG_FORMAT" env-default:"text"`
}

// Load reads configuration from the YAML file at path, then environment
// variables. Priority: ENV > YAML > defaults. An empty path reads ENV and
// defaults only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Store.Root) == "" {
		errs = append(errs, errors.New("store.root is required"))
	}
	if len(c.Triggers) == 0 {
		errs = append(errs, errors.New("at least one trigger is required"))
	}
	for _, t := range c.Triggers {
		if t != notify.TriggerBroad && t != notify.TriggerNarrow {
			errs = append(errs, fmt.Errorf("unknown trigger %q", t))
		}
	}
	if c.Match != "" && !doublestar.ValidatePattern(c.Match) {
		errs = append(errs, fmt.Errorf("invalid match pattern %q", c.Match))
	}
	if !doublestar.ValidatePattern(c.Sources.FS.Pattern) {
		errs = append(errs, fmt.Errorf("invalid sources.fs.pattern %q", c.Sources.FS.Pattern))
	}
	if c.Sources.FS.Disabled && !c.Sources.Kafka.Enabled {
		errs = append(errs, errors.New("no event source enabled"))
	}
	if c.Sources.Kafka.Enabled && len(c.Sources.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("sources.kafka.brokers is required when kafka is enabled"))
	}
	if c.Mail.Timeout <= 0 {
		errs = append(errs, errors.New("mail.timeout must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// CheckMail reports whether the mail section can produce a session. It is
// separate from Validate because the pipeline logs a missing host per event
// instead of refusing to start.
func (c *Config) CheckMail() error {
	_, err := core.NewSession(c.Mail)
	return err
}
