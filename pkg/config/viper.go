package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kgourjau/BridgeAI/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the BRIDGE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (BRIDGE_RELAY_LISTEN, BRIDGE_UPSTREAM_API_KEY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: BRIDGE_RELAY_LISTEN, BRIDGE_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Relay
	v.SetDefault("relay.listen", d.Relay.Listen)
	v.SetDefault("relay.bearer_token", d.Relay.BearerToken)
	v.SetDefault("relay.advertised_model", d.Relay.AdvertisedModel)
	v.SetDefault("relay.strip_fields", d.Relay.StripFields)
	v.SetDefault("relay.passthrough_model", d.Relay.PassthroughModel)
	v.SetDefault("relay.keepalive_interval", d.Relay.KeepAlive)

	// Upstream
	v.SetDefault("upstream.base_url", d.Upstream.BaseURL)
	v.SetDefault("upstream.api_key", d.Upstream.APIKey)
	v.SetDefault("upstream.default_model", d.Upstream.DefaultModel)
	v.SetDefault("upstream.idle_timeout", d.Upstream.IdleTimeout)
	v.SetDefault("upstream.header_timeout", d.Upstream.HeaderTimeout)
	v.SetDefault("upstream.max_event_size", d.Upstream.MaxEventSize)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Retention
	v.SetDefault("retention.days", d.Retention.Days)
	v.SetDefault("retention.schedule", d.Retention.Schedule)

	// Events
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.kafka_topic", d.Events.KafkaTopic)

	// Models
	v.SetDefault("models.cache_ttl", d.Models.CacheTTL)
}

// Settings is the resolved runtime view of the configuration, with
// durations parsed and lists split.
type Settings struct {
	Listen           string
	BearerToken      string
	AdvertisedModel  string
	StripFields      []string
	PassthroughModel bool
	KeepAlive        time.Duration

	UpstreamBaseURL      string
	UpstreamAPIKey       string
	UpstreamDefaultModel string
	IdleTimeout          time.Duration
	HeaderTimeout        time.Duration
	MaxEventSize         int

	SQLitePath  string
	PostgresDSN string

	RetentionDays     int
	RetentionSchedule string

	KafkaBrokers []string
	KafkaTopic   string

	ModelsCacheTTL time.Duration
}

// LoadSettings resolves Settings from v.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Listen:           v.GetString("relay.listen"),
		BearerToken:      v.GetString("relay.bearer_token"),
		AdvertisedModel:  v.GetString("relay.advertised_model"),
		StripFields:      splitList(v.GetString("relay.strip_fields")),
		PassthroughModel: v.GetBool("relay.passthrough_model"),

		UpstreamBaseURL:      v.GetString("upstream.base_url"),
		UpstreamAPIKey:       v.GetString("upstream.api_key"),
		UpstreamDefaultModel: v.GetString("upstream.default_model"),
		MaxEventSize:         v.GetInt("upstream.max_event_size"),

		SQLitePath:  v.GetString("storage.sqlite_path"),
		PostgresDSN: v.GetString("storage.postgres_dsn"),

		RetentionDays:     v.GetInt("retention.days"),
		RetentionSchedule: v.GetString("retention.schedule"),

		KafkaBrokers: splitList(v.GetString("events.kafka_brokers")),
		KafkaTopic:   v.GetString("events.kafka_topic"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"relay.keepalive_interval", &s.KeepAlive},
		{"upstream.idle_timeout", &s.IdleTimeout},
		{"upstream.header_timeout", &s.HeaderTimeout},
		{"models.cache_ttl", &s.ModelsCacheTTL},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if s.AdvertisedModel == "" {
		return nil, errors.New("relay.advertised_model must not be empty")
	}
	if s.UpstreamBaseURL == "" {
		return nil, errors.New("upstream.base_url must not be empty")
	}
	if s.MaxEventSize < 0 {
		return nil, errors.New("upstream.max_event_size must not be negative")
	}

	return s, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
