package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent bridge configuration stored as
// config.toml in the .bridge/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Relay     RelayConfig     `toml:"relay"`
	Upstream  UpstreamConfig  `toml:"upstream"`
	Storage   StorageConfig   `toml:"storage"`
	Retention RetentionConfig `toml:"retention"`
	Events    EventsConfig    `toml:"events"`
	Models    ModelsConfig    `toml:"models"`
}

// RelayConfig holds the downstream facing settings.
type RelayConfig struct {
	Listen           string `toml:"listen,omitempty"`
	BearerToken      string `toml:"bearer_token,omitempty"`
	AdvertisedModel  string `toml:"advertised_model,omitempty"`
	StripFields      string `toml:"strip_fields,omitempty"`
	PassthroughModel bool   `toml:"passthrough_model,omitempty"`
	KeepAlive        string `toml:"keepalive_interval,omitempty"`
}

// UpstreamConfig holds the OpenAI-compatible upstream settings.
type UpstreamConfig struct {
	BaseURL       string `toml:"base_url,omitempty"`
	APIKey        string `toml:"api_key,omitempty"`
	DefaultModel  string `toml:"default_model,omitempty"`
	IdleTimeout   string `toml:"idle_timeout,omitempty"`
	HeaderTimeout string `toml:"header_timeout,omitempty"`
	MaxEventSize  int    `toml:"max_event_size,omitempty"`
}

// StorageConfig selects the transcript store. Postgres wins when both are
// set; neither means in-memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// RetentionConfig controls transcript pruning. Days <= 0 disables it.
type RetentionConfig struct {
	Days     int    `toml:"days,omitempty"`
	Schedule string `toml:"schedule,omitempty"`
}

// EventsConfig holds the exchange event publisher settings. No brokers
// means events are dropped.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// ModelsConfig controls the model list cache.
type ModelsConfig struct {
	CacheTTL string `toml:"cache_ttl,omitempty"`
}

// configKey maps a user-facing dotted key name to a getter and setter on *Config.
type configKey struct {
	name string
	get  func(c *Config) string
	set  func(c *Config, v string) error

	// secret values are masked by "bridge config get|list".
	secret bool

	// hotReload keys are applied by a running relay when config.toml changes.
	hotReload bool
}

func stringKey(name string, field func(c *Config) *string) configKey {
	return configKey{
		name: name,
		get:  func(c *Config) string { return *field(c) },
		set:  func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *string) configKey {
	k := stringKey(name, field)
	k.set = func(c *Config, v string) error {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
		*field(c) = v
		return nil
	}
	return k
}

func boolKey(name string, field func(c *Config) *bool) configKey {
	return configKey{
		name: name,
		get:  func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKey {
	return configKey{
		name: name,
		get:  func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func secret(k configKey) configKey {
	k.secret = true
	return k
}

func hot(k configKey) configKey {
	k.hotReload = true
	return k
}

// keyList is every supported key in TOML section order.
var keyList = []configKey{
	stringKey("relay.listen", func(c *Config) *string { return &c.Relay.Listen }),
	hot(secret(stringKey("relay.bearer_token", func(c *Config) *string { return &c.Relay.BearerToken }))),
	hot(stringKey("relay.advertised_model", func(c *Config) *string { return &c.Relay.AdvertisedModel })),
	hot(stringKey("relay.strip_fields", func(c *Config) *string { return &c.Relay.StripFields })),
	hot(boolKey("relay.passthrough_model", func(c *Config) *bool { return &c.Relay.PassthroughModel })),
	durationKey("relay.keepalive_interval", func(c *Config) *string { return &c.Relay.KeepAlive }),

	stringKey("upstream.base_url", func(c *Config) *string { return &c.Upstream.BaseURL }),
	secret(stringKey("upstream.api_key", func(c *Config) *string { return &c.Upstream.APIKey })),
	stringKey("upstream.default_model", func(c *Config) *string { return &c.Upstream.DefaultModel }),
	durationKey("upstream.idle_timeout", func(c *Config) *string { return &c.Upstream.IdleTimeout }),
	durationKey("upstream.header_timeout", func(c *Config) *string { return &c.Upstream.HeaderTimeout }),
	intKey("upstream.max_event_size", func(c *Config) *int { return &c.Upstream.MaxEventSize }),

	stringKey("storage.sqlite_path", func(c *Config) *string { return &c.Storage.SQLitePath }),
	secret(stringKey("storage.postgres_dsn", func(c *Config) *string { return &c.Storage.PostgresDSN })),

	intKey("retention.days", func(c *Config) *int { return &c.Retention.Days }),
	stringKey("retention.schedule", func(c *Config) *string { return &c.Retention.Schedule }),

	stringKey("events.kafka_brokers", func(c *Config) *string { return &c.Events.KafkaBrokers }),
	stringKey("events.kafka_topic", func(c *Config) *string { return &c.Events.KafkaTopic }),

	durationKey("models.cache_ttl", func(c *Config) *string { return &c.Models.CacheTTL }),
}

// configKeys indexes keyList by name.
var configKeys = func() map[string]configKey {
	m := make(map[string]configKey, len(keyList))
	for _, k := range keyList {
		m[k.name] = k
	}
	return m
}()
