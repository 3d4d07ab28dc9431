package config

const (
	defaultRelayListen     = ":7000"
	defaultAdvertisedModel = "gpt-4o-mini"
	defaultStripFields     = "x_groq"
	defaultKeepAlive       = "15s"

	defaultUpstreamBaseURL = "https://api.groq.com/openai/v1"
	defaultUpstreamModel   = "llama-3.3-70b-versatile"
	defaultIdleTimeout     = "60s"
	defaultHeaderTimeout   = "30s"
	defaultMaxEventSize    = 1 << 20

	defaultRetentionDays     = 30
	defaultRetentionSchedule = "0 3 * * *"

	defaultKafkaTopic = "bridge.exchanges"

	defaultModelsCacheTTL = "5m"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen:          defaultRelayListen,
			AdvertisedModel: defaultAdvertisedModel,
			StripFields:     defaultStripFields,
			KeepAlive:       defaultKeepAlive,
		},
		Upstream: UpstreamConfig{
			BaseURL:       defaultUpstreamBaseURL,
			DefaultModel:  defaultUpstreamModel,
			IdleTimeout:   defaultIdleTimeout,
			HeaderTimeout: defaultHeaderTimeout,
			MaxEventSize:  defaultMaxEventSize,
		},
		Retention: RetentionConfig{
			Days:     defaultRetentionDays,
			Schedule: defaultRetentionSchedule,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		Models: ModelsConfig{
			CacheTTL: defaultModelsCacheTTL,
		},
	}
}
