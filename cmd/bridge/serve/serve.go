// Package servecmder provides the serve command that runs the relay.
package servecmder

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kgourjau/BridgeAI/cmd/bridge/transcriptdb"
	"github.com/kgourjau/BridgeAI/pkg/config"
	"github.com/kgourjau/BridgeAI/pkg/eventstream"
	"github.com/kgourjau/BridgeAI/pkg/eventstream/kafka"
	"github.com/kgourjau/BridgeAI/pkg/eventstream/nop"
	"github.com/kgourjau/BridgeAI/pkg/logger"
	"github.com/kgourjau/BridgeAI/pkg/metrics"
	"github.com/kgourjau/BridgeAI/pkg/storage/retention"
	"github.com/kgourjau/BridgeAI/pkg/upstream"
	"github.com/kgourjau/BridgeAI/proxy"
)

type serveCommander struct {
	flags config.FlagSet

	listen           string
	upstream         string
	defaultModel     string
	advertisedModel  string
	stripFields      string
	passthroughModel bool
	idleTimeout      string
	sqlitePath       string
	postgresDSN      string
	kafkaBrokers     string

	debug  bool
	viper  *viper.Viper
	logger *zap.Logger
}

const serveLongDesc string = `Run the relay server.

The relay accepts OpenAI chat completion requests, forwards them to the
configured OpenAI-compatible upstream (Groq by default) and streams the reply
back as well-formed server-sent events under the advertised model name.

Every exchange is written to the transcript store and optionally published
to Kafka. Edits to config.toml are picked up without a restart for the
advertised model, the stripped fields, the passthrough switch and the
bearer token.`

const serveShortDesc string = "Run the relay server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{
		flags: config.ServeFlags,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, cmder.flags, []string{
				config.FlagListen,
				config.FlagUpstream,
				config.FlagDefaultModel,
				config.FlagAdvertisedModel,
				config.FlagStripFields,
				config.FlagPassthroughModel,
				config.FlagIdleTimeout,
				config.FlagSQLite,
				config.FlagPostgres,
				config.FlagKafkaBrokers,
			})

			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, cmder.flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, cmder.flags, config.FlagDefaultModel, &cmder.defaultModel)
	config.AddStringFlag(cmd, cmder.flags, config.FlagAdvertisedModel, &cmder.advertisedModel)
	config.AddStringFlag(cmd, cmder.flags, config.FlagStripFields, &cmder.stripFields)
	config.AddBoolFlag(cmd, cmder.flags, config.FlagPassthroughModel, &cmder.passthroughModel)
	config.AddStringFlag(cmd, cmder.flags, config.FlagIdleTimeout, &cmder.idleTimeout)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, cmder.flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, cmder.flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)

	return cmd
}

func (c *serveCommander) run(parent context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	settings, err := config.LoadSettings(c.viper)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := transcriptdb.Open(ctx, transcriptdb.Options{
		PostgresDSN: settings.PostgresDSN,
		SQLitePath:  settings.SQLitePath,
	}, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := c.newPublisher(settings)
	if err != nil {
		return err
	}
	defer publisher.Close()

	client, err := upstream.NewClient(upstream.Config{
		BaseURL:       settings.UpstreamBaseURL,
		APIKey:        settings.UpstreamAPIKey,
		DefaultModel:  settings.UpstreamDefaultModel,
		IdleTimeout:   settings.IdleTimeout,
		HeaderTimeout: settings.HeaderTimeout,
		Logger:        c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating upstream client: %w", err)
	}

	p, err := proxy.New(proxy.Config{
		ListenAddr:     settings.Listen,
		UpstreamURL:    settings.UpstreamBaseURL,
		Settings:       relaySettings(settings),
		ModelsCacheTTL: settings.ModelsCacheTTL,
		Publisher:      publisher,
		Metrics:        metrics.NewCollector(nil),

		KeepAliveInterval: settings.KeepAlive,
		MaxEventSize:      settings.MaxEventSize,
	}, client, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	if settings.BearerToken == "" {
		c.logger.Warn("no bearer token configured, API routes will answer 500",
			zap.String("key", "relay.bearer_token"),
		)
	}

	var scheduler *retention.Scheduler
	if settings.RetentionDays > 0 {
		pruner, err := retention.NewPruner(driver, settings.RetentionDays, c.logger)
		if err != nil {
			_ = p.Close()
			return err
		}
		scheduler = retention.NewScheduler(pruner, settings.RetentionSchedule, c.logger)
	}

	c.watchConfig(p)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.Run(); err != nil {
			return fmt.Errorf("relay error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down relay")
		return p.Close()
	})

	if scheduler != nil {
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	return g.Wait()
}

func (c *serveCommander) newPublisher(settings *config.Settings) (eventstream.Publisher, error) {
	if len(settings.KafkaBrokers) == 0 {
		return nop.NewPublisher(), nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: settings.KafkaBrokers,
		Topic:   settings.KafkaTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("publishing exchange events",
		zap.Strings("brokers", settings.KafkaBrokers),
		zap.String("topic", publisher.Topic()),
	)
	return publisher, nil
}

// watchConfig reloads the relay settings whenever config.toml changes.
// Upstream, storage and listener changes still need a restart.
func (c *serveCommander) watchConfig(p *proxy.Proxy) {
	if c.viper.ConfigFileUsed() == "" {
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		settings, err := config.LoadSettings(c.viper)
		if err != nil {
			c.logger.Error("ignoring invalid config change",
				zap.String("file", e.Name),
				zap.Error(err),
			)
			return
		}

		if err := p.UpdateSettings(relaySettings(settings)); err != nil {
			c.logger.Error("failed to apply config change", zap.Error(err))
		}
	})
	c.viper.WatchConfig()

	c.logger.Info("watching config file", zap.String("file", c.viper.ConfigFileUsed()))
}

func relaySettings(s *config.Settings) proxy.Settings {
	return proxy.Settings{
		BearerToken:      s.BearerToken,
		AdvertisedModel:  s.AdvertisedModel,
		StripFields:      s.StripFields,
		PassthroughModel: s.PassthroughModel,
	}
}
