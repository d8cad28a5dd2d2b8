package cmd

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/bugsnag/bugsnag-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/momentum-mod/livestreams/internal/cmdutil"
	"github.com/momentum-mod/livestreams/internal/config"
	"github.com/momentum-mod/livestreams/internal/discord"
	"github.com/momentum-mod/livestreams/internal/distributedlock"
	"github.com/momentum-mod/livestreams/internal/iconcache"
	"github.com/momentum-mod/livestreams/internal/monitor"
	"github.com/momentum-mod/livestreams/internal/telemetry"
	"github.com/momentum-mod/livestreams/internal/twitch"
)

// A crashed holder's lock lapses after passLockTTL.
const passLockTTL = 2 * time.Minute

// services is everything a command needs, built from one Config.
type services struct {
	cfg      *config.Config
	statsd   statsd.ClientInterface
	registry *prometheus.Registry
	engine   *monitor.Engine

	closers []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func tracedClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}
}

func newServices(ctx context.Context, logger *zap.Logger) (*services, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}

	s := &services{cfg: cfg}

	shutdownTracing, err := cmdutil.NewTracerProvider(ctx)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	})

	sd, err := cmdutil.NewStatsdClient()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.statsd = sd
	s.closers = append(s.closers, func() { _ = sd.Close() })

	var (
		icons twitch.IconCache = iconcache.NewMemory(cfg.IconCacheTTL)
		lock  monitor.PassLock
	)
	if cfg.RedisURL != "" {
		rdb, err := cmdutil.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = rdb.Close() })
		icons = iconcache.NewRedis(rdb, cfg.IconCacheTTL)
		lock = distributedlock.NewPassLock(distributedlock.New(rdb, passLockTTL), cfg.ChannelID, cfg.UpdateInterval)
	}

	provider := twitch.NewClient(
		cfg.TwitchClientID,
		cfg.TwitchClientSecret,
		sd,
		icons,
		twitch.WithClient(tracedClient()),
		twitch.WithLogger(logger.Named("twitch")),
	)
	chat := discord.NewClient(cfg.DiscordToken, sd, discord.WithClient(tracedClient()))

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.engine = monitor.NewEngine(logger, sd, telemetry.NewMetrics(s.registry), provider, chat, monitor.Options{
		ChannelID:      cfg.ChannelID,
		GameID:         cfg.TwitchGameID,
		MentionRoleID:  cfg.MentionRoleID,
		MinimumViewers: cfg.MinimumViewers,
		HistoryLimit:   cfg.MessageHistoryLimit,
		HardBans:       cfg.HardBans(),
		Lock:           lock,
	})

	return s, nil
}

// notifier reports to bugsnag when it is configured.
func notifier(logger *zap.Logger) func(error) {
	if _, ok := os.LookupEnv("BUGSNAG_API_KEY"); !ok {
		return func(error) {}
	}

	return func(err error) {
		if nerr := bugsnag.Notify(err); nerr != nil {
			logger.Debug("failed to notify bugsnag", zap.Error(nerr))
		}
	}
}
