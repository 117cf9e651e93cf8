package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/trackcard/internal/bot"
	"github.com/memohai/trackcard/internal/card"
	"github.com/memohai/trackcard/internal/catalog"
	"github.com/memohai/trackcard/internal/config"
	"github.com/memohai/trackcard/internal/handlers"
	"github.com/memohai/trackcard/internal/logger"
	"github.com/memohai/trackcard/internal/metrics"
	"github.com/memohai/trackcard/internal/permission"
	"github.com/memohai/trackcard/internal/pipeline"
	"github.com/memohai/trackcard/internal/server"
	"github.com/memohai/trackcard/internal/version"
)

func runServe() error {
	app := fx.New(serveOptions())
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func serveOptions() fx.Option {
	return fx.Options(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideCatalogClient,
			provideSession,
			provideGate,
			provideEnricher,
			providePipeline,
			provideBot,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServerHandler(provideHealthHandler),
			provideServer,
		),
		fx.Invoke(
			metrics.Register,
			startBot,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideCatalogClient authenticates during startup; bad credentials stop
// the process before the bot connects.
func provideCatalogClient(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*catalog.Client, error) {
	sc := cfg.Spotify
	client, err := catalog.NewClient(log, catalog.Options{
		ClientID:          sc.ClientID,
		ClientSecret:      sc.ClientSecret,
		TokenURL:          sc.TokenURL,
		BaseURL:           sc.APIBaseURL,
		HTTPClient:        &http.Client{Timeout: sc.Timeout()},
		RequestsPerSecond: sc.RequestsPerSecond,
		Burst:             sc.Burst,
		Breaker: catalog.BreakerConfig{
			MaxRequests:  sc.Breaker.MaxRequests,
			Interval:     time.Duration(sc.Breaker.IntervalSeconds) * time.Second,
			Timeout:      time.Duration(sc.Breaker.TimeoutSeconds) * time.Second,
			MinRequests:  sc.Breaker.MinRequests,
			FailureRatio: sc.Breaker.FailureRatio,
		},
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
		if err := client.Authenticate(ctx); err != nil {
			return fmt.Errorf("spotify authenticate: %w", err)
		}
		return nil
	}})
	return client, nil
}

func provideSession(cfg config.Config) (*discordgo.Session, error) {
	return bot.NewSession(cfg.Discord.Token)
}

func provideGate(log *slog.Logger, session *discordgo.Session) *permission.Gate {
	return permission.NewGate(log, bot.NewDirectory(session))
}

func provideEnricher(log *slog.Logger, client *catalog.Client, cfg config.Config) *catalog.Enricher {
	return catalog.NewEnricher(log, client, cfg.Spotify.Market)
}

func providePipeline(log *slog.Logger, gate *permission.Gate, enricher *catalog.Enricher, session *discordgo.Session, cfg config.Config) *pipeline.Pipeline {
	assembler := card.Assembler{FooterIcon: cfg.Spotify.IconURL}
	return pipeline.New(log, gate, enricher, assembler, bot.NewSender(session))
}

func provideBot(log *slog.Logger, session *discordgo.Session, p *pipeline.Pipeline) *bot.Bot {
	return bot.New(log, session, p)
}

func provideHealthHandler(b *bot.Bot, client *catalog.Client) *handlers.HealthHandler {
	return handlers.NewHealthHandler(b, client)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startBot(lc fx.Lifecycle, log *slog.Logger, b *bot.Bot) {
	log.Info("starting trackcard", slog.String("version", version.Version))
	lc.Append(fx.Hook{
		OnStart: b.Start,
		OnStop:  b.Stop,
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	if cfg.Server.Disabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
