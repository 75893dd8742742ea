package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/practicedesk/console/internal/api"
	"github.com/practicedesk/console/internal/api/handler"
	"github.com/practicedesk/console/internal/core/mirror"
	"github.com/practicedesk/console/internal/core/ports"
	"github.com/practicedesk/console/internal/core/service"
	"github.com/practicedesk/console/internal/infrastructure/config"
	"github.com/practicedesk/console/internal/infrastructure/db/bsonx"
	mongoInfra "github.com/practicedesk/console/internal/infrastructure/db/mongo"
	redisInfra "github.com/practicedesk/console/internal/infrastructure/db/redis"
	"github.com/practicedesk/console/internal/infrastructure/lifecycle"
	"github.com/practicedesk/console/internal/infrastructure/memory"
	"github.com/practicedesk/console/pkg/logger"
)

func main() {
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(appCtx)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	lg := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "console",
	})

	manager := lifecycle.New(cfg.ShutdownTimeout, lg)
	manager.Listen(cancel)

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = rand.Text()
		lg.Warn().Msg("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	checks := map[string]handler.Check{}

	var presence mongoInfra.Presence
	if cfg.Redis.Addr != "" {
		client, err := redisInfra.Connect(appCtx, redisInfra.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			lg.Warn().Err(err).Msg("redis unavailable, session presence disabled")
		} else {
			tracker := redisInfra.NewPresenceTracker(client, 0)
			presence = tracker
			checks["redis"] = tracker.Check
			manager.Register("redis", func(context.Context) error { return client.Close() })
		}
	}

	rem, mongoRemote := newRemote(cfg, presence, lg)
	checks["remote"] = rem.Ping

	store := mirror.NewStore(rem, lg.With().Str("component", "mirror").Logger())
	gate := service.NewSessionGate(rem, store, service.GateConfig{
		MissingConfig: cfg.Remote.Missing(),
		AdminUsername: cfg.Admin.Username,
		AdminPassword: cfg.Admin.Password,
		LoginRate:     rate.Limit(float64(cfg.Login.RatePerMinute) / 60),
		LoginBurst:    cfg.Login.Burst,
	}, lg.With().Str("component", "session").Logger())
	store.SetAuthorizer(gate)
	manager.Register("session", gate.Close)

	if err := gate.Start(appCtx); err != nil {
		lg.Error().Err(err).Msg("console running without remote data")
	} else if mongoRemote != nil {
		if err := mongoRemote.EnsureIndexes(appCtx); err != nil {
			lg.Warn().Err(err).Msg("failed to ensure indexes")
		}
	}

	gateway := service.NewMutationGateway(rem, gate, store, lg.With().Str("component", "gateway").Logger())

	e := api.NewRouter(api.Dependencies{
		Gate:        gate,
		Mirrors:     store,
		Gateway:     gateway,
		Checks:      checks,
		Log:         lg,
		JWTSecret:   cfg.JWTSecret,
		FeeCurrency: cfg.FeeCurrency,
	})
	manager.Register("http", e.Shutdown)

	go func() {
		lg.Info().Str("addr", cfg.Address()).Msg("console listening")
		if err := e.Start(cfg.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	<-appCtx.Done()
	if err := manager.Shutdown(context.Background()); err != nil {
		lg.Error().Err(err).Msg("shutdown finished with errors")
		return
	}
	lg.Info().Msg("console stopped")
}

// newRemote builds the configured remote adapter. The concrete mongo remote is
// returned as well so startup can create its indexes.
func newRemote(cfg *config.Config, presence mongoInfra.Presence, lg zerolog.Logger) (ports.Remote, *mongoInfra.Remote) {
	if cfg.Remote.Driver == config.DriverMemory {
		lg.Warn().Msg("using in-memory remote, data is lost on exit")
		return memory.New(), nil
	}
	r := mongoInfra.NewRemote(mongoInfra.Config{
		URI:        cfg.Remote.URI,
		Database:   cfg.Remote.ProjectID,
		AppName:    "console",
		Username:   cfg.Remote.AppID,
		Password:   cfg.Remote.APIKey,
		AuthSource: cfg.Remote.AuthDomain,
		Registry:   bsonx.Registry(),
		Timeout:    10 * time.Second,
	}, cfg.Remote.Namespace, presence, lg.With().Str("component", "remote").Logger())
	return r, r
}
