package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicops/clinic/internal/config"
	"github.com/clinicops/clinic/internal/domain/appointment"
	"github.com/clinicops/clinic/internal/domain/doctor"
	"github.com/clinicops/clinic/internal/domain/medicalrecord"
	"github.com/clinicops/clinic/internal/domain/notification"
	"github.com/clinicops/clinic/internal/domain/patient"
	"github.com/clinicops/clinic/internal/domain/settings"
	"github.com/clinicops/clinic/internal/domain/stats"
	"github.com/clinicops/clinic/internal/domain/waitinglist"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/changefeed"
	"github.com/clinicops/clinic/internal/platform/db"
	"github.com/clinicops/clinic/internal/platform/middleware"
	"github.com/clinicops/clinic/internal/platform/websocket"
)

const version = "0.1.0"

// app is the wired server. Background components are started by run.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	echo    *echo.Echo
	mux     *changefeed.Multiplexer
	relay   *changefeed.Relay
	waiting *waitinglist.Coordinator
	stats   *stats.Engine
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	rdb, err := newRedis(cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var source changefeed.Source
	if cfg.FeedBackend == "redis" {
		source = changefeed.NewRedisSource(rdb, logger)
	} else {
		source = changefeed.NewPGSource(pool, cfg.DBSchema, logger)
	}

	a, err := newApp(cfg, logger, pool, source, rdb)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

func newApp(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, source changefeed.Source, rdb *redis.Client) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	ev := auth.StaticEvaluator{}
	tx := db.PoolTx{Pool: pool}

	mux := changefeed.New(source, changefeed.Options{
		ReconnectMin:  cfg.FeedReconnectMin,
		ReconnectMax:  cfg.FeedReconnectMax,
		DegradedAfter: cfg.FeedDegradedAfter,
	}, logger)

	settingsSvc := settings.NewService(settings.NewRepoPG(pool), ev)
	patientSvc := patient.NewService(patient.NewRepoPG(pool), tx, ev)
	doctorSvc := doctor.NewService(doctor.NewRepoPG(pool), tx, ev)
	recordSvc := medicalrecord.NewService(medicalrecord.NewRepoPG(pool), ev)
	notificationSvc := notification.NewService(notification.NewRepoPG(pool), ev)
	appointmentSvc := appointment.NewService(appointment.Deps{
		Repo:      appointment.NewRepoPG(pool),
		Tx:        tx,
		Evaluator: ev,
		Settings:  settingsSvc,
		Patients:  patientSvc,
		Doctors:   doctorSvc,
		Records:   recordSvc,
		Notifier:  notificationSvc,
		Location:  loc,
	}, logger)

	waiting := waitinglist.New(waitinglist.Config{
		Feed:         mux,
		Repo:         waitinglist.NewRepoPG(pool),
		Appointments: appointmentSvc,
		Evaluator:    ev,
		Location:     loc,
	}, logger)

	var sink stats.Sink
	if rdb != nil {
		sink = stats.NewRedisSink(rdb, cfg.StatsCacheTTL)
	}
	engine := stats.NewEngine(stats.Config{
		Feed:     mux,
		Repo:     stats.NewRepoPG(pool),
		Settings: settingsSvc,
		Sink:     sink,
		Location: loc,
	}, logger)

	hub := websocket.NewHub(logger)
	bridge := websocket.NewBridge(hub, mux, ev, logger)
	bridge.Provide(websocket.TopicWaitingList, func() (interface{}, bool) { return waiting.Entries(), true })
	bridge.Provide(websocket.TopicStats, func() (interface{}, bool) { return engine.Current() })
	bridge.Provide(websocket.TopicFeed, func() (interface{}, bool) { return mux.Health(), true })
	waiting.OnChange(func(entries []waitinglist.Entry) {
		bridge.Publish(websocket.TopicWaitingList, "snapshot", entries)
	})
	engine.OnChange(func(s stats.Snapshot) {
		bridge.Publish(websocket.TopicStats, "snapshot", s)
	})
	mux.OnHealthChange(func(h changefeed.TableHealth) {
		bridge.Publish(websocket.TopicFeed, "health", h)
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/health/feed", feedHealth(mux))

	api := e.Group("/api/v1")
	settings.NewHandler(settingsSvc, ev).RegisterRoutes(api)
	patient.NewHandler(patientSvc, ev).RegisterRoutes(api)
	doctor.NewHandler(doctorSvc, ev).RegisterRoutes(api)
	medicalrecord.NewHandler(recordSvc).RegisterRoutes(api)
	notification.NewHandler(notificationSvc, ev).RegisterRoutes(api)
	appointment.NewHandler(appointmentSvc, ev).RegisterRoutes(api)
	waitinglist.NewHandler(waiting, ev).RegisterRoutes(api)
	stats.NewHandler(engine, ev).RegisterRoutes(api)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""))

	a := &app{cfg: cfg, logger: logger, echo: e, mux: mux, waiting: waiting, stats: engine}
	if cfg.FeedRelay && cfg.FeedBackend == "postgres" && rdb != nil {
		a.relay = changefeed.NewRelay(mux, rdb, cfg.DBSchema, logger)
	}
	return a, nil
}

// feedHealth reports every table's channel state. Degraded mode still
// answers 200; clients show an indicator rather than fail.
func feedHealth(mux *changefeed.Multiplexer) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := "ok"
		if mux.Degraded() {
			status = "degraded"
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": status,
			"tables": mux.Health(),
		})
	}
}

// run starts every component and stops them together when ctx ends or
// any of them fails.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.mux.Run(gctx) })
	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(gctx) })
	}
	g.Go(func() error { return a.waiting.Run(gctx) })
	g.Go(func() error { return a.stats.Run(gctx) })

	g.Go(func() error {
		addr := ":" + a.cfg.Port
		a.logger.Info().Str("addr", addr).Str("feed", a.cfg.FeedBackend).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.echo.Shutdown(sctx)
	})

	err := g.Wait()
	a.logger.Info().Msg("server stopped")
	return err
}
