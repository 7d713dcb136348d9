package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seven320/pose-net-correction/internal/analytics"
	"github.com/seven320/pose-net-correction/internal/config"
	"github.com/seven320/pose-net-correction/internal/driver"
	"github.com/seven320/pose-net-correction/internal/model"
	"github.com/seven320/pose-net-correction/internal/persistence"
	"github.com/seven320/pose-net-correction/internal/settings"
	"github.com/seven320/pose-net-correction/internal/source"
	"github.com/seven320/pose-net-correction/internal/stream"
	"github.com/seven320/pose-net-correction/pkg/log"
)

type snapshotStore interface {
	Check(ctx context.Context) error
	Stop() error
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
	SaveAlert(ctx context.Context, ev model.AlertEvent) error
	FetchLatest(ctx context.Context) (*model.Snapshot, error)
	RecentAlerts(ctx context.Context, limit int) ([]model.AlertEvent, error)
}

// app is the explicit context shared by the frame loop and the handlers.
type app struct {
	store    snapshotStore
	writer   *storeWriter
	push     *source.PushSource
	driver   *driver.Driver
	hub      *stream.Hub
	settings *settings.Store
	validate *validator.Validate
	registry *prometheus.Registry
	prom     promMetrics
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal(log.Fields{"error": err.Error()}, "[main] invalid .env file")
	}
	log.NewLogger(log.Options{Level: cfg.LogLevel, File: cfg.LogFile, Env: cfg.Env})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := persistence.NewSnapshotStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := store.Check(ctx); err != nil {
		log.Warn(log.Fields{"error": err.Error(), "addr": cfg.RedisAddr}, "[main] redis ping failed")
	}

	src, err := source.New(cfg.PoseSource, cfg.QueueSize)
	if err != nil {
		log.Fatal(log.Fields{"error": err.Error()}, "[main] invalid pose source")
	}

	service := newApp(cfg, store, src)

	loopDone := make(chan error, 1)
	go func() { loopDone <- service.driver.Run(ctx) }()

	select {
	case err := <-loopDone:
		if errors.Is(err, source.ErrCameraUnavailable) {
			log.Fatal(log.Fields{"error": err.Error()}, "[main] this device does not provide pose frames; check the camera or the recording")
		}
		if err != nil {
			log.Fatal(log.Fields{"error": err.Error()}, "[main] frame loop stopped during startup")
		}
	case <-service.driver.Running():
		go func() {
			if err := <-loopDone; err != nil {
				log.Error(log.Fields{"error": err.Error()}, "[main] frame loop stopped")
				return
			}
			log.Info(nil, "[main] frame loop finished")
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           service.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info(log.Fields{"addr": cfg.HTTPAddr, "source": cfg.PoseSource}, "[main] http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(log.Fields{"error": err.Error()}, "[main] listen failed")
		}
	}()

	awaitSignal(cancel)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	service.hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(log.Fields{"error": err.Error()}, "[main] http shutdown error")
	}
	service.writer.Close()
	if err := store.Stop(); err != nil {
		log.Error(log.Fields{"error": err.Error()}, "[main] redis close error")
	}
}

func newApp(cfg config.Config, store snapshotStore, src source.PoseSource) *app {
	validate := validator.New()
	service := &app{
		store:    store,
		settings: settings.NewStore(validate),
		validate: validate,
		registry: prometheus.NewRegistry(),
		prom:     buildPromMetrics(),
	}
	service.prom.register(service.registry)
	service.writer = newStoreWriter(storeQueueSize, func(name string, err error) {
		service.prom.redisErrTotal.Inc()
		log.Error(log.Fields{"error": err.Error(), "write": name}, "[app.storeWriter] redis store error")
	})

	var sink stream.FrameSink
	if push, ok := src.(*source.PushSource); ok {
		service.push = push
		sink = push
	}
	service.hub = stream.NewHub(sink, service, validate)

	tracker := analytics.NewTracker(analytics.Config{
		WindowFrames: cfg.WindowFrames,
		HistoryLimit: cfg.HistoryLimit,
		Margin:       cfg.Margin,
		MinEyeScore:  cfg.MinEyeScore,
		Sound:        cfg.AlertSound,
	}, alerters{service.hub, service})

	service.driver = driver.New(tracker, src, service, service.hub)
	return service
}

// alerters fans one alert out to every side effect.
type alerters []analytics.Alerter

func (as alerters) Alert(ctx context.Context, ev model.AlertEvent) {
	for _, a := range as {
		a.Alert(ctx, ev)
	}
}

func (a *app) Arm(ctx context.Context) (float64, error) {
	return a.driver.Arm(ctx)
}

func (a *app) Alert(_ context.Context, ev model.AlertEvent) {
	a.prom.alertTotal.Inc()
	log.Info(log.Fields{"id": ev.ID, "value": ev.Value, "baseline": ev.Baseline}, "[app.Alert] eye distance above baseline")

	queued := a.writer.submit("alert", func(ctx context.Context) error {
		return a.store.SaveAlert(ctx, ev)
	})
	if !queued {
		a.prom.redisDroppedTotal.Inc()
		log.Warn(log.Fields{"id": ev.ID}, "[app.Alert] store queue full, alert not persisted")
	}
}

func (a *app) PublishFrame(_ context.Context, res analytics.Result, snap model.Snapshot, elapsed time.Duration, err error) {
	a.prom.observeFrame(res, snap, elapsed, err)
	if res.Closed {
		a.saveSnapshot(snap)
	}
}

func (a *app) PublishArm(_ context.Context, baseline float64, snap model.Snapshot) {
	log.Info(log.Fields{"baseline": baseline}, "[app.PublishArm] alert armed")
	a.prom.observeState(snap)
	a.saveSnapshot(snap)
}

func (a *app) saveSnapshot(snap model.Snapshot) {
	queued := a.writer.submit("snapshot", func(ctx context.Context) error {
		return a.store.SaveSnapshot(ctx, snap)
	})
	if !queued {
		a.prom.redisDroppedTotal.Inc()
	}
}

func awaitSignal(cancel context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
	log.Info(nil, "[main] shutdown signal received")
}
