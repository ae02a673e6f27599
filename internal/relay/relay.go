package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil/internal/command"
	"vigil/internal/config"
	"vigil/internal/engine"
	"vigil/internal/kafka"
	"vigil/internal/logger"
	"vigil/internal/middleware"
	"vigil/internal/models"
	"vigil/internal/sensor"
	"vigil/internal/status"
	"vigil/internal/store"
	"vigil/internal/telegram"
	"vigil/internal/worker"
)

// Relay is the high-level coordinator: it wires the sensor client, the
// shared stores, the evaluation engine, the Telegram transport, and the
// optional Kafka alert stream, and runs them until shutdown.
type Relay struct {
	cfg *config.Config

	thresholds *store.ThresholdStore
	flags      *store.AlertFlagTable

	bot        *telegram.Bot
	evaluator  *engine.Evaluator
	publisher  *kafka.Publisher
	workerPool *worker.Pool
	alertChan  chan *models.AlertEvent
	httpServer *http.Server

	wg sync.WaitGroup
}

// New constructs a Relay with the given config.
func New(cfg *config.Config) *Relay {
	return &Relay{
		cfg:        cfg,
		thresholds: store.NewThresholdStore(),
		flags:      store.NewAlertFlagTable(),
	}
}

// Run starts background goroutines and blocks until the context is
// cancelled.
func (r *Relay) Run(ctx context.Context) error {
	log := logger.WithComponent("relay")
	log.Info().Msg("relay starting")

	client := sensor.New(r.cfg.SensorURL, r.cfg.FetchTimeout)
	renderer := status.NewRenderer(r.cfg.SensorNames)

	// Optional alert stream
	if len(r.cfg.KafkaBrokers) > 0 {
		if err := r.initAlertStream(); err != nil {
			log.Error().Err(err).Msg("failed to initialize alert stream")
			return fmt.Errorf("failed to initialize alert stream: %w", err)
		}
		r.workerPool.Start()
	} else {
		log.Info().Msg("no kafka brokers configured, alert stream disabled")
	}

	handler := command.NewHandler(command.HandlerConfig{
		Thresholds: r.thresholds,
		Flags:      r.flags,
		Fetcher:    client,
		Renderer:   renderer,
		ChartURLs:  r.cfg.ChartURLs,
	})

	bot, err := telegram.New(r.cfg.TelegramToken, handler)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telegram bot")
		return fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	r.bot = bot

	r.evaluator = engine.New(engine.Config{
		Fetcher:    client,
		Thresholds: r.thresholds,
		Flags:      r.flags,
		Sink:       bot,
		Renderer:   renderer,
		Interval:   r.cfg.PollInterval,
		AlertChan:  r.alertChan,
	})

	r.initHTTPServer()

	// Admin HTTP server
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		log.Info().Str("addr", r.cfg.AdminAddr).Msg("starting admin HTTP server")
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("admin HTTP server error")
		}
	}()

	// Evaluation loop
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.evaluator.Run(ctx)
	}()

	// Telegram command dispatch
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("telegram bot stopped with error")
		}
	}()

	// Stats reporting goroutine
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return r.shutdown()
}

// initAlertStream initializes the Kafka publisher and its worker pool.
func (r *Relay) initAlertStream() error {
	log := logger.WithComponent("relay")

	publisher, err := kafka.NewPublisher(r.cfg.KafkaBrokers, r.cfg.KafkaTopic, kafka.PublisherConfig{})
	if err != nil {
		return err
	}

	r.publisher = publisher
	r.alertChan = make(chan *models.AlertEvent, 256)
	r.workerPool = worker.NewPool(worker.Config{
		Publisher: publisher,
		EventChan: r.alertChan,
	})

	log.Info().
		Strs("brokers", r.cfg.KafkaBrokers).
		Str("topic", r.cfg.KafkaTopic).
		Msg("alert stream publisher initialized")
	return nil
}

// initHTTPServer initializes the admin HTTP server.
func (r *Relay) initHTTPServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", r.healthHandler)
	mux.HandleFunc("/stats", r.statsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	r.httpServer = &http.Server{
		Addr: r.cfg.AdminAddr,
		Handler: middleware.Chain(
			mux,
			middleware.Recovery,
			middleware.Logging,
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown performs graceful shutdown
func (r *Relay) shutdown() error {
	log := logger.WithComponent("relay")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping admin HTTP server")
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin HTTP server shutdown error")
	}

	if r.alertChan != nil {
		// Let workers flush buffered alert events before the publisher goes.
		log.Info().Msg("closing alert stream channel")
		close(r.alertChan)

		done := make(chan struct{})
		go func() {
			r.workerPool.Stop()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("alert workers stopped gracefully")
		case <-time.After(15 * time.Second):
			log.Warn().Msg("alert worker shutdown timeout - forcing exit")
		}

		log.Info().Msg("closing alert stream publisher")
		if err := r.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("publisher close error")
		}
	}

	r.wg.Wait()

	log.Info().Msg("relay stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (r *Relay) reportStats(ctx context.Context) {
	log := logger.WithComponent("relay")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev := log.Info().
				Int("thresholds", r.thresholds.Count()).
				Int("active_alerts", r.flags.ActiveCount())

			if r.publisher != nil {
				pubStats := r.publisher.Stats()
				poolStats := r.workerPool.Stats()
				ev = ev.
					Uint64("alerts_published", pubStats.Published).
					Uint64("alerts_publish_failed", pubStats.Failed).
					Uint64("worker_processed", poolStats.Processed).
					Int("alert_queue_size", len(r.alertChan))
			}

			ev.Msg("stats")
		}
	}
}

// healthHandler handles health check requests
func (r *Relay) healthHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (r *Relay) statsHandler(w http.ResponseWriter, req *http.Request) {
	var published, publishFailed uint64
	if r.publisher != nil {
		stats := r.publisher.Stats()
		published = stats.Published
		publishFailed = stats.Failed
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"thresholds": %d,
		"active_alerts": %d,
		"alert_stream": {
			"published": %d,
			"failed": %d
		}
	}`,
		r.thresholds.Count(),
		r.flags.ActiveCount(),
		published,
		publishFailed,
	)
}
