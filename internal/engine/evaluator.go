package engine

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vigil/internal/logger"
	"vigil/internal/metrics"
	"vigil/internal/models"
	"vigil/internal/notify"
	"vigil/internal/status"
	"vigil/internal/store"
)

// Fetcher supplies the current set of sensor readings.
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.Reading, error)
}

// Evaluator runs the periodic fetch/evaluate/notify loop. Alerts are
// edge-triggered: a notification fires only on the transition from
// "not violating" to "violating", and the flag table suppresses repeats
// while a condition persists. When a violation clears, the flag resets and
// the bound re-arms automatically; thresholds are never cleared by the
// engine.
type Evaluator struct {
	fetcher    Fetcher
	thresholds *store.ThresholdStore
	flags      *store.AlertFlagTable
	sink       notify.Sink
	renderer   *status.Renderer
	interval   time.Duration

	// Optional alert stream; nil channel means no Kafka configured
	alertChan chan<- *models.AlertEvent
}

// Config holds evaluator configuration
type Config struct {
	Fetcher    Fetcher
	Thresholds *store.ThresholdStore
	Flags      *store.AlertFlagTable
	Sink       notify.Sink
	Renderer   *status.Renderer
	Interval   time.Duration
	AlertChan  chan<- *models.AlertEvent
}

// New creates an evaluator.
func New(cfg Config) *Evaluator {
	if cfg.Interval <= 0 {
		cfg.Interval = 600 * time.Second
	}

	return &Evaluator{
		fetcher:    cfg.Fetcher,
		thresholds: cfg.Thresholds,
		flags:      cfg.Flags,
		sink:       cfg.Sink,
		renderer:   cfg.Renderer,
		interval:   cfg.Interval,
		alertChan:  cfg.AlertChan,
	}
}

// Run executes evaluation ticks until the context is cancelled. The first
// tick runs immediately; errors inside a tick never terminate the loop.
func (e *Evaluator) Run(ctx context.Context) error {
	log := logger.WithComponent("engine")
	log.Info().Dur("interval", e.interval).Msg("evaluation loop starting")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("evaluation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single evaluation tick.
func (e *Evaluator) RunOnce(ctx context.Context) {
	tickID := uuid.New().String()
	log := logger.WithComponent("engine").With().Str("tick_id", tickID).Logger()

	// A panic in one tick must not take down the loop.
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Error().
				Interface("panic", r).
				Bytes("stack", stack).
				Msg("evaluation tick panic recovered")
			metrics.PanicsRecovered.WithLabelValues("engine").Inc()
		}
	}()

	start := time.Now()

	readings, err := e.fetcher.Fetch(ctx)
	if err != nil {
		// Transient: existing flag state stays untouched, retry next tick.
		log.Warn().Err(err).Msg("fetch failed, skipping tick")
		metrics.TicksTotal.WithLabelValues("fetch_failed").Inc()
		return
	}

	snapshot := e.thresholds.Snapshot()

	notified := 0
	for _, reading := range readings {
		for subscriberID, thresholds := range snapshot {
			notified += e.evaluateBounds(ctx, log, subscriberID, thresholds, reading)
		}
	}

	metrics.TicksTotal.WithLabelValues("ok").Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	metrics.ActiveAlerts.Set(float64(e.flags.ActiveCount()))

	log.Debug().
		Int("readings", len(readings)).
		Int("subscribers", len(snapshot)).
		Int("notifications", notified).
		Dur("duration", time.Since(start)).
		Msg("tick evaluated")
}

// evaluateBounds checks one reading against one subscriber's min and max
// bounds, if configured. It returns the number of notifications sent.
func (e *Evaluator) evaluateBounds(ctx context.Context, log zerolog.Logger, subscriberID int64, thresholds store.SubscriberThresholds, reading models.Reading) int {
	notified := 0

	for _, dir := range []models.Direction{models.DirectionMin, models.DirectionMax} {
		key := models.NewThresholdKey(reading.SensorID, reading.Metric, dir)
		bound, ok := thresholds[key]
		if !ok {
			continue
		}

		flagKey := store.NewFlagKey(subscriberID, key)

		if !key.Violates(reading.Value, bound) {
			// Back in range: re-arm the bound for the next episode.
			e.flags.Set(flagKey, false)
			continue
		}

		if e.flags.Active(flagKey) {
			// Sustained violation, already notified.
			continue
		}

		e.notify(ctx, log, subscriberID, key, reading, bound)
		e.flags.Set(flagKey, true)
		notified++
	}

	return notified
}

// notify delivers one alert, best-effort. A delivery failure is logged and
// does not block other subscribers; the flag is set either way so the
// episode is not re-alerted every tick.
func (e *Evaluator) notify(ctx context.Context, log zerolog.Logger, subscriberID int64, key models.ThresholdKey, reading models.Reading, bound float64) {
	text := e.renderer.Alert(key, reading.Value, bound)

	if err := e.sink.Send(ctx, subscriberID, text); err != nil {
		log.Error().
			Err(err).
			Int64("subscriber_id", subscriberID).
			Str("bound", key.String()).
			Msg("failed to deliver notification")
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
	} else {
		log.Info().
			Int64("subscriber_id", subscriberID).
			Str("bound", key.String()).
			Float64("value", reading.Value).
			Float64("threshold", bound).
			Msg("alert notification sent")
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}

	// Mirror the alert onto the stream, if configured. Never block a tick
	// on a full channel.
	if e.alertChan != nil {
		select {
		case e.alertChan <- models.NewAlertEvent(subscriberID, key, reading, bound):
		default:
			log.Warn().Msg("alert stream channel full, dropping event")
		}
	}
}
