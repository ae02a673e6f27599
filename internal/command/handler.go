package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"vigil/internal/logger"
	"vigil/internal/metrics"
	"vigil/internal/models"
	"vigil/internal/status"
	"vigil/internal/store"
)

const helpText = `📖 *Available commands:*
/start – start the bot
/help – show this help
/status – show all current sensor readings
/list – show your configured thresholds
/set <sensor> <metric> <min|max> <value> – alert when the value crosses the bound
/clear <sensor> <metric> <min|max> – remove a bound
/chart <metric> – link to the external history chart`

// Fetcher supplies readings for the on-demand status path.
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.Reading, error)
}

// Handler executes subscriber commands against the threshold store and the
// on-demand status path. It returns the reply text for the chat layer.
type Handler struct {
	thresholds *store.ThresholdStore
	flags      *store.AlertFlagTable
	fetcher    Fetcher
	renderer   *status.Renderer
	chartURLs  map[string]string
}

// HandlerConfig holds handler dependencies
type HandlerConfig struct {
	Thresholds *store.ThresholdStore
	Flags      *store.AlertFlagTable
	Fetcher    Fetcher
	Renderer   *status.Renderer
	ChartURLs  map[string]string
}

// NewHandler creates a command handler.
func NewHandler(cfg HandlerConfig) *Handler {
	chartURLs := cfg.ChartURLs
	if chartURLs == nil {
		chartURLs = map[string]string{}
	}

	return &Handler{
		thresholds: cfg.Thresholds,
		flags:      cfg.Flags,
		fetcher:    cfg.Fetcher,
		renderer:   cfg.Renderer,
		chartURLs:  chartURLs,
	}
}

// Handle parses and executes one inbound message, returning the reply text.
func (h *Handler) Handle(ctx context.Context, subscriberID int64, text string) string {
	log := logger.WithSubscriber(subscriberID)

	cmd, err := Parse(text)
	if err != nil {
		if errors.Is(err, ErrNotCommand) {
			return "I did not understand that. Use /help for available commands."
		}
		log.Debug().Err(err).Str("text", text).Msg("command rejected")
		metrics.CommandsTotal.WithLabelValues("invalid", "rejected").Inc()
		return fmt.Sprintf("❌ %s", err)
	}

	log.Info().Str("command", string(cmd.Kind)).Msg("command received")
	metrics.CommandsTotal.WithLabelValues(string(cmd.Kind), "ok").Inc()

	switch cmd.Kind {
	case KindStart:
		return "👋 Welcome! Use /help to see all commands."

	case KindHelp:
		return helpText

	case KindStatus:
		return h.handleStatus(ctx)

	case KindList:
		return h.handleList(subscriberID)

	case KindSet:
		h.thresholds.Set(subscriberID, cmd.Key, cmd.Value)
		metrics.ThresholdsConfigured.Set(float64(h.thresholds.Count()))
		return h.renderer.SetConfirmation(cmd.Key, cmd.Value)

	case KindClear:
		if !h.thresholds.Clear(subscriberID, cmd.Key) {
			return fmt.Sprintf("No %s bound configured for %s.", cmd.Key.Direction, cmd.Key.SensorID)
		}
		// Removing the bound also re-arms it: a later /set must alert on
		// the first violating tick, not inherit the old alert state.
		h.flags.Clear(store.NewFlagKey(subscriberID, cmd.Key))
		metrics.ThresholdsConfigured.Set(float64(h.thresholds.Count()))
		return fmt.Sprintf("Removed %s bound for %s.", cmd.Key.BoundKey(), h.renderer.SensorName(cmd.Key.SensorID))

	case KindChart:
		if url, ok := h.chartURLs[cmd.Metric]; ok {
			name, _ := status.MetricDisplay(cmd.Metric)
			return fmt.Sprintf("📈 *%s history:*\n%s", name, url)
		}
		return fmt.Sprintf("No chart configured for %q.", cmd.Metric)

	default:
		return "I did not understand that. Use /help for available commands."
	}
}

// handleStatus fetches readings immediately and renders them. This path is
// pure read/format and leaves alerting state alone.
func (h *Handler) handleStatus(ctx context.Context) string {
	readings, err := h.fetcher.Fetch(ctx)
	if err != nil {
		return status.FetchFailureReply
	}

	if len(readings) == 0 {
		return "No sensor readings available right now."
	}

	return h.renderer.Readings(readings)
}

// handleList renders the subscriber's configured bounds.
func (h *Handler) handleList(subscriberID int64) string {
	thresholds := h.thresholds.All(subscriberID)
	if len(thresholds) == 0 {
		return "You have no thresholds configured. Use /set to add one."
	}

	lines := make([]string, 0, len(thresholds))
	for key, value := range thresholds {
		lines = append(lines, fmt.Sprintf("• %s: %.1f", key.String(), value))
	}
	sort.Strings(lines)

	return "🔧 *Your thresholds:*\n" + strings.Join(lines, "\n")
}
