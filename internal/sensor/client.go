package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"vigil/internal/logger"
	"vigil/internal/metrics"
	"vigil/internal/models"
)

// Fetch errors. Callers treat both as "no data this tick"; the distinction
// only matters for logs and metrics.
var (
	ErrTransport = errors.New("sensor feed unreachable")
	ErrDecode    = errors.New("sensor feed returned malformed payload")
)

// Client fetches the current set of readings from the sensor feed.
type Client struct {
	url  string
	http *http.Client
}

// New creates a sensor feed client for the given endpoint. The timeout
// bounds the whole fetch including body read.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		url: url,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch performs one request against the feed and returns the decoded
// readings. No retry happens here; the evaluation loop simply tries again
// next tick.
func (c *Client) Fetch(ctx context.Context) ([]models.Reading, error) {
	log := logger.WithComponent("sensor_client")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.FetchTotal.WithLabelValues("transport_error").Inc()
		log.Warn().Err(err).Str("url", c.url).Msg("sensor feed request failed")
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.FetchTotal.WithLabelValues("transport_error").Inc()
		log.Warn().Int("status", resp.StatusCode).Str("url", c.url).Msg("sensor feed returned non-200")
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchTotal.WithLabelValues("transport_error").Inc()
		log.Warn().Err(err).Msg("failed to read sensor feed response")
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var readings []models.Reading
	if err := json.Unmarshal(body, &readings); err != nil {
		metrics.FetchTotal.WithLabelValues("decode_error").Inc()
		log.Warn().Err(err).Msg("failed to decode sensor feed payload")
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// Drop readings that would never match a threshold anyway.
	valid := readings[:0]
	for i := range readings {
		readings[i].Normalize()
		if err := readings[i].Validate(); err != nil {
			log.Warn().
				Err(err).
				Str("sensor_id", readings[i].SensorID).
				Str("metric", readings[i].Metric).
				Msg("skipping invalid reading")
			continue
		}
		valid = append(valid, readings[i])
	}

	metrics.FetchTotal.WithLabelValues("success").Inc()
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	metrics.ReadingsFetched.Observe(float64(len(valid)))

	log.Debug().
		Int("readings", len(valid)).
		Dur("duration", time.Since(start)).
		Msg("sensor feed fetched")

	return valid, nil
}
