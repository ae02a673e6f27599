package worker

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"vigil/internal/logger"
	"vigil/internal/models"
)

func TestMain(m *testing.M) {
	logger.Init("disabled", "")
	os.Exit(m.Run())
}

// MockPublisher is a mock implementation of Publisher for testing
type MockPublisher struct {
	published  atomic.Uint64
	failed     atomic.Uint64
	shouldFail bool
}

func (m *MockPublisher) Publish(ctx context.Context, event *models.AlertEvent) error {
	return m.PublishBatch(ctx, []*models.AlertEvent{event})
}

func (m *MockPublisher) PublishBatch(ctx context.Context, events []*models.AlertEvent) error {
	if m.shouldFail {
		m.failed.Add(uint64(len(events)))
		return context.DeadlineExceeded
	}
	m.published.Add(uint64(len(events)))
	return nil
}

func testEvent() *models.AlertEvent {
	return models.NewAlertEvent(
		42,
		models.NewThresholdKey("sensor1", "temperature", models.DirectionMax),
		models.Reading{SensorID: "sensor1", Metric: "temperature", Value: 26.0, ObservedAt: 1700000000},
		25.0,
	)
}

func TestPoolPublishesEvents(t *testing.T) {
	ch := make(chan *models.AlertEvent, 100)
	mock := &MockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		EventChan:    ch,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
	})

	pool.Start()
	defer pool.Stop()

	numEvents := 25
	for i := 0; i < numEvents; i++ {
		ch <- testEvent()
	}

	// Wait for processing
	time.Sleep(300 * time.Millisecond)

	stats := pool.Stats()
	if stats.Processed != uint64(numEvents) {
		t.Errorf("expected %d processed, got %d", numEvents, stats.Processed)
	}

	if mock.published.Load() != uint64(numEvents) {
		t.Errorf("expected %d published, got %d", numEvents, mock.published.Load())
	}
}

func TestPoolFlushesOnTimeout(t *testing.T) {
	ch := make(chan *models.AlertEvent, 100)
	mock := &MockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		EventChan:    ch,
		Workers:      1,
		BatchSize:    100,                    // Large batch size
		BatchTimeout: 100 * time.Millisecond, // Short timeout
	})

	pool.Start()
	defer pool.Stop()

	for i := 0; i < 3; i++ {
		ch <- testEvent()
	}

	// Wait for timeout to trigger
	time.Sleep(300 * time.Millisecond)

	if mock.published.Load() != 3 {
		t.Errorf("expected 3 published via timeout, got %d", mock.published.Load())
	}
}

func TestPoolFlushesOnClose(t *testing.T) {
	ch := make(chan *models.AlertEvent, 100)
	mock := &MockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		EventChan:    ch,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: 10 * time.Second, // Never fires in this test
	})

	pool.Start()

	for i := 0; i < 5; i++ {
		ch <- testEvent()
	}
	close(ch)

	// Workers drain and flush on channel close
	time.Sleep(200 * time.Millisecond)
	pool.Stop()

	if mock.published.Load() != 5 {
		t.Errorf("expected 5 published on close, got %d", mock.published.Load())
	}
}

func TestPoolCountsFailures(t *testing.T) {
	ch := make(chan *models.AlertEvent, 100)
	mock := &MockPublisher{shouldFail: true}

	pool := NewPool(Config{
		Publisher:    mock,
		EventChan:    ch,
		Workers:      1,
		BatchSize:    2,
		BatchTimeout: 50 * time.Millisecond,
	})

	pool.Start()
	defer pool.Stop()

	for i := 0; i < 4; i++ {
		ch <- testEvent()
	}

	time.Sleep(300 * time.Millisecond)

	stats := pool.Stats()
	if stats.Failed != 4 {
		t.Errorf("expected 4 failed, got %d", stats.Failed)
	}
	if stats.Processed != 0 {
		t.Errorf("expected 0 processed, got %d", stats.Processed)
	}
}
