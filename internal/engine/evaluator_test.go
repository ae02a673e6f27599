package engine

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"vigil/internal/command"
	"vigil/internal/logger"
	"vigil/internal/models"
	"vigil/internal/notify"
	"vigil/internal/status"
	"vigil/internal/store"
)

func TestMain(m *testing.M) {
	logger.Init("disabled", "")
	os.Exit(m.Run())
}

// fakeFetcher returns programmed readings or an error.
type fakeFetcher struct {
	readings []models.Reading
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]models.Reading, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.readings, nil
}

func (f *fakeFetcher) setValue(value float64) {
	for i := range f.readings {
		f.readings[i].Value = value
	}
}

// recordingSink records every delivery attempt and can be told to fail for
// specific subscribers.
type recordingSink struct {
	mu      sync.Mutex
	sent    map[int64][]string
	failFor map[int64]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		sent:    make(map[int64][]string),
		failFor: make(map[int64]bool),
	}
}

func (s *recordingSink) Send(ctx context.Context, subscriberID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[subscriberID] {
		return errors.New("delivery rejected")
	}
	s.sent[subscriberID] = append(s.sent[subscriberID], text)
	return nil
}

func (s *recordingSink) count(subscriberID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent[subscriberID])
}

func newTestEvaluator(f *fakeFetcher, sink *recordingSink, thresholds *store.ThresholdStore, alertChan chan *models.AlertEvent) (*Evaluator, *store.AlertFlagTable) {
	flags := store.NewAlertFlagTable()
	var ch chan<- *models.AlertEvent
	if alertChan != nil {
		ch = alertChan
	}
	e := New(Config{
		Fetcher:    f,
		Thresholds: thresholds,
		Flags:      flags,
		Sink:       sink,
		Renderer:   status.NewRenderer(nil),
		AlertChan:  ch,
	})
	return e, flags
}

func reading(value float64) models.Reading {
	return models.Reading{SensorID: "sensor1", Metric: "temperature", Value: value, ObservedAt: 1700000000}
}

func TestMaxBoundEdgeTriggered(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{readings: []models.Reading{reading(26.0)}}
	sink := newRecordingSink()
	thresholds := store.NewThresholdStore()
	thresholds.Set(42, models.NewThresholdKey("sensor1", "temperature", models.DirectionMax), 25.0)

	e, flags := newTestEvaluator(fetcher, sink, thresholds, nil)
	flagKey := store.NewFlagKey(42, models.NewThresholdKey("sensor1", "temperature", models.DirectionMax))

	// Tick 1: 26.0 > 25.0 -> notification, flag set
	e.RunOnce(ctx)
	if sink.count(42) != 1 {
		t.Fatalf("after tick 1: %d notifications, want 1", sink.count(42))
	}
	if !flags.Active(flagKey) {
		t.Fatal("after tick 1: flag should be active")
	}

	// Tick 2: 27.0, still violating -> suppressed
	fetcher.setValue(27.0)
	e.RunOnce(ctx)
	if sink.count(42) != 1 {
		t.Fatalf("after tick 2: %d notifications, want 1 (repeat suppressed)", sink.count(42))
	}

	// Tick 3: 24.0, back in range -> flag resets, no notification
	fetcher.setValue(24.0)
	e.RunOnce(ctx)
	if sink.count(42) != 1 {
		t.Fatalf("after tick 3: %d notifications, want 1", sink.count(42))
	}
	if flags.Active(flagKey) {
		t.Fatal("after tick 3: flag should have reset")
	}

	// Tick 4: 30.0, new episode -> notification fires again
	fetcher.setValue(30.0)
	e.RunOnce(ctx)
	if sink.count(42) != 2 {
		t.Fatalf("after tick 4: %d notifications, want 2", sink.count(42))
	}
}

func TestMinBoundNotifiesOnTransitionOnly(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{readings: []models.Reading{reading(18.0)}}
	sink := newRecordingSink()
	thresholds := store.NewThresholdStore()
	thresholds.Set(42, models.NewThresholdKey("sensor1", "temperature", models.DirectionMin), 20.0)

	e, _ := newTestEvaluator(fetcher, sink, thresholds, nil)

	e.RunOnce(ctx)
	e.RunOnce(ctx)
	e.RunOnce(ctx)

	if sink.count(42) != 1 {
		t.Errorf("%d notifications for sustained violation, want 1", sink.count(42))
	}
}

func TestFetchFailurePreservesFlags(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{readings: []models.Reading{reading(26.0)}}
	sink := newRecordingSink()
	thresholds := store.NewThresholdStore()
	key := models.NewThresholdKey("sensor1", "temperature", models.DirectionMax)
	thresholds.Set(42, key, 25.0)

	e, flags := newTestEvaluator(fetcher, sink, thresholds, nil)
	flagKey := store.NewFlagKey(42, key)

	e.RunOnce(ctx)
	if !flags.Active(flagKey) {
		t.Fatal("flag should be active after violation")
	}

	// Feed goes away: tick must not crash and must not touch the flag.
	fetcher.err = errors.New("connection refused")
	e.RunOnce(ctx)

	if !flags.Active(flagKey) {
		t.Error("fetch failure must not alter existing flag state")
	}
	if sink.count(42) != 1 {
		t.Errorf("%d notifications, want 1", sink.count(42))
	}
}

func TestSubscribersNotifiedIndependently(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{readings: []models.Reading{reading(26.0)}}
	sink := newRecordingSink()
	thresholds := store.NewThresholdStore()
	key := models.NewThresholdKey("sensor1", "temperature", models.DirectionMax)

	// Subscriber 1's bound is breached by 26.0, subscriber 2's is not.
	thresholds.Set(1, key, 25.0)
	thresholds.Set(2, key, 30.0)

	e, _ := newTestEvaluator(fetcher, sink, thresholds, nil)
	e.RunOnce(ctx)

	if sink.count(1) != 1 {
		t.Errorf("subscriber 1: %d notifications, want 1", sink.count(1))
	}
	if sink.count(2) != 0 {
		t.Errorf("subscriber 2: %d notifications, want 0", sink.count(2))
	}

	// Sensor climbs past subscriber 2's bound as well.
	fetcher.setValue(31.0)
	e.RunOnce(ctx)

	if sink.count(1) != 1 {
		t.Errorf("subscriber 1 after tick 2: %d notifications, want 1 (suppressed)", sink.count(1))
	}
	if sink.count(2) != 1 {
		t.Errorf("subscriber 2 after tick 2: %d notifications, want 1", sink.count(2))
	}
}

func TestDeliveryFailureDoesNotBlockOtherSubscribers(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{readings: []models.Reading{reading(26.0)}}
	sink := newRecordingSink()
	sink.failFor[1] = true

	thresholds := store.NewThresholdStore()
	key := models.NewThresholdKey("sensor1", "temperature", models.DirectionMax)
	thresholds.Set(1, key, 25.0)
	thresholds.Set(2, key, 25.0)

	e, flags := newTestEvaluator(fetcher, sink, thresholds, nil)
	e.RunOnce(ctx)

	if sink.count(2) != 1 {
		t.Errorf("subscriber 2: %d notifications, want 1", sink.count(2))
	}

	// Delivery is best-effort: the episode is still marked as alerted for
	// the failed subscriber so it is not re-sent every tick.
	if !flags.Active(store.NewFlagKey(1, key)) {
		t.Error("flag should be set even when delivery failed")
	}
}

func TestThresholdSetObservedByNextTick(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{readings: []models.Reading{reading(26.0)}}
	sink := newRecordingSink()
	thresholds := store.NewThresholdStore()

	e, _ := newTestEvaluator(fetcher, sink, thresholds, nil)

	e.RunOnce(ctx)
	if sink.count(42) != 0 {
		t.Fatal("no thresholds configured yet, nothing should fire")
	}

	thresholds.Set(42, models.NewThresholdKey("sensor1", "temperature", models.DirectionMax), 25.0)

	e.RunOnce(ctx)
	if sink.count(42) != 1 {
		t.Errorf("threshold set between ticks: %d notifications, want 1", sink.count(42))
	}
}

func TestClearAndResetNotifiesDuringSustainedViolation(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{readings: []models.Reading{reading(26.0)}}
	thresholds := store.NewThresholdStore()
	flags := store.NewAlertFlagTable()
	renderer := status.NewRenderer(nil)

	delivered := 0
	e := New(Config{
		Fetcher:    fetcher,
		Thresholds: thresholds,
		Flags:      flags,
		Sink: notify.Func(func(ctx context.Context, subscriberID int64, text string) error {
			delivered++
			return nil
		}),
		Renderer: renderer,
	})

	h := command.NewHandler(command.HandlerConfig{
		Thresholds: thresholds,
		Flags:      flags,
		Fetcher:    fetcher,
		Renderer:   renderer,
	})

	h.Handle(ctx, 42, "/set sensor1 temperature max 25")
	e.RunOnce(ctx)
	if delivered != 1 {
		t.Fatalf("after first tick: %d notifications, want 1", delivered)
	}

	// The subscriber removes and re-creates the bound while the reading
	// never drops back in range. The fresh bound must alert again on the
	// next tick instead of inheriting the old suppression state.
	h.Handle(ctx, 42, "/clear sensor1 temperature max")
	h.Handle(ctx, 42, "/set sensor1 temperature max 25")

	e.RunOnce(ctx)
	if delivered != 2 {
		t.Errorf("after re-set: %d notifications, want 2", delivered)
	}
}

func TestAlertEventMirroredToStream(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{readings: []models.Reading{reading(26.0)}}
	sink := newRecordingSink()
	thresholds := store.NewThresholdStore()
	thresholds.Set(42, models.NewThresholdKey("sensor1", "temperature", models.DirectionMax), 25.0)

	alertChan := make(chan *models.AlertEvent, 8)
	e, _ := newTestEvaluator(fetcher, sink, thresholds, alertChan)

	e.RunOnce(ctx)

	select {
	case event := <-alertChan:
		if event.SubscriberID != 42 {
			t.Errorf("SubscriberID = %d, want 42", event.SubscriberID)
		}
		if event.SensorID != "sensor1" || event.Metric != "temperature" {
			t.Errorf("unexpected event identity: %+v", event)
		}
		if event.Value != 26.0 || event.Threshold != 25.0 {
			t.Errorf("Value/Threshold = %v/%v, want 26.0/25.0", event.Value, event.Threshold)
		}
		if event.Direction != models.DirectionMax {
			t.Errorf("Direction = %q, want max", event.Direction)
		}
	default:
		t.Fatal("expected an alert event on the stream channel")
	}
}
