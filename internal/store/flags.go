package store

import (
	"sync"

	"vigil/internal/models"
)

// FlagKey identifies one subscriber's alert state for one bound.
type FlagKey struct {
	SubscriberID int64
	SensorID     string
	BoundKey     string
}

// NewFlagKey builds a flag key from a subscriber and a threshold key.
func NewFlagKey(subscriberID int64, key models.ThresholdKey) FlagKey {
	return FlagKey{
		SubscriberID: subscriberID,
		SensorID:     key.SensorID,
		BoundKey:     key.BoundKey(),
	}
}

// AlertFlagTable tracks which bounds are currently alerting. A true flag
// means the most recent evaluation found the reading in violation; it is
// what suppresses repeat notifications while a condition persists.
type AlertFlagTable struct {
	mu    sync.Mutex
	flags map[FlagKey]bool
}

// NewAlertFlagTable creates an empty flag table.
func NewAlertFlagTable() *AlertFlagTable {
	return &AlertFlagTable{
		flags: make(map[FlagKey]bool),
	}
}

// Active reports whether the bound is currently alerting. An unknown key is
// not alerting.
func (t *AlertFlagTable) Active(key FlagKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flags[key]
}

// Set records the alerting state for a bound. Inactive bounds are removed
// from the table so it only ever holds currently-alerting entries.
func (t *AlertFlagTable) Set(key FlagKey, active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !active {
		delete(t.flags, key)
		return
	}
	t.flags[key] = true
}

// Clear drops the alert state for a bound, re-arming it. Used when the
// bound itself is removed so a later re-set starts from a clean slate.
func (t *AlertFlagTable) Clear(key FlagKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.flags, key)
}

// ActiveCount returns how many bounds are currently alerting.
func (t *AlertFlagTable) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flags)
}
