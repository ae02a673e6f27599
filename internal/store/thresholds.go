package store

import (
	"sync"

	"vigil/internal/models"
)

// SubscriberThresholds maps each configured bound to its value for one
// subscriber.
type SubscriberThresholds map[models.ThresholdKey]float64

// ThresholdStore holds every subscriber's configured bounds. It is shared
// between the command path (writes) and the evaluation loop (reads), so all
// access goes through the mutex.
type ThresholdStore struct {
	mu           sync.RWMutex
	bySubscriber map[int64]SubscriberThresholds
}

// NewThresholdStore creates an empty threshold store.
func NewThresholdStore() *ThresholdStore {
	return &ThresholdStore{
		bySubscriber: make(map[int64]SubscriberThresholds),
	}
}

// Set upserts a bound for a subscriber. Repeated sets for the same key are
// last-write-wins.
func (s *ThresholdStore) Set(subscriberID int64, key models.ThresholdKey, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	thresholds, ok := s.bySubscriber[subscriberID]
	if !ok {
		thresholds = make(SubscriberThresholds)
		s.bySubscriber[subscriberID] = thresholds
	}
	thresholds[key] = value
}

// Get returns the bound for a single key, if configured.
func (s *ThresholdStore) Get(subscriberID int64, key models.ThresholdKey) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.bySubscriber[subscriberID][key]
	return value, ok
}

// Clear removes a single bound. It reports whether the bound existed.
func (s *ThresholdStore) Clear(subscriberID int64, key models.ThresholdKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	thresholds, ok := s.bySubscriber[subscriberID]
	if !ok {
		return false
	}
	if _, ok := thresholds[key]; !ok {
		return false
	}
	delete(thresholds, key)
	if len(thresholds) == 0 {
		delete(s.bySubscriber, subscriberID)
	}
	return true
}

// All returns a copy of one subscriber's thresholds.
func (s *ThresholdStore) All(subscriberID int64) SubscriberThresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thresholds := s.bySubscriber[subscriberID]
	out := make(SubscriberThresholds, len(thresholds))
	for k, v := range thresholds {
		out[k] = v
	}
	return out
}

// Snapshot returns a deep copy of all subscribers' thresholds, sufficient
// for one evaluation pass. Writes that land after the snapshot are picked up
// on the next pass.
func (s *ThresholdStore) Snapshot() map[int64]SubscriberThresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]SubscriberThresholds, len(s.bySubscriber))
	for id, thresholds := range s.bySubscriber {
		copied := make(SubscriberThresholds, len(thresholds))
		for k, v := range thresholds {
			copied[k] = v
		}
		out[id] = copied
	}
	return out
}

// Count returns the total number of configured bounds across subscribers.
func (s *ThresholdStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, thresholds := range s.bySubscriber {
		n += len(thresholds)
	}
	return n
}
