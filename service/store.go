package service

import (
	"sync"
	"time"
)

// Reading is one successful sensor acquisition. Temperatures are degrees
// Celsius regardless of the scale a sensor presents elsewhere.
type Reading struct {
	Sensor      string    `json:"sensor"`
	Model       string    `json:"model"`
	Location    string    `json:"location,omitempty"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	DewPoint    float64   `json:"dew_point"`
	Timestamp   time.Time `json:"timestamp"`
}

// SensorStatus is the externally visible state of one sensor.
type SensorStatus struct {
	Sensor      string            `json:"sensor"`
	Reading     *Reading          `json:"reading,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	LastErrorAt *time.Time        `json:"last_error_at,omitempty"`
	Reads       uint64            `json:"reads"`
	Errors      map[string]uint64 `json:"errors,omitempty"`
}

type storeEntry struct {
	reading     *Reading
	lastError   string
	lastErrorAt time.Time
	reads       uint64
	errors      map[string]uint64
}

// Store keeps the latest reading and the error tallies per sensor. The
// acquisition cycle writes, liveview and alerts read snapshots.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry
	order   []string
}

func newStore(names []string) *Store {
	entries := make(map[string]*storeEntry, len(names))
	order := make([]string, 0, len(names))
	for _, name := range names {
		entries[name] = &storeEntry{errors: make(map[string]uint64)}
		order = append(order, name)
	}
	return &Store{entries: entries, order: order}
}

// SetReading stores a fresh reading and clears the error state.
func (s *Store) SetReading(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[r.Sensor]
	if !ok {
		return
	}
	copied := r
	entry.reading = &copied
	entry.reads++
	entry.lastError = ""
}

// SetError records a failed acquisition. The previous reading is kept so
// consumers can still see the last known values.
func (s *Store) SetError(sensor, reason string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sensor]
	if !ok {
		return
	}
	entry.lastError = reason
	entry.lastErrorAt = at
	entry.errors[reason]++
}

// Latest returns the most recent reading for a sensor.
func (s *Store) Latest(sensor string) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[sensor]
	if !ok || entry.reading == nil {
		return Reading{}, false
	}
	return *entry.reading, true
}

// Snapshot returns the per-sensor status in configuration order.
func (s *Store) Snapshot() []SensorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	statuses := make([]SensorStatus, 0, len(s.order))
	for _, name := range s.order {
		entry := s.entries[name]
		status := SensorStatus{
			Sensor: name,
			Reads:  entry.reads,
		}
		if entry.reading != nil {
			copied := *entry.reading
			status.Reading = &copied
		}
		if entry.lastError != "" {
			status.LastError = entry.lastError
			at := entry.lastErrorAt
			status.LastErrorAt = &at
		}
		if len(entry.errors) > 0 {
			tallies := make(map[string]uint64, len(entry.errors))
			for reason, count := range entry.errors {
				tallies[reason] = count
			}
			status.Errors = tallies
		}
		statuses = append(statuses, status)
	}
	return statuses
}
