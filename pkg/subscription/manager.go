// Package subscription implements the per-session subscription table:
// interval bookkeeping and change-detection used to decide when a
// primed ReportData is due for a subscribed set of attribute paths.
//
// The manager is pure state. It owns no clock and starts no timers;
// the orchestrator calls DueReports/Throttled on its own tick and
// feeds the outcome back via RecordSent/RecordReport.
package subscription

import (
	"time"

	"github.com/chipcore/matterd/pkg/im/message"
)

// Path identifies a single resolved (non-wildcard) attribute for the
// purposes of change detection. Wildcard expansion happens before
// values are compared against LastValues.
type Path struct {
	Endpoint  message.EndpointID
	Cluster   message.ClusterID
	Attribute message.AttributeID
}

// Subscription is the retained state for one active subscription.
type Subscription struct {
	ID uint32

	// Paths are the attribute paths requested at subscribe time,
	// possibly containing wildcards; the orchestrator resolves them
	// against the device model on each tick.
	Paths []message.AttributePathIB

	MinInterval time.Duration
	MaxInterval time.Duration

	LastReportAt time.Time
	LastSentAt   time.Time

	// LastValues holds the most recently reported encoding for each
	// resolved path, used to detect whether a value has changed.
	LastValues map[Path][]byte
}

// Manager holds every active subscription for a session.
type Manager struct {
	nextID uint32
	subs   map[uint32]*Subscription
}

// NewManager creates an empty subscription manager.
func NewManager() *Manager {
	return &Manager{subs: make(map[uint32]*Subscription)}
}

// Subscribe registers a new subscription over paths with the given
// interval bounds and returns its freshly allocated, monotonically
// increasing id. The entry starts primed: last_report_at = now,
// last_sent_at is zero (never sent), last_values is empty.
func (m *Manager) Subscribe(paths []message.AttributePathIB, minInterval, maxInterval time.Duration, now time.Time) uint32 {
	m.nextID++
	id := m.nextID

	m.subs[id] = &Subscription{
		ID:           id,
		Paths:        paths,
		MinInterval:  minInterval,
		MaxInterval:  maxInterval,
		LastReportAt: now,
		LastValues:   make(map[Path][]byte),
	}

	return id
}

// Unsubscribe removes a subscription. It reports whether one existed.
func (m *Manager) Unsubscribe(id uint32) bool {
	if _, ok := m.subs[id]; !ok {
		return false
	}
	delete(m.subs, id)
	return true
}

// Get returns the subscription for id, if any.
func (m *Manager) Get(id uint32) (*Subscription, bool) {
	s, ok := m.subs[id]
	return s, ok
}

// DueReports returns the ids of every subscription whose max-interval
// has elapsed since its last report: now - last_report_at >= max_interval.
func (m *Manager) DueReports(now time.Time) []uint32 {
	var due []uint32
	for id, s := range m.subs {
		if now.Sub(s.LastReportAt) >= s.MaxInterval {
			due = append(due, id)
		}
	}
	return due
}

// Throttled reports whether id is currently inside its min-interval
// quiet period: last_sent_at > 0 and now - last_sent_at < min_interval.
// An id with no prior send is never throttled.
func (m *Manager) Throttled(id uint32, now time.Time) bool {
	s, ok := m.subs[id]
	if !ok {
		return false
	}
	if s.LastSentAt.IsZero() {
		return false
	}
	return now.Sub(s.LastSentAt) < s.MinInterval
}

// RecordSent updates both timestamps and the retained values after a
// ReportData was actually transmitted for id.
func (m *Manager) RecordSent(id uint32, now time.Time, values map[Path][]byte) {
	s, ok := m.subs[id]
	if !ok {
		return
	}
	s.LastReportAt = now
	s.LastSentAt = now
	s.LastValues = values
}

// RecordReport updates only the report time, used when a tick was
// evaluated but no value differed and nothing was sent.
func (m *Manager) RecordReport(id uint32, now time.Time) {
	s, ok := m.subs[id]
	if !ok {
		return
	}
	s.LastReportAt = now
}

// Count returns the number of active subscriptions.
func (m *Manager) Count() int {
	return len(m.subs)
}

// Changed reports whether values differs from the subscription's
// retained LastValues, comparing per-path encoded bytes.
func (m *Manager) Changed(id uint32, values map[Path][]byte) bool {
	s, ok := m.subs[id]
	if !ok {
		return false
	}
	if len(values) != len(s.LastValues) {
		return true
	}
	for p, v := range values {
		prev, ok := s.LastValues[p]
		if !ok || len(prev) != len(v) {
			return true
		}
		for i := range v {
			if v[i] != prev[i] {
				return true
			}
		}
	}
	return false
}
