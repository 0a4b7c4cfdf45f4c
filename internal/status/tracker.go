// Package status keeps the latest supervision state for the status API.
package status

import (
	"sync"
	"time"

	"github.com/smazurov/plexwatch/internal/events"
)

// Snapshot is a copy of the tracked state.
type Snapshot struct {
	State           string                          `json:"state" example:"polling" doc:"Current supervision loop state"`
	StateSince      string                          `json:"state_since,omitempty" doc:"When the loop entered the current state"`
	StartedAt       string                          `json:"started_at" doc:"When the supervisor started"`
	Probes          int                             `json:"probes" doc:"Health probes performed"`
	FailedProbes    int                             `json:"failed_probes" doc:"Probes that were not HTTP 200"`
	Remediations    int                             `json:"remediations" doc:"Kill-and-restart cycles started"`
	Launches        int                             `json:"launches" doc:"Times the executable was launched"`
	LastProbe       *events.ProbeCompletedEvent     `json:"last_probe,omitempty" doc:"Most recent probe"`
	LastRemediation *events.RemediationStartedEvent `json:"last_remediation,omitempty" doc:"Most recent remediation"`
	LastKill        *events.ProcessesKilledEvent    `json:"last_kill,omitempty" doc:"Most recent kill batch"`
	LastLaunch      *events.ProcessStartedEvent     `json:"last_launch,omitempty" doc:"Most recent launch"`
}

// Tracker folds bus events into a Snapshot.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{
		State:     "initializing",
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}}
}

// Subscribe feeds the tracker from bus. The returned function unsubscribes.
func (t *Tracker) Subscribe(bus *events.Bus) func() {
	unsubscribers := []func(){
		bus.Subscribe(t.onState),
		bus.Subscribe(t.onProbe),
		bus.Subscribe(t.onRemediation),
		bus.Subscribe(t.onKill),
		bus.Subscribe(t.onLaunch),
	}
	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.snap
	if s.LastProbe != nil {
		dup := *s.LastProbe
		s.LastProbe = &dup
	}
	if s.LastRemediation != nil {
		dup := *s.LastRemediation
		s.LastRemediation = &dup
	}
	if s.LastKill != nil {
		dup := *s.LastKill
		dup.Names = append([]string(nil), dup.Names...)
		dup.PIDs = append([]int(nil), dup.PIDs...)
		s.LastKill = &dup
	}
	if s.LastLaunch != nil {
		dup := *s.LastLaunch
		s.LastLaunch = &dup
	}
	return s
}

func (t *Tracker) onState(e events.StateChangedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.State = e.To
	t.snap.StateSince = e.Timestamp
}

func (t *Tracker) onProbe(e events.ProbeCompletedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Probes++
	if !e.Healthy {
		t.snap.FailedProbes++
	}
	t.snap.LastProbe = &e
}

func (t *Tracker) onRemediation(e events.RemediationStartedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Remediations++
	t.snap.LastRemediation = &e
}

func (t *Tracker) onKill(e events.ProcessesKilledEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.LastKill = &e
}

func (t *Tracker) onLaunch(e events.ProcessStartedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Launches++
	t.snap.LastLaunch = &e
}
