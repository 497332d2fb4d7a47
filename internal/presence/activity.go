package presence

import (
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// ActivityMonitor derives a connection's activity state from user input.
// Without input for AwayAfter the state becomes away; any input returns
// it to online. A manually chosen busy state is kept through input until
// the page returns to the foreground or another manual choice replaces it.
type ActivityMonitor struct {
	clock     clock.Clock
	awayAfter time.Duration

	mu         sync.Mutex
	lastInput  time.Time
	manualBusy bool
	manualAway bool
}

// NewActivityMonitor starts in the online state.
func NewActivityMonitor(c clock.Clock, awayAfter time.Duration) *ActivityMonitor {
	return &ActivityMonitor{clock: c, awayAfter: awayAfter, lastInput: c.Now()}
}

// State returns the current state.
func (m *ActivityMonitor) State() domain.ActivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *ActivityMonitor) stateLocked() domain.ActivityState {
	switch {
	case m.manualBusy:
		return domain.ActivityBusy
	case m.manualAway:
		return domain.ActivityAway
	case m.clock.Now().Sub(m.lastInput) >= m.awayAfter:
		return domain.ActivityAway
	}
	return domain.ActivityOnline
}

// Input records user activity and reports whether the state changed.
func (m *ActivityMonitor) Input() (domain.ActivityState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.stateLocked()
	m.lastInput = m.clock.Now()
	m.manualAway = false
	after := m.stateLocked()
	return after, after != before
}

// Foreground handles the page becoming visible again: any manual state is
// cleared and the monitor is back to online. Callers should send a
// heartbeat right away.
func (m *ActivityMonitor) Foreground() domain.ActivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualBusy = false
	m.manualAway = false
	m.lastInput = m.clock.Now()
	return m.stateLocked()
}

// SetManual applies a state chosen by the user.
func (m *ActivityMonitor) SetManual(state domain.ActivityState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualBusy = state == domain.ActivityBusy
	m.manualAway = state == domain.ActivityAway
	if state == domain.ActivityOnline {
		m.lastInput = m.clock.Now()
	}
}
