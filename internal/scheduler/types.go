package scheduler

import (
	"time"

	"github.com/evanofslack/ddns-sync/internal/provider"
)

// State is the per-record position in the update state machine.
type State int

const (
	StateIdle State = iota
	StateChecking
	StateUpdating
	StateBackingOff
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateUpdating:
		return "updating"
	case StateBackingOff:
		return "backing_off"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is one entry in the update event stream.
type Event struct {
	Record  string
	Outcome provider.Outcome
	Time    time.Time
}

// RecordStatus is the status-query view of one managed record.
type RecordStatus struct {
	Record       string    `json:"record"`
	Provider     string    `json:"provider"`
	State        State     `json:"state"`
	LastIP       string    `json:"lastIp,omitempty"`
	LastAttempt  time.Time `json:"lastAttempt"`
	NextAttempt  time.Time `json:"nextAttempt"`
	BackoffLevel int       `json:"backoffLevel"`
	LastError    string    `json:"lastError,omitempty"`
}
