// state.go holds the connection state enum and the transition history.
//
// The manager records every state change in a fixed-size ring buffer so the
// recent history can be served to operators without unbounded growth.

package sftpmanager

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConnectionState is the lifecycle state of the managed connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the human-readable name of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name.
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name written by MarshalJSON.
func (s *ConnectionState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "disconnected":
		*s = StateDisconnected
	case "connecting":
		*s = StateConnecting
	case "connected":
		*s = StateConnected
	default:
		return fmt.Errorf("unknown connection state %q", name)
	}
	return nil
}

// transitionBufferSize is the number of transitions kept for debugging.
const transitionBufferSize = 50

// StateTransition records a single state change.
type StateTransition struct {
	From      ConnectionState `json:"from"`
	To        ConnectionState `json:"to"`
	Timestamp time.Time       `json:"timestamp"`
	Reason    string          `json:"reason"`
}

// transitionLog is a fixed-size ring buffer of transitions. Not safe for
// concurrent use; the manager guards it with its own mutex.
type transitionLog struct {
	entries [transitionBufferSize]StateTransition
	head    int // next write position
	count   int
}

func (l *transitionLog) record(from, to ConnectionState, reason string, now time.Time) {
	l.entries[l.head] = StateTransition{
		From:      from,
		To:        to,
		Timestamp: now,
		Reason:    reason,
	}
	l.head = (l.head + 1) % transitionBufferSize
	if l.count < transitionBufferSize {
		l.count++
	}
}

// history returns the transitions oldest first.
func (l *transitionLog) history() []StateTransition {
	if l.count == 0 {
		return nil
	}
	out := make([]StateTransition, l.count)
	if l.count < transitionBufferSize {
		copy(out, l.entries[:l.count])
	} else {
		// full: head is the oldest entry
		n := copy(out, l.entries[l.head:])
		copy(out[n:], l.entries[:l.head])
	}
	return out
}
