// reconnect.go implements the automatic reconnection policy.
//
// After a failed attempt or an unexpected close, one reconnect is scheduled
// a fixed interval later while the attempt counter is below the maximum.
// Only one timer is outstanding at a time. Connect and Disconnect cancel it
// through cancelReconnectLocked; a timer that fires after being cancelled
// sees a stale sequence number and does nothing.

package sftpmanager

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// scheduleReconnectLocked arms the reconnect timer if the policy allows
// it. Caller must hold m.mu.
func (m *Manager) scheduleReconnectLocked(cause error) {
	if !m.autoReconnect || m.cfg == nil {
		return
	}
	if cause != nil && isConfigError(cause) {
		m.log.WithError(cause).Warn("not scheduling reconnect: configuration error")
		return
	}
	if m.attempts >= m.opts.MaxReconnectAttempts {
		m.log.WithField("attempts", m.attempts).Warn("reconnect attempts exhausted")
		return
	}
	if m.reconnectTimer != nil {
		return
	}

	m.attempts++
	m.reconnectSeq++
	seq := m.reconnectSeq
	attempt := m.attempts
	interval := m.opts.ReconnectInterval

	m.reconnectTimer = time.AfterFunc(interval, func() { m.fireReconnect(seq, attempt) })
	m.log.WithFields(logrus.Fields{
		"attempt":  attempt,
		"max":      m.opts.MaxReconnectAttempts,
		"interval": interval,
	}).Info("reconnect scheduled")
}

// cancelReconnectLocked stops any pending reconnect. Caller must hold m.mu.
func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectSeq++
}

func (m *Manager) fireReconnect(seq uint64, attempt int) {
	m.mu.Lock()
	if seq != m.reconnectSeq || m.reconnectTimer == nil {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	if !m.autoReconnect || m.cfg == nil || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	cfg := *m.cfg
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"attempt": attempt,
		"max":     m.opts.MaxReconnectAttempts,
	}).Info("reconnecting")

	// Nobody awaits a background attempt; its failure is logged by
	// attemptFailed and the policy decides whether to try again.
	if err := m.connect(context.Background(), cfg, false); err != nil {
		m.log.WithError(err).WithField("attempt", attempt).Debug("background reconnect failed")
	}
}
