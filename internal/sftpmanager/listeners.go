package sftpmanager

import "sync"

// ConnectionListener is called on every connectivity transition. err is the
// cause for an unexpected loss or a failed attempt and nil otherwise.
type ConnectionListener func(connected bool, err error)

type listenerEntry struct {
	id uint64
	fn ConnectionListener
}

// AddConnectionListener registers fn and returns a function that removes
// exactly that registration. Calling the returned function more than once
// is harmless.
func (m *Manager) AddConnectionListener(fn ConnectionListener) (unregister func()) {
	m.listenerMu.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})
	m.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.removeListener(id) })
	}
}

func (m *Manager) removeListener(id uint64) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	for i, l := range m.listeners {
		if l.id == id {
			m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
			return
		}
	}
}

// notifyListeners calls every listener in registration order on the calling
// goroutine. It must not be called with m.mu held, so listeners may call
// back into the manager. seq comes from nextNotifyLocked; a notification
// overtaken by a later transition is dropped, so listeners never end on a
// stale value.
func (m *Manager) notifyListeners(seq uint64, connected bool, err error) {
	m.listenerMu.Lock()
	if seq <= m.lastNotified {
		m.listenerMu.Unlock()
		m.log.WithField("connected", connected).Debug("dropping superseded connection notification")
		return
	}
	m.lastNotified = seq
	snapshot := make([]listenerEntry, len(m.listeners))
	copy(snapshot, m.listeners)
	m.listenerMu.Unlock()

	for _, l := range snapshot {
		m.invokeListener(l, connected, err)
	}
}

func (m *Manager) invokeListener(l listenerEntry, connected bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).WithField("listener", l.id).Error("connection listener panicked")
		}
	}()
	l.fn(connected, err)
}
