package sftpmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectInterval    = 5 * time.Second
	DefaultOperationTimeout     = 2 * time.Minute
	DefaultKeepaliveInterval    = 30 * time.Second

	// keepaliveRequestTimeout bounds a single keepalive round trip. A
	// half-open TCP connection can otherwise block SendRequest forever.
	keepaliveRequestTimeout = 10 * time.Second
)

// Options configures a Manager. Zero durations select the defaults; a
// negative OperationTimeout or KeepaliveInterval disables that feature.
type Options struct {
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
	OperationTimeout     time.Duration
	KeepaliveInterval    time.Duration
	Logger               *logrus.Entry
}

// DefaultOptions enables auto-reconnect with the default policy.
func DefaultOptions() Options {
	return Options{
		AutoReconnect:        true,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectInterval:    DefaultReconnectInterval,
		OperationTimeout:     DefaultOperationTimeout,
		KeepaliveInterval:    DefaultKeepaliveInterval,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.OperationTimeout == 0 {
		o.OperationTimeout = DefaultOperationTimeout
	}
	if o.KeepaliveInterval == 0 {
		o.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if o.Logger == nil {
		o.Logger = logrus.WithField("component", "sftp")
	}
	return o
}

// StatusInfo is a read-only snapshot of the manager for health reporting.
// It never carries the transport handles or credentials.
type StatusInfo struct {
	Connected        bool            `json:"connected"`
	State            ConnectionState `json:"state"`
	AttemptsSoFar    int             `json:"attempts_so_far"`
	MaxAttempts      int             `json:"max_attempts"`
	AutoReconnect    bool            `json:"auto_reconnect"`
	ReconnectPending bool            `json:"reconnect_pending"`
	ConnectedSince   *time.Time      `json:"connected_since,omitempty"`
	LastError        string          `json:"last_error,omitempty"`
}

// connectAttempt is the shared result of one in-flight connection attempt.
type connectAttempt struct {
	done   chan struct{}
	exited chan struct{} // closed when runAttempt returns
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

func newConnectAttempt() *connectAttempt {
	ctx, cancel := context.WithCancel(context.Background())
	return &connectAttempt{
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (a *connectAttempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// wait returns the attempt's result, or ctx.Err() if the caller stops
// waiting first. The attempt itself is not cancelled.
func (a *connectAttempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// live holds the handles that only exist while connected.
type live struct {
	cfg           ConnectionConfig
	conn          Conn
	session       Session
	since         time.Time
	closed        chan struct{} // closed once conn.Wait returns
	stopKeepalive context.CancelFunc
}

// Manager maintains at most one connection to a remote file server and
// exposes file operations over it. Construct it with NewManager; the zero
// value is not usable.
type Manager struct {
	dialer Dialer
	opts   Options
	log    *logrus.Entry
	nowFn  func() time.Time

	mu             sync.Mutex
	state          ConnectionState
	gen            uint64            // bumped when Disconnect supersedes an attempt
	cfg            *ConnectionConfig // last config supplied to Connect, kept for reconnection
	live           *live             // non-nil only in StateConnected
	inflight       *connectAttempt
	superseded     *connectAttempt // aborted by Disconnect, may still be dialing
	autoReconnect  bool
	attempts       int
	reconnectTimer *time.Timer
	reconnectSeq   uint64
	lastErr        error
	transitions    transitionLog
	notifySeq      uint64 // orders listener notifications, guarded by mu

	listenerMu     sync.Mutex
	listeners      []listenerEntry
	nextListenerID uint64
	lastNotified   uint64 // guarded by listenerMu
}

// NewManager creates a disconnected Manager.
func NewManager(dialer Dialer, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		dialer:        dialer,
		opts:          opts,
		log:           opts.Logger,
		nowFn:         time.Now,
		autoReconnect: opts.AutoReconnect,
	}
}

// Connect establishes the connection described by cfg and blocks until the
// attempt settles or ctx is done. If an attempt is already in flight, the
// caller joins it and receives its result instead of starting another one.
// An explicit Connect cancels any pending automatic reconnect, restores
// Options.AutoReconnect and resets the attempt counter.
func (m *Manager) Connect(ctx context.Context, cfg ConnectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return m.connect(ctx, cfg.clone(), true)
}

func (m *Manager) connect(ctx context.Context, cfg ConnectionConfig, explicit bool) error {
	m.mu.Lock()
	if explicit {
		m.cancelReconnectLocked()
		m.autoReconnect = m.opts.AutoReconnect
		m.attempts = 0
	}

	if a := m.inflight; a != nil {
		m.mu.Unlock()
		return a.wait(ctx)
	}

	var replaced *live
	var replacedSeq uint64
	if m.state == StateConnected && m.live != nil {
		if m.live.cfg.Equal(cfg) {
			m.mu.Unlock()
			return nil
		}
		replaced = m.detachLocked("replaced by new configuration")
		replacedSeq = m.nextNotifyLocked()
	}

	m.cfg = &cfg
	a := newConnectAttempt()
	prev := m.superseded
	m.superseded = nil
	m.inflight = a
	gen := m.gen
	m.setStateLocked(StateConnecting, "connecting to "+cfg.Addr())
	m.mu.Unlock()

	if replaced != nil {
		m.releaseLive(replaced)
		m.notifyListeners(replacedSeq, false, nil)
	}

	m.log.WithField("target", cfg.String()).Info("connecting")
	go m.runAttempt(gen, cfg, a, prev)
	return a.wait(ctx)
}

// runAttempt performs the dial and sub-session open for one attempt. It
// first waits for an attempt aborted by Disconnect to wind down, so at most
// one dial is outstanding.
func (m *Manager) runAttempt(gen uint64, cfg ConnectionConfig, a, prev *connectAttempt) {
	defer close(a.exited)
	defer a.cancel()

	if prev != nil {
		select {
		case <-prev.exited:
		case <-a.ctx.Done():
			m.attemptFailed(gen, a, &ConnectError{Addr: cfg.Addr(), Err: a.ctx.Err()})
			return
		}
	}

	ctx, cancel := context.WithTimeout(a.ctx, cfg.timeout())
	defer cancel()

	conn, err := m.dialer.Dial(ctx, cfg)
	if err != nil {
		m.attemptFailed(gen, a, &ConnectError{Addr: cfg.Addr(), Err: err})
		return
	}

	session, err := conn.OpenSession()
	if err != nil {
		conn.Close()
		m.attemptFailed(gen, a, &ConnectError{Addr: cfg.Addr(), Err: fmt.Errorf("open file session: %w", err)})
		return
	}

	m.attemptSucceeded(gen, cfg, a, conn, session)
}

func (m *Manager) attemptFailed(gen uint64, a *connectAttempt, err error) {
	m.mu.Lock()
	if gen != m.gen || m.inflight != a {
		// Disconnect already settled this attempt.
		m.mu.Unlock()
		a.finish(ErrConnectAborted)
		return
	}
	m.inflight = nil
	m.lastErr = err
	m.setStateLocked(StateDisconnected, err.Error())
	m.scheduleReconnectLocked(err)
	seq := m.nextNotifyLocked()
	m.mu.Unlock()

	m.log.WithError(err).Warn("connection attempt failed")
	m.notifyListeners(seq, false, err)
	a.finish(err)
}

func (m *Manager) attemptSucceeded(gen uint64, cfg ConnectionConfig, a *connectAttempt, conn Conn, session Session) {
	m.mu.Lock()
	if gen != m.gen || m.inflight != a {
		m.mu.Unlock()
		session.Close()
		conn.Close()
		a.finish(ErrConnectAborted)
		return
	}

	kaCtx, kaCancel := context.WithCancel(context.Background())
	l := &live{
		cfg:           cfg,
		conn:          conn,
		session:       session,
		since:         m.nowFn(),
		closed:        make(chan struct{}),
		stopKeepalive: kaCancel,
	}
	m.live = l
	m.inflight = nil
	m.attempts = 0
	m.lastErr = nil
	m.setStateLocked(StateConnected, "connected to "+cfg.Addr())
	seq := m.nextNotifyLocked()
	m.mu.Unlock()

	go m.watch(l)
	go m.keepalive(kaCtx, l)

	m.log.WithField("target", cfg.String()).Info("connected")
	m.notifyListeners(seq, true, nil)
	a.finish(nil)
}

// watch turns the transport's close into a state transition.
func (m *Manager) watch(l *live) {
	cause := l.conn.Wait()
	close(l.closed)
	m.handleClose(l, cause)
}

func (m *Manager) handleClose(l *live, cause error) {
	m.mu.Lock()
	if m.live != l {
		// Disconnect or a config change already detached this connection.
		m.mu.Unlock()
		return
	}
	l.stopKeepalive()
	m.live = nil
	reason := "connection closed"
	if cause != nil {
		reason = "connection lost: " + cause.Error()
		m.lastErr = cause
	}
	m.setStateLocked(StateDisconnected, reason)
	m.scheduleReconnectLocked(cause)
	seq := m.nextNotifyLocked()
	m.mu.Unlock()

	l.session.Close()

	entry := m.log.WithField("target", l.cfg.String())
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Warn("connection closed unexpectedly")
	m.notifyListeners(seq, false, cause)
}

// Disconnect closes the connection and waits until the transport confirms
// the close or ctx is done. Auto-reconnect stays disabled until the next
// explicit Connect. Calling it while disconnected is a no-op.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.autoReconnect = false
	m.cancelReconnectLocked()
	m.attempts = 0

	a := m.inflight
	l := m.live
	if a == nil && l == nil {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	if a != nil {
		a.cancel()
		m.superseded = a
	}
	m.inflight = nil
	m.live = nil
	m.setStateLocked(StateDisconnected, "disconnect requested")
	seq := m.nextNotifyLocked()
	m.mu.Unlock()

	if a != nil {
		a.finish(ErrConnectAborted)
	}

	var err error
	if l != nil {
		err = m.closeLive(ctx, l)
	}
	m.log.Info("disconnected")
	m.notifyListeners(seq, false, nil)
	return err
}

// detachLocked removes the live connection from the manager without waiting
// for it to close. Caller must hold m.mu.
func (m *Manager) detachLocked(reason string) *live {
	l := m.live
	m.live = nil
	m.setStateLocked(StateDisconnected, reason)
	return l
}

// releaseLive closes a detached connection in the background.
func (m *Manager) releaseLive(l *live) {
	l.stopKeepalive()
	l.session.Close()
	l.conn.Close()
}

func (m *Manager) closeLive(ctx context.Context, l *live) error {
	l.stopKeepalive()
	if err := l.session.Close(); err != nil {
		m.log.WithError(err).Debug("close file session")
	}

	var closeErr error
	if err := l.conn.Close(); err != nil {
		closeErr = fmt.Errorf("close transport: %w", err)
	}

	select {
	case <-l.closed:
	case <-ctx.Done():
		return fmt.Errorf("wait for transport close: %w", ctx.Err())
	}
	return closeErr
}

// keepalive probes the transport until ctx is cancelled. A failed or stalled
// probe closes the transport so the watcher reports the loss.
func (m *Manager) keepalive(ctx context.Context, l *live) {
	interval := m.opts.KeepaliveInterval
	if interval <= 0 {
		return
	}
	timeout := keepaliveRequestTimeout
	if interval < timeout {
		timeout = interval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		errC := make(chan error, 1)
		go func() { errC <- l.conn.SendKeepalive() }()

		timer := time.NewTimer(timeout)
		select {
		case err := <-errC:
			timer.Stop()
			if err == nil {
				continue
			}
			m.log.WithError(err).Warn("keepalive failed, closing transport")
		case <-timer.C:
			m.log.WithField("timeout", timeout).Warn("keepalive timed out, closing transport")
		case <-ctx.Done():
			timer.Stop()
			return
		}
		l.conn.Close()
		return
	}
}

// IsConnected reports whether the manager is connected with a live file
// session.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.live != nil && m.live.session != nil
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StatusInfo returns a snapshot for health and status reporting.
func (m *Manager) StatusInfo() StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := StatusInfo{
		Connected:        m.state == StateConnected && m.live != nil,
		State:            m.state,
		AttemptsSoFar:    m.attempts,
		MaxAttempts:      m.opts.MaxReconnectAttempts,
		AutoReconnect:    m.autoReconnect,
		ReconnectPending: m.reconnectTimer != nil,
	}
	if m.live != nil {
		since := m.live.since
		info.ConnectedSince = &since
	}
	if m.lastErr != nil {
		info.LastError = m.lastErr.Error()
	}
	return info
}

// Transitions returns the recent state transitions, oldest first.
func (m *Manager) Transitions() []StateTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions.history()
}

// setStateLocked records a transition. Caller must hold m.mu.
func (m *Manager) setStateLocked(to ConnectionState, reason string) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.transitions.record(from, to, reason, m.nowFn())
}

// nextNotifyLocked numbers the notification for the transition just made.
// Caller must hold m.mu.
func (m *Manager) nextNotifyLocked() uint64 {
	m.notifySeq++
	return m.notifySeq
}

// isConfigError reports whether retrying cannot help.
func isConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
