// Package sftptest provides an in-memory sftpmanager.Dialer for tests.
//
// Sessions are real pkg/sftp clients connected over pipes to an
// sftp.RequestServer backed by sftp.InMemHandler. All connections from one
// Dialer share a single in-memory filesystem, so files survive reconnects.
package sftptest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pkg/sftp"

	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
)

// ErrDialFailed is returned by injected dial failures when no error is given.
var ErrDialFailed = errors.New("sftptest: dial failed")

// Dialer is an in-memory sftpmanager.Dialer.
type Dialer struct {
	handlers sftp.Handlers

	mu           sync.Mutex
	dials        int
	dialing      int
	maxDialing   int
	failDials    int
	dialErr      error
	failSessions int
	keepaliveErr error
	gate         chan struct{}
	conns        []*Conn
}

// NewDialer returns a Dialer with an empty filesystem.
func NewDialer() *Dialer {
	return &Dialer{handlers: sftp.InMemHandler()}
}

// FailDials makes the next n dials fail with err. A negative n fails every
// dial until FailDials(0, nil) is called.
func (d *Dialer) FailDials(n int, err error) {
	if err == nil {
		err = ErrDialFailed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failDials = n
	d.dialErr = err
}

// FailSessions makes the next n OpenSession calls fail.
func (d *Dialer) FailSessions(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSessions = n
}

// FailKeepalives makes every keepalive on every connection return err. Pass
// nil to restore.
func (d *Dialer) FailKeepalives(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keepaliveErr = err
}

// Block makes subsequent dials wait until the returned release function is
// called (or their context ends).
func (d *Dialer) Block() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.gate == gate {
				d.gate = nil
			}
			d.mu.Unlock()
			close(gate)
		})
	}
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// MaxConcurrentDials returns the highest number of Dial calls that were in
// progress at the same time.
func (d *Dialer) MaxConcurrentDials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxDialing
}

// Last returns the most recent successful connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Dial implements sftpmanager.Dialer.
func (d *Dialer) Dial(ctx context.Context, cfg sftpmanager.ConnectionConfig) (sftpmanager.Conn, error) {
	d.mu.Lock()
	d.dials++
	d.dialing++
	if d.dialing > d.maxDialing {
		d.maxDialing = d.dialing
	}
	gate := d.gate
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.dialing--
		d.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failDials != 0 {
		if d.failDials > 0 {
			d.failDials--
		}
		return nil, d.dialErr
	}

	c := &Conn{d: d, done: make(chan struct{})}
	d.conns = append(d.conns, c)
	return c, nil
}

// Conn is an in-memory transport connection.
type Conn struct {
	d *Dialer

	mu         sync.Mutex
	clients    []*sftp.Client
	servers    []*sftp.RequestServer
	keepalives int

	closeOnce sync.Once
	done      chan struct{}
	waitErr   error
}

// OpenSession implements sftpmanager.Conn.
func (c *Conn) OpenSession() (sftpmanager.Session, error) {
	c.d.mu.Lock()
	if c.d.failSessions > 0 {
		c.d.failSessions--
		c.d.mu.Unlock()
		return nil, errors.New("sftptest: subsystem request failed")
	}
	c.d.mu.Unlock()

	if c.Closed() {
		return nil, io.ErrClosedPipe
	}

	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	srv := sftp.NewRequestServer(pipeConn{r: serverR, w: serverW}, c.d.handlers)
	go func() {
		srv.Serve()
		srv.Close()
	}()

	client, err := sftp.NewClientPipe(clientR, clientW)
	if err != nil {
		srv.Close()
		return nil, err
	}

	c.mu.Lock()
	c.clients = append(c.clients, client)
	c.servers = append(c.servers, srv)
	c.mu.Unlock()
	return sftpmanager.WrapSFTPClient(client), nil
}

// SendKeepalive implements sftpmanager.Conn.
func (c *Conn) SendKeepalive() error {
	if c.Closed() {
		return io.ErrClosedPipe
	}
	c.d.mu.Lock()
	err := c.d.keepaliveErr
	c.d.mu.Unlock()

	c.mu.Lock()
	c.keepalives++
	c.mu.Unlock()
	return err
}

// Keepalives returns how many keepalives were sent on this connection.
func (c *Conn) Keepalives() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keepalives
}

// Wait implements sftpmanager.Conn.
func (c *Conn) Wait() error {
	<-c.done
	return c.waitErr
}

// Close implements sftpmanager.Conn.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

// Drop closes the connection as if the server went away. Wait returns err.
func (c *Conn) Drop(err error) {
	c.shutdown(err)
}

// Closed reports whether the connection has been closed or dropped.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		clients, servers := c.clients, c.servers
		c.clients, c.servers = nil, nil
		c.mu.Unlock()

		for _, cl := range clients {
			cl.Close()
		}
		for _, s := range servers {
			s.Close()
		}
		c.waitErr = err
		close(c.done)
	})
}

// pipeConn joins the server's half of two pipes into an io.ReadWriteCloser.
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p pipeConn) Close() error {
	p.r.Close()
	return p.w.Close()
}
