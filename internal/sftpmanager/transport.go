package sftpmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"
)

// Dialer opens transport connections. Implementations must honour ctx for
// the dial and handshake.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnectionConfig) (Conn, error)
}

// Conn is a live transport connection.
type Conn interface {
	// OpenSession starts the file-transfer sub-session.
	OpenSession() (Session, error)
	// SendKeepalive round-trips a no-op request to detect dead peers.
	SendKeepalive() error
	// Wait blocks until the transport is closed. A nil error means an
	// orderly close.
	Wait() error
	Close() error
}

// Session is the file-transfer sub-session of a Conn.
type Session interface {
	ReadDir(path string) ([]os.FileInfo, error)
	Stat(path string) (os.FileInfo, error)
	Create(path string) (io.WriteCloser, error)
	Open(path string) (io.ReadCloser, error)
	Mkdir(path string) error
	Remove(path string) error
	RemoveDirectory(path string) error
	Rename(oldname, newname string) error
	Close() error
}

// SSHDialer dials SSH servers and opens the SFTP subsystem on them.
type SSHDialer struct {
	log *logrus.Entry
}

// NewSSHDialer returns a Dialer backed by golang.org/x/crypto/ssh.
func NewSSHDialer() *SSHDialer {
	return &SSHDialer{log: logrus.WithField("component", "sftp")}
}

// Dial connects and authenticates. Password and key auth are both offered
// when both are configured.
func (d *SSHDialer) Dial(ctx context.Context, cfg ConnectionConfig) (Conn, error) {
	clientCfg, err := d.clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := cfg.Addr()
	dialer := net.Dialer{Timeout: cfg.timeout()}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	// The handshake has no context of its own; bound it with a deadline.
	deadline := time.Now().Add(cfg.timeout())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = netConn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { netConn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientCfg)
	if !stop() {
		// ctx ended during the handshake and the socket is already closed.
		if err == nil {
			sshConn.Close()
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, ctx.Err())
	}
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = netConn.SetDeadline(time.Time{})

	return &sshTransport{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

func (d *SSHDialer) clientConfig(cfg ConnectionConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if len(cfg.PrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(cfg.PrivateKey, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(cfg.PrivateKey)
		}
		if err != nil {
			return nil, &ConfigError{Field: "private_key", Reason: fmt.Sprintf("cannot be parsed: %v", err)}
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	clientCfg := &ssh.ClientConfig{
		User:    cfg.Username,
		Auth:    auth,
		Timeout: cfg.timeout(),
	}

	if cfg.KnownHostsPath == "" {
		d.log.WithField("addr", cfg.Addr()).Warn("host key verification disabled (no known_hosts configured)")
		clientCfg.HostKeyCallback = ssh.InsecureIgnoreHostKey()
		return clientCfg, nil
	}

	kh, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, &ConfigError{Field: "known_hosts", Reason: fmt.Sprintf("cannot be loaded: %v", err)}
	}
	clientCfg.HostKeyCallback = kh.HostKeyCallback()
	clientCfg.HostKeyAlgorithms = kh.HostKeyAlgorithms(cfg.Addr())
	return clientCfg, nil
}

// sshTransport adapts *ssh.Client to Conn.
type sshTransport struct {
	client *ssh.Client
}

func (t *sshTransport) OpenSession() (Session, error) {
	c, err := sftp.NewClient(t.client)
	if err != nil {
		return nil, fmt.Errorf("open sftp subsystem: %w", err)
	}
	return WrapSFTPClient(c), nil
}

func (t *sshTransport) SendKeepalive() error {
	_, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil)
	return err
}

func (t *sshTransport) Wait() error {
	err := t.client.Wait()
	// ssh reports an orderly local close as io.EOF or net.ErrClosed.
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (t *sshTransport) Close() error {
	err := t.client.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// WrapSFTPClient adapts a *sftp.Client to Session.
func WrapSFTPClient(c *sftp.Client) Session {
	return &sftpSession{c: c}
}

type sftpSession struct {
	c *sftp.Client
}

func (s *sftpSession) ReadDir(p string) ([]os.FileInfo, error) { return s.c.ReadDir(p) }
func (s *sftpSession) Stat(p string) (os.FileInfo, error)      { return s.c.Stat(p) }
func (s *sftpSession) Create(p string) (io.WriteCloser, error) { return s.c.Create(p) }
func (s *sftpSession) Open(p string) (io.ReadCloser, error)    { return s.c.Open(p) }
func (s *sftpSession) Mkdir(p string) error                    { return s.c.Mkdir(p) }
func (s *sftpSession) Remove(p string) error                   { return s.c.Remove(p) }
func (s *sftpSession) RemoveDirectory(p string) error          { return s.c.RemoveDirectory(p) }
func (s *sftpSession) Rename(o, n string) error                { return s.c.Rename(o, n) }
func (s *sftpSession) Close() error                            { return s.c.Close() }
