package sftpmanager

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultConnectTimeout bounds the dial and SSH handshake when the config
// does not set one.
const DefaultConnectTimeout = 20 * time.Second

// ConnectionConfig describes how to reach the remote file server. The manager
// keeps a copy for reconnection, so it holds credentials in memory for the
// lifetime of the process. It must not be logged directly; String redacts it.
type ConnectionConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKey     []byte // PEM encoded
	Passphrase     string // for an encrypted PrivateKey
	ConnectTimeout time.Duration
	KnownHostsPath string // empty disables host key verification
}

// Validate reports the first missing or invalid connection parameter.
func (c ConnectionConfig) Validate() error {
	if c.Host == "" {
		return &ConfigError{Field: "host", Reason: "is required"}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &ConfigError{Field: "port", Reason: fmt.Sprintf("must be between 1 and 65535, got %d", c.Port)}
	}
	if c.Username == "" {
		return &ConfigError{Field: "username", Reason: "is required"}
	}
	if c.Password == "" && len(c.PrivateKey) == 0 {
		return &ConfigError{Field: "credential", Reason: "password or private key is required"}
	}
	if c.ConnectTimeout < 0 {
		return &ConfigError{Field: "connect_timeout", Reason: "must not be negative"}
	}
	return nil
}

// Addr returns host:port.
func (c ConnectionConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c ConnectionConfig) timeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return DefaultConnectTimeout
}

// Equal reports whether two configs would produce the same connection.
func (c ConnectionConfig) Equal(o ConnectionConfig) bool {
	return c.Host == o.Host &&
		c.Port == o.Port &&
		c.Username == o.Username &&
		c.Password == o.Password &&
		bytes.Equal(c.PrivateKey, o.PrivateKey) &&
		c.Passphrase == o.Passphrase &&
		c.ConnectTimeout == o.ConnectTimeout &&
		c.KnownHostsPath == o.KnownHostsPath
}

// String renders the config without credentials.
func (c ConnectionConfig) String() string {
	auth := "none"
	switch {
	case c.Password != "" && len(c.PrivateKey) > 0:
		auth = "password+key"
	case c.Password != "":
		auth = "password"
	case len(c.PrivateKey) > 0:
		auth = "key"
	}
	return fmt.Sprintf("%s@%s (auth=%s)", c.Username, c.Addr(), auth)
}

// GoString keeps %#v from dumping credentials.
func (c ConnectionConfig) GoString() string {
	return "sftpmanager.ConnectionConfig{" + c.String() + "}"
}

func (c ConnectionConfig) clone() ConnectionConfig {
	out := c
	if c.PrivateKey != nil {
		out.PrivateKey = append([]byte(nil), c.PrivateKey...)
	}
	return out
}
