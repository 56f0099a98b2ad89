package sftpmanager

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by every file operation issued while the
	// manager is not in StateConnected.
	ErrNotConnected = errors.New("sftp: not connected")

	// ErrConnectAborted is returned to callers waiting on a connection attempt
	// that was cancelled by Disconnect.
	ErrConnectAborted = errors.New("sftp: connection attempt aborted by disconnect")
)

// ConfigError reports a missing or invalid connection parameter. It is
// returned before any transport call is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sftp config: %s %s", e.Field, e.Reason)
}

// ConnectError reports a failed dial, handshake or sub-session open.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("sftp connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// OperationError reports a file operation that failed on an established
// connection. The underlying error is preserved, so errors.Is(err,
// fs.ErrNotExist) works for missing paths.
type OperationError struct {
	Op   string
	Path string
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("sftp %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// LocalFileError reports a transfer that failed on the local filesystem,
// not on the connection. It is never wrapped in an OperationError.
type LocalFileError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalFileError) Error() string {
	return fmt.Sprintf("local %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalFileError) Unwrap() error { return e.Err }
