// Package sftpmanager owns the single persistent SFTP connection used by the
// rest of the application.
//
// # Architecture
//
// [Manager] holds at most one live transport connection ([Conn]) and one
// file-transfer sub-session ([Session]) at a time. The transport is reached
// through a [Dialer]; production code uses [SSHDialer], which speaks SSH via
// golang.org/x/crypto/ssh and opens the SFTP subsystem with github.com/pkg/sftp.
// Tests use the in-memory dialer from the sftptest subpackage.
//
// # Connection Lifecycle
//
//  1. Connect: [Manager.Connect] validates the [ConnectionConfig], stores it
//     for later reconnection and dials. Concurrent callers share the single
//     in-flight attempt and all observe its result.
//
//  2. Connected: a watcher goroutine waits for the transport to close and a
//     keepalive loop probes it every [Options.KeepaliveInterval]. A failed
//     keepalive closes the transport, which the watcher reports as a close.
//
//  3. Reconnection: after a failed attempt or an unexpected close, one
//     reconnect is scheduled [Options.ReconnectInterval] later while the
//     attempt counter is below [Options.MaxReconnectAttempts]. The interval is
//     fixed. A successful connection resets the counter.
//
//  4. Disconnection: [Manager.Disconnect] disables auto-reconnect, cancels any
//     pending reconnect, closes the transport and waits for the close to be
//     confirmed. It is idempotent.
//
// # File Operations
//
// ListFiles, Stat, UploadFile, DownloadFile, CreateDirectory, DeleteFile and
// RenameFile fail immediately with [ErrNotConnected] unless the manager is in
// [StateConnected]. They never connect implicitly. Every operation honours the
// caller's context and [Options.OperationTimeout].
//
// # Listeners
//
// [Manager.AddConnectionListener] registers a callback invoked with
// (connected, err) on every transition into or out of [StateConnected].
// Callbacks run synchronously in registration order, outside the manager lock.
// A panicking listener is recovered and logged; the remaining listeners still
// run.
//
// # Usage
//
//	mgr := sftpmanager.NewManager(sftpmanager.NewSSHDialer(), sftpmanager.DefaultOptions())
//	defer mgr.Disconnect(context.Background())
//
//	if err := mgr.Connect(ctx, cfg); err != nil { ... }
//	entries, err := mgr.ListFiles(ctx, "/uploads")
package sftpmanager
