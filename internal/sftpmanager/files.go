package sftpmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/karzamisca/TaskManager-sub000/internal/logutil"
)

// EntryKind distinguishes files from directories in a listing.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
)

// FileEntry describes one remote directory entry.
type FileEntry struct {
	Name        string    `json:"name"`
	Kind        EntryKind `json:"type"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at"`
	Permissions string    `json:"permissions"`
	Owner       uint32    `json:"owner"`
	Group       uint32    `json:"group"`
}

// IsDir reports whether the entry is a directory.
func (e FileEntry) IsDir() bool { return e.Kind == KindDirectory }

// EntryFromInfo converts a stat result into a FileEntry. Owner and group are
// only known when the info came from an SFTP server.
func EntryFromInfo(fi os.FileInfo) FileEntry {
	e := FileEntry{
		Name:        fi.Name(),
		Kind:        KindFile,
		Size:        fi.Size(),
		ModifiedAt:  fi.ModTime(),
		Permissions: fmt.Sprintf("%04o", fi.Mode().Perm()),
	}
	if fi.IsDir() {
		e.Kind = KindDirectory
	}
	if st, ok := fi.Sys().(*sftp.FileStat); ok && st != nil {
		e.Owner = st.UID
		e.Group = st.GID
	}
	return e
}

// SortEntries orders directories before files, then names by locale
// collation.
func SortEntries(entries []FileEntry) {
	// collate.Collator is not safe for concurrent use.
	col := collate.New(language.Und)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		return col.CompareString(a.Name, b.Name) < 0
	})
}

// ListFiles lists the directory at path.
func (m *Manager) ListFiles(ctx context.Context, path string) ([]FileEntry, error) {
	var entries []FileEntry
	err := m.run(ctx, "list", path, func(ctx context.Context, s Session) error {
		infos, err := s.ReadDir(path)
		if err != nil {
			return err
		}
		entries = make([]FileEntry, 0, len(infos))
		for _, fi := range infos {
			entries = append(entries, EntryFromInfo(fi))
		}
		SortEntries(entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Stat describes a single remote path.
func (m *Manager) Stat(ctx context.Context, path string) (FileEntry, error) {
	var entry FileEntry
	err := m.run(ctx, "stat", path, func(ctx context.Context, s Session) error {
		fi, err := s.Stat(path)
		if err != nil {
			return err
		}
		entry = EntryFromInfo(fi)
		return nil
	})
	if err != nil {
		return FileEntry{}, err
	}
	return entry, nil
}

// UploadFile streams the local file at localPath to remotePath, replacing
// any existing remote file.
func (m *Manager) UploadFile(ctx context.Context, localPath, remotePath string) error {
	return m.run(ctx, "upload", remotePath, func(ctx context.Context, s Session) error {
		src, err := os.Open(localPath)
		if err != nil {
			return &LocalFileError{Op: "open", Path: localPath, Err: err}
		}
		defer src.Close()

		dst, err := s.Create(remotePath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, &ctxReader{ctx: ctx, r: src}); err != nil {
			dst.Close()
			return err
		}
		return dst.Close()
	})
}

// DownloadFile streams remotePath into a new local file at localPath. A
// partially written local file is removed on failure.
func (m *Manager) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	err := m.run(ctx, "download", remotePath, func(ctx context.Context, s Session) error {
		src, err := s.Open(remotePath)
		if err != nil {
			return err
		}
		defer src.Close()

		if err := ctx.Err(); err != nil {
			return err
		}
		dst, err := os.Create(localPath)
		if err != nil {
			return &LocalFileError{Op: "create", Path: localPath, Err: err}
		}
		_, err = io.Copy(dst, &ctxReader{ctx: ctx, r: src})
		if cerr := dst.Close(); err == nil && cerr != nil {
			err = &LocalFileError{Op: "write", Path: localPath, Err: cerr}
		}
		if err != nil {
			os.Remove(localPath)
			return err
		}
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// run returns on cancellation while the copy may still be winding down.
		os.Remove(localPath)
	}
	return err
}

// CreateDirectory creates a single directory. Parents must exist.
func (m *Manager) CreateDirectory(ctx context.Context, path string) error {
	return m.run(ctx, "mkdir", path, func(ctx context.Context, s Session) error {
		return s.Mkdir(path)
	})
}

// DeleteFile removes a file or an empty directory. Directories are not
// removed recursively.
func (m *Manager) DeleteFile(ctx context.Context, path string) error {
	return m.run(ctx, "delete", path, func(ctx context.Context, s Session) error {
		fi, err := s.Stat(path)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return s.RemoveDirectory(path)
		}
		return s.Remove(path)
	})
}

// RenameFile renames or moves oldPath to newPath on the server.
func (m *Manager) RenameFile(ctx context.Context, oldPath, newPath string) error {
	return m.run(ctx, "rename", oldPath, func(ctx context.Context, s Session) error {
		return s.Rename(oldPath, newPath)
	})
}

// activeSession returns the session only while connected.
func (m *Manager) activeSession() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.live == nil || m.live.session == nil {
		return nil, ErrNotConnected
	}
	return m.live.session, nil
}

// run executes fn against the live session, bounded by ctx and the
// operation timeout. It fails with ErrNotConnected without touching the
// transport when there is no session.
func (m *Manager) run(ctx context.Context, op, path string, fn func(ctx context.Context, s Session) error) error {
	session, err := m.activeSession()
	if err != nil {
		return err
	}

	if m.opts.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.OperationTimeout)
		defer cancel()
	}

	start := time.Now()
	errC := make(chan error, 1)
	go func() { errC <- fn(ctx, session) }()

	select {
	case err = <-errC:
	case <-ctx.Done():
		err = ctx.Err()
	}

	entry := m.log.WithFields(logrus.Fields{
		"op":       op,
		"path":     logutil.SanitizeForLog(path),
		"duration": time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		entry.WithError(err).Warn("file operation failed")
		var localErr *LocalFileError
		if errors.As(err, &localErr) {
			return localErr
		}
		return &OperationError{Op: op, Path: path, Err: err}
	}
	entry.Debug("file operation done")
	return nil
}

// ctxReader stops a streaming copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
