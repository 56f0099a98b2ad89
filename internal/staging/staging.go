// Package staging manages the local temp-file area used to move data
// between HTTP requests and the remote file server.
package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/karzamisca/TaskManager-sub000/internal/logutil"
)

// Area is a directory of uniquely named temp files.
type Area struct {
	dir   string
	log   *logrus.Entry
	nowFn func() time.Time
}

// New creates dir if needed and returns an Area rooted there.
func New(dir string) (*Area, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Area{
		dir:   dir,
		log:   logrus.WithField("component", "staging"),
		nowFn: time.Now,
	}, nil
}

// Dir returns the staging directory.
func (a *Area) Dir() string { return a.dir }

// Path returns a fresh unique path for a file derived from name. Nothing is
// created.
func (a *Area) Path(name string) string {
	id := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return filepath.Join(a.dir, fmt.Sprintf("%d-%s-%s", a.nowFn().UnixMilli(), id, safeBase(name)))
}

// Save copies r into a new staged file and returns its path and size. The
// partial file is removed on error.
func (a *Area) Save(r io.Reader, name string) (string, int64, error) {
	p := a.Path(name)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", 0, fmt.Errorf("create staged file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		a.Remove(p)
		return "", 0, fmt.Errorf("write staged file: %w", err)
	}
	return p, n, nil
}

// Remove deletes a staged file. Failures are logged, not returned; paths
// outside the area are ignored.
func (a *Area) Remove(p string) {
	if p == "" || !a.contains(p) {
		return
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		a.log.WithError(err).WithField("path", logutil.SanitizeForLog(p)).Warn("remove staged file")
	}
}

// Sweep removes staged files older than maxAge and returns how many were
// removed.
func (a *Area) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}
	cutoff := a.nowFn().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(a.dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		a.log.Infof("swept %d stale staged files", removed)
	}
	return removed, nil
}

// Release removes the whole staging area.
func (a *Area) Release() error {
	if err := os.RemoveAll(a.dir); err != nil {
		return fmt.Errorf("release staging dir: %w", err)
	}
	return nil
}

func (a *Area) contains(p string) bool {
	rel, err := filepath.Rel(a.dir, p)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// safeBase reduces name to a filesystem-safe base name.
func safeBase(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "file"
	}
	if len(s) > 100 {
		s = s[len(s)-100:]
	}
	return s
}
