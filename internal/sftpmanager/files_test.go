package sftpmanager_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager/sftptest"
)

func connected(t *testing.T) (*sftpmanager.Manager, *sftptest.Dialer) {
	t.Helper()
	d := sftptest.NewDialer()
	m := newTestManager(t, d, testOptions())
	require.NoError(t, m.Connect(context.Background(), testConfig()))
	return m, d
}

func writeLocal(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func names(entries []sftpmanager.FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestFileOps_FailFastWhenNotConnected(t *testing.T) {
	d := sftptest.NewDialer()
	m := newTestManager(t, d, testOptions())
	ctx := context.Background()

	_, err := m.ListFiles(ctx, "/")
	assert.ErrorIs(t, err, sftpmanager.ErrNotConnected)
	_, err = m.Stat(ctx, "/")
	assert.ErrorIs(t, err, sftpmanager.ErrNotConnected)
	assert.ErrorIs(t, m.UploadFile(ctx, "/nope", "/x"), sftpmanager.ErrNotConnected)
	assert.ErrorIs(t, m.DownloadFile(ctx, "/x", filepath.Join(t.TempDir(), "x")), sftpmanager.ErrNotConnected)
	assert.ErrorIs(t, m.CreateDirectory(ctx, "/x"), sftpmanager.ErrNotConnected)
	assert.ErrorIs(t, m.DeleteFile(ctx, "/x"), sftpmanager.ErrNotConnected)
	assert.ErrorIs(t, m.RenameFile(ctx, "/x", "/y"), sftpmanager.ErrNotConnected)

	assert.Equal(t, 0, d.Dials(), "no operation may connect implicitly")
}

func TestFileOps_FailFastWhileConnecting(t *testing.T) {
	d := sftptest.NewDialer()
	release := d.Block()
	defer release()
	m := newTestManager(t, d, testOptions())

	go m.Connect(context.Background(), testConfig())
	require.Eventually(t, func() bool { return m.State() == sftpmanager.StateConnecting }, waitFor, tick)

	_, err := m.ListFiles(context.Background(), "/")
	assert.ErrorIs(t, err, sftpmanager.ErrNotConnected)
}

func TestListFiles_DirectoriesFirst(t *testing.T) {
	m, _ := connected(t)
	ctx := context.Background()

	require.NoError(t, m.UploadFile(ctx, writeLocal(t, "b", "bee"), "/b"))
	require.NoError(t, m.CreateDirectory(ctx, "/c"))
	require.NoError(t, m.CreateDirectory(ctx, "/a"))

	entries, err := m.ListFiles(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, names(entries))
	assert.Equal(t, sftpmanager.KindDirectory, entries[0].Kind)
	assert.Equal(t, sftpmanager.KindFile, entries[2].Kind)
	assert.Equal(t, int64(3), entries[2].Size)
}

func TestSortEntries_LocaleOrder(t *testing.T) {
	entries := []sftpmanager.FileEntry{
		{Name: "Zeta", Kind: sftpmanager.KindFile},
		{Name: "beta", Kind: sftpmanager.KindFile},
		{Name: "Alpha", Kind: sftpmanager.KindFile},
		{Name: "reports", Kind: sftpmanager.KindDirectory},
		{Name: "Archive", Kind: sftpmanager.KindDirectory},
	}
	sftpmanager.SortEntries(entries)
	assert.Equal(t, []string{"Archive", "reports", "Alpha", "beta", "Zeta"}, names(entries))
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	m, _ := connected(t)
	ctx := context.Background()
	body := strings.Repeat("invoice line\n", 5000)

	require.NoError(t, m.CreateDirectory(ctx, "/pending"))
	require.NoError(t, m.UploadFile(ctx, writeLocal(t, "in.txt", body), "/pending/in.txt"))

	st, err := m.Stat(ctx, "/pending/in.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), st.Size)
	assert.False(t, st.IsDir())

	out := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, m.DownloadFile(ctx, "/pending/in.txt", out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestUpload_MissingLocalFile(t *testing.T) {
	m, _ := connected(t)
	err := m.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing"), "/x")

	var localErr *sftpmanager.LocalFileError
	require.ErrorAs(t, err, &localErr)
	assert.Equal(t, "open", localErr.Op)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	var opErr *sftpmanager.OperationError
	assert.False(t, errors.As(err, &opErr), "local failures are not transport failures")
}

func TestDownload_UnwritableLocalPath(t *testing.T) {
	m, _ := connected(t)
	require.NoError(t, m.UploadFile(context.Background(), writeLocal(t, "a.txt", "a"), "/a.txt"))

	err := m.DownloadFile(context.Background(), "/a.txt", filepath.Join(t.TempDir(), "no", "such", "dir", "a.txt"))
	var localErr *sftpmanager.LocalFileError
	require.ErrorAs(t, err, &localErr)
	assert.Equal(t, "create", localErr.Op)

	var opErr *sftpmanager.OperationError
	assert.False(t, errors.As(err, &opErr))
}

func TestDownload_MissingRemoteLeavesNoLocalFile(t *testing.T) {
	m, _ := connected(t)
	out := filepath.Join(t.TempDir(), "out.txt")

	err := m.DownloadFile(context.Background(), "/does/not/exist", out)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, statErr := os.Stat(out)
	assert.True(t, errors.Is(statErr, fs.ErrNotExist))
}

func TestRenameFile_MovesBetweenFolders(t *testing.T) {
	m, _ := connected(t)
	ctx := context.Background()

	require.NoError(t, m.CreateDirectory(ctx, "/pending"))
	require.NoError(t, m.CreateDirectory(ctx, "/approved"))
	require.NoError(t, m.UploadFile(ctx, writeLocal(t, "doc.pdf", "%PDF"), "/pending/doc.pdf"))

	require.NoError(t, m.RenameFile(ctx, "/pending/doc.pdf", "/approved/doc.pdf"))

	pending, err := m.ListFiles(ctx, "/pending")
	require.NoError(t, err)
	assert.Empty(t, pending)
	approved, err := m.ListFiles(ctx, "/approved")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.pdf"}, names(approved))
}

func TestDeleteFile_FileAndDirectory(t *testing.T) {
	m, _ := connected(t)
	ctx := context.Background()

	require.NoError(t, m.CreateDirectory(ctx, "/tmp"))
	require.NoError(t, m.UploadFile(ctx, writeLocal(t, "f", "x"), "/f"))

	require.NoError(t, m.DeleteFile(ctx, "/f"))
	require.NoError(t, m.DeleteFile(ctx, "/tmp"))

	entries, err := m.ListFiles(ctx, "/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStat_MissingPath(t *testing.T) {
	m, _ := connected(t)
	_, err := m.Stat(context.Background(), "/ghost")

	var opErr *sftpmanager.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "stat", opErr.Op)
	assert.Equal(t, "/ghost", opErr.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFileOps_FailAfterDrop(t *testing.T) {
	d := sftptest.NewDialer()
	opts := testOptions()
	opts.AutoReconnect = false
	m := newTestManager(t, d, opts)
	require.NoError(t, m.Connect(context.Background(), testConfig()))

	d.Last().Drop(errors.New("eof"))
	require.Eventually(t, func() bool { return !m.IsConnected() }, waitFor, tick)

	_, err := m.ListFiles(context.Background(), "/")
	assert.ErrorIs(t, err, sftpmanager.ErrNotConnected)
}

// spy doubles record which removal call DeleteFile makes.

type fakeInfo struct {
	name string
	dir  bool
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return 0 }
func (f fakeInfo) Mode() fs.FileMode {
	if f.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return f.dir }
func (f fakeInfo) Sys() any           { return nil }

type spySession struct {
	mu    sync.Mutex
	dirs  map[string]bool
	calls []string
}

func (s *spySession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *spySession) Stat(p string) (os.FileInfo, error) {
	s.record("stat " + p)
	dir, ok := s.dirs[p]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return fakeInfo{name: filepath.Base(p), dir: dir}, nil
}

func (s *spySession) RemoveDirectory(p string) error { s.record("rmdir " + p); return nil }
func (s *spySession) Remove(p string) error          { s.record("remove " + p); return nil }

func (s *spySession) ReadDir(string) ([]os.FileInfo, error) { return nil, errors.New("unused") }
func (s *spySession) Create(string) (io.WriteCloser, error) { return nil, errors.New("unused") }
func (s *spySession) Open(string) (io.ReadCloser, error)    { return nil, errors.New("unused") }
func (s *spySession) Mkdir(string) error                    { return errors.New("unused") }
func (s *spySession) Rename(string, string) error           { return errors.New("unused") }
func (s *spySession) Close() error                          { return nil }

type spyConn struct {
	session *spySession
	done    chan struct{}
	once    sync.Once
}

func (c *spyConn) OpenSession() (sftpmanager.Session, error) { return c.session, nil }
func (c *spyConn) SendKeepalive() error                      { return nil }
func (c *spyConn) Wait() error                               { <-c.done; return nil }
func (c *spyConn) Close() error                              { c.once.Do(func() { close(c.done) }); return nil }

type spyDialer struct{ session *spySession }

func (d spyDialer) Dial(context.Context, sftpmanager.ConnectionConfig) (sftpmanager.Conn, error) {
	return &spyConn{session: d.session, done: make(chan struct{})}, nil
}

func TestDeleteFile_ChoosesRemovalByStat(t *testing.T) {
	s := &spySession{dirs: map[string]bool{"/reports": true, "/reports.csv": false}}
	m := newTestManager(t, spyDialer{session: s}, testOptions())
	require.NoError(t, m.Connect(context.Background(), testConfig()))

	require.NoError(t, m.DeleteFile(context.Background(), "/reports"))
	require.NoError(t, m.DeleteFile(context.Background(), "/reports.csv"))

	assert.Equal(t, []string{
		"stat /reports", "rmdir /reports",
		"stat /reports.csv", "remove /reports.csv",
	}, s.calls)

	err := m.DeleteFile(context.Background(), "/missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, "stat /missing", s.calls[len(s.calls)-1], "no removal after a failed stat")
}

// stall doubles block or trickle so timeouts and cancellation can be
// observed.

// trickleReader yields one byte per read, slowly, forever.
type trickleReader struct{ delay time.Duration }

func (r trickleReader) Read(p []byte) (int, error) {
	time.Sleep(r.delay)
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = 'x'
	return 1, nil
}

func (trickleReader) Close() error { return nil }

type stallSession struct {
	spySession
	release chan struct{}
}

func (s *stallSession) ReadDir(string) ([]os.FileInfo, error) {
	<-s.release
	return nil, nil
}

func (s *stallSession) Open(string) (io.ReadCloser, error) {
	return trickleReader{delay: 2 * time.Millisecond}, nil
}

type stallConn struct {
	session *stallSession
	done    chan struct{}
	once    sync.Once
}

func (c *stallConn) OpenSession() (sftpmanager.Session, error) { return c.session, nil }
func (c *stallConn) SendKeepalive() error                      { return nil }
func (c *stallConn) Wait() error                               { <-c.done; return nil }
func (c *stallConn) Close() error                              { c.once.Do(func() { close(c.done) }); return nil }

type stallDialer struct{ session *stallSession }

func (d stallDialer) Dial(context.Context, sftpmanager.ConnectionConfig) (sftpmanager.Conn, error) {
	return &stallConn{session: d.session, done: make(chan struct{})}, nil
}

func TestOperationTimeout(t *testing.T) {
	s := &stallSession{release: make(chan struct{})}
	t.Cleanup(func() { close(s.release) })

	opts := testOptions()
	opts.OperationTimeout = 20 * time.Millisecond
	m := newTestManager(t, stallDialer{session: s}, opts)
	require.NoError(t, m.Connect(context.Background(), testConfig()))

	start := time.Now()
	_, err := m.ListFiles(context.Background(), "/slow")
	elapsed := time.Since(start)

	var opErr *sftpmanager.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "list", opErr.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.True(t, m.IsConnected(), "a timed-out operation leaves the connection up")
}

func TestDownload_CancelRemovesPartialFile(t *testing.T) {
	s := &stallSession{release: make(chan struct{})}
	t.Cleanup(func() { close(s.release) })

	opts := testOptions()
	opts.OperationTimeout = -1
	m := newTestManager(t, stallDialer{session: s}, opts)
	require.NoError(t, m.Connect(context.Background(), testConfig()))

	out := filepath.Join(t.TempDir(), "partial.bin")
	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() { errC <- m.DownloadFile(ctx, "/big.bin", out) }()

	require.Eventually(t, func() bool {
		info, err := os.Stat(out)
		return err == nil && info.Size() > 0
	}, waitFor, tick, "copy should have started")
	cancel()

	select {
	case err := <-errC:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("DownloadFile did not return after cancel")
	}
	require.Eventually(t, func() bool {
		_, err := os.Stat(out)
		return errors.Is(err, fs.ErrNotExist)
	}, waitFor, tick)
}
