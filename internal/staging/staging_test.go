package staging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArea(t *testing.T) *Area {
	t.Helper()
	a, err := New(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)
	return a
}

func TestPath_UniqueAndSanitized(t *testing.T) {
	a := newArea(t)

	p1 := a.Path("../../etc/passwd")
	p2 := a.Path("../../etc/passwd")
	assert.NotEqual(t, p1, p2)
	assert.Equal(t, a.Dir(), filepath.Dir(p1))
	assert.True(t, strings.HasSuffix(p1, "-passwd"))

	assert.True(t, strings.HasSuffix(a.Path(`C:\docs\báo cáo.xlsx`), "-b_o_c_o.xlsx"))
	assert.True(t, strings.HasSuffix(a.Path(".."), "-file"))
}

func TestSaveAndRemove(t *testing.T) {
	a := newArea(t)

	p, n, err := a.Save(strings.NewReader("payload"), "upload.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	a.Remove(p)
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))

	a.Remove(p) // already gone
}

func TestRemove_IgnoresOutsidePaths(t *testing.T) {
	a := newArea(t)
	outside := filepath.Join(t.TempDir(), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	a.Remove(outside)
	a.Remove(a.Dir())
	_, err := os.Stat(outside)
	assert.NoError(t, err)
	_, err = os.Stat(a.Dir())
	assert.NoError(t, err)
}

func TestSweep(t *testing.T) {
	a := newArea(t)
	oldPath, _, err := a.Save(strings.NewReader("old"), "old.txt")
	require.NoError(t, err)
	newPath, _, err := a.Save(strings.NewReader("new"), "new.txt")
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	n, err := a.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = os.Stat(newPath)
	assert.NoError(t, err)
}

func TestRelease(t *testing.T) {
	a := newArea(t)
	_, _, err := a.Save(strings.NewReader("x"), "x")
	require.NoError(t, err)

	require.NoError(t, a.Release())
	_, err = os.Stat(a.Dir())
	assert.True(t, os.IsNotExist(err))
}
