package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karzamisca/TaskManager-sub000/internal/config"
)

func initTemp(t *testing.T, format string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "logs", "docdesk.log")
	Init(config.Settings{LogPath: p, LogLevel: "debug", LogFormat: format})
	t.Cleanup(func() {
		Close()
		logPath = ""
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
	})
	return p
}

func TestInit_WritesToFile(t *testing.T) {
	p := initTemp(t, "text")
	logrus.WithField("component", "test").Info("hello file")

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
	assert.Contains(t, string(data), "component=test")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestInit_JSONFormat(t *testing.T) {
	p := initTemp(t, "json")
	logrus.Info("structured")

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"structured"`)
}

func TestReadTail(t *testing.T) {
	initTemp(t, "text")
	for i := 0; i < 20; i++ {
		logrus.Infof("line-%02d", i)
	}

	tail, err := ReadTail(3)
	require.NoError(t, err)
	lines := strings.Split(tail, "\n")
	require.Len(t, lines, 3)
	for i, l := range lines {
		assert.Contains(t, l, fmt.Sprintf("line-%02d", 17+i))
	}
}

func TestClear(t *testing.T) {
	p := initTemp(t, "text")
	logrus.Info("to be removed")
	require.NoError(t, Clear())

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	logrus.Info("after clear")
	tail, err := ReadTail(10)
	require.NoError(t, err)
	assert.Contains(t, tail, "after clear")
	assert.NotContains(t, tail, "to be removed")
}
