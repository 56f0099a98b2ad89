package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/karzamisca/TaskManager-sub000/internal/config"
)

var (
	logFile *os.File
	logPath string
	mu      sync.Mutex
)

// Init configures the standard logrus logger: level and format from
// settings, output to stdout and the log file. Must be called after
// config.Load(). A log file that cannot be opened is reported and skipped.
func Init(s config.Settings) {
	mu.Lock()
	defer mu.Unlock()

	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(s.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logPath = s.LogFile()
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		logrus.WithError(err).Warn("cannot create log directory")
		logrus.SetOutput(os.Stdout)
		return
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logrus.WithError(err).WithField("path", logPath).Warn("cannot open log file")
		logrus.SetOutput(os.Stdout)
		return
	}

	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	logrus.SetOutput(io.MultiWriter(os.Stdout, logFile))
	logrus.WithField("path", logPath).Info("logging to file")
}

// Close detaches and closes the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	logrus.SetOutput(os.Stdout)
	err := logFile.Close()
	logFile = nil
	return err
}

// ReadTail returns the last n lines from the log file.
func ReadTail(n int) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(currentPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > 2*n && n > 0 {
			lines = append(lines[:0], lines[len(lines)-n:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan log file: %w", err)
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

// Clear truncates the log file.
func Clear() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		if err := logFile.Truncate(0); err != nil {
			return fmt.Errorf("truncate log file: %w", err)
		}
		if _, err := logFile.Seek(0, 0); err != nil {
			return fmt.Errorf("seek log file: %w", err)
		}
		return nil
	}

	err := os.Truncate(currentPath(), 0)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func currentPath() string {
	if logPath != "" {
		return logPath
	}
	return config.Cfg.LogFile()
}
