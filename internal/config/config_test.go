package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_Defaults(t *testing.T) {
	var s Settings
	require.NoError(t, Process(&s))

	assert.Equal(t, ":8000", s.ListenAddr)
	assert.Equal(t, 22, s.SFTPPort)
	assert.Equal(t, 5*time.Second, s.SFTPReconnectInterval)
	assert.Equal(t, 5, s.SFTPMaxReconnectAttempts)
	assert.True(t, s.SFTPAutoReconnect)
	assert.Equal(t, "/app/data/docdesk.db", s.DatabaseFile())
	assert.Equal(t, "/app/data/staging", s.StagingPath())
}

func TestProcess_FromEnv(t *testing.T) {
	t.Setenv("DOCDESK_SFTP_HOST", "files.corp")
	t.Setenv("DOCDESK_SFTP_PORT", "2222")
	t.Setenv("DOCDESK_SFTP_RECONNECT_INTERVAL", "250ms")
	t.Setenv("DOCDESK_SFTP_AUTO_RECONNECT", "false")
	t.Setenv("DOCDESK_DATA_PATH", "/srv/docdesk")

	var s Settings
	require.NoError(t, Process(&s))
	assert.Equal(t, "files.corp", s.SFTPHost)
	assert.Equal(t, 2222, s.SFTPPort)
	assert.Equal(t, "/srv/docdesk/docdesk.log", s.LogFile())

	opts := s.ManagerOptions()
	assert.False(t, opts.AutoReconnect)
	assert.Equal(t, 250*time.Millisecond, opts.ReconnectInterval)
}

func TestProcess_BadValue(t *testing.T) {
	t.Setenv("DOCDESK_SFTP_PORT", "twenty-two")
	var s Settings
	assert.Error(t, Process(&s))
}

func TestConnectionConfig_ReadsKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, []byte("KEYDATA"), 0o600))

	s := Settings{SFTPHost: "h", SFTPPort: 22, SFTPUsername: "u", SFTPPrivateKeyPath: keyPath}
	cfg, err := s.ConnectionConfig()
	require.NoError(t, err)
	assert.Equal(t, []byte("KEYDATA"), cfg.PrivateKey)
	assert.NoError(t, cfg.Validate())

	s.SFTPPrivateKeyPath = filepath.Join(t.TempDir(), "missing")
	_, err = s.ConnectionConfig()
	assert.Error(t, err)
}
