package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath     string `envconfig:"DATA_PATH" default:"/app/data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"text"`

	StagingDir         string        `envconfig:"STAGING_DIR" default:""`
	StagingMaxAge      time.Duration `envconfig:"STAGING_MAX_AGE" default:"1h"`
	FoldersFile        string        `envconfig:"FOLDERS_FILE" default:""`
	AuditRetentionDays int           `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`

	// Remote file server
	SFTPHost                 string        `envconfig:"SFTP_HOST" default:""`
	SFTPPort                 int           `envconfig:"SFTP_PORT" default:"22"`
	SFTPUsername             string        `envconfig:"SFTP_USERNAME" default:""`
	SFTPPassword             string        `envconfig:"SFTP_PASSWORD" default:""`
	SFTPPrivateKeyPath       string        `envconfig:"SFTP_PRIVATE_KEY_PATH" default:""`
	SFTPPrivateKeyPassphrase string        `envconfig:"SFTP_PRIVATE_KEY_PASSPHRASE" default:""`
	SFTPKnownHostsPath       string        `envconfig:"SFTP_KNOWN_HOSTS_PATH" default:""`
	SFTPConnectTimeout       time.Duration `envconfig:"SFTP_CONNECT_TIMEOUT" default:"20s"`
	SFTPAutoReconnect        bool          `envconfig:"SFTP_AUTO_RECONNECT" default:"true"`
	SFTPMaxReconnectAttempts int           `envconfig:"SFTP_MAX_RECONNECT_ATTEMPTS" default:"5"`
	SFTPReconnectInterval    time.Duration `envconfig:"SFTP_RECONNECT_INTERVAL" default:"5s"`
	SFTPOperationTimeout     time.Duration `envconfig:"SFTP_OPERATION_TIMEOUT" default:"2m"`
	SFTPKeepaliveInterval    time.Duration `envconfig:"SFTP_KEEPALIVE_INTERVAL" default:"30s"`
	SFTPConnectOnStart       bool          `envconfig:"SFTP_CONNECT_ON_START" default:"true"`

	// Scheduled jobs (robfig/cron specs)
	AuditPurgeSchedule   string `envconfig:"AUDIT_PURGE_SCHEDULE" default:"@daily"`
	StagingSweepSchedule string `envconfig:"STAGING_SWEEP_SCHEDULE" default:"@every 15m"`
	ProbeSchedule        string `envconfig:"PROBE_SCHEDULE" default:"@every 5m"`
}

var Cfg Settings

// Load reads DOCDESK_* environment variables into Cfg.
func Load() {
	if err := Process(&Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// Process fills s from the environment without exiting on error.
func Process(s *Settings) error {
	return envconfig.Process("DOCDESK", s)
}

// DatabaseFile returns the SQLite path, defaulting to DataPath/docdesk.db.
func (s Settings) DatabaseFile() string {
	if s.DatabasePath != "" {
		return s.DatabasePath
	}
	return s.DataPath + "/docdesk.db"
}

// LogFile returns the log path, defaulting to DataPath/docdesk.log.
func (s Settings) LogFile() string {
	if s.LogPath != "" {
		return s.LogPath
	}
	return s.DataPath + "/docdesk.log"
}

// StagingPath returns the staging directory, defaulting to DataPath/staging.
func (s Settings) StagingPath() string {
	if s.StagingDir != "" {
		return s.StagingDir
	}
	return s.DataPath + "/staging"
}

// ManagerOptions maps the SFTP_* reconnect and timeout settings.
func (s Settings) ManagerOptions() sftpmanager.Options {
	return sftpmanager.Options{
		AutoReconnect:        s.SFTPAutoReconnect,
		MaxReconnectAttempts: s.SFTPMaxReconnectAttempts,
		ReconnectInterval:    s.SFTPReconnectInterval,
		OperationTimeout:     s.SFTPOperationTimeout,
		KeepaliveInterval:    s.SFTPKeepaliveInterval,
	}
}

// ConnectionConfig builds the connection parameters from the environment.
// The private key file, if configured, is read here. The result is not
// validated; the manager does that on Connect.
func (s Settings) ConnectionConfig() (sftpmanager.ConnectionConfig, error) {
	cfg := sftpmanager.ConnectionConfig{
		Host:           s.SFTPHost,
		Port:           s.SFTPPort,
		Username:       s.SFTPUsername,
		Password:       s.SFTPPassword,
		Passphrase:     s.SFTPPrivateKeyPassphrase,
		ConnectTimeout: s.SFTPConnectTimeout,
		KnownHostsPath: s.SFTPKnownHostsPath,
	}
	if s.SFTPPrivateKeyPath != "" {
		key, err := os.ReadFile(s.SFTPPrivateKeyPath)
		if err != nil {
			return cfg, fmt.Errorf("read private key: %w", err)
		}
		cfg.PrivateKey = key
	}
	return cfg, nil
}
