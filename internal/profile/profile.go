// Package profile resolves the remote connection parameters from the
// environment and the overrides persisted in the settings table.
package profile

import (
	"fmt"
	"strconv"

	"github.com/karzamisca/TaskManager-sub000/internal/config"
	"github.com/karzamisca/TaskManager-sub000/internal/crypto"
	"github.com/karzamisca/TaskManager-sub000/internal/database"
	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
)

const (
	keyHost     = "sftp.host"
	keyPort     = "sftp.port"
	keyUsername = "sftp.username"
	keyPassword = "sftp.password"
)

// Update holds the fields an operator may override. Nil fields are left
// unchanged; an empty string clears an override.
type Update struct {
	Host     *string `json:"host,omitempty"`
	Port     *int    `json:"port,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

// View is the connection profile with the password masked.
type View struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	HasKey     bool   `json:"has_private_key"`
	KnownHosts bool   `json:"verifies_host_key"`
	Overridden bool   `json:"overridden"`
}

// Load returns the effective connection config: environment values with
// any stored overrides applied.
func Load() (sftpmanager.ConnectionConfig, error) {
	cfg, err := config.Cfg.ConnectionConfig()
	if err != nil {
		return cfg, err
	}
	if database.DB == nil {
		return cfg, nil
	}

	stored, err := database.GetSettings("sftp.")
	if err != nil {
		return cfg, fmt.Errorf("load stored profile: %w", err)
	}
	if v := stored[keyHost]; v != "" {
		cfg.Host = v
	}
	if v := stored[keyPort]; v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("stored port %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := stored[keyUsername]; v != "" {
		cfg.Username = v
	}
	if v := stored[keyPassword]; v != "" {
		pw, err := crypto.Decrypt(v)
		if err != nil {
			return cfg, fmt.Errorf("decrypt stored password: %w", err)
		}
		cfg.Password = pw
	}
	return cfg, nil
}

// Save persists u. The resulting profile is validated before anything is
// written.
func Save(u Update) error {
	current, err := Load()
	if err != nil {
		return err
	}
	next := current
	if u.Host != nil {
		next.Host = orDefault(*u.Host, config.Cfg.SFTPHost)
	}
	if u.Port != nil {
		next.Port = *u.Port
		if next.Port == 0 {
			next.Port = config.Cfg.SFTPPort
		}
	}
	if u.Username != nil {
		next.Username = orDefault(*u.Username, config.Cfg.SFTPUsername)
	}
	if u.Password != nil {
		next.Password = orDefault(*u.Password, config.Cfg.SFTPPassword)
	}
	if err := next.Validate(); err != nil {
		return err
	}

	writes := make(map[string]string)
	if u.Host != nil {
		writes[keyHost] = *u.Host
	}
	if u.Port != nil {
		writes[keyPort] = ""
		if *u.Port != 0 {
			writes[keyPort] = strconv.Itoa(*u.Port)
		}
	}
	if u.Username != nil {
		writes[keyUsername] = *u.Username
	}
	if u.Password != nil {
		writes[keyPassword] = ""
		if *u.Password != "" {
			enc, err := crypto.Encrypt(*u.Password)
			if err != nil {
				return fmt.Errorf("encrypt password: %w", err)
			}
			writes[keyPassword] = enc
		}
	}
	if len(writes) == 0 {
		return nil
	}
	return database.PutSettings(writes)
}

// Current returns the masked view of the effective profile.
func Current() (View, error) {
	cfg, err := Load()
	if err != nil {
		return View{}, err
	}
	overridden := false
	if database.DB != nil {
		stored, err := database.GetSettings("sftp.")
		if err == nil && len(stored) > 0 {
			overridden = true
		}
	}
	return View{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Username:   cfg.Username,
		Password:   crypto.Mask(cfg.Password),
		HasKey:     len(cfg.PrivateKey) > 0,
		KnownHosts: cfg.KnownHostsPath != "",
		Overridden: overridden,
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Store exposes the package functions as a value for injection.
type Store struct{}

func (Store) Load() (sftpmanager.ConnectionConfig, error) { return Load() }
func (Store) Save(u Update) error                         { return Save(u) }
func (Store) Current() (View, error)                      { return Current() }
