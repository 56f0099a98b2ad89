// Package audit records connection and file events in the database.
package audit

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/karzamisca/TaskManager-sub000/internal/database"
	"github.com/karzamisca/TaskManager-sub000/internal/logutil"
	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
)

// Event types.
const (
	EventConnectionEstablished = "connection_established"
	EventConnectionLost        = "connection_lost"
	EventConnectionFailed      = "connection_failed"
	EventDisconnected          = "disconnected"
	EventFileOperation         = "file_operation"
)

// DefaultRetentionDays is used when no retention is configured.
const DefaultRetentionDays = 90

// Entry contains the fields needed to create an audit record.
type Entry struct {
	EventType  string
	Operation  string
	Path       string
	Target     string
	RemoteAddr string
	RequestID  string
	Success    bool
	Details    string
	Duration   time.Duration
}

// Auditor writes audit records and answers queries over them.
type Auditor struct {
	db            *gorm.DB
	retentionDays int
	log           *logrus.Entry
	nowFn         func() time.Time
}

// NewAuditor migrates the audit table and returns an Auditor. A
// non-positive retentionDays selects DefaultRetentionDays.
func NewAuditor(db *gorm.DB, retentionDays int) (*Auditor, error) {
	if err := db.AutoMigrate(&database.AuditLog{}); err != nil {
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{
		db:            db,
		retentionDays: retentionDays,
		log:           logrus.WithField("component", "audit"),
		nowFn:         time.Now,
	}, nil
}

// Log records one event.
func (a *Auditor) Log(e Entry) error {
	record := database.AuditLog{
		EventType:  e.EventType,
		Operation:  e.Operation,
		Path:       e.Path,
		Target:     e.Target,
		RemoteAddr: e.RemoteAddr,
		RequestID:  e.RequestID,
		Success:    e.Success,
		Details:    e.Details,
		DurationMs: e.Duration.Milliseconds(),
		CreatedAt:  a.nowFn(),
	}
	if err := a.db.Create(&record).Error; err != nil {
		a.log.WithError(err).Error("failed to write audit record")
		return err
	}

	a.log.WithFields(logrus.Fields{
		"event":   e.EventType,
		"op":      e.Operation,
		"path":    logutil.SanitizeForLog(e.Path),
		"success": e.Success,
	}).Debug(logutil.SanitizeForLog(e.Details))
	return nil
}

// ConnectionListener returns a listener that records connectivity
// transitions of the manager.
func (a *Auditor) ConnectionListener() sftpmanager.ConnectionListener {
	return func(connected bool, err error) {
		e := Entry{Success: connected}
		switch {
		case connected:
			e.EventType = EventConnectionEstablished
		case err != nil:
			e.EventType = EventConnectionLost
			e.Details = err.Error()
			if isConnectError(err) {
				e.EventType = EventConnectionFailed
			}
		default:
			e.EventType = EventDisconnected
			e.Success = true
		}
		a.Log(e)
	}
}

// QueryOptions filters audit records.
type QueryOptions struct {
	EventType string
	Operation string
	Path      string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// QueryResult contains records and pagination metadata.
type QueryResult struct {
	Entries []database.AuditLog `json:"entries"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// Query returns records matching opts, newest first.
func (a *Auditor) Query(opts QueryOptions) (*QueryResult, error) {
	tx := a.db.Model(&database.AuditLog{})
	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.Operation != "" {
		tx = tx.Where("operation = ?", opts.Operation)
	}
	if opts.Path != "" {
		tx = tx.Where("path = ?", opts.Path)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var entries []database.AuditLog
	if err := tx.Order("created_at DESC, id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return &QueryResult{Entries: entries, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

// PurgeOlderThan deletes records older than days, or the configured
// retention when days is not positive. Returns the number deleted.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = a.retentionDays
	}
	cutoff := a.nowFn().AddDate(0, 0, -days)
	result := a.db.Where("created_at < ?", cutoff).Delete(&database.AuditLog{})
	if result.Error != nil {
		a.log.WithError(result.Error).Error("purge failed")
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		a.log.Infof("purged %d audit records older than %d days", result.RowsAffected, days)
	}
	return result.RowsAffected, nil
}

// RetentionDays returns the configured retention period.
func (a *Auditor) RetentionDays() int {
	return a.retentionDays
}

// SetNowFunc replaces the clock; for tests.
func (a *Auditor) SetNowFunc(fn func() time.Time) {
	a.nowFn = fn
}
