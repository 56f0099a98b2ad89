package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// useTestDB points the package DB at a fresh in-memory database.
func useTestDB(t *testing.T) {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	prev := DB
	DB = db
	t.Cleanup(func() {
		Close()
		DB = prev
	})
}

func TestSettings_CRUD(t *testing.T) {
	useTestDB(t)

	_, err := GetSetting("sftp.host")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	require.NoError(t, SetSetting("sftp.host", "a.example"))
	require.NoError(t, SetSetting("sftp.host", "b.example"))
	v, err := GetSetting("sftp.host")
	require.NoError(t, err)
	assert.Equal(t, "b.example", v)

	require.NoError(t, SetSetting("sftp.port", "2222"))
	require.NoError(t, SetSetting("fernet_key", "k"))
	all, err := GetSettings("sftp.")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sftp.host": "b.example", "sftp.port": "2222"}, all)

	require.NoError(t, DeleteSetting("sftp.host"))
	_, err = GetSetting("sftp.host")
	assert.Error(t, err)
}

func TestOpen_FileCreatesDirectory(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "docdesk.db")
	db, err := Open(p)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, db.Create(&AuditLog{EventType: "file_operation", Success: true}).Error)
	var n int64
	require.NoError(t, db.Model(&AuditLog{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

// failCreateOf makes inserting the setting named key fail.
func failCreateOf(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, DB.Callback().Create().Before("gorm:create").Register("test:fail_"+key, func(tx *gorm.DB) {
		if s, ok := tx.Statement.Dest.(*Setting); ok && s.Key == key {
			tx.AddError(errors.New("disk full"))
		}
	}))
}

func TestPutSettings(t *testing.T) {
	useTestDB(t)
	require.NoError(t, SetSetting("sftp.port", "2222"))

	require.NoError(t, PutSettings(map[string]string{
		"sftp.host": "a.example",
		"sftp.port": "",
	}))
	all, err := GetSettings("sftp.")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sftp.host": "a.example"}, all)
}

func TestPutSettings_AllOrNothing(t *testing.T) {
	useTestDB(t)
	failCreateOf(t, "sftp.username")

	err := PutSettings(map[string]string{
		"sftp.host":     "a.example",
		"sftp.port":     "2222",
		"sftp.username": "docs",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	all, err := GetSettings("sftp.")
	require.NoError(t, err)
	assert.Empty(t, all)
}
