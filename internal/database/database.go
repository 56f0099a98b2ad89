package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/karzamisca/TaskManager-sub000/internal/config"
)

var DB *gorm.DB

// Init opens the database at config.Cfg.DatabaseFile() and migrates it.
func Init() error {
	db, err := Open(config.Cfg.DatabaseFile())
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open opens and migrates a SQLite database. ":memory:" is accepted.
func Open(dbPath string) (*gorm.DB, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if dbPath == ":memory:" {
		// Each new connection to :memory: is a separate empty database.
		sqlDB.SetMaxOpenConns(1)
	} else if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&Setting{}, &AuditLog{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return db, nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

func DeleteSetting(key string) error {
	return DB.Where("key = ?", key).Delete(&Setting{}).Error
}

// PutSettings writes values in one transaction; either all of them land or
// none do. An empty value deletes the key.
func PutSettings(values map[string]string) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			if value == "" {
				if err := tx.Where("key = ?", key).Delete(&Setting{}).Error; err != nil {
					return fmt.Errorf("clear %s: %w", key, err)
				}
				continue
			}
			if err := tx.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error; err != nil {
				return fmt.Errorf("save %s: %w", key, err)
			}
		}
		return nil
	})
}

// GetSettings returns all settings whose key starts with prefix.
func GetSettings(prefix string) (map[string]string, error) {
	var rows []Setting
	if err := DB.Where("key LIKE ?", prefix+"%").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
