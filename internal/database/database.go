package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLitePrefix marks a connection string that names a SQLite file instead of a MySQL DSN.
const SQLitePrefix = "sqlite:"

// IsSQLite reports whether the connection string selects the SQLite driver.
func IsSQLite(conn string) bool {
	return strings.HasPrefix(conn, SQLitePrefix)
}

func dialector(conn string) gorm.Dialector {
	if IsSQLite(conn) {
		path := strings.TrimPrefix(conn, SQLitePrefix)
		if path == "" {
			path = "file::memory:?cache=shared"
		}
		return sqlite.Open(path)
	}
	return mysql.Open(conn)
}

// Initialize opens a gorm connection for a MySQL DSN or a "sqlite:<path>" string.
func Initialize(conn string, log logrus.FieldLogger) (*gorm.DB, error) {
	if conn == "" {
		return nil, fmt.Errorf("empty database connection string")
	}

	db, err := gorm.Open(dialector(conn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if IsSQLite(conn) {
		// SQLite serializes writers; one connection avoids "database is locked"
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if log != nil {
		log.WithField("driver", db.Dialector.Name()).Info("database initialized")
	}
	return db, nil
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
