package store

import (
	"context"
	"strings"

	"geopark-pipeline/internal/common"
	"geopark-pipeline/internal/config"
	"geopark-pipeline/internal/database"
	"geopark-pipeline/internal/models"

	"github.com/sirupsen/logrus"
)

// RecordStore is durable storage for daily records, unique per trading date.
type RecordStore interface {
	// EnsureSchema creates the unique trading date index if missing. Safe on every start.
	EnsureSchema(ctx context.Context) error
	// Upsert inserts rec or replaces every field of the record stored for the same date.
	Upsert(ctx context.Context, rec *models.DailyRecord) error
	// Range returns up to limit records, most recent trading date first.
	Range(ctx context.Context, limit int) ([]models.DailyRecord, error)
	Count(ctx context.Context) (int64, error)
	// Latest returns the most recent record, or nil when the store is empty.
	Latest(ctx context.Context) (*models.DailyRecord, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// IsMongo reports whether the connection string selects the MongoDB store.
func IsMongo(conn string) bool {
	return strings.HasPrefix(conn, "mongodb://") || strings.HasPrefix(conn, "mongodb+srv://")
}

// Open picks the implementation from the connection string: MongoDB URIs use the document store,
// everything else goes through gorm (MySQL DSN or "sqlite:<path>").
func Open(ctx context.Context, cfg config.StoreConfig, log logrus.FieldLogger) (RecordStore, error) {
	if IsMongo(cfg.Connection) {
		return NewMongoStore(ctx, cfg.Connection, cfg.Database, cfg.Collection, log)
	}

	db, err := database.Initialize(cfg.Connection, log)
	if err != nil {
		return nil, common.New(common.ErrStore, "open database", err)
	}
	return NewGormStore(db, cfg.Collection, log), nil
}
