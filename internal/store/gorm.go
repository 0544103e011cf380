package store

import (
	"context"
	"errors"

	"geopark-pipeline/internal/common"
	"geopark-pipeline/internal/database"
	"geopark-pipeline/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// columns replaced on conflict; everything except the primary key
var upsertColumns = []string{
	"trading_date",
	"close_price",
	"volume",
	"open_price",
	"high_price",
	"low_price",
	"benchmark_price",
	"market_capitalization",
	"captured_at",
}

// GormStore keeps records in one relational table.
type GormStore struct {
	db     *gorm.DB
	table  string
	logger logrus.FieldLogger
}

func NewGormStore(db *gorm.DB, table string, log logrus.FieldLogger) *GormStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &GormStore{
		db:     db,
		table:  table,
		logger: log.WithFields(logrus.Fields{"component": "store", "table": table}),
	}
}

func (s *GormStore) dateIndexName() string {
	return "idx_" + s.table + "_trading_date"
}

func (s *GormStore) tx(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func (s *GormStore) EnsureSchema(ctx context.Context) error {
	if err := s.tx(ctx).AutoMigrate(&models.DailyRecord{}); err != nil {
		return common.New(common.ErrStore, "migrate "+s.table, err)
	}
	// index names are database-wide in sqlite, so they carry the table name
	idx := s.dateIndexName()
	if !s.db.WithContext(ctx).Migrator().HasIndex(s.table, idx) {
		err := s.db.WithContext(ctx).Exec("CREATE UNIQUE INDEX ? ON ? (?)",
			clause.Column{Name: idx}, clause.Table{Name: s.table}, clause.Column{Name: "trading_date"}).Error
		if err != nil {
			return common.New(common.ErrStore, "create index "+idx, err)
		}
	}
	s.logger.Debug("schema ensured")
	return nil
}

func (s *GormStore) Upsert(ctx context.Context, rec *models.DailyRecord) error {
	row := *rec
	row.ID = 0

	err := s.tx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trading_date"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(&row).Error
	if err != nil {
		return common.New(common.ErrStore, "upsert "+rec.TradingDate.String(), err)
	}
	s.logger.WithField("date", rec.TradingDate.String()).Info("record upserted")
	return nil
}

func (s *GormStore) Range(ctx context.Context, limit int) ([]models.DailyRecord, error) {
	if limit <= 0 {
		return []models.DailyRecord{}, nil
	}
	var recs []models.DailyRecord
	if err := s.tx(ctx).Order("trading_date DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, common.New(common.ErrStore, "range query", err)
	}
	return recs, nil
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.tx(ctx).Count(&n).Error; err != nil {
		return 0, common.New(common.ErrStore, "count", err)
	}
	return n, nil
}

func (s *GormStore) Latest(ctx context.Context) (*models.DailyRecord, error) {
	var rec models.DailyRecord
	err := s.tx(ctx).Order("trading_date DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, common.New(common.ErrStore, "latest record", err)
	}
	return &rec, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return common.New(common.ErrStore, "ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return common.New(common.ErrStore, "ping", err)
	}
	return nil
}

func (s *GormStore) Close(ctx context.Context) error {
	if err := database.Close(s.db); err != nil {
		return common.New(common.ErrStore, "close", err)
	}
	return nil
}
