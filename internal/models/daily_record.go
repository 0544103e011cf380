package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MarketCapUnavailable is how a missing market capitalization is shown and stored in documents.
const MarketCapUnavailable = "N/A"

// DailyRecord is the reconciled daily document: security OHLCV, benchmark price and market capitalization
// for one trading date. At most one record exists per TradingDate; stores enforce it with a unique index.
type DailyRecord struct {
	ID          uint            `json:"-" gorm:"primaryKey"`
	TradingDate Date            `json:"trading_date" gorm:"type:varchar(10);not null"`
	ClosePrice  decimal.Decimal `json:"close_price" gorm:"type:decimal(20,6);not null"`
	Volume      int64           `json:"volume" gorm:"not null"`
	OpenPrice   decimal.Decimal `json:"open_price" gorm:"type:decimal(20,6);not null"`
	HighPrice   decimal.Decimal `json:"high_price" gorm:"type:decimal(20,6);not null"`
	LowPrice    decimal.Decimal `json:"low_price" gorm:"type:decimal(20,6);not null"`

	// Absent when the benchmark feed has no entry for TradingDate.
	BenchmarkPrice decimal.NullDecimal `json:"benchmark_price" gorm:"type:decimal(20,6)"`
	// Invalid means "unavailable".
	MarketCapitalization decimal.NullDecimal `json:"market_capitalization" gorm:"type:decimal(30,2)"`

	CapturedAt time.Time `json:"captured_at" gorm:"not null"`
}

// MarketCapString renders the market capitalization or MarketCapUnavailable.
func (r DailyRecord) MarketCapString() string {
	if !r.MarketCapitalization.Valid {
		return MarketCapUnavailable
	}
	return r.MarketCapitalization.Decimal.String()
}

// CheckRange verifies high >= max(open, close, low) and low <= min(open, close, high).
func (r DailyRecord) CheckRange() error {
	hi := decimal.Max(r.OpenPrice, r.ClosePrice, r.LowPrice)
	if r.HighPrice.LessThan(hi) {
		return fmt.Errorf("high %s below %s on %s", r.HighPrice, hi, r.TradingDate)
	}
	lo := decimal.Min(r.OpenPrice, r.ClosePrice, r.HighPrice)
	if r.LowPrice.GreaterThan(lo) {
		return fmt.Errorf("low %s above %s on %s", r.LowPrice, lo, r.TradingDate)
	}
	return nil
}

// SameValues reports whether two records carry the same market data, ignoring ID and CapturedAt.
func (r DailyRecord) SameValues(o DailyRecord) bool {
	return r.TradingDate == o.TradingDate &&
		r.ClosePrice.Equal(o.ClosePrice) &&
		r.OpenPrice.Equal(o.OpenPrice) &&
		r.HighPrice.Equal(o.HighPrice) &&
		r.LowPrice.Equal(o.LowPrice) &&
		r.Volume == o.Volume &&
		nullEqual(r.BenchmarkPrice, o.BenchmarkPrice) &&
		nullEqual(r.MarketCapitalization, o.MarketCapitalization)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
