package reconcile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"geopark-pipeline/internal/common"
	"geopark-pipeline/internal/models"
	"geopark-pipeline/internal/services/alphavantage"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// field names inside one daily bar of TIME_SERIES_DAILY
const (
	fieldOpen   = "1. open"
	fieldHigh   = "2. high"
	fieldLow    = "3. low"
	fieldClose  = "4. close"
	fieldVolume = "5. volume"
)

type benchmarkPoint struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// Reconciler merges the three feeds into one DailyRecord.
type Reconciler struct {
	now    func() time.Time
	logger logrus.FieldLogger
}

type Option func(*Reconciler)

// WithClock replaces the wall clock used for CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Reconciler) { r.logger = l }
}

func New(opts ...Option) *Reconciler {
	r := &Reconciler{now: time.Now, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile builds the record for the latest trading date of the security feed. Only the
// security feed can make it fail: a missing benchmark value or market cap is recorded as absent.
func (r *Reconciler) Reconcile(security, benchmark, overview *alphavantage.Payload) (*models.DailyRecord, error) {
	series, err := dailySeries(security)
	if err != nil {
		return nil, err
	}

	date, bar, err := r.latest(series)
	if err != nil {
		return nil, err
	}

	rec := &models.DailyRecord{TradingDate: date}
	prices := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{fieldOpen, &rec.OpenPrice},
		{fieldHigh, &rec.HighPrice},
		{fieldLow, &rec.LowPrice},
		{fieldClose, &rec.ClosePrice},
	}
	for _, p := range prices {
		v, err := positiveDecimal(bar, p.field)
		if err != nil {
			return nil, common.New(common.ErrMalformedResponse, fmt.Sprintf("security bar %s", date), err)
		}
		*p.dst = v
	}
	rec.Volume, err = volume(bar)
	if err != nil {
		return nil, common.New(common.ErrMalformedResponse, fmt.Sprintf("security bar %s", date), err)
	}

	log := r.logger.WithField("date", date.String())

	rec.BenchmarkPrice = r.benchmarkOn(benchmark, date, log)
	rec.MarketCapitalization = marketCap(overview)
	if !rec.BenchmarkPrice.Valid {
		log.Info("no benchmark price for trading date, storing as absent")
	}
	if !rec.MarketCapitalization.Valid {
		log.Info("market capitalization unavailable")
	}

	if err := rec.CheckRange(); err != nil {
		log.WithError(err).Warn("inconsistent daily range")
	}

	rec.CapturedAt = r.now()
	return rec, nil
}

func dailySeries(p *alphavantage.Payload) (map[string]map[string]string, error) {
	if p == nil || !p.Has(alphavantage.KeyDailySeries) {
		return nil, common.Newf(common.ErrNoSeriesData, "security feed has no daily series")
	}
	var series map[string]map[string]string
	if err := json.Unmarshal(p.Fields[alphavantage.KeyDailySeries], &series); err != nil {
		return nil, common.New(common.ErrMalformedResponse, "cannot decode daily series", err)
	}
	if len(series) == 0 {
		return nil, common.Newf(common.ErrNoSeriesData, "security daily series is empty")
	}
	return series, nil
}

// latest selects the greatest parseable date; keys that are not dates are skipped.
func (r *Reconciler) latest(series map[string]map[string]string) (models.Date, map[string]string, error) {
	var (
		best    models.Date
		bestBar map[string]string
		found   bool
	)
	for key, bar := range series {
		d, err := models.ParseDate(strings.TrimSpace(key))
		if err != nil {
			r.logger.WithField("key", key).Warn("skipping series entry with unparseable date")
			continue
		}
		if !found || d.After(best) {
			best, bestBar, found = d, bar, true
		}
	}
	if !found {
		return models.Date{}, nil, common.Newf(common.ErrNoSeriesData, "security series has no dated entries")
	}
	return best, bestBar, nil
}

func positiveDecimal(bar map[string]string, field string) (decimal.Decimal, error) {
	raw, ok := bar[field]
	if !ok {
		return decimal.Zero, fmt.Errorf("missing %q", field)
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %q: %w", field, err)
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("field %q must be positive, got %s", field, v)
	}
	return v, nil
}

func volume(bar map[string]string) (int64, error) {
	raw, ok := bar[fieldVolume]
	if !ok {
		return 0, fmt.Errorf("missing %q", fieldVolume)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", fieldVolume, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("field %q must not be negative, got %d", fieldVolume, v)
	}
	return v, nil
}

// benchmarkOn looks up the benchmark value for date; holidays are reported as "." by the provider.
func (r *Reconciler) benchmarkOn(p *alphavantage.Payload, date models.Date, log logrus.FieldLogger) decimal.NullDecimal {
	if p == nil || !p.Has(alphavantage.KeyData) {
		return decimal.NullDecimal{}
	}
	var points []benchmarkPoint
	if err := json.Unmarshal(p.Fields[alphavantage.KeyData], &points); err != nil {
		log.WithError(err).Warn("cannot decode benchmark series")
		return decimal.NullDecimal{}
	}
	for _, pt := range points {
		d, err := models.ParseDate(strings.TrimSpace(pt.Date))
		if err != nil || d != date {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(pt.Value))
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(v)
	}
	return decimal.NullDecimal{}
}

func marketCap(p *alphavantage.Payload) decimal.NullDecimal {
	if p == nil || !p.Has(alphavantage.KeyMarketCap) {
		return decimal.NullDecimal{}
	}
	var raw interface{}
	if err := json.Unmarshal(p.Fields[alphavantage.KeyMarketCap], &raw); err != nil {
		return decimal.NullDecimal{}
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(v))
	case string:
		s := strings.TrimSpace(v)
		switch strings.ToUpper(s) {
		case "", "NONE", "-", models.MarketCapUnavailable:
			return decimal.NullDecimal{}
		}
		d, err := decimal.NewFromString(s)
		if err != nil || d.IsNegative() {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	default:
		return decimal.NullDecimal{}
	}
}
