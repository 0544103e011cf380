package store

import (
	"context"
	"os"
	"testing"
	"time"

	"geopark-pipeline/internal/logger"
	"geopark-pipeline/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDocumentFieldNames(t *testing.T) {
	rec := record("2024-03-01", "10.50")
	rec.Volume = 160000

	raw, err := bson.Marshal(toDocument(rec))
	if err != nil {
		t.Fatalf("bson.Marshal failed: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("bson.Unmarshal failed: %v", err)
	}

	for _, key := range []string{"fecha", "precio_geo", "volumen", "apertura", "maximo", "minimo", "brent", "market_cap", "timestamp"} {
		if _, ok := m[key]; !ok {
			t.Errorf("document missing %q", key)
		}
	}
	if m["fecha"] != "2024-03-01" {
		t.Errorf("fecha = %v", m["fecha"])
	}
	if m["brent"] != nil {
		t.Errorf("brent = %v, want null", m["brent"])
	}
	if m["market_cap"] != models.MarketCapUnavailable {
		t.Errorf("market_cap = %v, want N/A", m["market_cap"])
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	rec := record("2024-03-01", "10.50")
	rec.BenchmarkPrice = decimal.NewNullDecimal(decimal.RequireFromString("80.12"))
	rec.MarketCapitalization = decimal.NewNullDecimal(decimal.NewFromInt(500000000))

	got, err := toDocument(rec).record()
	if err != nil {
		t.Fatalf("record() failed: %v", err)
	}
	if !got.SameValues(*rec) {
		t.Errorf("got %+v, want %+v", got, *rec)
	}
	if !got.CapturedAt.Equal(rec.CapturedAt) {
		t.Errorf("CapturedAt = %v, want %v", got.CapturedAt, rec.CapturedAt)
	}
}

func TestDocumentLegacyTimestamp(t *testing.T) {
	d := document{Date: "2024-03-01", Close: 10.5, MarketCap: "N/A", Timestamp: "2024-03-01T18:00:03.123456"}
	rec, err := d.record()
	if err != nil {
		t.Fatalf("record() failed: %v", err)
	}
	want := time.Date(2024, 3, 1, 18, 0, 3, 123456000, time.UTC)
	if !rec.CapturedAt.Equal(want) {
		t.Errorf("CapturedAt = %v, want %v", rec.CapturedAt, want)
	}
	if rec.MarketCapitalization.Valid {
		t.Error("N/A market cap should decode as unavailable")
	}

	if _, err := (document{Date: "yesterday"}).record(); err == nil {
		t.Error("expected error for bad fecha")
	}
	if _, err := (document{Date: "2024-03-01", Timestamp: "last tuesday"}).record(); err == nil {
		t.Error("expected error for unrecognized timestamp")
	}
}

func TestDocumentLegacyBenchmark(t *testing.T) {
	tests := []struct {
		name  string
		brent interface{}
		want  string
		valid bool
	}{
		{"raw provider string", "78.26", "78.26", true},
		{"missing price placeholder", ".", "", false},
		{"empty string", "", "", false},
		{"double", 78.26, "78.26", true},
		{"int32", int32(78), "78", true},
		{"int64", int64(78), "78", true},
		{"null", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := bson.Marshal(bson.M{
				"fecha":      "2024-02-29",
				"precio_geo": 10.25,
				"volumen":    int32(150000),
				"apertura":   10.1,
				"maximo":     10.4,
				"minimo":     10.0,
				"brent":      tt.brent,
				"market_cap": "500000000",
				"timestamp":  "2024-02-29T18:00:03.123456",
			})
			if err != nil {
				t.Fatalf("bson.Marshal failed: %v", err)
			}
			var d document
			if err := bson.Unmarshal(raw, &d); err != nil {
				t.Fatalf("bson.Unmarshal failed: %v", err)
			}
			rec, err := d.record()
			if err != nil {
				t.Fatalf("record() failed: %v", err)
			}
			if rec.BenchmarkPrice.Valid != tt.valid {
				t.Fatalf("BenchmarkPrice.Valid = %v, want %v", rec.BenchmarkPrice.Valid, tt.valid)
			}
			if tt.valid && !rec.BenchmarkPrice.Decimal.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("BenchmarkPrice = %s, want %s", rec.BenchmarkPrice.Decimal, tt.want)
			}
			if rec.Volume != 150000 || rec.TradingDate.String() != "2024-02-29" {
				t.Errorf("record = %+v", rec)
			}
		})
	}

	t.Run("unsupported type", func(t *testing.T) {
		raw, err := bson.Marshal(bson.M{"fecha": "2024-02-29", "brent": bson.A{1, 2}})
		if err != nil {
			t.Fatalf("bson.Marshal failed: %v", err)
		}
		var d document
		if err := bson.Unmarshal(raw, &d); err == nil {
			t.Error("expected decode error for array brent")
		}
	})
}

func TestDocumentBenchmarkEncoding(t *testing.T) {
	rec := record("2024-03-01", "10.50")
	rec.BenchmarkPrice = decimal.NewNullDecimal(decimal.RequireFromString("80.12"))

	raw, err := bson.Marshal(toDocument(rec))
	if err != nil {
		t.Fatalf("bson.Marshal failed: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("bson.Unmarshal failed: %v", err)
	}
	if m["brent"] != 80.12 {
		t.Errorf("brent = %#v, want 80.12", m["brent"])
	}

	var d document
	if err := bson.Unmarshal(raw, &d); err != nil {
		t.Fatalf("bson.Unmarshal into document failed: %v", err)
	}
	got, err := d.record()
	if err != nil {
		t.Fatalf("record() failed: %v", err)
	}
	if !got.SameValues(*rec) {
		t.Errorf("got %+v, want %+v", got, *rec)
	}
}

// Runs against a real server only when MONGODB_TEST_URI is set.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	coll := "geopark_test_" + uuid.NewString()[:8]
	s, err := NewMongoStore(ctx, uri, "pipeline_test", coll, logger.Discard())
	if err != nil {
		t.Fatalf("NewMongoStore failed: %v", err)
	}
	defer func() {
		s.coll.Drop(ctx)
		s.Close(ctx)
	}()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema failed: %v", err)
		}
	}

	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"} {
		if err := s.Upsert(ctx, record(d, "10")); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	second := record("2024-01-05", "12.25")
	if err := s.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if n, err := s.Count(ctx); err != nil || n != 5 {
		t.Errorf("Count = %d, %v, want 5", n, err)
	}
	recs, err := s.Range(ctx, 3)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	want := []string{"2024-01-05", "2024-01-04", "2024-01-03"}
	for i, r := range recs {
		if r.TradingDate.String() != want[i] {
			t.Errorf("recs[%d] = %s, want %s", i, r.TradingDate, want[i])
		}
	}
	if len(recs) != 3 || !recs[0].SameValues(*second) {
		t.Errorf("Range(3) = %+v", recs)
	}
}
