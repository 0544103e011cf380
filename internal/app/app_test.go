package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"geopark-pipeline/internal/config"
	"geopark-pipeline/internal/database"
	"geopark-pipeline/internal/logger"
	"geopark-pipeline/internal/pipeline"
)

func providerServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("function") {
		case "TIME_SERIES_DAILY":
			w.Write([]byte(`{"Meta Data": {}, "Time Series (Daily)": {
			  "2024-03-01": {"1. open": "10.30", "2. high": "10.60", "3. low": "10.20", "4. close": "10.50", "5. volume": "160000"},
			  "2024-02-29": {"1. open": "10.10", "2. high": "10.40", "3. low": "10.00", "4. close": "10.25", "5. volume": "150000"}}}`))
		case "WTI":
			w.Write([]byte(`{"name": "WTI", "data": [{"date": "2024-02-29", "value": "78.26"}]}`))
		case "OVERVIEW":
			w.Write([]byte(`{"Symbol": "GPRK", "MarketCapitalization": "500000000"}`))
		default:
			w.Write([]byte(`{"Error Message": "Invalid API call."}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		API: config.APIConfig{
			Key:               "demo",
			BaseURL:           baseURL,
			Symbol:            "GPRK",
			BenchmarkFunction: "WTI",
			Timeout:           5 * time.Second,
		},
		Store: config.StoreConfig{
			Connection: database.SQLitePrefix + filepath.Join(dir, "pipeline.db"),
			Collection: "geopark_daily",
		},
		Schedule: config.ScheduleConfig{Time: "18:00"},
		Report:   config.ReportConfig{Dir: filepath.Join(dir, "reports"), History: 30, Title: "GeoPark"},
	}
}

func TestPipelineAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, providerServer(t).URL)

	a, err := New(ctx, cfg, logger.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close(ctx)

	for i := 0; i < 2; i++ {
		res := a.Pipeline.Run(ctx, "test")
		if !res.Completed() {
			t.Fatalf("run %d failed at %s: %s", i, res.FailedStage, res.Error)
		}
		if len(res.Warnings) != 0 {
			t.Errorf("run %d warnings: %+v", i, res.Warnings)
		}
		if res.EmailSent {
			t.Error("email is not configured and must not be sent")
		}
		if _, err := os.Stat(res.ReportPath); err != nil {
			t.Errorf("report %q: %v", res.ReportPath, err)
		}
	}

	n, err := a.Store.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v; want 1", n, err)
	}
	rec, err := a.Store.Latest(ctx)
	if err != nil || rec == nil {
		t.Fatalf("Latest = %v, %v", rec, err)
	}
	if rec.TradingDate.String() != "2024-03-01" || rec.Volume != 160000 || rec.BenchmarkPrice.Valid {
		t.Errorf("stored = %+v", *rec)
	}
	if rec.MarketCapString() != "500000000" {
		t.Errorf("market cap = %s", rec.MarketCapString())
	}
}

func TestPipelineProviderError(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, providerServer(t).URL)
	cfg.API.BenchmarkFunction = "GOLD"

	a, err := New(ctx, cfg, logger.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close(ctx)

	res := a.Pipeline.Run(ctx, "test")
	if res.Completed() || res.FailedStage != pipeline.FetchingBenchmark {
		t.Fatalf("result = %+v, want failure at benchmark fetch", res)
	}
	if n, _ := a.Store.Count(ctx); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}
