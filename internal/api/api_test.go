package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"geopark-pipeline/internal/common"
	"geopark-pipeline/internal/logger"
	"geopark-pipeline/internal/models"
	"geopark-pipeline/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type fakeRunner struct {
	result pipeline.RunResult
	last   *pipeline.RunResult
	runs   int
}

func (f *fakeRunner) Run(ctx context.Context, trigger string) pipeline.RunResult {
	f.runs++
	f.result.Trigger = trigger
	f.last = &f.result
	return f.result
}

func (f *fakeRunner) LastRun() (pipeline.RunResult, bool) {
	if f.last == nil {
		return pipeline.RunResult{}, false
	}
	return *f.last, true
}

func (f *fakeRunner) State() pipeline.State { return pipeline.Idle }

type fakeRecords struct {
	recs    []models.DailyRecord
	err     error
	pingErr error
	limit   int
}

func (f *fakeRecords) Range(ctx context.Context, limit int) ([]models.DailyRecord, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.recs) > limit {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

func (f *fakeRecords) Ping(ctx context.Context) error { return f.pingErr }

func init() {
	gin.SetMode(gin.TestMode)
}

func doRequest(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func completedRun() pipeline.RunResult {
	now := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	return pipeline.RunResult{
		ID:          "run-1",
		StartedAt:   now,
		FinishedAt:  now.Add(7 * time.Second),
		State:       pipeline.Done,
		TradingDate: models.MustParseDate("2024-03-01"),
		ReportPath:  "/tmp/GeoPark_Report_20240301.xlsx",
	}
}

func newTestRouter(runner *fakeRunner, records *fakeRecords, opts ...Option) *gin.Engine {
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	return NewRouter(runner, records, opts...)
}

func TestStatusPage(t *testing.T) {
	runner := &fakeRunner{}
	next := time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC)
	r := newTestRouter(runner, &fakeRecords{}, WithNextRun(func() time.Time { return next }))

	w := doRequest(r, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"GeoPark Data Pipeline", `href="/run"`, "2024-03-02 18:00"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(body, "Last run") {
		t.Error("no last run should be shown before any run")
	}

	res := completedRun()
	runner.last = &res
	body = doRequest(r, "/").Body.String()
	if !strings.Contains(body, "Last run") || !strings.Contains(body, "2024-03-01") {
		t.Errorf("last run summary missing: %s", body)
	}
}

func TestRunPage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		runner := &fakeRunner{result: completedRun()}
		w := doRequest(newTestRouter(runner, &fakeRecords{}), "/run")

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "GeoPark_Report_20240301.xlsx") {
			t.Error("success page should show the report path")
		}
		if runner.runs != 1 || runner.result.Trigger != "http" {
			t.Errorf("runs = %d, trigger = %q", runner.runs, runner.result.Trigger)
		}
	})

	t.Run("failure", func(t *testing.T) {
		runner := &fakeRunner{result: pipeline.RunResult{
			State:       pipeline.Failed,
			FailedStage: pipeline.FetchingSecurity,
			Kind:        common.ErrTransport,
			Error:       "dial tcp: secret-host",
		}}
		w := doRequest(newTestRouter(runner, &fakeRecords{}), "/run")

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", w.Code)
		}
		body := w.Body.String()
		if !strings.Contains(body, "Pipeline run failed") || strings.Contains(body, "secret-host") {
			t.Errorf("failure page should be generic: %s", body)
		}
	})
}

func TestHealth(t *testing.T) {
	w := doRequest(newTestRouter(&fakeRunner{}, &fakeRecords{}), "/health")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}

	w = doRequest(newTestRouter(&fakeRunner{}, &fakeRecords{pingErr: errors.New("refused")}), "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health with store down = %d", w.Code)
	}
}

func TestListRecords(t *testing.T) {
	recs := []models.DailyRecord{
		{TradingDate: models.MustParseDate("2024-03-01"), ClosePrice: decimal.RequireFromString("10.5"), Volume: 160000},
		{TradingDate: models.MustParseDate("2024-02-29"), ClosePrice: decimal.RequireFromString("10.25"), Volume: 150000},
	}

	tests := []struct {
		name      string
		path      string
		status    int
		wantLimit int
		wantCount int
	}{
		{"default limit", "/api/v1/records", http.StatusOK, 30, 2},
		{"explicit limit", "/api/v1/records?limit=1", http.StatusOK, 1, 1},
		{"capped limit", "/api/v1/records?limit=5000", http.StatusOK, 365, 2},
		{"bad limit", "/api/v1/records?limit=abc", http.StatusBadRequest, 0, 0},
		{"zero limit", "/api/v1/records?limit=0", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeRecords{recs: recs}
			w := doRequest(newTestRouter(&fakeRunner{}, store), tt.path)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			if store.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", store.limit, tt.wantLimit)
			}
			var resp struct {
				Count int               `json:"count"`
				Data  []json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Count != tt.wantCount || len(resp.Data) != tt.wantCount {
				t.Errorf("count = %d, data = %d, want %d", resp.Count, len(resp.Data), tt.wantCount)
			}
		})
	}

	t.Run("store error", func(t *testing.T) {
		w := doRequest(newTestRouter(&fakeRunner{}, &fakeRecords{err: errors.New("down")}), "/api/v1/records")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestLastRunJSON(t *testing.T) {
	res := completedRun()
	runner := &fakeRunner{last: &res}
	w := doRequest(newTestRouter(runner, &fakeRecords{}), "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Completed bool               `json:"completed"`
		LastRun   pipeline.RunResult `json:"last_run"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Completed || resp.LastRun.ID != "run-1" || resp.LastRun.TradingDate.String() != "2024-03-01" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestMetricsAndNotFound(t *testing.T) {
	r := newTestRouter(&fakeRunner{}, &fakeRecords{})

	w := doRequest(r, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("metrics = %d", w.Code)
	}

	w = doRequest(r, "/no/such/page")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "404") {
		t.Errorf("not found = %d %s", w.Code, w.Body.String())
	}
}
