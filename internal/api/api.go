package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"geopark-pipeline/internal/models"
	"geopark-pipeline/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	defaultRecordLimit = 30
	maxRecordLimit     = 365
)

// Runner is the pipeline as seen by the HTTP surface.
type Runner interface {
	Run(ctx context.Context, trigger string) pipeline.RunResult
	LastRun() (pipeline.RunResult, bool)
	State() pipeline.State
}

// RecordReader is the read side of the record store.
type RecordReader interface {
	Range(ctx context.Context, limit int) ([]models.DailyRecord, error)
	Ping(ctx context.Context) error
}

type APIHandler struct {
	runner  Runner
	records RecordReader
	title   string
	nextRun func() time.Time
	logger  logrus.FieldLogger
}

type Option func(*APIHandler)

// WithNextRun reports the next scheduled run on the status page.
func WithNextRun(next func() time.Time) Option {
	return func(h *APIHandler) { h.nextRun = next }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(h *APIHandler) { h.logger = l }
}

func WithTitle(title string) Option {
	return func(h *APIHandler) { h.title = title }
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(runner Runner, records RecordReader, opts ...Option) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	SetupRoutes(r, runner, records, opts...)
	return r
}

func SetupRoutes(r *gin.Engine, runner Runner, records RecordReader, opts ...Option) *APIHandler {
	handler := &APIHandler{
		runner:  runner,
		records: records,
		title:   "GeoPark",
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(handler)
	}
	handler.logger = handler.logger.WithField("component", "http")

	r.SetHTMLTemplate(pages)
	r.Use(handler.requestLogger())

	r.GET("/", handler.Status)
	r.GET("/run", handler.Run)
	r.GET("/health", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/records", handler.ListRecords)
		v1.GET("/status", handler.LastRun)
	}

	r.NoRoute(handler.NotFound)
	return handler
}

func (h *APIHandler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
		}).Debug("request")
	}
}

// Status renders the status page with the last run summary.
func (h *APIHandler) Status(c *gin.Context) {
	data := gin.H{
		"Title": h.title,
		"State": h.runner.State(),
	}
	if last, ok := h.runner.LastRun(); ok {
		data["Last"] = last
	}
	if h.nextRun != nil {
		if next := h.nextRun(); !next.IsZero() {
			data["NextRun"] = next.Format("2006-01-02 15:04 MST")
		}
	}
	c.HTML(http.StatusOK, "status", data)
}

// Run executes the pipeline synchronously. Failures get a generic page; details stay in the logs.
func (h *APIHandler) Run(c *gin.Context) {
	h.logger.Info("manual pipeline run requested")
	res := h.runner.Run(c.Request.Context(), "http")
	if !res.Completed() {
		c.HTML(http.StatusInternalServerError, "run_failed", nil)
		return
	}
	c.HTML(http.StatusOK, "run_ok", res)
}

func (h *APIHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.records.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("health check: store unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": "unreachable", "state": h.runner.State()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "ok", "state": h.runner.State()})
}

// ListRecords returns the most recent records, newest first.
func (h *APIHandler) ListRecords(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRecordLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxRecordLimit {
		limit = maxRecordLimit
	}

	recs, err := h.records.Range(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("list records failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "count": len(recs), "data": recs})
}

func (h *APIHandler) LastRun(c *gin.Context) {
	last, ok := h.runner.LastRun()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"code": 200, "state": h.runner.State(), "last_run": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "state": h.runner.State(), "last_run": last, "completed": last.Completed()})
}

func (h *APIHandler) NotFound(c *gin.Context) {
	c.HTML(http.StatusNotFound, "not_found", nil)
}
