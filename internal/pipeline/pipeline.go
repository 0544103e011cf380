package pipeline

import (
	"context"
	"sync"
	"time"

	"geopark-pipeline/internal/common"
	"geopark-pipeline/internal/metrics"
	"geopark-pipeline/internal/models"
	"geopark-pipeline/internal/services/alphavantage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// State is a stage of one pipeline run.
type State string

const (
	Idle              State = "idle"
	FetchingSecurity  State = "fetching_security"
	FetchingBenchmark State = "fetching_benchmark"
	FetchingOverview  State = "fetching_overview"
	Reconciling       State = "reconciling"
	Storing           State = "storing"
	Rendering         State = "rendering"
	Notifying         State = "notifying"
	Done              State = "done"
	Failed            State = "failed"
)

type Fetcher interface {
	Fetch(ctx context.Context, kind alphavantage.FeedKind) (*alphavantage.Payload, error)
}

type Reconciler interface {
	Reconcile(security, benchmark, overview *alphavantage.Payload) (*models.DailyRecord, error)
}

// Store is the part of the record store a run needs.
type Store interface {
	Upsert(ctx context.Context, rec *models.DailyRecord) error
	Range(ctx context.Context, limit int) ([]models.DailyRecord, error)
}

type Renderer interface {
	Render(records []models.DailyRecord) (string, error)
}

type Notifier interface {
	Send(reportPath string) (bool, error)
}

// Warning is a render or notify failure that happened after the record was stored.
type Warning struct {
	Stage   State       `json:"stage"`
	Kind    common.Kind `json:"kind"`
	Message string      `json:"message"`
}

// RunResult describes one finished run.
type RunResult struct {
	ID          string      `json:"id"`
	Trigger     string      `json:"trigger"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	State       State       `json:"state"`
	FailedStage State       `json:"failed_stage,omitempty"`
	Kind        common.Kind `json:"kind,omitempty"`
	Error       string      `json:"error,omitempty"`
	TradingDate models.Date `json:"trading_date"`
	ReportPath  string      `json:"report_path,omitempty"`
	EmailSent   bool        `json:"email_sent"`
	Warnings    []Warning   `json:"warnings,omitempty"`
}

// Completed is true once the record was stored, even if render or notify warned.
func (r RunResult) Completed() bool { return r.State == Done }

func (r RunResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

var feeds = []struct {
	state State
	kind  alphavantage.FeedKind
}{
	{FetchingSecurity, alphavantage.FeedSecurity},
	{FetchingBenchmark, alphavantage.FeedBenchmark},
	{FetchingOverview, alphavantage.FeedOverview},
}

// Pipeline runs fetch, reconcile, store, render and notify strictly in sequence.
type Pipeline struct {
	fetcher    Fetcher
	reconciler Reconciler
	store      Store
	renderer   Renderer
	notifier   Notifier

	history int
	limiter *rate.Limiter
	now     func() time.Time
	logger  logrus.FieldLogger

	runMu sync.Mutex

	mu    sync.RWMutex
	state State
	last  *RunResult
}

type Option func(*Pipeline)

// WithMinDelay sets the minimum spacing between successive provider calls, across runs.
func WithMinDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		if d <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithHistory sets how many records the report covers.
func WithHistory(n int) Option {
	return func(p *Pipeline) { p.history = n }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func New(f Fetcher, rc Reconciler, s Store, r Renderer, n Notifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:    f,
		reconciler: rc,
		store:      s,
		renderer:   r,
		notifier:   n,
		history:    30,
		now:        time.Now,
		logger:     logrus.StandardLogger(),
		state:      Idle,
	}
	WithMinDelay(2 * time.Second)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the stage the current run is in, or Idle.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// LastRun returns the most recent finished run.
func (p *Pipeline) LastRun() (RunResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return RunResult{}, false
	}
	return *p.last, true
}

func (p *Pipeline) setState(s State, log logrus.FieldLogger) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	log.WithField("stage", s).Debug("stage started")
}

// Run executes one pipeline run. Runs started while another is in flight wait for it.
func (p *Pipeline) Run(ctx context.Context, trigger string) RunResult {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	res := RunResult{ID: uuid.NewString(), Trigger: trigger, StartedAt: p.now()}
	log := p.logger.WithFields(logrus.Fields{"run_id": res.ID, "trigger": trigger})
	log.Info("pipeline run started")

	p.execute(ctx, &res, log)

	res.FinishedAt = p.now()
	p.finish(res, log)
	return res
}

func (p *Pipeline) execute(ctx context.Context, res *RunResult, log logrus.FieldLogger) {
	payloads := make(map[alphavantage.FeedKind]*alphavantage.Payload, len(feeds))
	for _, feed := range feeds {
		p.setState(feed.state, log)
		payload, err := p.fetch(ctx, feed.kind, log)
		if err != nil {
			p.fail(res, feed.state, err, log)
			return
		}
		payloads[feed.kind] = payload
	}

	p.setState(Reconciling, log)
	rec, err := p.reconciler.Reconcile(
		payloads[alphavantage.FeedSecurity],
		payloads[alphavantage.FeedBenchmark],
		payloads[alphavantage.FeedOverview],
	)
	if err != nil {
		p.fail(res, Reconciling, err, log)
		return
	}
	res.TradingDate = rec.TradingDate
	log = log.WithField("date", rec.TradingDate.String())

	p.setState(Storing, log)
	if err := p.store.Upsert(ctx, rec); err != nil {
		p.fail(res, Storing, err, log)
		return
	}

	// the record is durable from here on; later failures only warn
	res.State = Done

	p.setState(Rendering, log)
	path, err := p.render(ctx)
	if err != nil {
		p.warn(res, Rendering, err, log)
		return
	}
	res.ReportPath = path

	p.setState(Notifying, log)
	sent, err := p.notifier.Send(path)
	if err != nil {
		p.warn(res, Notifying, err, log)
		return
	}
	res.EmailSent = sent
}

func (p *Pipeline) fetch(ctx context.Context, kind alphavantage.FeedKind, log logrus.FieldLogger) (*alphavantage.Payload, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, common.New(common.ErrTransport, "waiting for rate limit", err)
	}

	start := time.Now()
	payload, err := p.fetcher.Fetch(ctx, kind)
	metrics.FeedLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FeedRequests.WithLabelValues(string(kind), string(common.KindOf(err))).Inc()
		return nil, err
	}
	metrics.FeedRequests.WithLabelValues(string(kind), "ok").Inc()
	log.WithField("feed", kind).Debug("feed fetched")
	return payload, nil
}

func (p *Pipeline) render(ctx context.Context) (string, error) {
	records, err := p.store.Range(ctx, p.history)
	if err != nil {
		return "", err
	}
	return p.renderer.Render(records)
}

func (p *Pipeline) fail(res *RunResult, stage State, err error, log logrus.FieldLogger) {
	res.State = Failed
	res.FailedStage = stage
	res.Kind = common.KindOf(err)
	res.Error = err.Error()
	metrics.StageFailures.WithLabelValues(string(stage), string(res.Kind)).Inc()
	log.WithFields(logrus.Fields{"stage": stage, "kind": res.Kind}).WithError(err).Error("pipeline run failed")
}

func (p *Pipeline) warn(res *RunResult, stage State, err error, log logrus.FieldLogger) {
	w := Warning{Stage: stage, Kind: common.KindOf(err), Message: err.Error()}
	res.Warnings = append(res.Warnings, w)
	metrics.StageFailures.WithLabelValues(string(stage), string(w.Kind)).Inc()
	log.WithFields(logrus.Fields{"stage": stage, "kind": w.Kind}).WithError(err).Warn("stage failed after record was stored")
}

func (p *Pipeline) finish(res RunResult, log logrus.FieldLogger) {
	p.mu.Lock()
	p.state = Idle
	p.last = &res
	p.mu.Unlock()

	outcome := "completed"
	if !res.Completed() {
		outcome = "failed"
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.Observe(res.Duration().Seconds())
	metrics.LastRunTimestamp.Set(float64(res.FinishedAt.Unix()))
	if res.Completed() {
		metrics.LastRunCompleted.Set(1)
		metrics.LastTradingDate.Set(float64(res.TradingDate.Time().Unix()))
	} else {
		metrics.LastRunCompleted.Set(0)
	}

	log.WithFields(logrus.Fields{
		"state":    res.State,
		"duration": res.Duration().Round(time.Millisecond),
		"report":   res.ReportPath,
		"warnings": len(res.Warnings),
	}).Info("pipeline run finished")
}
