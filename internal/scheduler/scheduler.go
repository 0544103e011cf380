package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DailySpec converts an HH:MM clock time to a standard cron expression.
func DailySpec(clock string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return "", fmt.Errorf("invalid schedule time %q, want HH:MM: %w", clock, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// cronLogger routes cron's own logging to logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}

// Scheduler invokes a job once a day. A firing that arrives while the previous job still runs is skipped.
type Scheduler struct {
	cron  *cron.Cron
	entry cron.EntryID
	spec  string
	log   logrus.FieldLogger
}

// NewDaily schedules job every day at clock (HH:MM) in loc.
func NewDaily(clock string, loc *time.Location, job func(), log logrus.FieldLogger) (*Scheduler, error) {
	spec, err := DailySpec(clock)
	if err != nil {
		return nil, err
	}
	return newScheduler(spec, loc, job, log)
}

func newScheduler(spec string, loc *time.Location, job func(), log logrus.FieldLogger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "scheduler")
	cl := cronLogger{log: log}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := c.AddFunc(spec, job)
	if err != nil {
		return nil, fmt.Errorf("add cron job %q: %w", spec, err)
	}
	return &Scheduler{cron: c, entry: id, spec: spec, log: log}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithFields(logrus.Fields{"spec": s.spec, "next": s.Next()}).Info("scheduler started")
}

// Stop halts the schedule; the returned context is done once a running job has returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next is the next firing time; zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) Spec() string { return s.spec }
