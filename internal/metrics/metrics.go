package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geopark_pipeline_runs_total",
		Help: "Total number of pipeline runs by outcome",
	}, []string{"outcome"})

	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geopark_pipeline_stage_failures_total",
		Help: "Pipeline failures and warnings by stage and error kind",
	}, []string{"stage", "kind"})

	FeedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geopark_pipeline_feed_requests_total",
		Help: "Provider feed requests by feed and result",
	}, []string{"feed", "result"})

	FeedLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geopark_pipeline_feed_latency_seconds",
		Help:    "Latency of provider feed requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"feed"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "geopark_pipeline_run_duration_seconds",
		Help:    "Duration of complete pipeline runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})

	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geopark_pipeline_last_run_timestamp_seconds",
		Help: "Unix time the last pipeline run finished",
	})

	LastRunCompleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geopark_pipeline_last_run_completed",
		Help: "1 if the last run stored its record, 0 otherwise",
	})

	LastTradingDate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geopark_pipeline_last_trading_date_seconds",
		Help: "Trading date of the last stored record as Unix time",
	})
)
