package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geopark-pipeline/internal/api"
	"geopark-pipeline/internal/app"
	"geopark-pipeline/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to config file (json, yaml or toml)")
	flag.Parse()

	cfg, log, closer, err := app.Bootstrap(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize pipeline")
	}
	defer a.Close(context.Background())

	// scheduled runs use their own context so shutdown lets an in-flight run finish storing
	job := func() { a.Pipeline.Run(context.Background(), "schedule") }
	sched, err := scheduler.NewDaily(cfg.Schedule.Time, time.Local, job, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create scheduler")
	}
	sched.Start()

	if cfg.RunOnStart {
		go a.Pipeline.Run(context.Background(), "startup")
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(a.Pipeline, a.Store,
		api.WithTitle(cfg.Report.Title),
		api.WithNextRun(sched.Next),
		api.WithLogger(log),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("scheduled run still in flight at exit")
	}
}
