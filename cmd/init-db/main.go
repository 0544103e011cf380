package main

import (
	"context"
	"flag"
	"time"

	"geopark-pipeline/internal/app"
	"geopark-pipeline/internal/store"

	"github.com/sirupsen/logrus"
)

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Parse()

	cfg, log, closer, err := app.Bootstrap(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rs, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer rs.Close(ctx)

	if err := rs.Ping(ctx); err != nil {
		log.WithError(err).Fatal("store unreachable")
	}
	if err := rs.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("failed to ensure schema")
	}
	log.WithFields(logrus.Fields{
		"database":   cfg.Store.Database,
		"collection": cfg.Store.Collection,
	}).Info("unique trading date index in place")
}
