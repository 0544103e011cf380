package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"geopark-pipeline/internal/app"

	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "path to config file")
	printJSON  = flag.Bool("json", false, "print the run result as JSON")
)

func main() {
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

	res := a.Pipeline.Run(ctx, "cli")
	a.Close(context.Background())

	if *printJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(res)
	}
	if !res.Completed() {
		os.Exit(1)
	}
}
