package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"geopark-pipeline/internal/app"
	"geopark-pipeline/internal/config"
	"geopark-pipeline/internal/store"

	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "path to config file")
	timeout    = flag.Duration("timeout", 10*time.Second, "connection timeout")
)

func main() {
	flag.Parse()

	cfg, log, closer, err := app.Bootstrap(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := check(ctx, cfg.Store, log); err != nil {
		fmt.Printf("Store check failed: %v\n", err)
		os.Exit(1)
	}
}

func check(ctx context.Context, cfg config.StoreConfig, log logrus.FieldLogger) error {
	target := "gorm"
	if store.IsMongo(cfg.Connection) {
		target = "mongodb"
	}
	fmt.Printf("Connecting to %s store (%s/%s)...\n", target, cfg.Database, cfg.Collection)

	rs, err := store.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rs.Close(ctx)

	if err := rs.Ping(ctx); err != nil {
		return err
	}
	fmt.Println("Connection successful")

	n, err := rs.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Records stored: %d\n", n)

	latest, err := rs.Latest(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		fmt.Println("No records yet (the collection is created on first insert)")
		return nil
	}
	fmt.Printf("Latest record: %s close=%s volume=%d benchmark=%s market_cap=%s\n",
		latest.TradingDate, latest.ClosePrice, latest.Volume, benchmark(latest.BenchmarkPrice.Valid, latest.BenchmarkPrice.Decimal.String()), latest.MarketCapString())
	return nil
}

func benchmark(valid bool, v string) string {
	if !valid {
		return "-"
	}
	return v
}
