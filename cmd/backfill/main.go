// Command backfill replays historical ticks through the ingestion
// pipeline in daily windows.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/agentictrader/marketdata/configs"
	"github.com/agentictrader/marketdata/internal/deriv"
	"github.com/agentictrader/marketdata/internal/logging"
	"github.com/agentictrader/marketdata/internal/models"
	"github.com/agentictrader/marketdata/internal/pipeline"
	"github.com/agentictrader/marketdata/internal/storage"
)

func main() {
	symbol := flag.String("symbol", "", "vendor symbol to backfill")
	days := flag.Int("days", 7, "number of days of history to fetch")
	flag.Parse()

	logger := logging.NewLogger()
	appConfig := configs.AppLoad()

	if *symbol == "" {
		logger.Error("No symbol given, use -symbol")
		os.Exit(1)
	}

	ctx := context.Background()

	influxClient := influxdb2.NewClient(appConfig.Influx.URL, appConfig.Influx.Token)
	defer influxClient.Close()

	store, err := storage.NewInfluxStore(ctx, influxClient, appConfig.Influx.Org)
	if err != nil {
		logger.Errorf("Failed to connect to InfluxDB: %v", err)
		os.Exit(1)
	}

	if err := storage.EnsureBuckets(ctx, store, appConfig.Pipeline.BucketPrefix); err != nil {
		logger.Errorf("Failed to ensure buckets: %v", err)
		os.Exit(1)
	}

	pipe := pipeline.New(store, pipeline.Config{
		BucketPrefix: appConfig.Pipeline.BucketPrefix,
		BatchSize:    appConfig.Pipeline.BatchSize,
	}, logger)

	client := deriv.NewClient(deriv.Config{
		AppID:              appConfig.Deriv.AppID,
		Endpoint:           appConfig.Deriv.Endpoint,
		RateLimitPerSecond: appConfig.Deriv.RateLimitPerSecond,
	}, logger)

	end := time.Now().UTC().Truncate(time.Minute)
	start := end.AddDate(0, 0, -*days)

	// One request per day keeps responses within the vendor's tick count
	// limits; the pipeline path is identical to live ingestion either way.
	for windowStart := start; windowStart.Before(end); windowStart = windowStart.AddDate(0, 0, 1) {
		windowEnd := windowStart.AddDate(0, 0, 1)
		if windowEnd.After(end) {
			windowEnd = end
		}

		resp, err := client.GetTickHistory(ctx, models.TickHistoryRequest{
			Symbol:          *symbol,
			Start:           windowStart,
			End:             windowEnd,
			Style:           "ticks",
			AdjustStartTime: true,
		})
		if err != nil {
			logger.Errorf("History fetch failed for %s [%s, %s): %v", *symbol, windowStart, windowEnd, err)
			os.Exit(1)
		}

		if err := pipe.IngestHistory(ctx, *resp); err != nil {
			logger.Errorf("Backfill ingest failed for %s: %v", *symbol, err)
			os.Exit(1)
		}
		logger.Infof("Backfilled %d ticks for %s [%s, %s)", len(resp.Ticks), *symbol, windowStart, windowEnd)
	}

	if err := pipe.Close(ctx); err != nil {
		logger.Errorf("Pipeline drain failed: %v", err)
		os.Exit(1)
	}
	logger.Info("Backfill complete")
}
