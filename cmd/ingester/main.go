package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/sirupsen/logrus"

	"github.com/agentictrader/marketdata/configs"
	"github.com/agentictrader/marketdata/internal/deriv"
	"github.com/agentictrader/marketdata/internal/logging"
	"github.com/agentictrader/marketdata/internal/models"
	"github.com/agentictrader/marketdata/internal/pipeline"
	"github.com/agentictrader/marketdata/internal/publisher"
	"github.com/agentictrader/marketdata/internal/storage"
)

func main() {
	logger := logging.NewLogger()
	appConfig := configs.AppLoad()

	if len(appConfig.Symbols) == 0 {
		logger.Error("No symbols configured, set SYMBOLS")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var opts []pipeline.Option
	if appConfig.Kafka.Enabled {
		candlePublisher, err := publisher.New(appConfig.Kafka.Broker, appConfig.Kafka.Topic, logger)
		if err != nil {
			logger.Errorf("Failed to create candle publisher: %v", err)
			os.Exit(1)
		}
		defer candlePublisher.Close()
		opts = append(opts, pipeline.WithPublisher(candlePublisher))
	}

	pipe := pipeline.New(store, pipeline.Config{
		BucketPrefix: appConfig.Pipeline.BucketPrefix,
		BatchSize:    appConfig.Pipeline.BatchSize,
	}, logger, opts...)

	client := deriv.NewClient(deriv.Config{
		AppID:              appConfig.Deriv.AppID,
		Endpoint:           appConfig.Deriv.Endpoint,
		RateLimitPerSecond: appConfig.Deriv.RateLimitPerSecond,
	}, logger)

	var wg sync.WaitGroup
	for _, symbol := range appConfig.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			consumeTicks(ctx, pipe, client, symbol, logger)
		}(symbol)
	}

	logger.Infof("Ingester started for %d symbols", len(appConfig.Symbols))
	wg.Wait()

	// Drain whatever is still open or buffered before releasing the store.
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pipe.Close(drainCtx); err != nil {
		logger.Errorf("Pipeline drain failed: %v", err)
	}
	logger.Info("Ingester stopped")
}

func consumeTicks(ctx context.Context, pipe *pipeline.Pipeline, client *deriv.Client, symbol string, logger *logrus.Logger) {
	for tick := range client.SubscribeTicks(ctx, symbol) {
		if err := pipe.ProcessTick(ctx, tick); err != nil {
			var validation *models.ValidationError
			if errors.As(err, &validation) {
				logger.Errorf("Dropping invalid tick for %s: %v", symbol, err)
				continue
			}
			logger.Errorf("Failed to process tick for %s: %v", symbol, err)
		}
	}
}
