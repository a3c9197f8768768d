package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/agentictrader/marketdata/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// fakeStore emulates the idempotent-overwrite semantics of the real
// time-series store: candles are keyed by (bucket, symbol, timeframe,
// timestamp) so a rewrite replaces rather than duplicates.
type fakeStore struct {
	mu         sync.Mutex
	ticks      map[string][]models.Tick
	candles    map[string]map[string]models.Candle
	tickWrites int
	failWrites bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ticks:   make(map[string][]models.Tick),
		candles: make(map[string]map[string]models.Candle),
	}
}

func (s *fakeStore) WriteTicks(_ context.Context, bucket string, ticks []models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return &models.TransientWriteError{Err: errors.New("store down")}
	}
	s.ticks[bucket] = append(s.ticks[bucket], ticks...)
	s.tickWrites++
	return nil
}

func (s *fakeStore) WriteCandles(_ context.Context, bucket string, candles []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return &models.TransientWriteError{Err: errors.New("store down")}
	}
	if s.candles[bucket] == nil {
		s.candles[bucket] = make(map[string]models.Candle)
	}
	for _, candle := range candles {
		key := candle.Symbol + "|" + candle.Timeframe + "|" + candle.Timestamp.UTC().Format(time.RFC3339)
		s.candles[bucket][key] = candle
	}
	return nil
}

func (s *fakeStore) QueryCandles(context.Context, string, string, time.Time, time.Time) ([]models.Candle, error) {
	return nil, nil
}

func (s *fakeStore) LastCandle(context.Context, string, string) (*models.Candle, error) {
	return nil, nil
}

func (s *fakeStore) DeleteRange(context.Context, string, time.Time, time.Time, string) error {
	return nil
}

func (s *fakeStore) BucketExists(context.Context, string) (bool, error) { return true, nil }

func (s *fakeStore) CreateBucket(context.Context, string, string) error { return nil }

func (s *fakeStore) BucketRetention(context.Context, string) (string, error) { return "7d", nil }

func (s *fakeStore) SetBucketRetention(context.Context, string, string) error { return nil }

func (s *fakeStore) Close() {}

func (s *fakeStore) bucketCandles(bucket string) []models.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.Candle, 0, len(s.candles[bucket]))
	for _, candle := range s.candles[bucket] {
		result = append(result, candle)
	}
	return result
}

func (s *fakeStore) bucketTicks(bucket string) []models.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks[bucket]
}

func tickAt(symbol string, at time.Time, price float64) models.Tick {
	return models.Tick{Symbol: symbol, Timestamp: at, Price: decimal.NewFromFloat(price), PipSize: 4}
}

func TestProcessTickValidation(t *testing.T) {
	store := newFakeStore()
	pipe := New(store, Config{BucketPrefix: "market_data", BatchSize: 10}, testLogger())
	ctx := context.Background()

	tests := []struct {
		name string
		tick models.Tick
	}{
		{"Empty symbol", models.Tick{Timestamp: time.Now(), Price: decimal.NewFromInt(1)}},
		{"Zero price", models.Tick{Symbol: "EURUSD", Timestamp: time.Now()}},
		{"Missing timestamp", models.Tick{Symbol: "EURUSD", Price: decimal.NewFromInt(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pipe.ProcessTick(ctx, tt.tick)
			var validation *models.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
		})
	}

	// Rejected ticks must leave no trace in the buffer.
	if pipe.PendingTicks("EURUSD") != 0 {
		t.Errorf("Invalid ticks were buffered: %d pending", pipe.PendingTicks("EURUSD"))
	}
}

// Feed 5 ticks per minute for 10 minutes and drain: the M1 bucket holds
// exactly 10 candles of volume 5 and the M5 bucket exactly 2 candles of
// volume 25.
func TestEndToEndScenario(t *testing.T) {
	store := newFakeStore()
	pipe := New(store, Config{BucketPrefix: "market_data", BatchSize: 20}, testLogger())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for minute := 0; minute < 10; minute++ {
		for i := 0; i < 5; i++ {
			at := base.Add(time.Duration(minute)*time.Minute + time.Duration(i*10)*time.Second)
			if err := pipe.ProcessTick(ctx, tickAt("EURUSD", at, 1.08+float64(minute)*0.001)); err != nil {
				t.Fatalf("ProcessTick returned error: %v", err)
			}
		}
	}

	if err := pipe.Close(ctx); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	m1 := store.bucketCandles("market_data_m1")
	if len(m1) != 10 {
		t.Fatalf("Expected 10 M1 candles, got %d", len(m1))
	}
	for _, candle := range m1 {
		if candle.Volume != 5 {
			t.Errorf("M1 candle at %v has volume %d, expected 5", candle.Timestamp, candle.Volume)
		}
	}

	m5 := store.bucketCandles("market_data_m5")
	if len(m5) != 2 {
		t.Fatalf("Expected 2 M5 candles, got %d", len(m5))
	}
	for _, candle := range m5 {
		if candle.Volume != 25 {
			t.Errorf("M5 candle at %v has volume %d, expected 25", candle.Timestamp, candle.Volume)
		}
	}

	// All 50 raw ticks land in the tick bucket: two size-triggered batches
	// of 20 and a forced drain of the remaining 10.
	ticks := store.bucketTicks("market_data_ticks")
	if len(ticks) != 50 {
		t.Errorf("Expected 50 raw ticks written, got %d", len(ticks))
	}

	// No coarser timeframes with only 10 minutes of history.
	if got := store.bucketCandles("market_data_m15"); len(got) != 0 {
		t.Errorf("Expected no M15 candles with 10 minutes of history, got %d", len(got))
	}
}

func TestCandleContinuityAcrossBars(t *testing.T) {
	store := newFakeStore()
	pipe := New(store, Config{BucketPrefix: "market_data", BatchSize: 100}, testLogger())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := pipe.ProcessTick(ctx, tickAt("EURUSD", base.Add(10*time.Second), 1.10)); err != nil {
		t.Fatal(err)
	}
	if err := pipe.ProcessTick(ctx, tickAt("EURUSD", base.Add(50*time.Second), 1.20)); err != nil {
		t.Fatal(err)
	}
	if err := pipe.ProcessTick(ctx, tickAt("EURUSD", base.Add(65*time.Second), 1.30)); err != nil {
		t.Fatal(err)
	}

	open, ok := pipe.OpenCandle("EURUSD")
	if !ok {
		t.Fatal("Expected an open candle after rollover")
	}
	if !open.Open.Equal(decimal.NewFromFloat(1.20)) {
		t.Errorf("New bar should open at the previous close 1.20, got %s", open.Open)
	}
}

func TestIngestHistory(t *testing.T) {
	store := newFakeStore()
	pipe := New(store, Config{BucketPrefix: "market_data", BatchSize: 7}, testLogger())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var ticks []models.Tick
	for minute := 0; minute < 6; minute++ {
		for i := 0; i < 3; i++ {
			at := base.Add(time.Duration(minute)*time.Minute + time.Duration(i*15)*time.Second)
			ticks = append(ticks, tickAt("EURUSD", at, 1.08))
		}
	}

	err := pipe.IngestHistory(ctx, models.TickHistoryResponse{
		Symbol:  "EURUSD",
		Ticks:   ticks,
		PipSize: 4,
	})
	if err != nil {
		t.Fatalf("IngestHistory returned error: %v", err)
	}

	// All 6 minutes persisted, the trailing bar through the force flush.
	m1 := store.bucketCandles("market_data_m1")
	if len(m1) != 6 {
		t.Fatalf("Expected 6 M1 candles, got %d", len(m1))
	}
	if len(store.bucketTicks("market_data_ticks")) != 18 {
		t.Errorf("Expected all 18 historical ticks written, got %d", len(store.bucketTicks("market_data_ticks")))
	}
	if pipe.PendingTicks("EURUSD") != 0 {
		t.Errorf("History ingest should drain the buffer, %d pending", pipe.PendingTicks("EURUSD"))
	}
	if _, ok := pipe.OpenCandle("EURUSD"); ok {
		t.Error("History ingest should force-flush the open candle")
	}
}

// An unset batch size must not hang the history replay loop.
func TestIngestHistoryUnsetBatchSize(t *testing.T) {
	store := newFakeStore()
	pipe := New(store, Config{BucketPrefix: "market_data"}, testLogger())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var ticks []models.Tick
	for minute := 0; minute < 3; minute++ {
		ticks = append(ticks, tickAt("EURUSD", base.Add(time.Duration(minute)*time.Minute), 1.08))
	}

	done := make(chan error, 1)
	go func() {
		done <- pipe.IngestHistory(ctx, models.TickHistoryResponse{
			Symbol:  "EURUSD",
			Ticks:   ticks,
			PipSize: 4,
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("IngestHistory returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("IngestHistory did not terminate with an unset batch size")
	}

	if got := store.bucketCandles("market_data_m1"); len(got) != 3 {
		t.Errorf("Expected 3 M1 candles, got %d", len(got))
	}
}

// Coarse candles from the fan-out must stay on fixed timestamps even
// after the rolling M1 history starts being trimmed, so rewrites keep
// replacing the same points instead of leaving drifted near-duplicates.
func TestFanOutTimestampsStableAcrossTrim(t *testing.T) {
	// Like the production cap, the shrunken cap is a multiple of every
	// conversion ratio that can come into play at this history length.
	oldCap := historyCap
	historyCap = 15
	defer func() { historyCap = oldCap }()

	store := newFakeStore()
	pipe := New(store, Config{BucketPrefix: "market_data", BatchSize: 1000}, testLogger())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for minute := 0; minute < 70; minute++ {
		if err := pipe.ProcessTick(ctx, tickAt("EURUSD", base.Add(time.Duration(minute)*time.Minute), 1.08)); err != nil {
			t.Fatalf("ProcessTick returned error: %v", err)
		}
	}

	grids := map[string]time.Duration{
		"market_data_m5":  5 * time.Minute,
		"market_data_m15": 15 * time.Minute,
	}
	for bucket, grid := range grids {
		candles := store.bucketCandles(bucket)
		if len(candles) == 0 {
			t.Fatalf("Expected candles in %s from the fan-out", bucket)
		}
		for _, candle := range candles {
			if candle.Timestamp.Sub(base)%grid != 0 {
				t.Errorf("%s candle at %v is off its timeframe grid", bucket, candle.Timestamp)
			}
		}
	}
}

func TestWriteFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.failWrites = true
	pipe := New(store, Config{BucketPrefix: "market_data", BatchSize: 100}, testLogger())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := pipe.ProcessTick(ctx, tickAt("EURUSD", base, 1.08)); err != nil {
		t.Fatalf("In-memory processing should not fail: %v", err)
	}

	// The rollover tick triggers a candle write, which fails.
	err := pipe.ProcessTick(ctx, tickAt("EURUSD", base.Add(time.Minute), 1.09))
	var transient *models.TransientWriteError
	if !errors.As(err, &transient) {
		t.Fatalf("Expected TransientWriteError, got %v", err)
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	candles []models.Candle
}

func (p *recordingPublisher) PublishCandle(candle models.Candle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles = append(p.candles, candle)
	return nil
}

func TestFinalizedCandlesPublished(t *testing.T) {
	store := newFakeStore()
	pub := &recordingPublisher{}
	pipe := New(store, Config{BucketPrefix: "market_data", BatchSize: 100}, testLogger(), WithPublisher(pub))
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for minute := 0; minute < 3; minute++ {
		if err := pipe.ProcessTick(ctx, tickAt("EURUSD", base.Add(time.Duration(minute)*time.Minute), 1.08)); err != nil {
			t.Fatal(err)
		}
	}
	if err := pipe.Close(ctx); err != nil {
		t.Fatal(err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.candles) != 3 {
		t.Errorf("Expected 3 published candles, got %d", len(pub.candles))
	}
}
