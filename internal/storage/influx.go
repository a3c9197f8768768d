package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/shopspring/decimal"

	"github.com/agentictrader/marketdata/internal/models"
	"github.com/agentictrader/marketdata/internal/timeframe"
)

const (
	tickMeasurement   = "tick"
	candleMeasurement = "ohlcv"
)

// influxStore implements Store on top of an InfluxDB 2.x server.
// The client is injected by the caller, which owns its lifecycle.
type influxStore struct {
	client influxdb2.Client
	org    string
}

// NewInfluxStore creates a Store backed by the given InfluxDB client and
// organization. It verifies connectivity with a ping before returning.
func NewInfluxStore(ctx context.Context, client influxdb2.Client, org string) (Store, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("influxdb ping failed: %w", err)
	}
	return &influxStore{client: client, org: org}, nil
}

// WriteTicks writes raw ticks as "tick" points tagged by symbol. Prices
// are converted to float at this boundary only.
func (s *influxStore) WriteTicks(ctx context.Context, bucket string, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	writeAPI := s.client.WriteAPIBlocking(s.org, bucket)
	for _, tick := range ticks {
		point := influxdb2.NewPoint(
			tickMeasurement,
			map[string]string{"symbol": tick.Symbol},
			map[string]interface{}{
				"price":    tick.Price.InexactFloat64(),
				"pip_size": tick.PipSize,
			},
			tick.Timestamp,
		)
		if err := writeAPI.WritePoint(ctx, point); err != nil {
			return &models.TransientWriteError{Err: err}
		}
	}
	return nil
}

// WriteCandles writes OHLCV bars as "ohlcv" points tagged by symbol and
// timeframe, timestamped at the bar open. Rewriting the same bar replaces
// the previous point, which keeps retries and backfill replays idempotent.
func (s *influxStore) WriteCandles(ctx context.Context, bucket string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	writeAPI := s.client.WriteAPIBlocking(s.org, bucket)
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			candleMeasurement,
			map[string]string{
				"symbol":    candle.Symbol,
				"timeframe": candle.Timeframe,
			},
			map[string]interface{}{
				"open":   candle.Open.InexactFloat64(),
				"high":   candle.High.InexactFloat64(),
				"low":    candle.Low.InexactFloat64(),
				"close":  candle.Close.InexactFloat64(),
				"volume": candle.Volume,
			},
			candle.Timestamp,
		)
		if err := writeAPI.WritePoint(ctx, point); err != nil {
			return &models.TransientWriteError{Err: err}
		}
	}
	return nil
}

// QueryCandles reads bars for a symbol within [start, stop), pivoted back
// into one row per bar and sorted oldest first.
func (s *influxStore) QueryCandles(ctx context.Context, bucket, symbol string, start, stop time.Time) ([]models.Candle, error) {
	flux := fmt.Sprintf(`
		from(bucket: %q)
			|> range(start: %s, stop: %s)
			|> filter(fn: (r) => r["_measurement"] == %q)
			|> filter(fn: (r) => r["symbol"] == %q)
			|> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"])`,
		bucket, start.UTC().Format(time.RFC3339), stop.UTC().Format(time.RFC3339),
		candleMeasurement, symbol,
	)

	result, err := s.client.QueryAPI(s.org).Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("candle query failed: %w", err)
	}

	var candles []models.Candle
	for result.Next() {
		record := result.Record()
		candles = append(candles, models.Candle{
			Symbol:    stringValue(record.ValueByKey("symbol")),
			Timeframe: stringValue(record.ValueByKey("timeframe")),
			Timestamp: record.Time(),
			Open:      decimalValue(record.ValueByKey("open")),
			High:      decimalValue(record.ValueByKey("high")),
			Low:       decimalValue(record.ValueByKey("low")),
			Close:     decimalValue(record.ValueByKey("close")),
			Volume:    intValue(record.ValueByKey("volume")),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("candle query failed: %w", err)
	}
	return candles, nil
}

// LastCandle returns the most recent bar for a symbol in the bucket.
func (s *influxStore) LastCandle(ctx context.Context, bucket, symbol string) (*models.Candle, error) {
	flux := fmt.Sprintf(`
		from(bucket: %q)
			|> range(start: 0)
			|> filter(fn: (r) => r["_measurement"] == %q)
			|> filter(fn: (r) => r["symbol"] == %q)
			|> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"])
			|> last(column: "_time")`,
		bucket, candleMeasurement, symbol,
	)

	result, err := s.client.QueryAPI(s.org).Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("last candle query failed: %w", err)
	}

	var last *models.Candle
	for result.Next() {
		record := result.Record()
		last = &models.Candle{
			Symbol:    stringValue(record.ValueByKey("symbol")),
			Timeframe: stringValue(record.ValueByKey("timeframe")),
			Timestamp: record.Time(),
			Open:      decimalValue(record.ValueByKey("open")),
			High:      decimalValue(record.ValueByKey("high")),
			Low:       decimalValue(record.ValueByKey("low")),
			Close:     decimalValue(record.ValueByKey("close")),
			Volume:    intValue(record.ValueByKey("volume")),
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("last candle query failed: %w", err)
	}
	return last, nil
}

// DeleteRange removes points in [start, stop) from the bucket. When
// measurement is non-empty the delete is restricted to it.
func (s *influxStore) DeleteRange(ctx context.Context, bucket string, start, stop time.Time, measurement string) error {
	predicate := ""
	if measurement != "" {
		predicate = fmt.Sprintf(`_measurement=%q`, measurement)
	}
	return s.client.DeleteAPI().DeleteWithName(ctx, s.org, bucket, start, stop, predicate)
}

// BucketExists reports whether the named bucket exists.
func (s *influxStore) BucketExists(ctx context.Context, name string) (bool, error) {
	bucket, err := s.client.BucketsAPI().FindBucketByName(ctx, name)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, err
	}
	return bucket != nil, nil
}

// CreateBucket creates the bucket with an expire rule parsed from the
// retention duration string. An already-existing bucket is left untouched.
func (s *influxStore) CreateBucket(ctx context.Context, name, retention string) error {
	exists, err := s.BucketExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	seconds, err := timeframe.ParseDuration(retention)
	if err != nil {
		return err
	}

	org, err := s.client.OrganizationsAPI().FindOrganizationByName(ctx, s.org)
	if err != nil {
		return fmt.Errorf("organization %q lookup failed: %w", s.org, err)
	}

	_, err = s.client.BucketsAPI().CreateBucketWithName(ctx, org, name, expireRule(seconds))
	if err != nil {
		return fmt.Errorf("bucket %q creation failed: %w", name, err)
	}
	return nil
}

// SetBucketRetention replaces the bucket's retention with an expire rule
// parsed from the duration string.
func (s *influxStore) SetBucketRetention(ctx context.Context, name, retention string) error {
	seconds, err := timeframe.ParseDuration(retention)
	if err != nil {
		return err
	}

	bucket, err := s.client.BucketsAPI().FindBucketByName(ctx, name)
	if err != nil {
		return fmt.Errorf("bucket %q lookup failed: %w", name, err)
	}

	bucket.RetentionRules = domain.RetentionRules{expireRule(seconds)}
	if _, err := s.client.BucketsAPI().UpdateBucket(ctx, bucket); err != nil {
		return fmt.Errorf("bucket %q retention update failed: %w", name, err)
	}
	return nil
}

// expireRule builds an expire retention rule. The rule type is a pointer
// in the bucket API's domain model.
func expireRule(seconds int64) domain.RetentionRule {
	ruleType := domain.RetentionRuleTypeExpire
	return domain.RetentionRule{Type: &ruleType, EverySeconds: seconds}
}

// BucketRetention returns the bucket's retention as a duration string.
func (s *influxStore) BucketRetention(ctx context.Context, name string) (string, error) {
	bucket, err := s.client.BucketsAPI().FindBucketByName(ctx, name)
	if err != nil {
		return "", err
	}
	if len(bucket.RetentionRules) == 0 || bucket.RetentionRules[0].EverySeconds == 0 {
		return "infinite", nil
	}
	return timeframe.FormatDuration(bucket.RetentionRules[0].EverySeconds), nil
}

// Close releases the underlying client.
func (s *influxStore) Close() {
	s.client.Close()
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

func decimalValue(v interface{}) decimal.Decimal {
	f, ok := v.(float64)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func intValue(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
