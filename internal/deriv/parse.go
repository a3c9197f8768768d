package deriv

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agentictrader/marketdata/internal/models"
)

// parseTickFrame decodes one live frame. It returns (nil, nil) for frames
// that are not ticks (subscription confirmations, heartbeats). Quotes are
// decoded as json.Number so the vendor's exact decimal survives into the
// tick.
func parseTickFrame(raw []byte) (*models.Tick, error) {
	var frame tickFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if frame.Error != nil {
		return nil, frame.Error
	}
	if frame.Tick == nil {
		return nil, nil
	}

	price, err := decimal.NewFromString(frame.Tick.Quote.String())
	if err != nil {
		return nil, fmt.Errorf("bad quote %q: %w", frame.Tick.Quote, err)
	}

	return &models.Tick{
		Symbol:    frame.Tick.Symbol,
		Timestamp: time.Unix(frame.Tick.Epoch, 0).UTC(),
		Price:     price,
		PipSize:   frame.Tick.PipSize,
	}, nil
}

// parseHistoryFrame decodes a ticks_history response into the bulk form
// the pipeline replays.
func parseHistoryFrame(symbol string, raw []byte) (*models.TickHistoryResponse, error) {
	var frame historyFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("malformed history frame: %w", err)
	}
	if frame.Error != nil {
		return nil, frame.Error
	}
	if frame.History == nil {
		return nil, fmt.Errorf("history frame missing history payload")
	}
	if len(frame.History.Times) != len(frame.History.Prices) {
		return nil, fmt.Errorf("history frame times/prices length mismatch: %d vs %d",
			len(frame.History.Times), len(frame.History.Prices))
	}

	pipSize := frame.PipSize
	if pipSize == 0 {
		pipSize = 4
	}

	ticks := make([]models.Tick, 0, len(frame.History.Times))
	for i, epoch := range frame.History.Times {
		price, err := decimal.NewFromString(frame.History.Prices[i].String())
		if err != nil {
			return nil, fmt.Errorf("bad history price %q: %w", frame.History.Prices[i], err)
		}
		ticks = append(ticks, models.Tick{
			Symbol:    symbol,
			Timestamp: time.Unix(epoch, 0).UTC(),
			Price:     price,
			PipSize:   pipSize,
		})
	}

	return &models.TickHistoryResponse{
		Symbol:  symbol,
		Ticks:   ticks,
		PipSize: pipSize,
	}, nil
}
