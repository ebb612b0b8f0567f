package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// LoadCSV reads a candle series from a CSV file with the columns
// open_time,open,high,low,close,volume,close_time (header optional).
func LoadCSV(path string) (Window, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read candle file %s: %w", path, err)
	}

	var w Window
	for i, row := range rows {
		if len(row) < 7 {
			return nil, fmt.Errorf("candle file %s row %d: expected 7 columns, got %d", path, i+1, len(row))
		}
		openTime, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("candle file %s row %d: %w", path, i+1, err)
		}
		vals := make([]float64, 5)
		for j := 1; j <= 5; j++ {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, fmt.Errorf("candle file %s row %d col %d: %w", path, i+1, j+1, err)
			}
			vals[j-1] = v
		}
		closeTime, err := strconv.ParseInt(row[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("candle file %s row %d: %w", path, i+1, err)
		}
		w = append(w, Candle{
			OpenTime:  openTime,
			CloseTime: closeTime,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	if err := w.Validate(1); err != nil {
		return nil, fmt.Errorf("candle file %s: %w", path, err)
	}
	return w, nil
}

// ReplaySupplier serves windows from a pre-loaded series, advancing one
// candle per call. It stands in for a live feed when the engine runs
// against historical data.
type ReplaySupplier struct {
	mu     sync.Mutex
	series Window
	cursor int
}

func NewReplaySupplier(series Window, start int) *ReplaySupplier {
	if start <= 0 || start > len(series) {
		start = len(series)
	}
	return &ReplaySupplier{series: series, cursor: start}
}

func (r *ReplaySupplier) GetWindow(_ context.Context, _, _ string, minLength int) (Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor < minLength {
		return nil, ErrInsufficientData
	}
	w := r.series[:r.cursor]
	if r.cursor < len(r.series) {
		r.cursor++
	}
	return w, nil
}

// StaticAccountSupplier returns a fixed account snapshot. Used for
// paper trading and replays where no broker account exists.
type StaticAccountSupplier struct {
	Snapshot AccountSnapshot
}

func (s *StaticAccountSupplier) GetAccount(context.Context) (AccountSnapshot, error) {
	return s.Snapshot, nil
}
