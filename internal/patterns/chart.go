package patterns

import (
	"fmt"
	"sort"

	"crypto-decision-engine/internal/market"
)

const chartPivotWing = 3 // candles each side confirming a pivot high/low

// Level is one clustered support or resistance level.
type Level struct {
	Price      float64
	Touches    int
	LastPivot  int // window index of the most recent contributing pivot
}

type chartPivot struct {
	index int
	price float64
}

// detectChart runs the window-wide detections: support/resistance
// proximity, double top/bottom and head & shoulders.
func (d *Detector) detectChart(w market.Window) []Detected {
	var out []Detected
	if len(w) < 2*chartPivotWing+1 {
		return out
	}

	highs := pivotPoints(w.Highs(), true)
	lows := pivotPoints(w.Lows(), false)
	price := w.Last().Close

	// Support/resistance: cluster pivots into levels and signal when the
	// last close sits on one.
	supports := d.clusterLevels(lows)
	resistances := d.clusterLevels(highs)

	if lvl, ok := nearestLevel(supports, price, d.cfg.ProximityRatio); ok && price >= lvl.Price {
		out = append(out, Detected{
			Type:       SupportTouch,
			Direction:  1,
			Confidence: touchConfidence(lvl.Touches),
			Detail:     fmt.Sprintf("price %.4f at support %.4f (%d touches)", price, lvl.Price, lvl.Touches),
		})
	}
	if lvl, ok := nearestLevel(resistances, price, d.cfg.ProximityRatio); ok && price <= lvl.Price {
		out = append(out, Detected{
			Type:       ResistanceTouch,
			Direction:  -1,
			Confidence: touchConfidence(lvl.Touches),
			Detail:     fmt.Sprintf("price %.4f at resistance %.4f (%d touches)", price, lvl.Price, lvl.Touches),
		})
	}

	if det, ok := d.detectDoubleTop(w, highs, lows); ok {
		out = append(out, det)
	}
	if det, ok := d.detectDoubleBottom(w, highs, lows); ok {
		out = append(out, det)
	}
	if det, ok := d.detectHeadShoulders(highs); ok {
		out = append(out, det)
	}

	return out
}

// SupportResistance exposes the clustered levels for a window, ranked by
// touch count and recency. Used by the control API for inspection.
func (d *Detector) SupportResistance(w market.Window) (supports, resistances []Level) {
	if len(w) < 2*chartPivotWing+1 {
		return nil, nil
	}
	return d.clusterLevels(pivotPoints(w.Lows(), false)),
		d.clusterLevels(pivotPoints(w.Highs(), true))
}

// pivotPoints returns local extrema confirmed by chartPivotWing neighbors.
func pivotPoints(values []float64, highs bool) []chartPivot {
	var out []chartPivot
	for i := chartPivotWing; i < len(values)-chartPivotWing; i++ {
		extremum := true
		for j := i - chartPivotWing; j <= i+chartPivotWing; j++ {
			if highs && values[j] > values[i] {
				extremum = false
				break
			}
			if !highs && values[j] < values[i] {
				extremum = false
				break
			}
		}
		if extremum {
			out = append(out, chartPivot{index: i, price: values[i]})
		}
	}
	return out
}

// clusterLevels merges pivots within the tolerance band into one level
// and ranks the result by touch count, then recency.
func (d *Detector) clusterLevels(pivots []chartPivot) []Level {
	if len(pivots) == 0 {
		return nil
	}
	sorted := make([]chartPivot, len(pivots))
	copy(sorted, pivots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].price < sorted[j].price })

	var levels []Level
	sum := sorted[0].price
	count := 1
	lastIdx := sorted[0].index
	anchor := sorted[0].price

	flush := func() {
		levels = append(levels, Level{Price: sum / float64(count), Touches: count, LastPivot: lastIdx})
	}
	for _, p := range sorted[1:] {
		if anchor > 0 && (p.price-anchor)/anchor <= d.cfg.LevelTolerance {
			sum += p.price
			count++
			if p.index > lastIdx {
				lastIdx = p.index
			}
			continue
		}
		flush()
		sum = p.price
		count = 1
		lastIdx = p.index
		anchor = p.price
	}
	flush()

	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Touches != levels[j].Touches {
			return levels[i].Touches > levels[j].Touches
		}
		return levels[i].LastPivot > levels[j].LastPivot
	})
	return levels
}

func nearestLevel(levels []Level, price, proximity float64) (Level, bool) {
	for _, lvl := range levels {
		if lvl.Price == 0 {
			continue
		}
		diff := price - lvl.Price
		if diff < 0 {
			diff = -diff
		}
		if diff/lvl.Price <= proximity {
			return lvl, true
		}
	}
	return Level{}, false
}

func touchConfidence(touches int) float64 {
	conf := 0.4 + 0.1*float64(touches)
	if conf > 0.85 {
		conf = 0.85
	}
	return conf
}

// detectDoubleTop requires the last two pivot highs to be comparable and
// separated by a retracement deeper than MinRetracement.
func (d *Detector) detectDoubleTop(w market.Window, highs, lows []chartPivot) (Detected, bool) {
	if len(highs) < 2 {
		return Detected{}, false
	}
	p1, p2 := highs[len(highs)-2], highs[len(highs)-1]
	if p1.price == 0 {
		return Detected{}, false
	}
	diff := (p2.price - p1.price) / p1.price
	if diff < 0 {
		diff = -diff
	}
	if diff > d.cfg.LevelTolerance {
		return Detected{}, false
	}
	valley, ok := lowestBetween(w, p1.index, p2.index)
	if !ok {
		return Detected{}, false
	}
	depth := (p1.price - valley) / p1.price
	if depth < d.cfg.MinRetracement {
		return Detected{}, false
	}
	return Detected{
		Type:       DoubleTop,
		Direction:  -1,
		Confidence: clampConf(0.55+depth*2, 0.55, 0.85),
		Detail:     fmt.Sprintf("double top at %.4f/%.4f, retracement %.1f%%", p1.price, p2.price, depth*100),
	}, true
}

// detectDoubleBottom is the mirror of detectDoubleTop on pivot lows.
func (d *Detector) detectDoubleBottom(w market.Window, highs, lows []chartPivot) (Detected, bool) {
	if len(lows) < 2 {
		return Detected{}, false
	}
	p1, p2 := lows[len(lows)-2], lows[len(lows)-1]
	if p1.price == 0 {
		return Detected{}, false
	}
	diff := (p2.price - p1.price) / p1.price
	if diff < 0 {
		diff = -diff
	}
	if diff > d.cfg.LevelTolerance {
		return Detected{}, false
	}
	peak, ok := highestBetween(w, p1.index, p2.index)
	if !ok {
		return Detected{}, false
	}
	depth := (peak - p1.price) / p1.price
	if depth < d.cfg.MinRetracement {
		return Detected{}, false
	}
	return Detected{
		Type:       DoubleBottom,
		Direction:  1,
		Confidence: clampConf(0.55+depth*2, 0.55, 0.85),
		Detail:     fmt.Sprintf("double bottom at %.4f/%.4f, retracement %.1f%%", p1.price, p2.price, depth*100),
	}, true
}

// detectHeadShoulders requires three pivot highs with the middle strictly
// highest and the two shoulders within the symmetry tolerance.
func (d *Detector) detectHeadShoulders(highs []chartPivot) (Detected, bool) {
	if len(highs) < 3 {
		return Detected{}, false
	}
	left := highs[len(highs)-3]
	head := highs[len(highs)-2]
	right := highs[len(highs)-1]

	if head.price <= left.price || head.price <= right.price || left.price == 0 {
		return Detected{}, false
	}
	asym := (left.price - right.price) / left.price
	if asym < 0 {
		asym = -asym
	}
	if asym > d.cfg.ShoulderSymmetry {
		return Detected{}, false
	}
	// Confidence scales with shoulder symmetry: perfectly even shoulders
	// give the clearest pattern.
	symmetry := 1 - asym/d.cfg.ShoulderSymmetry
	return Detected{
		Type:       HeadShoulders,
		Direction:  -1,
		Confidence: clampConf(0.55+0.3*symmetry, 0.55, 0.85),
		Detail: fmt.Sprintf("head and shoulders: %.4f / %.4f / %.4f, symmetry %.0f%%",
			left.price, head.price, right.price, symmetry*100),
	}, true
}

func lowestBetween(w market.Window, from, to int) (float64, bool) {
	if from >= to || to >= len(w) {
		return 0, false
	}
	low := w[from].Low
	for i := from + 1; i <= to; i++ {
		if w[i].Low < low {
			low = w[i].Low
		}
	}
	return low, true
}

func highestBetween(w market.Window, from, to int) (float64, bool) {
	if from >= to || to >= len(w) {
		return 0, false
	}
	high := w[from].High
	for i := from + 1; i <= to; i++ {
		if w[i].High > high {
			high = w[i].High
		}
	}
	return high, true
}
