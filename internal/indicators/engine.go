package indicators

import (
	"fmt"

	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/market"
)

// Config holds indicator periods and normalization parameters. All values
// are configuration, not hard invariants.
type Config struct {
	SMAFast int `json:"sma_fast"` // default 50
	SMAMid  int `json:"sma_mid"`  // default 100
	SMASlow int `json:"sma_slow"` // default 200

	RSIPeriod          int `json:"rsi_period"`          // default 14
	DivergenceLookback int `json:"divergence_lookback"` // default 30

	MACDFast   int `json:"macd_fast"`   // default 12
	MACDSlow   int `json:"macd_slow"`   // default 26
	MACDSignal int `json:"macd_signal"` // default 9

	BollingerPeriod int     `json:"bollinger_period"`  // default 20
	BollingerStdDev float64 `json:"bollinger_std_dev"` // default 2.0

	ATRPeriod int `json:"atr_period"` // default 14

	StochKPeriod int `json:"stoch_k_period"` // default 14
	StochDPeriod int `json:"stoch_d_period"` // default 3

	VolumePeriod    int     `json:"volume_period"`     // default 20
	HighVolumeRatio float64 `json:"high_volume_ratio"` // default 1.5

	ADXPeriod   int     `json:"adx_period"`    // default 14
	ADXTrending float64 `json:"adx_trending"`  // default 25: trend signals scaled up
	ADXRanging  float64 `json:"adx_ranging"`   // default 20: trend signals scaled down
	TrendBoost  float64 `json:"trend_boost"`   // default 1.25
	RangeDamp   float64 `json:"range_damp"`    // default 0.75
}

// DefaultConfig returns the default indicator configuration.
func DefaultConfig() Config {
	return Config{
		SMAFast:            50,
		SMAMid:             100,
		SMASlow:            200,
		RSIPeriod:          14,
		DivergenceLookback: 30,
		MACDFast:           12,
		MACDSlow:           26,
		MACDSignal:         9,
		BollingerPeriod:    20,
		BollingerStdDev:    2.0,
		ATRPeriod:          14,
		StochKPeriod:       14,
		StochDPeriod:       3,
		VolumePeriod:       20,
		HighVolumeRatio:    1.5,
		ADXPeriod:          14,
		ADXTrending:        25,
		ADXRanging:         20,
		TrendBoost:         1.25,
		RangeDamp:          0.75,
	}
}

// Snapshot carries raw indicator values alongside the normalized signals.
// ATR is not directional; the risk manager consumes it for stop sizing.
type Snapshot struct {
	LastClose float64 `json:"last_close"`
	RSI       float64 `json:"rsi"`
	ATR       float64 `json:"atr"`
	ADX       float64 `json:"adx"`
	MACDHist  float64 `json:"macd_histogram"`
	VolRatio  float64 `json:"volume_ratio"`
	HasATR    bool    `json:"has_atr"`
	HasADX    bool    `json:"has_adx"`
}

// Engine computes technical indicators over a candle window and maps each
// to a normalized Signal. An indicator whose required period exceeds the
// window abstains: it is omitted from the output, never zero-filled.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

// NewEngine creates an indicator engine.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	if cfg.RSIPeriod <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "indicators").Logger(),
	}
}

// Analyze computes all configured indicators for the window. The returned
// signal set contains one entry per indicator that had enough data.
func (e *Engine) Analyze(w market.Window) ([]decision.Signal, Snapshot) {
	var signals []decision.Signal
	snap := Snapshot{}

	if len(w) == 0 {
		return signals, snap
	}
	closes := w.Closes()
	highs := w.Highs()
	lows := w.Lows()
	price := closes[len(closes)-1]
	snap.LastClose = price

	// ADX regime factor scales trend-following signals (moving averages,
	// MACD). ADX itself never contributes a direction.
	regime := 1.0
	if v, ok := adx(highs, lows, closes, e.cfg.ADXPeriod); ok {
		snap.ADX = v
		snap.HasADX = true
		switch {
		case v > e.cfg.ADXTrending:
			regime = e.cfg.TrendBoost
		case v < e.cfg.ADXRanging:
			regime = e.cfg.RangeDamp
		}
	}

	// Moving-average trend: price vs SMA fast vs SMA slow. Abstains until
	// the slow period is covered.
	if len(closes) >= e.cfg.SMASlow {
		fast := sma(closes, e.cfg.SMAFast)
		slow := sma(closes, e.cfg.SMASlow)
		dir := 0.0
		switch {
		case price > fast && fast > slow:
			dir = clamp((fast-slow)/slow*25, 0.3, 1)
		case price < fast && fast < slow:
			dir = clamp((fast-slow)/slow*25, -1, -0.3)
		default:
			dir = clamp((fast-slow)/slow*25, -0.3, 0.3)
		}
		signals = append(signals, trendSignal("sma_trend", dir, regime,
			fmt.Sprintf("SMA%d=%.4f vs SMA%d=%.4f", e.cfg.SMAFast, fast, e.cfg.SMASlow, slow)))
	}

	// EMA trend on the shorter pair reacts earlier than the SMA pair.
	if len(closes) >= e.cfg.SMAMid {
		fast := ema(closes, e.cfg.SMAFast)
		mid := ema(closes, e.cfg.SMAMid)
		dir := clamp((fast-mid)/mid*25, -1, 1)
		signals = append(signals, trendSignal("ema_trend", dir, regime,
			fmt.Sprintf("EMA%d=%.4f vs EMA%d=%.4f", e.cfg.SMAFast, fast, e.cfg.SMAMid, mid)))
	}

	// RSI: direction = (50-RSI)/50, so RSI above 70 leans sell.
	if len(closes) > e.cfg.RSIPeriod {
		rsi := rsiAt(closes, len(closes)-1, e.cfg.RSIPeriod)
		snap.RSI = rsi
		dir := clamp((50-rsi)/50, -1, 1)
		detail := fmt.Sprintf("RSI=%.1f", rsi)
		switch {
		case rsi >= 70:
			detail += ", overbought"
		case rsi <= 30:
			detail += ", oversold"
		}
		signals = append(signals, decision.Signal{
			Source:     decision.SourceIndicators,
			Name:       "rsi",
			Direction:  dir,
			Confidence: baseConfidence(dir),
			Detail:     detail,
		})

		// RSI divergence is emitted as its own signal with direction
		// opposite the plain RSI reading.
		if div, ok := e.detectDivergence(closes); ok {
			signals = append(signals, div)
		}
	}

	// MACD histogram sign as directional contribution, normalized by
	// price so the signal is comparable across symbols.
	if line, sig, hist, ok := macd(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal); ok {
		snap.MACDHist = hist
		dir := clamp(hist/(price*0.001), -1, 1)
		signals = append(signals, trendSignal("macd", dir, regime,
			fmt.Sprintf("MACD=%.5f signal=%.5f hist=%.5f", line, sig, hist)))
	}

	// Bollinger: only a close beyond a band contributes, as a
	// mean-reversion opinion against the move.
	if upper, middle, lower, ok := bollinger(closes, e.cfg.BollingerPeriod, e.cfg.BollingerStdDev); ok {
		band := upper - middle
		if band > 0 {
			if price > upper {
				dir := clamp(-(price-upper)/band, -1, -0.2)
				signals = append(signals, decision.Signal{
					Source:     decision.SourceIndicators,
					Name:       "bollinger",
					Direction:  dir,
					Confidence: baseConfidence(dir),
					Detail:     fmt.Sprintf("close %.4f above upper band %.4f", price, upper),
				})
			} else if price < lower {
				dir := clamp((lower-price)/band, 0.2, 1)
				signals = append(signals, decision.Signal{
					Source:     decision.SourceIndicators,
					Name:       "bollinger",
					Direction:  dir,
					Confidence: baseConfidence(dir),
					Detail:     fmt.Sprintf("close %.4f below lower band %.4f", price, lower),
				})
			}
		}
	}

	// Stochastic oscillator, contributing mostly at the extremes.
	if k, d, ok := stochastic(highs, lows, closes, e.cfg.StochKPeriod, e.cfg.StochDPeriod); ok {
		dir := clamp((50-k)/50, -1, 1)
		conf := 0.25 + 0.45*absf(dir)
		if (k > 80 && d > 80) || (k < 20 && d < 20) {
			conf = clamp(conf+0.2, 0, 1)
		}
		signals = append(signals, decision.Signal{
			Source:     decision.SourceIndicators,
			Name:       "stochastic",
			Direction:  dir,
			Confidence: conf,
			Detail:     fmt.Sprintf("%%K=%.1f %%D=%.1f", k, d),
		})
	}

	// Volume confirmation: unusually high volume behind a one-sided candle
	// reinforces the move in that direction. Average volume excludes the
	// current candle so a spike is measured against the preceding baseline.
	if len(w) > e.cfg.VolumePeriod {
		vols := w.Volumes()
		avg := sma(vols[:len(vols)-1], e.cfg.VolumePeriod)
		if avg > 0 {
			ratio := vols[len(vols)-1] / avg
			snap.VolRatio = ratio
			if ratio >= e.cfg.HighVolumeRatio {
				if pressure, ok := volumePressure(w.Last()); ok {
					dir := pressure * clamp(ratio/(2*e.cfg.HighVolumeRatio), 0.3, 1)
					signals = append(signals, decision.Signal{
						Source:     decision.SourceIndicators,
						Name:       "volume",
						Direction:  dir,
						Confidence: baseConfidence(dir),
						Detail:     fmt.Sprintf("volume %.2fx the %d-candle average", ratio, e.cfg.VolumePeriod),
					})
				}
			}
		}
	}

	if v, ok := atr(highs, lows, closes, e.cfg.ATRPeriod); ok {
		snap.ATR = v
		snap.HasATR = true
	}

	e.logger.Debug().
		Int("window", len(w)).
		Int("signals", len(signals)).
		Float64("adx", snap.ADX).
		Float64("atr", snap.ATR).
		Msg("indicator analysis complete")

	return signals, snap
}

// trendSignal builds a trend-following signal with the ADX regime factor
// applied to its confidence.
func trendSignal(name string, dir, regime float64, detail string) decision.Signal {
	return decision.Signal{
		Source:     decision.SourceIndicators,
		Name:       name,
		Direction:  dir,
		Confidence: clamp(baseConfidence(dir)*regime, 0, 1),
		Detail:     detail,
	}
}

// volumePressure classifies the candle behind a volume spike. A bullish
// close with a small upper wick is buying pressure, a bearish close with
// a small lower wick selling pressure. Long opposing wicks mean the spike
// was absorbed, so no direction is attributed.
func volumePressure(c market.Candle) (float64, bool) {
	body := c.Body()
	if body <= 0 {
		return 0, false
	}
	if c.IsBullish() && c.UpperWick() < 0.2*body {
		return 1, true
	}
	if c.IsBearish() && c.LowerWick() < 0.2*body {
		return -1, true
	}
	return 0, false
}

func baseConfidence(dir float64) float64 {
	return clamp(0.3+0.6*absf(dir), 0, 1)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
