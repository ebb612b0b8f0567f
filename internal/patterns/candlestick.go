package patterns

import (
	"fmt"

	"crypto-decision-engine/internal/market"
)

// detectCandlestick classifies single- and multi-candle patterns on the
// most recent 1-3 candles using body-to-range and wick ratios.
func (d *Detector) detectCandlestick(w market.Window) []Detected {
	var out []Detected
	if len(w) == 0 {
		return out
	}

	last := w.Last()

	if d.isDoji(last) {
		out = append(out, Detected{
			Type:       Doji,
			Direction:  0,
			Confidence: 0.4,
			Detail:     fmt.Sprintf("doji: body %.4f within %.0f%% of range %.4f", last.Body(), d.cfg.DojiBodyRatio*100, last.Range()),
		})
	}
	if d.isHammer(last) {
		out = append(out, Detected{
			Type:       Hammer,
			Direction:  1,
			Confidence: d.wickConfidence(last.LowerWick(), last.Body()),
			Detail:     fmt.Sprintf("hammer: lower wick %.4f vs body %.4f", last.LowerWick(), last.Body()),
		})
	}
	if d.isInvertedHammer(last) {
		out = append(out, Detected{
			Type:       InvertedHammer,
			Direction:  1,
			Confidence: d.wickConfidence(last.UpperWick(), last.Body()) * 0.85,
			Detail:     fmt.Sprintf("inverted hammer: upper wick %.4f vs body %.4f", last.UpperWick(), last.Body()),
		})
	}
	if d.isShootingStar(last) {
		out = append(out, Detected{
			Type:       ShootingStar,
			Direction:  -1,
			Confidence: d.wickConfidence(last.UpperWick(), last.Body()),
			Detail:     fmt.Sprintf("shooting star: upper wick %.4f vs body %.4f", last.UpperWick(), last.Body()),
		})
	}

	if len(w) >= 2 {
		prev := w[len(w)-2]
		if d.isBullishEngulfing(prev, last) {
			out = append(out, Detected{
				Type:       BullishEngulfing,
				Direction:  1,
				Confidence: d.engulfConfidence(prev, last),
				Detail:     fmt.Sprintf("bullish engulfing: body %.4f engulfs %.4f", last.Body(), prev.Body()),
			})
		}
		if d.isBearishEngulfing(prev, last) {
			out = append(out, Detected{
				Type:       BearishEngulfing,
				Direction:  -1,
				Confidence: d.engulfConfidence(prev, last),
				Detail:     fmt.Sprintf("bearish engulfing: body %.4f engulfs %.4f", last.Body(), prev.Body()),
			})
		}
	}

	if len(w) >= 3 {
		c1, c2, c3 := w[len(w)-3], w[len(w)-2], w[len(w)-1]
		if d.isMorningStar(c1, c2, c3) {
			out = append(out, Detected{
				Type:       MorningStar,
				Direction:  1,
				Confidence: d.starConfidence(c1, c3),
				Detail:     "morning star: bearish candle, small star, bullish close above midpoint",
			})
		}
		if d.isEveningStar(c1, c2, c3) {
			out = append(out, Detected{
				Type:       EveningStar,
				Direction:  -1,
				Confidence: d.starConfidence(c1, c3),
				Detail:     "evening star: bullish candle, small star, bearish close below midpoint",
			})
		}
	}

	return out
}

// isDoji: body is at most DojiBodyRatio of the total range.
func (d *Detector) isDoji(c market.Candle) bool {
	r := c.Range()
	if r == 0 {
		return false
	}
	return c.Body()/r <= d.cfg.DojiBodyRatio
}

// isHammer: lower wick at least WickBodyMultiple times the body, body in
// the upper third of the range, little to no upper wick.
func (d *Detector) isHammer(c market.Candle) bool {
	body := c.Body()
	if body == 0 || c.Range() == 0 {
		return false
	}
	bodyBottom := c.Open
	if c.Close < c.Open {
		bodyBottom = c.Close
	}
	inUpperThird := bodyBottom >= c.Low+c.Range()*2/3
	return c.LowerWick() >= body*d.cfg.WickBodyMultiple &&
		c.UpperWick() <= body*0.3 &&
		inUpperThird
}

// isInvertedHammer: mirror of the hammer, long upper wick with the body
// in the lower third.
func (d *Detector) isInvertedHammer(c market.Candle) bool {
	body := c.Body()
	if body == 0 || c.Range() == 0 {
		return false
	}
	bodyTop := c.Open
	if c.Close > c.Open {
		bodyTop = c.Close
	}
	inLowerThird := bodyTop <= c.High-c.Range()*2/3
	return c.UpperWick() >= body*d.cfg.WickBodyMultiple &&
		c.LowerWick() <= body*0.3 &&
		inLowerThird &&
		c.IsBullish()
}

// isShootingStar: inverted-hammer shape closing bearish.
func (d *Detector) isShootingStar(c market.Candle) bool {
	body := c.Body()
	if body == 0 {
		return false
	}
	return c.UpperWick() >= body*d.cfg.WickBodyMultiple &&
		c.LowerWick() <= body*0.3 &&
		c.IsBearish()
}

// isBullishEngulfing: bearish candle followed by a bullish candle whose
// body fully engulfs the previous body.
func (d *Detector) isBullishEngulfing(prev, cur market.Candle) bool {
	if !prev.IsBearish() || !cur.IsBullish() {
		return false
	}
	return cur.Open < prev.Close && cur.Close > prev.Open
}

// isBearishEngulfing: bullish candle followed by a bearish candle whose
// body fully engulfs the previous body.
func (d *Detector) isBearishEngulfing(prev, cur market.Candle) bool {
	if !prev.IsBullish() || !cur.IsBearish() {
		return false
	}
	return cur.Open > prev.Close && cur.Close < prev.Open
}

// isMorningStar: long bearish candle, small star, then a bullish candle
// closing above the midpoint of the first.
func (d *Detector) isMorningStar(c1, c2, c3 market.Candle) bool {
	if !c1.IsBearish() || !c3.IsBullish() {
		return false
	}
	if c2.Body() > c1.Body()*d.cfg.StarBodyRatio {
		return false
	}
	midpoint := (c1.Open + c1.Close) / 2
	return c3.Close > midpoint
}

// isEveningStar: mirror of the morning star.
func (d *Detector) isEveningStar(c1, c2, c3 market.Candle) bool {
	if !c1.IsBullish() || !c3.IsBearish() {
		return false
	}
	if c2.Body() > c1.Body()*d.cfg.StarBodyRatio {
		return false
	}
	midpoint := (c1.Open + c1.Close) / 2
	return c3.Close < midpoint
}

// wickConfidence grows with the wick-to-body ratio beyond the minimum.
func (d *Detector) wickConfidence(wick, body float64) float64 {
	if body == 0 {
		return 0.5
	}
	ratio := wick / body
	conf := 0.5 + 0.1*(ratio-d.cfg.WickBodyMultiple)
	return clampConf(conf, 0.5, 0.9)
}

// engulfConfidence grows with how decisively the current body engulfs.
func (d *Detector) engulfConfidence(prev, cur market.Candle) float64 {
	if prev.Body() == 0 {
		return 0.7
	}
	conf := 0.6 + 0.1*(cur.Body()/prev.Body()-1)
	return clampConf(conf, 0.6, 0.9)
}

// starConfidence grows when the third candle out-sizes the first.
func (d *Detector) starConfidence(c1, c3 market.Candle) float64 {
	conf := 0.7
	if c3.Body() > c1.Body()*1.2 {
		conf = 0.8
	}
	return conf
}

func clampConf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
