// Package maparse detects curve features in price series. It backs the
// /api/ai/maparse endpoint: DetectCurves is the primary detector and Auto is
// the coarse fallback used when no explicit points are supplied.
package maparse

import (
	"math"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// Curve is one detected feature in the series.
type Curve struct {
	Kind       string  `json:"kind"` // rising | falling | peak | valley
	StartIndex int     `json:"startIndex"`
	EndIndex   int     `json:"endIndex"`
	Strength   float64 `json:"strength"` // [0,1]
}

// Result is what Auto returns for a bare price list.
type Result struct {
	Curves      []Curve `json:"curves"`
	Trend       string  `json:"trend"` // up | down | flat
	Sensitivity float64 `json:"sensitivity"`
	Samples     int     `json:"samples"`
}

// DetectCurves finds monotone runs and local extrema in (x, y) points.
// Sensitivity in (0,1] scales the minimum slope considered a move; lower
// values detect more, smaller features.
func DetectCurves(points [][2]float64, sensitivity float64) ([]Curve, error) {
	if len(points) < 3 {
		return nil, errors.Newf("need at least 3 points, got %d", len(points))
	}
	if sensitivity <= 0 || sensitivity > 1 {
		return nil, errors.Newf("sensitivity must be in (0,1], got %v", sensitivity)
	}

	// Threshold relative to the series' own y range
	lo, hi := points[0][1], points[0][1]
	for _, p := range points {
		lo = math.Min(lo, p[1])
		hi = math.Max(hi, p[1])
	}
	span := hi - lo
	if span == 0 {
		return []Curve{}, nil
	}
	minDelta := span * 0.05 * sensitivity

	var curves []Curve
	runStart := 0
	dir := 0 // -1 falling, 0 flat, 1 rising
	for i := 1; i < len(points); i++ {
		d := points[i][1] - points[i-1][1]
		step := 0
		if d > minDelta {
			step = 1
		} else if d < -minDelta {
			step = -1
		}
		if step == dir {
			continue
		}

		if dir != 0 && i-1 > runStart {
			curves = append(curves, runCurve(points, runStart, i-1, dir, span))
		}
		if dir == 1 && step == -1 {
			curves = append(curves, Curve{Kind: "peak", StartIndex: i - 1, EndIndex: i - 1, Strength: 1})
		} else if dir == -1 && step == 1 {
			curves = append(curves, Curve{Kind: "valley", StartIndex: i - 1, EndIndex: i - 1, Strength: 1})
		}
		runStart = i - 1
		dir = step
	}
	if dir != 0 && len(points)-1 > runStart {
		curves = append(curves, runCurve(points, runStart, len(points)-1, dir, span))
	}
	if curves == nil {
		curves = []Curve{}
	}
	return curves, nil
}

func runCurve(points [][2]float64, start, end, dir int, span float64) Curve {
	kind := "rising"
	if dir < 0 {
		kind = "falling"
	}
	strength := math.Abs(points[end][1]-points[start][1]) / span
	if strength > 1 {
		strength = 1
	}
	return Curve{Kind: kind, StartIndex: start, EndIndex: end, Strength: strength}
}

// Auto runs detection over a bare price list with default sensitivity and
// summarizes the overall trend. Fallback path for the maparse endpoint.
func Auto(prices []float64) (*Result, error) {
	if len(prices) < 3 {
		return nil, errors.Newf("need at least 3 prices, got %d", len(prices))
	}

	points := make([][2]float64, len(prices))
	for i, p := range prices {
		points[i] = [2]float64{float64(i), p}
	}

	const sensitivity = 0.5
	curves, err := DetectCurves(points, sensitivity)
	if err != nil {
		return nil, err
	}

	trend := "flat"
	delta := prices[len(prices)-1] - prices[0]
	if lo, hi := minMax(prices); hi > lo {
		switch {
		case delta > (hi-lo)*0.1:
			trend = "up"
		case delta < -(hi-lo)*0.1:
			trend = "down"
		}
	}

	return &Result{
		Curves:      curves,
		Trend:       trend,
		Sensitivity: sensitivity,
		Samples:     len(prices),
	}, nil
}

func minMax(vals []float64) (float64, float64) {
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
