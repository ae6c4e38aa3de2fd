// Package gauge computes the WNBATOR gauge: a composite reading over a
// women's-sports market tensor. Pure computation.
package gauge

import (
	"math"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// Result is one gauge reading.
type Result struct {
	Score      float64 `json:"score"`      // normalized [0,100]
	Label      string  `json:"label"`      // cold | cooling | steady | heating | hot
	Momentum   float64 `json:"momentum"`   // mean first difference
	Volatility float64 `json:"volatility"` // stddev of the tensor
	Samples    int     `json:"samples"`
}

// WNBATOR reads the gauge over a market tensor of at least 2 samples.
func WNBATOR(tensor []float64) (*Result, error) {
	if len(tensor) < 2 {
		return nil, errors.Newf("tensor needs at least 2 samples, got %d", len(tensor))
	}
	for i, v := range tensor {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Newf("tensor[%d] is not finite", i)
		}
	}

	var sum, momentum float64
	for i, v := range tensor {
		sum += v
		if i > 0 {
			momentum += v - tensor[i-1]
		}
	}
	mean := sum / float64(len(tensor))
	momentum /= float64(len(tensor) - 1)

	var variance float64
	for _, v := range tensor {
		variance += (v - mean) * (v - mean)
	}
	volatility := math.Sqrt(variance / float64(len(tensor)))

	// Sigmoid over momentum scaled by volatility keeps the score stable on
	// flat tensors and responsive on trending ones
	drive := momentum
	if volatility > 0 {
		drive = momentum / volatility
	}
	score := 100 / (1 + math.Exp(-2*drive))

	label := "steady"
	switch {
	case score >= 80:
		label = "hot"
	case score >= 60:
		label = "heating"
	case score < 20:
		label = "cold"
	case score < 40:
		label = "cooling"
	}

	return &Result{
		Score:      math.Round(score*100) / 100,
		Label:      label,
		Momentum:   momentum,
		Volatility: volatility,
		Samples:    len(tensor),
	}, nil
}
