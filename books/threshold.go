package books

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// ThresholdResult is the parsed form of a feed threshold expression like
// "spread>=3.5" or "total<150".
type ThresholdResult struct {
	Metric   string  `json:"metric"`
	Operator string  `json:"operator"`
	Value    float64 `json:"value"`
	Valid    bool    `json:"valid"`
}

var thresholdPattern = regexp.MustCompile(`^([a-z][a-z_-]*)\s*(>=|<=|>|<|==)\s*(-?\d+(?:\.\d+)?)$`)

var thresholdMetrics = map[string]bool{
	"spread":   true,
	"total":    true,
	"tension":  true,
	"juice":    true,
	"rollout":  true,
	"momentum": true,
}

// ValidateThreshold parses and validates a threshold expression.
// Returns an error (never panics) on malformed input, unknown metric, or a
// value outside the metric's plausible range.
func ValidateThreshold(expr string) (*ThresholdResult, error) {
	expr = strings.TrimSpace(strings.ToLower(expr))
	if expr == "" {
		return nil, errors.New("empty threshold expression")
	}

	m := thresholdPattern.FindStringSubmatch(expr)
	if m == nil {
		return nil, errors.Newf("malformed threshold expression %q", expr)
	}

	metric, op := m[1], m[2]
	if !thresholdMetrics[metric] {
		return nil, errors.Newf("unknown threshold metric %q", metric)
	}

	value, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return nil, errors.Wrapf(err, "bad threshold value %q", m[3])
	}
	if metric == "rollout" && (value < 0 || value > 1) {
		return nil, errors.Newf("rollout threshold must be in [0,1], got %v", value)
	}

	return &ThresholdResult{
		Metric:   metric,
		Operator: op,
		Value:    value,
		Valid:    true,
	}, nil
}
