package gauge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWNBATORTrendingUp(t *testing.T) {
	res, err := WNBATOR([]float64{1, 2, 3, 4, 5})
	require.NoError(t, err)

	assert.Greater(t, res.Score, 50.0)
	assert.Contains(t, []string{"heating", "hot"}, res.Label)
	assert.Equal(t, 5, res.Samples)
	assert.Greater(t, res.Momentum, 0.0)
}

func TestWNBATORFlat(t *testing.T) {
	res, err := WNBATOR([]float64{2, 2, 2, 2})
	require.NoError(t, err)

	assert.Equal(t, "steady", res.Label)
	assert.InDelta(t, 50.0, res.Score, 0.01)
	assert.Equal(t, 0.0, res.Volatility)
}

func TestWNBATORTrendingDown(t *testing.T) {
	res, err := WNBATOR([]float64{5, 4, 3, 2, 1})
	require.NoError(t, err)
	assert.Less(t, res.Score, 50.0)
	assert.Contains(t, []string{"cooling", "cold"}, res.Label)
}

func TestWNBATORRejectsBadTensor(t *testing.T) {
	_, err := WNBATOR([]float64{1})
	assert.Error(t, err)

	_, err = WNBATOR(nil)
	assert.Error(t, err)
}
