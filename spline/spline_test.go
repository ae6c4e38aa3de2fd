package spline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSampleCount(t *testing.T) {
	e := NewEngine()
	control := Synthetic(10, 0)

	for _, method := range []string{MethodCatmullRom, MethodCubic, MethodLinear, MethodExtrapolate} {
		out, err := e.Render(method, control, 100)
		require.NoError(t, err, method)
		assert.Len(t, out, 100, method)
	}
}

func TestCatmullRomPassesThroughEndpoints(t *testing.T) {
	e := NewEngine()
	control := []Point{{0, 0}, {1, 2}, {2, 1}, {3, 3}}

	out := e.CatmullRom(control, 50)
	assert.InDelta(t, control[0][0], out[0][0], 1e-9)
	assert.InDelta(t, control[0][1], out[0][1], 1e-9)
	assert.InDelta(t, control[3][0], out[49][0], 1e-9)
	assert.InDelta(t, control[3][1], out[49][1], 1e-9)
}

func TestLinearMidpoint(t *testing.T) {
	e := NewEngine()
	out := e.Linear([]Point{{0, 0}, {2, 4}}, 3)
	assert.InDelta(t, 1.0, out[1][0], 1e-9)
	assert.InDelta(t, 2.0, out[1][1], 1e-9)
}

func TestExtrapolateContinuesTrend(t *testing.T) {
	e := NewEngine()
	out := e.Extrapolate([]Point{{0, 0}, {1, 1}}, 3)
	require.Len(t, out, 3)
	assert.InDelta(t, 2.0, out[0][0], 1e-9)
	assert.InDelta(t, 2.0, out[0][1], 1e-9)
	assert.InDelta(t, 4.0, out[2][1], 1e-9)
}

func TestRenderRejectsBadInput(t *testing.T) {
	e := NewEngine()
	_, err := e.Render(MethodCatmullRom, []Point{{0, 0}}, 10)
	assert.Error(t, err)

	_, err = e.Render("bezier", Synthetic(5, 0), 10)
	assert.Error(t, err)

	_, err = e.Render(MethodLinear, Synthetic(5, 0), 1)
	assert.Error(t, err)
}

func TestSyntheticBounded(t *testing.T) {
	for _, p := range Synthetic(100, 1.3) {
		assert.False(t, math.IsNaN(p[1]))
		assert.GreaterOrEqual(t, p[1], 0.0)
		assert.LessOrEqual(t, p[1], 1.0)
	}
}

func TestPresetStoreRoundTrip(t *testing.T) {
	store, err := NewPresetStore(t.TempDir())
	require.NoError(t, err)

	p := Preset{Name: "game-night", Method: MethodCatmullRom, Samples: 50, Points: Synthetic(8, 0)}
	path, err := store.Store(p)
	require.NoError(t, err)
	assert.Contains(t, path, "game-night.yaml")

	loaded, err := store.Load("game-night")
	require.NoError(t, err)
	assert.Equal(t, p.Method, loaded.Method)
	assert.Len(t, loaded.Points, 8)
}

func TestPresetStoreRejectsTraversal(t *testing.T) {
	store, err := NewPresetStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Store(Preset{Name: "../evil", Points: Synthetic(4, 0)})
	assert.Error(t, err)

	_, err = store.Load("../../etc/passwd")
	assert.Error(t, err)
}
