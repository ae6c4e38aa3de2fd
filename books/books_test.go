package books

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupAndUpdate(t *testing.T) {
	r := NewRegistry()

	all := r.All()
	assert.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}

	b, ok := r.GetByID("pinn")
	require.True(t, ok)
	assert.True(t, b.Active)

	updated, err := r.UpdateFlag("pinn", false)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	updated, err = r.UpdateRollout("dk", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, updated.Rollout)

	_, err = r.UpdateRollout("dk", 1.5)
	assert.Error(t, err)

	_, err = r.UpdateFlag("nope", true)
	assert.Error(t, err)
}

func TestValidateThreshold(t *testing.T) {
	res, err := ValidateThreshold("spread>=3.5")
	require.NoError(t, err)
	assert.Equal(t, "spread", res.Metric)
	assert.Equal(t, ">=", res.Operator)
	assert.Equal(t, 3.5, res.Value)
	assert.True(t, res.Valid)

	// Whitespace and case tolerated
	res, err = ValidateThreshold("  Total < 150 ")
	require.NoError(t, err)
	assert.Equal(t, "total", res.Metric)

	for _, bad := range []string{"", "spread", "spread>>3", "vibes>=1", "rollout>2"} {
		_, err := ValidateThreshold(bad)
		assert.Error(t, err, bad)
	}
}
