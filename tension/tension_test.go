package tension

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var hexPattern = regexp.MustCompile(`^#[0-9A-F]{6}$`)

func TestMapEdgeRelationShape(t *testing.T) {
	res := MapEdgeRelation(Inputs{Conflict: 1.0, Entropy: 0.0, Tension: 0.0})

	assert.Regexp(t, hexPattern, res.Color.HEX)
	assert.GreaterOrEqual(t, res.Opacity, 0.0)
	assert.LessOrEqual(t, res.Opacity, 1.0)
	assert.Contains(t, []int{1, 2, 3, 4}, res.Width)
	assert.Contains(t, []string{RelationTemperate, RelationModerate, RelationIntense, RelationExtreme}, res.Meta.Relation)
}

func TestMetaEchoesInputs(t *testing.T) {
	in := Inputs{Conflict: 0.7, Entropy: 0.2, Tension: 0.4}
	res := MapEdgeRelation(in)

	assert.Equal(t, in.Conflict, res.Meta.Conflict)
	assert.Equal(t, in.Entropy, res.Meta.Entropy)
	assert.Equal(t, in.Tension, res.Meta.Tension)
}

func TestRelationBuckets(t *testing.T) {
	tests := []struct {
		name string
		in   Inputs
		want string
	}{
		{"max conflict and tension, zero entropy", Inputs{1, 0, 1}, RelationExtreme},
		{"zero conflict and tension, max entropy", Inputs{0, 1, 0}, RelationTemperate},
		{"mid conflict", Inputs{0.5, 0.5, 0.5}, RelationModerate},
		{"high conflict calm entropy", Inputs{0.9, 0.1, 0.6}, RelationIntense},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapEdgeRelation(tt.in).Meta.Relation)
		})
	}
}

func TestInputsClampedForScoreOnly(t *testing.T) {
	// Out-of-range inputs clamp for scoring but still echo verbatim in meta
	res := MapEdgeRelation(Inputs{Conflict: 7, Entropy: -3, Tension: 2})
	assert.Equal(t, 7.0, res.Meta.Conflict)
	assert.Regexp(t, hexPattern, res.Color.HEX)
	assert.Equal(t, RelationExtreme, res.Meta.Relation)
}
