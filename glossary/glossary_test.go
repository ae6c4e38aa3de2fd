package glossary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTerm(t *testing.T) {
	r := NewRegistry()

	term, ok := r.GetTerm("moneyline")
	require.True(t, ok)
	assert.Equal(t, "Moneyline", term.Title)

	// Case-insensitive
	_, ok = r.GetTerm("MONEYLINE")
	assert.True(t, ok)

	_, ok = r.GetTerm("not-a-term")
	assert.False(t, ok)
}

func TestSearch(t *testing.T) {
	r := NewRegistry()

	hits := r.Search("line")
	assert.NotEmpty(t, hits)
	for i := 1; i < len(hits); i++ {
		assert.Less(t, hits[i-1].Key, hits[i].Key, "results sorted by key")
	}

	assert.Empty(t, r.Search(""))
	assert.Empty(t, r.Search("zzzzz"))
}

func TestGetSuggestions(t *testing.T) {
	r := NewRegistry()

	sugg := r.GetSuggestions("p", 10)
	assert.Contains(t, sugg, "parlay")
	assert.Contains(t, sugg, "push")

	assert.Len(t, r.GetSuggestions("p", 1), 1)
	assert.Empty(t, r.GetSuggestions("", 10))
}

func TestCategoriesAndRelated(t *testing.T) {
	r := NewRegistry()

	betTypes := r.GetTermsByCategory("bet-types")
	assert.NotEmpty(t, betTypes)

	related := r.GetRelatedTerms("spread")
	var keys []string
	for _, t := range related {
		keys = append(keys, t.Key)
	}
	assert.Contains(t, keys, "moneyline")

	assert.Empty(t, r.GetRelatedTerms("nope"))
	assert.Contains(t, r.Categories(), "market")
}
