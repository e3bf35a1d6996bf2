package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentCondition(t *testing.T) {
	cond, err := ParseContentCondition("profile.age gte 21")
	require.NoError(t, err)
	assert.Equal(t, "profile.age", cond.Path)
	assert.Equal(t, "gte", cond.Operator)
	assert.Equal(t, "21", cond.Value)

	cond, err = ParseContentCondition("name eq Jane Smith")
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", cond.Value, "values may contain spaces")

	cond, err = ParseContentCondition("")
	require.NoError(t, err)
	assert.Nil(t, cond)

	_, err = ParseContentCondition("just-two parts")
	assert.Error(t, err)
	_, err = ParseContentCondition("path between 1")
	assert.Error(t, err, "unknown operator")
}

func TestContentCondition_Matches(t *testing.T) {
	content := `{
		"name": "Jane",
		"age": 30,
		"address": {"city": "Berlin"},
		"tags": ["alpha", "beta"]
	}`

	match := func(q string) bool {
		cond, err := ParseContentCondition(q)
		require.NoError(t, err)
		return cond.Matches(content)
	}

	assert.True(t, match("name eq Jane"))
	assert.False(t, match("name eq John"))
	assert.True(t, match("name ne John"))

	assert.True(t, match("age gte 30"))
	assert.True(t, match("age gt 29"))
	assert.False(t, match("age gt 30"))
	assert.True(t, match("age lt 31"))
	assert.True(t, match("age lte 30"))
	assert.True(t, match("age eq 30"))

	assert.True(t, match("address.city eq Berlin"))
	assert.True(t, match("tags.0 eq alpha"))
	assert.True(t, match("name contains an"))
	assert.True(t, match("name startswith Ja"))
	assert.True(t, match("name endswith ne"))
	assert.False(t, match("name startswith ne"))

	// A missing path never matches, not even on ne.
	assert.False(t, match("missing eq x"))
	assert.False(t, match("missing ne x"))
}

func TestContentCondition_NumericVsString(t *testing.T) {
	cond, err := ParseContentCondition("version gt 9")
	require.NoError(t, err)

	// Numeric field with a numeric literal compares as numbers, not strings.
	assert.True(t, cond.Matches(`{"version": 10}`))
	// A string field falls back to lexicographic comparison.
	assert.False(t, cond.Matches(`{"version": "10"}`))
}
