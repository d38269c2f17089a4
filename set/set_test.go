package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := New("a", "b")

	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))
	assert.Equal(t, 2, s.Len())

	s.Insert("c")
	s.Insert("c")
	assert.True(t, s.Contains("c"))
	assert.Equal(t, 3, s.Len())
}

func TestSetZeroValue(t *testing.T) {
	var s Set[string]

	assert.False(t, s.Contains("a"))
	s.Insert("a")
	assert.True(t, s.Contains("a"))
}
