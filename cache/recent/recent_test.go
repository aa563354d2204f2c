package recent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetEvictsOldestPastCapacity(t *testing.T) {
	s := New[string](3)
	for _, k := range []string{"a", "b", "c", "d"} {
		s.Add(k)
	}

	assert.Equal(t, []string{"b", "c", "d"}, s.Snapshot())
	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("d"))
}

func TestSetReAddKeepsPosition(t *testing.T) {
	s := New[int](2)
	s.Add(1)
	s.Add(2)
	s.Add(1)
	s.Add(3)

	assert.Equal(t, []int{2, 3}, s.Snapshot())
}

func TestSetFilterAndReset(t *testing.T) {
	s := New[int](0)
	assert.Equal(t, DefaultCapacity, s.capacity)

	s.Add(1)
	s.Add(3)
	assert.Equal(t, []int{0, 2, 4}, s.Filter([]int{0, 1, 2, 3, 4}))

	s.Reset(3)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains(3))
	assert.False(t, s.Contains(1))
}
