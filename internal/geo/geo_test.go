package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindIgnoresCase(t *testing.T) {
	c, ok := Find("tokyo")
	assert.True(t, ok)
	assert.Equal(t, "Tokyo,JP", c.Key())

	c, ok = Find("SÃO PAULO")
	assert.True(t, ok)
	assert.Equal(t, "BR", c.Country)

	_, ok = Find("Atlantis")
	assert.False(t, ok)
}

func TestForIDIsDeterministic(t *testing.T) {
	// 't'+'i'+'l'+'e'+'-'+'1' = 116+105+108+101+45+49 = 524, 524 % 20 = 4
	assert.Equal(t, "Sydney", ForID("tile-1").Name)
	assert.Equal(t, ForID("weather-7"), ForID("weather-7"))
	assert.Equal(t, MajorCities[0], ForID(""))
}

func TestRandomUsesInjectedSource(t *testing.T) {
	assert.Equal(t, "Toronto", Random(func(n int) int { return n - 1 }).Name)
	assert.Len(t, MajorCities, 20)
}
