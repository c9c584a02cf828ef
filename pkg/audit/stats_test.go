package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeProgress(t *testing.T) {
	p := computeProgress(10, 2, 4, 3, 1, 1)
	assert.Equal(t, 10, p.Total)
	assert.Equal(t, 2, p.Ignored)
	assert.Equal(t, 4, p.Processed)
	assert.Equal(t, 3, p.Pending)
	assert.Equal(t, 1, p.InFlight)
	assert.Equal(t, 1, p.Errors)
	assert.Equal(t, 50, p.Percent)
}

func TestComputeProgressRounds(t *testing.T) {
	// 1/3 → 33, 2/3 → 67
	assert.Equal(t, 33, computeProgress(3, 0, 1, 2, 0, 0).Percent)
	assert.Equal(t, 67, computeProgress(3, 0, 2, 1, 0, 0).Percent)
}

func TestComputeProgressEmptyPopulation(t *testing.T) {
	assert.Equal(t, 0, computeProgress(0, 0, 0, 0, 0, 0).Percent)
	// Everything ignored counts as an empty checkable population too.
	assert.Equal(t, 0, computeProgress(5, 5, 0, 0, 0, 0).Percent)
}
