package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk_EmptyIsNil(t *testing.T) {
	assert.Nil(t, chunk[int](nil))
}

func TestChunk_SingleBatchUnderCeiling(t *testing.T) {
	items := make([]int, 10)
	out := chunk(items)
	assert.Len(t, out, 1)
	assert.Len(t, out[0], 10)
}

func TestChunk_SplitsAtHardCeiling(t *testing.T) {
	items := make([]int, 2500)
	for i := range items {
		items[i] = i
	}

	out := chunk(items)

	assert.Len(t, out, 3)
	assert.Len(t, out[0], maxBatchRows)
	assert.Len(t, out[1], maxBatchRows)
	assert.Len(t, out[2], 500)
}

func TestChunk_ExactMultipleOfCeiling(t *testing.T) {
	items := make([]int, maxBatchRows*2)
	out := chunk(items)
	assert.Len(t, out, 2)
	for _, batch := range out {
		assert.Len(t, batch, maxBatchRows)
	}
}
