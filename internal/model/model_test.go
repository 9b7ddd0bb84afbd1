package model

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMER_PositiveSpend(t *testing.T) {
	mer := ComputeMER(decimal.NewFromInt(150), decimal.NewFromInt(50))
	require.NotNil(t, mer)
	assert.True(t, mer.Equal(decimal.NewFromInt(3)))
}

func TestComputeMER_ZeroSpendIsNil(t *testing.T) {
	mer := ComputeMER(decimal.NewFromInt(150), decimal.Zero)
	assert.Nil(t, mer)
}

func TestComputeAOV_PositiveOrders(t *testing.T) {
	aov := ComputeAOV(decimal.NewFromInt(220), 2)
	assert.True(t, aov.Equal(decimal.NewFromInt(110)))
}

func TestComputeAOV_ZeroOrdersIsZero(t *testing.T) {
	aov := ComputeAOV(decimal.NewFromInt(220), 0)
	assert.True(t, aov.Equal(decimal.Zero))
}

func TestTruncateErrorMessage_ShortUnchanged(t *testing.T) {
	msg := "source returned 500"
	assert.Equal(t, msg, TruncateErrorMessage(msg))
}

func TestTruncateErrorMessage_LongIsTruncatedWithIndicator(t *testing.T) {
	msg := strings.Repeat("x", MaxErrorMessageLen+500)
	out := TruncateErrorMessage(msg)
	assert.LessOrEqual(t, len(out), MaxErrorMessageLen)
	assert.Contains(t, out, "truncated")
}
