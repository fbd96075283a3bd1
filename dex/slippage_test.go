package dex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlippageNone(t *testing.T) {
	assert.Zero(t, Slippage("none", 10_000, 1000))
}

func TestSlippageConservative(t *testing.T) {
	// 0.005 + 2 * 100/100000 = 0.007
	assert.InDelta(t, 0.007, Slippage("conservative", 100, 100_000), 1e-9)
	// Cap at 15%.
	assert.Equal(t, 0.15, Slippage("conservative", 50_000, 100_000))
}

func TestSlippageRealistic(t *testing.T) {
	// 0.01 + 5 * 100/100000 = 0.015
	assert.InDelta(t, 0.015, Slippage("realistic", 100, 100_000), 1e-9)
	assert.Equal(t, 0.15, Slippage("realistic", 10_000, 100_000))
}

func TestSlippageDegeneratePool(t *testing.T) {
	assert.Equal(t, 0.15, Slippage("realistic", 100, 0))
}
