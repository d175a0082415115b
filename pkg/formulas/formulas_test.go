package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateMomentum(t *testing.T) {
	prices := []float64{100, 102, 101, 105, 110}

	mom := CalculateMomentum(prices, 4)
	require.NotNil(t, mom)
	assert.InDelta(t, 0.10, *mom, 0.0001)

	// Not enough history.
	assert.Nil(t, CalculateMomentum(prices, 5))
	assert.Nil(t, CalculateMomentum(nil, 1))
}

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})

	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 0.0001)
	assert.InDelta(t, -0.10, returns[1], 0.0001)

	assert.Empty(t, CalculateReturns([]float64{100}))
}

func TestCalculateSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	sma := CalculateSMA(closes, 5)
	require.NotNil(t, sma)
	assert.InDelta(t, 3.0, *sma, 0.0001)

	assert.Nil(t, CalculateSMA(closes, 6))
}

func TestCalculateRSI_BoundsAndDirection(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 200 - float64(i)
	}

	rsiUp := CalculateRSI(up, 14)
	require.NotNil(t, rsiUp)
	assert.Greater(t, *rsiUp, 50.0)
	assert.LessOrEqual(t, *rsiUp, 100.0)

	rsiDown := CalculateRSI(down, 14)
	require.NotNil(t, rsiDown)
	assert.Less(t, *rsiDown, 50.0)

	assert.Nil(t, CalculateRSI(up[:10], 14))
}

func TestCalculateVolatility(t *testing.T) {
	flat := []float64{100, 100, 100, 100}
	vol := CalculateVolatility(flat)
	require.NotNil(t, vol)
	assert.InDelta(t, 0.0, *vol, 0.0001)

	choppy := []float64{100, 110, 95, 108, 90}
	vol = CalculateVolatility(choppy)
	require.NotNil(t, vol)
	assert.Greater(t, *vol, 0.0)

	assert.Nil(t, CalculateVolatility([]float64{100}))
}
