package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLossFunctions(t *testing.T) {
	huber, err := NewLoss(LossHuber, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, huber.Weight(1))
	assert.InDelta(t, HuberTuning/4, huber.Weight(-4), 1e-12)
	assert.Equal(t, HuberTuning, huber.Psi(10))
	assert.Equal(t, 0.0, huber.DPsi(10))

	tukey, err := NewLoss(LossTukey, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, tukey.Weight(0))
	assert.Equal(t, 0.0, tukey.Weight(TukeyTuning+0.1))
	assert.Equal(t, 0.0, tukey.Psi(-10))
	assert.Less(t, tukey.DPsi(0.9*TukeyTuning), 0.0) // redescending

	custom, err := NewLoss(LossHuber, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, custom.Weight(1.9))

	ls, err := NewLoss(LossLeastSquares, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ls.Weight(100))

	_, err = NewLoss("cauchy", 0)
	assert.Error(t, err)
}

func TestMedianAndScale(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	assert.True(t, math.IsNaN(median(nil)))
	assert.Equal(t, 7.0, median([]float64{7}))
	assert.Equal(t, 5.0, median([]float64{9, 5, 1, 5}))

	xs := []float64{4, 1, 3, 2}
	median(xs)
	assert.Equal(t, []float64{4, 1, 3, 2}, xs, "input must stay unsorted")
	assert.InDelta(t, 1/madToSigma, madScale([]float64{-1, 1, -1, 1, 50}), 1e-12)
}

func TestTheilSenIgnoresOutlier(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []float64{3, 5, 7, 9, 11, 100}
	a, b, ok := theilSen(x, y)
	require.True(t, ok)
	assert.Equal(t, 2.0, b)
	assert.Equal(t, 1.0, a)

	_, _, ok = theilSen([]float64{1, 1}, []float64{2, 3})
	assert.False(t, ok)
}
