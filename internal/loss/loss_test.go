package loss

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacgraph/internal/ragged"
)

func TestTacticNLL(t *testing.T) {
	t.Run("matches direct log-softmax", func(t *testing.T) {
		logits := [][]float32{{2, 1, 0.5}}
		got, err := TacticNLL(logits, []int{0})
		require.NoError(t, err)

		var sum float64
		for _, v := range logits[0] {
			sum += math.Exp(float64(v))
		}
		want := -(float64(logits[0][0]) - math.Log(sum))
		assert.InDelta(t, want, float64(got[0]), 1e-6)
	})

	t.Run("uniform logits give log(n)", func(t *testing.T) {
		got, err := TacticNLL([][]float32{{0, 0, 0, 0}}, []int{2})
		require.NoError(t, err)
		assert.InDelta(t, math.Log(4), float64(got[0]), 1e-6)
	})

	t.Run("stable for large logits", func(t *testing.T) {
		got, err := TacticNLL([][]float32{{1000, 999}}, []int{0})
		require.NoError(t, err)
		assert.False(t, math.IsNaN(float64(got[0])))
		assert.False(t, math.IsInf(float64(got[0]), 0))
	})

	t.Run("out-of-range truth fails", func(t *testing.T) {
		_, err := TacticNLL([][]float32{{0, 0}}, []int{5})
		assert.Error(t, err)
	})

	t.Run("empty batch yields empty vector", func(t *testing.T) {
		got, err := TacticNLL(nil, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestArgumentNLLAggregation(t *testing.T) {
	// one example with 2 valid positions, one with none
	normalized := ragged.NewTable([][][]float32{
		{{-0.2, -1.8}, {-0.9, -1.1}},
		{{-0.5}},
	})
	labels := ragged.NewInts([][]int{{0, 1}, {ragged.Sentinel}})

	t.Run("sum over sequence yields per-example sums", func(t *testing.T) {
		got, err := ArgumentNLL(normalized, labels, SumOverSequence)
		require.NoError(t, err)

		require.Len(t, got, 2)
		assert.InDelta(t, 0.2+1.1, float64(got[0]), 1e-6)
		assert.Zero(t, got[1])
	})

	t.Run("flat yields one loss per valid argument", func(t *testing.T) {
		got, err := ArgumentNLL(normalized, labels, Flat)
		require.NoError(t, err)

		require.Len(t, got, 2)
		assert.InDelta(t, 0.2, float64(got[0]), 1e-6)
		assert.InDelta(t, 1.1, float64(got[1]), 1e-6)
	})
}

func TestArgumentNLLAllSentinel(t *testing.T) {
	normalized := ragged.NewTable([][][]float32{
		{{-0.1}, {-0.2}},
		{{-0.3}},
	})
	labels := ragged.NewInts([][]int{{ragged.Sentinel, ragged.Sentinel}, {ragged.Sentinel}})

	sum, err := ArgumentNLL(normalized, labels, SumOverSequence)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, sum)

	flat, err := ArgumentNLL(normalized, labels, Flat)
	require.NoError(t, err)
	assert.Empty(t, flat)
}

func TestParseAggregation(t *testing.T) {
	a, err := ParseAggregation("sum_over_sequence")
	require.NoError(t, err)
	assert.Equal(t, SumOverSequence, a)

	a, err = ParseAggregation("flat")
	require.NoError(t, err)
	assert.Equal(t, Flat, a)

	_, err = ParseAggregation("mean")
	assert.Error(t, err)
}

func TestDefinitionNormSquared(t *testing.T) {
	got := DefinitionNormSquared([][]float32{{3, 4}, {0, 0}})
	assert.Equal(t, []float32{25, 0}, got)
}

func TestMean(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float32{1, 3}), 1e-9)
}
