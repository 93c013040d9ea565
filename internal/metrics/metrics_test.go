package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacgraph/internal/ragged"
)

func TestMeanLifecycle(t *testing.T) {
	m := NewMean("accuracy")
	assert.Zero(t, m.Result())

	m.UpdateBatch([]float32{1, 0, 1, 1})
	assert.InDelta(t, 0.75, m.Result(), 1e-9)

	m.Reset()
	assert.Zero(t, m.Result())

	m.Update(1, 3)
	m.Update(0, 1)
	assert.InDelta(t, 0.75, m.Result(), 1e-9)
}

func TestSet(t *testing.T) {
	s := NewSet("accuracy", "strict_accuracy")

	acc, err := s.Get("accuracy")
	require.NoError(t, err)
	acc.Update(1, 1)

	assert.Equal(t, []string{"accuracy", "strict_accuracy"}, s.Names())
	assert.Equal(t, 1.0, s.Results()["accuracy"])

	s.Reset()
	assert.Zero(t, s.Results()["accuracy"])

	_, err = s.Get("loss")
	assert.Error(t, err)
}

func TestTacticAccuracy(t *testing.T) {
	got, err := TacticAccuracy([][]float32{
		{0.1, 0.9},
		{0.8, 0.2},
	}, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got)
}

func TestArgumentAccuracy(t *testing.T) {
	scores := ragged.NewTable([][][]float32{
		{{0.1, 0.9}, {0.7, 0.3}},
		{{0.2}},
	})

	t.Run("sentinel positions are excluded", func(t *testing.T) {
		labels := ragged.NewInts([][]int{{1, ragged.Sentinel}, {0}})
		correct, total, err := ArgumentAccuracy(scores, labels)
		require.NoError(t, err)
		assert.Equal(t, 2, correct)
		assert.Equal(t, 2, total)
	})

	t.Run("wrong argmax is a miss", func(t *testing.T) {
		labels := ragged.NewInts([][]int{{0, 0}, {0}})
		correct, total, err := ArgumentAccuracy(scores, labels)
		require.NoError(t, err)
		assert.Equal(t, 2, correct)
		assert.Equal(t, 3, total)
	})
}

// Spec scenario: arity 2, arg0 = local index 3, arg1 = global id 7.
func TestSequenceAccuracyPoolChoice(t *testing.T) {
	localLabels := ragged.NewInts([][]int{{3, ragged.Sentinel}})
	globalLabels := ragged.NewInts([][]int{{ragged.Sentinel, 7}})

	localRow0 := []float32{-9, -9, -9, -0.1, -9} // argmax 3, best -0.1
	globalRow0 := []float32{-8, -8, -8, -8, -8, -8, -8, -8}

	t.Run("correct pool and index at every position", func(t *testing.T) {
		globalRow1 := []float32{-9, -9, -9, -9, -9, -9, -9, -0.2} // argmax 7
		localRow1 := []float32{-5, -5, -5, -5, -5}                // best below global's

		localNorm := ragged.NewTable([][][]float32{{localRow0, localRow1}})
		globalNorm := ragged.NewTable([][][]float32{{globalRow0, globalRow1}})

		seq, err := SequenceAccuracy(localNorm, globalNorm, localLabels, globalLabels)
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, seq)

		strict, err := StrictAccuracy(seq, []float32{1})
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, strict)
	})

	t.Run("wrong pool at one position is a miss even with matching index", func(t *testing.T) {
		globalRow1 := []float32{-9, -9, -9, -9, -9, -9, -9, -0.2}
		localRow1 := []float32{-5, -5, -5, -5, -0.1} // local beats global: wrong pool

		localNorm := ragged.NewTable([][][]float32{{localRow0, localRow1}})
		globalNorm := ragged.NewTable([][][]float32{{globalRow0, globalRow1}})

		seq, err := SequenceAccuracy(localNorm, globalNorm, localLabels, globalLabels)
		require.NoError(t, err)
		assert.Equal(t, []float32{0}, seq)
	})

	t.Run("wrong tactic zeroes strict accuracy", func(t *testing.T) {
		strict, err := StrictAccuracy([]float32{1}, []float32{0})
		require.NoError(t, err)
		assert.Equal(t, []float32{0}, strict)
	})
}

func TestSequenceAccuracyAbsentGroundTruth(t *testing.T) {
	// tactic requires one argument but neither pool supplies ground
	// truth; the example can never be strictly correct
	localLabels := ragged.NewInts([][]int{{ragged.Sentinel}})
	globalLabels := ragged.NewInts([][]int{{ragged.Sentinel}})

	localNorm := ragged.NewTable([][][]float32{{{-0.1}}})
	globalNorm := ragged.NewTable([][][]float32{{{-3}}})

	seq, err := SequenceAccuracy(localNorm, globalNorm, localLabels, globalLabels)
	require.NoError(t, err)
	assert.Equal(t, []float32{0}, seq)
}

func TestSequenceAccuracyZeroArity(t *testing.T) {
	// a zero-argument tactic is vacuously sequence-correct
	localNorm := ragged.NewTable([][][]float32{{}})
	globalNorm := ragged.NewTable([][][]float32{{}})
	localLabels := ragged.NewInts([][]int{{}})
	globalLabels := ragged.NewInts([][]int{{}})

	seq, err := SequenceAccuracy(localNorm, globalNorm, localLabels, globalLabels)
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, seq)
}

func TestLocalSequenceAccuracy(t *testing.T) {
	norm := ragged.NewTable([][][]float32{
		{{-0.1, -2}, {-3, -0.2}},
		{{-0.5, -0.4}},
	})

	t.Run("all positions correct", func(t *testing.T) {
		labels := ragged.NewInts([][]int{{0, 1}, {1}})
		got, err := LocalSequenceAccuracy(norm, labels)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 1}, got)
	})

	t.Run("absent ground truth is never correct", func(t *testing.T) {
		labels := ragged.NewInts([][]int{{0, ragged.Sentinel}, {1}})
		got, err := LocalSequenceAccuracy(norm, labels)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1}, got)
	})
}
