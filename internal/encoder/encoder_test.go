package encoder

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacgraph/internal/types"
)

func testRand() *rand.Rand { return rand.New(rand.NewSource(7)) }

func TestConstantsValidate(t *testing.T) {
	valid := Constants{
		TacticCount:    2,
		NodeLabelCount: 5,
		TacticArity:    []int{0, 2},
		GlobalContext:  []int{0, 4},
	}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, 2, valid.GlobalVocabSize())

	cases := []struct {
		name    string
		mutate  func(*Constants)
		wantErr string
	}{
		{"zero tactics", func(c *Constants) { c.TacticCount = 0 }, "tactic count"},
		{"arity table mismatch", func(c *Constants) { c.TacticArity = []int{0} }, "arity table"},
		{"negative arity", func(c *Constants) { c.TacticArity = []int{0, -1} }, "negative arity"},
		{"global label out of range", func(c *Constants) { c.GlobalContext = []int{5} }, "out of range"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tc.wantErr)
		})
	}
}

func TestEmbedding(t *testing.T) {
	e := NewEmbedding(3, 4, testRand())
	assert.Equal(t, 3, e.Count())
	assert.Equal(t, 4, e.Dim())

	row, err := e.Lookup(2)
	require.NoError(t, err)
	assert.Len(t, row, 4)

	_, err = e.Lookup(3)
	assert.ErrorContains(t, err, "out of range")

	assert.ErrorContains(t, e.SetRows([][]float32{{1, 2}}), "width 2, want 4")
	require.NoError(t, e.SetRows([][]float32{{1, 2, 3, 4}}))
	assert.Equal(t, 1, e.Count())
}

func TestDenseApply(t *testing.T) {
	d := &Dense{
		weight: [][]float32{{1, 0}, {0, 2}, {1, 1}},
		bias:   []float32{0, 1, 0},
	}
	assert.Equal(t, []float32{3, 11, 8}, d.Apply([]float32{3, 5}))

	out := d.ApplyAll([][]float32{{1, 0}, {0, 1}})
	assert.Equal(t, []float32{1, 1, 1}, out[0])
	assert.Equal(t, []float32{0, 3, 1}, out[1])
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 1.0, float64(Norm(v)), 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, Normalize(zero))
}

func TestArgumentsHeadQueries(t *testing.T) {
	h := NewArgumentsHead(4, 2, testRand())
	repr := []float32{0.1, -0.2, 0.3, 0}
	emb := []float32{0.5, -0.5}

	assert.Nil(t, h.Queries(repr, emb, 0))

	queries := h.Queries(repr, emb, 3)
	require.Len(t, queries, 3)
	for _, q := range queries {
		require.Len(t, q, 4)
		for _, v := range q {
			assert.LessOrEqual(t, v, float32(1))
			assert.GreaterOrEqual(t, v, float32(-1))
		}
	}
	// slots are distinct states of the recurrence
	assert.NotEqual(t, queries[0], queries[1])

	// same inputs, same queries
	again := h.Queries(repr, emb, 3)
	assert.Equal(t, queries, again)
}

func TestTacticHeadLogits(t *testing.T) {
	rng := testRand()
	head := NewTacticHead(4, 2, rng)
	tactics := NewEmbedding(5, 2, rng)

	logits := head.Logits([]float32{0.1, 0.2, -0.1, 0.4}, tactics)
	assert.Len(t, logits, 5)
}

func TestStaticEncoder(t *testing.T) {
	enc := NewStaticEncoder(6, 4, testRand())
	assert.Equal(t, 4, enc.HiddenSize())

	t.Run("hidden state per context entry, repr is the mean", func(t *testing.T) {
		ps := types.ProofState{LocalContext: []types.NodeID{1, 3}}
		e, err := enc.Encode(&ps)
		require.NoError(t, err)
		require.Len(t, e.LocalHidden, 2)
		for j := range e.Repr {
			mean := (e.LocalHidden[0][j] + e.LocalHidden[1][j]) / 2
			assert.InDelta(t, float64(mean), float64(e.Repr[j]), 1e-6)
		}
	})

	t.Run("empty context yields zero repr", func(t *testing.T) {
		e, err := enc.Encode(&types.ProofState{})
		require.NoError(t, err)
		assert.Empty(t, e.LocalHidden)
		assert.Equal(t, make([]float32, 4), e.Repr)
	})

	t.Run("unknown node id fails", func(t *testing.T) {
		ps := types.ProofState{LocalContext: []types.NodeID{6}}
		_, err := enc.Encode(&ps)
		assert.ErrorContains(t, err, "local context entry 0")
	})
}
