package infer

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"tacgraph/internal/encoder"
	"tacgraph/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMaskedTopK(t *testing.T) {
	t.Run("masked tactic never returned, probabilities non-increasing", func(t *testing.T) {
		// tactic 2 has the best raw logit but is masked out
		logits := []float32{0.1, 0.4, 9.9, 0.3, 0.2}
		mask := []bool{true, true, false, true, true}

		ids, logProbs, err := MaskedTopK(logits, mask, 3)
		require.NoError(t, err)

		require.Len(t, ids, 3)
		assert.NotContains(t, ids, types.TacticID(2))
		assert.Equal(t, []types.TacticID{1, 3, 4}, ids)
		for i := 1; i < len(logProbs); i++ {
			assert.LessOrEqual(t, logProbs[i], logProbs[i-1])
		}
		for _, lp := range logProbs {
			assert.Negative(t, lp)
		}
	})

	t.Run("fewer permitted tactics than k", func(t *testing.T) {
		ids, _, err := MaskedTopK([]float32{1, 2, 3}, []bool{false, true, false}, 3)
		require.NoError(t, err)
		assert.Equal(t, []types.TacticID{1}, ids)
	})

	t.Run("fully masked yields no hypotheses", func(t *testing.T) {
		ids, logProbs, err := MaskedTopK([]float32{1, 2}, []bool{false, false}, 2)
		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.Empty(t, logProbs)
	})

	t.Run("ties resolve to lower id", func(t *testing.T) {
		ids, _, err := MaskedTopK([]float32{0.5, 0.5, 0.5}, []bool{true, true, true}, 2)
		require.NoError(t, err)
		assert.Equal(t, []types.TacticID{0, 1}, ids)
	})
}

// fakeTactics returns fixed logits regardless of the encoding.
type fakeTactics struct{ logits []float32 }

func (f *fakeTactics) TacticLogits(encoder.Encoding) []float32 { return f.logits }

// fakeArguments scores every local candidate and a two-entry global
// vocabulary uniformly per slot of the committed tactic.
type fakeArguments struct {
	arity  []int
	global int
}

func (f *fakeArguments) ScoreArguments(ps *types.ProofState, _ encoder.Encoding, tactic types.TacticID) ([][]float32, [][]float32, error) {
	n := f.arity[tactic]
	local := make([][]float32, n)
	global := make([][]float32, n)
	for j := 0; j < n; j++ {
		local[j] = make([]float32, len(ps.LocalContext))
		for k := range local[j] {
			local[j][k] = float32(-1 - k)
		}
		global[j] = make([]float32, f.global)
		for k := range global[j] {
			global[j][k] = float32(-10 - k)
		}
	}
	return local, global, nil
}

func (f *fakeArguments) GlobalCandidates(*types.ProofState) int { return f.global }

func newTestExpander(t *testing.T, arity []int, args ArgumentScorer, bound int) *Expander {
	t.Helper()
	constants := encoder.Constants{
		TacticCount:    len(arity),
		NodeLabelCount: 16,
		TacticArity:    arity,
	}
	enc := encoder.NewStaticEncoder(16, 4, testRand())
	x, err := NewExpander(constants, enc, &fakeTactics{logits: seqLogits(len(arity))}, args, bound, zap.NewNop())
	require.NoError(t, err)
	return x
}

func testRand() *rand.Rand { return rand.New(rand.NewSource(42)) }

func seqLogits(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(n - i)
	}
	return out
}

func TestExpand(t *testing.T) {
	arity := []int{0, 2, 1}
	x := newTestExpander(t, arity, &fakeArguments{arity: arity, global: 2}, 2)

	batch := types.Batch{{
		Tactic:       1,
		LocalContext: []types.NodeID{3, 5, 8},
		Arguments:    []types.Argument{types.LocalArgument(0), types.GlobalArgument(1)},
	}}

	hyps, err := x.Expand(context.Background(), batch, nil)
	require.NoError(t, err)
	require.Len(t, hyps, 1)
	require.Len(t, hyps[0], 2)

	// logits favor lower tactic ids
	assert.Equal(t, types.TacticID(0), hyps[0][0].Tactic)
	assert.Equal(t, types.TacticID(1), hyps[0][1].Tactic)
	assert.GreaterOrEqual(t, hyps[0][0].LogProb, hyps[0][1].LogProb)

	// each hypothesis carries scores for its own tactic's arity
	assert.Empty(t, hyps[0][0].LocalScores)
	require.Len(t, hyps[0][1].LocalScores, 2)
	require.Len(t, hyps[0][1].GlobalScores, 2)
	require.Len(t, hyps[0][1].Arguments, 2)
	// local candidate 0 scores highest in the fake
	assert.Equal(t, types.LocalArgument(0), hyps[0][1].Arguments[0])
}

func TestExpandEmptyContextRestrictsToZeroArity(t *testing.T) {
	arity := []int{0, 2, 1}
	x := newTestExpander(t, arity, &fakeArguments{arity: arity, global: 0}, 3)

	batch := types.Batch{{Tactic: 0}}

	hyps, err := x.Expand(context.Background(), batch, nil)
	require.NoError(t, err)
	require.Len(t, hyps[0], 1)
	assert.Equal(t, types.TacticID(0), hyps[0][0].Tactic)
	assert.Zero(t, hyps[0][0].LogProb) // single permitted tactic has probability one
}

func TestExpandExternalMask(t *testing.T) {
	arity := []int{0, 0, 0}
	x := newTestExpander(t, arity, nil, 3)

	hyps, err := x.Expand(context.Background(), types.Batch{{Tactic: 0}}, []bool{false, true, true})
	require.NoError(t, err)
	require.Len(t, hyps[0], 2)
	assert.Equal(t, types.TacticID(1), hyps[0][0].Tactic)
	assert.Equal(t, types.TacticID(2), hyps[0][1].Tactic)
}

func TestNewExpanderValidation(t *testing.T) {
	constants := encoder.Constants{TacticCount: 1, TacticArity: []int{0}}
	_, err := NewExpander(constants, encoder.NewStaticEncoder(1, 2, testRand()), &fakeTactics{logits: []float32{0}}, nil, 0, nil)
	assert.ErrorContains(t, err, "expand bound")
}
