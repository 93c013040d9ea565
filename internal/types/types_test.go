package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgumentJSON(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, arg := range []Argument{NoArgument(), LocalArgument(2), GlobalArgument(7)} {
			blob, err := json.Marshal(arg)
			require.NoError(t, err)
			var got Argument
			require.NoError(t, json.Unmarshal(blob, &got))
			assert.Equal(t, arg, got)
		}
	})

	t.Run("wire forms", func(t *testing.T) {
		blob, err := json.Marshal(NoArgument())
		require.NoError(t, err)
		assert.Equal(t, "null", string(blob))

		blob, err = json.Marshal(LocalArgument(0))
		require.NoError(t, err)
		assert.JSONEq(t, `{"local":0}`, string(blob))

		blob, err = json.Marshal(GlobalArgument(3))
		require.NoError(t, err)
		assert.JSONEq(t, `{"global":3}`, string(blob))
	})

	t.Run("both references rejected", func(t *testing.T) {
		var arg Argument
		err := json.Unmarshal([]byte(`{"local":1,"global":2}`), &arg)
		assert.ErrorContains(t, err, "both local and global")
	})
}

func TestLabelRows(t *testing.T) {
	ps := ProofState{
		Tactic:       2,
		LocalContext: []NodeID{10, 11, 12},
		Arguments: []Argument{
			LocalArgument(1),
			GlobalArgument(4),
			NoArgument(),
		},
	}
	assert.Equal(t, []int{1, Sentinel, Sentinel}, ps.LocalLabels())
	assert.Equal(t, []int{Sentinel, 4, Sentinel}, ps.GlobalLabels())
}

func TestProofStateValidate(t *testing.T) {
	arity := []int{0, 1, 2}

	t.Run("valid", func(t *testing.T) {
		ps := ProofState{
			Tactic:       2,
			LocalContext: []NodeID{1, 2},
			Arguments:    []Argument{LocalArgument(1), GlobalArgument(0)},
		}
		assert.NoError(t, ps.Validate(arity, 5))
	})

	t.Run("tactic out of range", func(t *testing.T) {
		ps := ProofState{Tactic: 3}
		assert.ErrorContains(t, ps.Validate(arity, 5), "out of range")
	})

	t.Run("arity mismatch", func(t *testing.T) {
		ps := ProofState{Tactic: 1}
		assert.ErrorContains(t, ps.Validate(arity, 5), "requires 1 arguments")
	})

	t.Run("local index past context", func(t *testing.T) {
		ps := ProofState{
			Tactic:       1,
			LocalContext: []NodeID{1},
			Arguments:    []Argument{LocalArgument(1)},
		}
		assert.ErrorContains(t, ps.Validate(arity, 5), "local index 1 out of range")
	})

	t.Run("global id past vocabulary", func(t *testing.T) {
		ps := ProofState{
			Tactic:    1,
			Arguments: []Argument{GlobalArgument(5)},
		}
		assert.ErrorContains(t, ps.Validate(arity, 5), "global id 5 out of range")
	})

	t.Run("available ids checked", func(t *testing.T) {
		ps := ProofState{
			Tactic:           0,
			GlobalContextIDs: []GlobalID{5},
		}
		assert.ErrorContains(t, ps.Validate(arity, 5), "available global id 5")
	})
}

func TestBatchValidate(t *testing.T) {
	arity := []int{0, 1}
	batch := Batch{
		{Tactic: 0},
		{Tactic: 1}, // missing its argument
	}
	assert.ErrorContains(t, batch.Validate(arity, 0), "example 1:")
}
