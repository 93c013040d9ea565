package encoder

import (
	"fmt"
	"math/rand"

	"tacgraph/internal/types"
)

// Encoding is the upstream graph encoder's product for one proof
// state: a pooled graph representation and one hidden state per
// local-context entry, all of a shared fixed width.
type Encoding struct {
	Repr        []float32   // pooled graph representation
	LocalHidden [][]float32 // one vector per ProofState.LocalContext entry, in order
}

// Encoder produces encodings for proof states. Implementations own
// the message-passing machinery; the scoring core only consumes hidden
// states through this interface.
type Encoder interface {
	Encode(ps *types.ProofState) (Encoding, error)
	HiddenSize() int
}

// TacticHead maps a graph representation to the tactic embedding
// space, from which logits are inner products against the tactic
// table.
type TacticHead struct {
	proj *Dense
}

// NewTacticHead builds the projection from hidden width to tactic
// embedding width.
func NewTacticHead(hiddenSize, tacticEmbeddingSize int, rng *rand.Rand) *TacticHead {
	return &TacticHead{proj: NewDense(hiddenSize, tacticEmbeddingSize, rng)}
}

// Logits scores every tactic for one graph representation.
func (h *TacticHead) Logits(repr []float32, tactics *Embedding) []float32 {
	query := h.proj.Apply(repr)
	logits := make([]float32, tactics.Count())
	for t, row := range tactics.Rows() {
		logits[t] = Dot(query, row)
	}
	return logits
}

// ArgumentsHead turns (graph representation, tactic embedding, arity)
// into one query vector per argument slot. The recurrence conditions
// every slot on the chosen tactic up front; slots do not see each
// other's predictions, which is what makes the expansion only weakly
// autoregressive.
type ArgumentsHead struct {
	initial *Dense // [repr ; tactic embedding] -> hidden
	step    *Dense // hidden -> hidden, advances one slot
}

// NewArgumentsHead builds the recurrence layers.
func NewArgumentsHead(hiddenSize, tacticEmbeddingSize int, rng *rand.Rand) *ArgumentsHead {
	return &ArgumentsHead{
		initial: NewDense(hiddenSize+tacticEmbeddingSize, hiddenSize, rng),
		step:    NewDense(hiddenSize, hiddenSize, rng),
	}
}

// Queries returns arity query vectors conditioned on the tactic.
func (h *ArgumentsHead) Queries(repr, tacticEmbedding []float32, arity int) [][]float32 {
	if arity == 0 {
		return nil
	}
	state := make([]float32, 0, len(repr)+len(tacticEmbedding))
	state = append(state, repr...)
	state = append(state, tacticEmbedding...)
	hidden := h.initial.Apply(state)
	for i := range hidden {
		hidden[i] = tanh32(hidden[i])
	}
	queries := make([][]float32, arity)
	queries[0] = hidden
	for p := 1; p < arity; p++ {
		next := h.step.Apply(queries[p-1])
		for i := range next {
			next[i] = tanh32(next[i])
		}
		queries[p] = next
	}
	return queries
}

// StaticEncoder is a deterministic stand-in for the external graph
// encoder: hidden states are derived from node ids through a seeded
// embedding table, and the graph representation is the mean of the
// local-context states. It backs tests and the CLI until a real
// encoder is attached.
type StaticEncoder struct {
	nodes      *Embedding
	hiddenSize int
}

// NewStaticEncoder builds a stand-in encoder over nodeLabelCount node
// ids.
func NewStaticEncoder(nodeLabelCount, hiddenSize int, rng *rand.Rand) *StaticEncoder {
	return &StaticEncoder{
		nodes:      NewEmbedding(nodeLabelCount, hiddenSize, rng),
		hiddenSize: hiddenSize,
	}
}

// HiddenSize returns the hidden-state width.
func (s *StaticEncoder) HiddenSize() int { return s.hiddenSize }

// Encode derives an encoding for ps.
func (s *StaticEncoder) Encode(ps *types.ProofState) (Encoding, error) {
	local := make([][]float32, len(ps.LocalContext))
	repr := make([]float32, s.hiddenSize)
	for i, node := range ps.LocalContext {
		row, err := s.nodes.Lookup(int(node))
		if err != nil {
			return Encoding{}, fmt.Errorf("local context entry %d: %w", i, err)
		}
		local[i] = row
		for j, v := range row {
			repr[j] += v
		}
	}
	if len(local) > 0 {
		inv := 1 / float32(len(local))
		for j := range repr {
			repr[j] *= inv
		}
	}
	return Encoding{Repr: repr, LocalHidden: local}, nil
}
