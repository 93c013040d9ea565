package task

import (
	"fmt"
	"math/rand"

	"tacgraph/internal/encoder"
	"tacgraph/internal/loss"
	"tacgraph/internal/ragged"
	"tacgraph/internal/scoring"
	"tacgraph/internal/types"
)

// Model holds the parameterized layers the task variants score with.
// All parameters are assembled once at construction; nothing is
// attached incrementally afterwards.
type Model struct {
	constants encoder.Constants
	enc       encoder.Encoder

	tacticEmbedding *encoder.Embedding
	tacticHead      *encoder.TacticHead
	argumentsHead   *encoder.ArgumentsHead
	localHead       *encoder.Dense
	globalHead      *encoder.Dense

	globalEmbedding *encoder.Embedding
	globalScorer    *scoring.GlobalScorer
	temperature     float32 // learned cosine temperature, shared with the scorer
}

// NewModel builds every layer the requested task kind needs. The
// encoder stays external; its hidden width fixes the model's.
func NewModel(spec Spec, constants encoder.Constants, enc encoder.Encoder) (*Model, error) {
	if err := constants.Validate(); err != nil {
		return nil, fmt.Errorf("graph constants: %w", err)
	}
	if enc.HiddenSize() != spec.HiddenSize {
		return nil, fmt.Errorf("encoder hidden size %d does not match configured %d", enc.HiddenSize(), spec.HiddenSize)
	}

	rng := rand.New(rand.NewSource(spec.Seed))
	m := &Model{
		constants:       constants,
		enc:             enc,
		tacticEmbedding: encoder.NewEmbedding(constants.TacticCount, spec.TacticEmbeddingSize, rng),
		tacticHead:      encoder.NewTacticHead(spec.HiddenSize, spec.TacticEmbeddingSize, rng),
	}

	if spec.PredictionTaskType == BaseTacticPrediction {
		return m, nil
	}

	m.argumentsHead = encoder.NewArgumentsHead(spec.HiddenSize, spec.TacticEmbeddingSize, rng)
	m.localHead = encoder.NewDense(spec.HiddenSize, spec.HiddenSize, rng)

	if spec.PredictionTaskType != GlobalArgumentPrediction {
		return m, nil
	}

	m.globalHead = encoder.NewDense(spec.HiddenSize, spec.HiddenSize, rng)
	m.globalEmbedding = encoder.NewEmbedding(constants.GlobalVocabSize(), spec.HiddenSize, rng)
	m.temperature = spec.GlobalTemperature

	method, err := scoring.ParseSimilarity(spec.GlobalSimilarity)
	if err != nil {
		return nil, err
	}
	var temp *float32
	if method == scoring.Cosine {
		temp = &m.temperature
	}
	m.globalScorer, err = scoring.NewGlobalScorer(m.globalEmbedding, method, temp, spec.DynamicGlobalContext)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Constants returns the graph constants the model was built against.
func (m *Model) Constants() encoder.Constants { return m.constants }

// TacticLogits scores every tactic for one encoding.
func (m *Model) TacticLogits(enc encoder.Encoding) []float32 {
	return m.tacticHead.Logits(enc.Repr, m.tacticEmbedding)
}

// argumentQueries produces the per-slot query vectors for one example
// under the given tactic.
func (m *Model) argumentQueries(enc encoder.Encoding, tactic types.TacticID) ([][]float32, error) {
	arity, err := m.constants.Arity(int(tactic))
	if err != nil {
		return nil, err
	}
	emb, err := m.tacticEmbedding.Lookup(int(tactic))
	if err != nil {
		return nil, err
	}
	return m.argumentsHead.Queries(enc.Repr, emb, arity), nil
}

// localScores builds raw per-position local-pool rows for one example.
func (m *Model) localScores(ps *types.ProofState, enc encoder.Encoding, queries [][]float32) ([][]float32, error) {
	pool, err := scoring.NewLocalPool(ps, enc)
	if err != nil {
		return nil, err
	}
	return pool.Score(m.localHead.ApplyAll(queries)), nil
}

// globalScores builds raw per-position global-pool rows for one
// example, with unavailable entries masked to -Inf.
func (m *Model) globalScores(ps *types.ProofState, queries [][]float32) ([][]float32, error) {
	pool, err := m.globalScorer.Pool(ps)
	if err != nil {
		return nil, err
	}
	return pool.Score(m.globalHead.ApplyAll(queries)), nil
}

// globalCandidates counts the selectable global entries for an
// example.
func (m *Model) globalCandidates(ps *types.ProofState) int {
	if m.globalScorer == nil {
		return 0
	}
	if m.globalScorer.Restricts() && ps.GlobalContextIDs != nil {
		return len(ps.GlobalContextIDs)
	}
	return m.globalEmbedding.Count()
}

// Forward carries one batch's outputs: tactic logits always, argument
// score tables and their aligned label rows depending on the task
// kind. Tables are recomputed per forward pass and discarded after
// loss and metric extraction.
type Forward struct {
	TacticLogits [][]float32
	TacticTruth  []int

	LocalLabels  ragged.Ints
	GlobalLabels ragged.Ints

	// LocalRaw holds unnormalized local scores (local-only task).
	LocalRaw ragged.Table
	// LocalNorm and GlobalNorm hold jointly normalized scores (global
	// task).
	LocalNorm  ragged.Table
	GlobalNorm ragged.Table
}

// forwardTactic runs the shared tactic stage and collects encodings
// for the argument stages.
func (m *Model) forwardTactic(batch types.Batch) (*Forward, []encoder.Encoding, error) {
	if err := batch.Validate(m.constants.TacticArity, m.constants.GlobalVocabSize()); err != nil {
		return nil, nil, err
	}
	f := &Forward{
		TacticLogits: make([][]float32, len(batch)),
		TacticTruth:  make([]int, len(batch)),
	}
	encodings := make([]encoder.Encoding, len(batch))
	for i := range batch {
		enc, err := m.enc.Encode(&batch[i])
		if err != nil {
			return nil, nil, fmt.Errorf("example %d: encode: %w", i, err)
		}
		encodings[i] = enc
		f.TacticLogits[i] = m.TacticLogits(enc)
		f.TacticTruth[i] = int(batch[i].Tactic)
	}
	return f, encodings, nil
}

// forwardLocal adds raw local argument scores conditioned on the
// ground-truth tactic.
func (m *Model) forwardLocal(batch types.Batch, f *Forward, encodings []encoder.Encoding) error {
	labelRows := make([][]int, len(batch))
	scoreRows := make([][][]float32, len(batch))
	for i := range batch {
		queries, err := m.argumentQueries(encodings[i], batch[i].Tactic)
		if err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
		rows, err := m.localScores(&batch[i], encodings[i], queries)
		if err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
		labelRows[i] = batch[i].LocalLabels()
		scoreRows[i] = rows
	}
	f.LocalLabels = ragged.NewInts(labelRows)
	f.LocalRaw = ragged.NewTable(scoreRows)
	return nil
}

// forwardGlobal adds jointly normalized local and global argument
// scores conditioned on the ground-truth tactic.
func (m *Model) forwardGlobal(batch types.Batch, f *Forward, encodings []encoder.Encoding) error {
	localLabelRows := make([][]int, len(batch))
	globalLabelRows := make([][]int, len(batch))
	localRows := make([][][]float32, len(batch))
	globalRows := make([][][]float32, len(batch))
	for i := range batch {
		queries, err := m.argumentQueries(encodings[i], batch[i].Tactic)
		if err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
		local, err := m.localScores(&batch[i], encodings[i], queries)
		if err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
		global, err := m.globalScores(&batch[i], queries)
		if err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
		localLabelRows[i] = batch[i].LocalLabels()
		globalLabelRows[i] = batch[i].GlobalLabels()
		localRows[i] = local
		globalRows[i] = global
	}
	f.LocalLabels = ragged.NewInts(localLabelRows)
	f.GlobalLabels = ragged.NewInts(globalLabelRows)

	localNorm, globalNorm, err := scoring.NormalizeJoint(ragged.NewTable(localRows), ragged.NewTable(globalRows))
	if err != nil {
		return err
	}
	f.LocalNorm = localNorm
	f.GlobalNorm = globalNorm
	return nil
}

// tacticLoss is shared by all variants.
func tacticLoss(f *Forward) (map[string][]float32, error) {
	nll, err := loss.TacticNLL(f.TacticLogits, f.TacticTruth)
	if err != nil {
		return nil, err
	}
	return map[string][]float32{OutputTacticLogits: nll}, nil
}
