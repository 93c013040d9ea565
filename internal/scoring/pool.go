package scoring

import (
	"fmt"

	"tacgraph/internal/encoder"
	"tacgraph/internal/ragged"
	"tacgraph/internal/types"
)

// Pool is one argument-candidate source for one example: an ordered
// candidate id list and a raw score row per argument-position query.
type Pool interface {
	// IDs returns the candidate ids in scoring order.
	IDs() []int
	// Score returns one raw score row per query, each of width
	// len(IDs()).
	Score(queries [][]float32) [][]float32
}

// localPool scores the example's local context by inner product
// between position queries and context hidden states. Context order is
// preserved; the pool may be empty.
type localPool struct {
	ids    []int
	hidden [][]float32
}

// NewLocalPool builds the local candidate pool from an example's
// encoding. The encoding must carry one hidden state per local-context
// entry.
func NewLocalPool(ps *types.ProofState, enc encoder.Encoding) (Pool, error) {
	if len(enc.LocalHidden) != len(ps.LocalContext) {
		return nil, fmt.Errorf("encoding has %d hidden states for a local context of %d", len(enc.LocalHidden), len(ps.LocalContext))
	}
	ids := make([]int, len(ps.LocalContext))
	for i, node := range ps.LocalContext {
		ids[i] = int(node)
	}
	return &localPool{ids: ids, hidden: enc.LocalHidden}, nil
}

func (p *localPool) IDs() []int { return p.ids }

func (p *localPool) Score(queries [][]float32) [][]float32 {
	rows := make([][]float32, len(queries))
	for i, q := range queries {
		row := make([]float32, len(p.hidden))
		for k, h := range p.hidden {
			row[k] = encoder.Dot(q, h)
		}
		rows[i] = row
	}
	return rows
}

// GlobalScorer scores queries against the fixed global vocabulary. One
// scorer is shared across the batch; per-example availability comes in
// through Pool.
type GlobalScorer struct {
	embeddings  *encoder.Embedding
	method      Similarity
	temperature *float32 // learned scalar, required for Cosine
	restrict    bool     // limit candidates to the example's available subset
}

// NewGlobalScorer validates the similarity configuration and wraps the
// vocabulary embedding table.
func NewGlobalScorer(embeddings *encoder.Embedding, method Similarity, temperature *float32, restrict bool) (*GlobalScorer, error) {
	if method == Cosine && temperature == nil {
		return nil, fmt.Errorf("cosine similarity requires a learned temperature")
	}
	if temperature != nil && *temperature == 0 {
		return nil, fmt.Errorf("temperature must be non-zero")
	}
	return &GlobalScorer{embeddings: embeddings, method: method, temperature: temperature, restrict: restrict}, nil
}

// Restricts reports whether per-example availability masking is on.
func (g *GlobalScorer) Restricts() bool { return g.restrict }

// Pool returns the global candidate pool for one example. Candidates
// span the full vocabulary; when restriction is on, entries outside the
// example's available subset are scored at -Inf so they can never be
// selected and carry no probability mass.
func (g *GlobalScorer) Pool(ps *types.ProofState) (Pool, error) {
	size := g.embeddings.Count()
	var available []bool
	if g.restrict && ps.GlobalContextIDs != nil {
		available = make([]bool, size)
		for _, id := range ps.GlobalContextIDs {
			if id < 0 || int(id) >= size {
				return nil, fmt.Errorf("available global id %d out of range for vocabulary of %d", id, size)
			}
			available[id] = true
		}
	}
	return &globalPool{scorer: g, available: available}, nil
}

type globalPool struct {
	scorer    *GlobalScorer
	available []bool // nil means all entries are available
}

func (p *globalPool) IDs() []int {
	ids := make([]int, p.scorer.embeddings.Count())
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func (p *globalPool) Score(queries [][]float32) [][]float32 {
	emb := p.scorer.embeddings
	rows := make([][]float32, len(queries))
	for i, q := range queries {
		if p.scorer.method == Cosine {
			q = encoder.Normalize(q)
		}
		row := make([]float32, emb.Count())
		for k, key := range emb.Rows() {
			if p.available != nil && !p.available[k] {
				row[k] = ragged.NegInf
				continue
			}
			switch p.scorer.method {
			case Cosine:
				row[k] = encoder.Dot(q, encoder.Normalize(key)) / *p.scorer.temperature
			default:
				row[k] = encoder.Dot(q, key)
			}
		}
		rows[i] = row
	}
	return rows
}
