// Package encoder holds the collaborator surface the scoring core
// consumes: graph constants, embedding tables, projection heads and
// the per-example encoding produced by an upstream graph encoder.
// Message passing itself lives outside this module; encodings arrive
// through the Encoder interface.
package encoder

import "fmt"

// Constants describes the fixed tables a trained model was built
// against: how many tactics exist, how many argument slots each one
// takes, and which node labels form the global vocabulary.
type Constants struct {
	TacticCount    int   `yaml:"tactic_count" json:"tactic_count"`
	NodeLabelCount int   `yaml:"node_label_count" json:"node_label_count"`
	TacticArity    []int `yaml:"tactic_arity" json:"tactic_arity"`
	GlobalContext  []int `yaml:"global_context" json:"global_context"`
}

// GlobalVocabSize returns the size of the global candidate pool.
func (c *Constants) GlobalVocabSize() int { return len(c.GlobalContext) }

// Validate checks internal consistency. Constants are supplied by the
// data pipeline; a mismatch here stops the run before any batch.
func (c *Constants) Validate() error {
	if c.TacticCount <= 0 {
		return fmt.Errorf("tactic count must be positive, got %d", c.TacticCount)
	}
	if len(c.TacticArity) != c.TacticCount {
		return fmt.Errorf("arity table has %d entries for %d tactics", len(c.TacticArity), c.TacticCount)
	}
	for t, n := range c.TacticArity {
		if n < 0 {
			return fmt.Errorf("tactic %d has negative arity %d", t, n)
		}
	}
	if c.NodeLabelCount < 0 {
		return fmt.Errorf("node label count must be non-negative, got %d", c.NodeLabelCount)
	}
	for i, label := range c.GlobalContext {
		if label < 0 || label >= c.NodeLabelCount {
			return fmt.Errorf("global context entry %d: node label %d out of range [0, %d)", i, label, c.NodeLabelCount)
		}
	}
	return nil
}

// Arity returns the argument-slot count of tactic t.
func (c *Constants) Arity(t int) (int, error) {
	if t < 0 || t >= len(c.TacticArity) {
		return 0, fmt.Errorf("tactic %d out of range [0, %d)", t, len(c.TacticArity))
	}
	return c.TacticArity[t], nil
}
