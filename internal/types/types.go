// Package types defines the domain model shared by the scoring, loss,
// metric and inference packages: proof states, argument ground truth,
// and batches. A proof state is one training or inference example; its
// candidate pools are the per-example local context and the shared
// global vocabulary.
package types

import (
	"encoding/json"
	"fmt"
)

// Sentinel marks "no ground truth" at an argument position in the flat
// label encoding. It is also used for "the argument belongs to the
// other pool" when local and global labels are split into two rows.
// Valid ids are 0-based, so Sentinel never collides with one.
const Sentinel = -1

// TacticID indexes the fixed tactic table.
type TacticID int

// NodeID identifies a node of the proof-state graph.
type NodeID int

// GlobalID indexes the fixed global vocabulary.
type GlobalID int

// ArgumentKind says which pool a ground-truth argument comes from, if any.
type ArgumentKind int

const (
	// ArgumentNone means the slot carries no ground truth.
	ArgumentNone ArgumentKind = iota
	// ArgumentLocal references an entry of the example's local context.
	ArgumentLocal
	// ArgumentGlobal references an entry of the global vocabulary.
	ArgumentGlobal
)

// Argument is the ground truth for one argument slot. Exactly one of
// the local/global references is meaningful, selected by Kind.
type Argument struct {
	Kind   ArgumentKind
	Local  int      // index into ProofState.LocalContext when Kind == ArgumentLocal
	Global GlobalID // vocabulary id when Kind == ArgumentGlobal
}

// NoArgument returns an unfilled argument slot.
func NoArgument() Argument { return Argument{Kind: ArgumentNone} }

// LocalArgument returns a slot referencing local-context position i.
func LocalArgument(i int) Argument { return Argument{Kind: ArgumentLocal, Local: i} }

// GlobalArgument returns a slot referencing global vocabulary entry g.
func GlobalArgument(g GlobalID) Argument { return Argument{Kind: ArgumentGlobal, Global: g} }

// argumentWire is the JSON form of an Argument: {"local": i},
// {"global": g}, or null.
type argumentWire struct {
	Local  *int      `json:"local,omitempty"`
	Global *GlobalID `json:"global,omitempty"`
}

// MarshalJSON encodes the argument as {"local":i}, {"global":g} or null.
func (a Argument) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ArgumentNone:
		return []byte("null"), nil
	case ArgumentLocal:
		return json.Marshal(argumentWire{Local: &a.Local})
	case ArgumentGlobal:
		return json.Marshal(argumentWire{Global: &a.Global})
	default:
		return nil, fmt.Errorf("unknown argument kind %d", a.Kind)
	}
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (a *Argument) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = NoArgument()
		return nil
	}
	var w argumentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Local != nil && w.Global != nil:
		return fmt.Errorf("argument has both local and global references")
	case w.Local != nil:
		*a = LocalArgument(*w.Local)
	case w.Global != nil:
		*a = GlobalArgument(*w.Global)
	default:
		*a = NoArgument()
	}
	return nil
}

// ProofState is one example. It is read-only once constructed.
//
// GlobalContextIDs lists which entries of the global vocabulary are
// available to this example; nil means the full vocabulary. Arguments
// holds one entry per argument slot of Tactic.
type ProofState struct {
	Tactic           TacticID   `json:"tactic"`
	LocalContext     []NodeID   `json:"local_context"`
	GlobalContextIDs []GlobalID `json:"global_context_ids,omitempty"`
	Arguments        []Argument `json:"arguments"`
}

// LocalLabels returns the flat label row for the local pool: the
// local-context index for local arguments, Sentinel otherwise.
func (ps *ProofState) LocalLabels() []int {
	labels := make([]int, len(ps.Arguments))
	for i, arg := range ps.Arguments {
		if arg.Kind == ArgumentLocal {
			labels[i] = arg.Local
		} else {
			labels[i] = Sentinel
		}
	}
	return labels
}

// GlobalLabels returns the flat label row for the global pool: the
// vocabulary id for global arguments, Sentinel otherwise.
func (ps *ProofState) GlobalLabels() []int {
	labels := make([]int, len(ps.Arguments))
	for i, arg := range ps.Arguments {
		if arg.Kind == ArgumentGlobal {
			labels[i] = int(arg.Global)
		} else {
			labels[i] = Sentinel
		}
	}
	return labels
}

// Validate checks the example against the tactic arity table and the
// global vocabulary size. Violations are data errors, not recoverable.
func (ps *ProofState) Validate(arity []int, globalVocabSize int) error {
	if ps.Tactic < 0 || int(ps.Tactic) >= len(arity) {
		return fmt.Errorf("tactic %d out of range [0, %d)", ps.Tactic, len(arity))
	}
	if want := arity[ps.Tactic]; len(ps.Arguments) != want {
		return fmt.Errorf("tactic %d requires %d arguments, got %d", ps.Tactic, want, len(ps.Arguments))
	}
	for i, arg := range ps.Arguments {
		switch arg.Kind {
		case ArgumentNone:
		case ArgumentLocal:
			if arg.Local < 0 || arg.Local >= len(ps.LocalContext) {
				return fmt.Errorf("argument %d: local index %d out of range for context of %d", i, arg.Local, len(ps.LocalContext))
			}
		case ArgumentGlobal:
			if arg.Global < 0 || int(arg.Global) >= globalVocabSize {
				return fmt.Errorf("argument %d: global id %d out of range for vocabulary of %d", i, arg.Global, globalVocabSize)
			}
		default:
			return fmt.Errorf("argument %d: unknown kind %d", i, arg.Kind)
		}
	}
	for _, id := range ps.GlobalContextIDs {
		if id < 0 || int(id) >= globalVocabSize {
			return fmt.Errorf("available global id %d out of range for vocabulary of %d", id, globalVocabSize)
		}
	}
	return nil
}

// Batch is an ordered sequence of proof states processed together. Row
// order aligns ragged structures with ground-truth labels.
type Batch []ProofState

// Validate checks every example in the batch.
func (b Batch) Validate(arity []int, globalVocabSize int) error {
	for i := range b {
		if err := b[i].Validate(arity, globalVocabSize); err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
	}
	return nil
}
