// Package scoring builds raw candidate scores for the two argument
// pools and merges them into one normalized log-probability space per
// argument position.
package scoring

import "fmt"

// Similarity selects how query and candidate vectors are compared.
type Similarity int

const (
	// DotProduct scores with a raw inner product.
	DotProduct Similarity = iota
	// Cosine scores with cosine similarity divided by a learned
	// temperature, keeping unit-norm embeddings from producing
	// over- or under-confident logits.
	Cosine
)

const (
	dotProductName = "dot_product"
	cosineName     = "cosine"
)

// ParseSimilarity maps a configuration string to a Similarity.
// Unknown selectors are configuration errors and fail immediately.
func ParseSimilarity(s string) (Similarity, error) {
	switch s {
	case dotProductName, "":
		return DotProduct, nil
	case cosineName:
		return Cosine, nil
	default:
		return 0, fmt.Errorf("unknown similarity method %q (want %q or %q)", s, dotProductName, cosineName)
	}
}

// String returns the configuration name of the method.
func (s Similarity) String() string {
	switch s {
	case DotProduct:
		return dotProductName
	case Cosine:
		return cosineName
	default:
		return fmt.Sprintf("similarity(%d)", int(s))
	}
}
