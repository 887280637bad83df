package domain

import "strings"

// PayloadText is the reserved payload key holding the verbatim chunk text.
const PayloadText = "original_text"

// DistanceMetric is the similarity function a vector collection is created with.
type DistanceMetric string

// Supported distance metrics.
const (
	// DistanceCosine scores by cosine similarity.
	DistanceCosine DistanceMetric = "cosine"

	// DistanceDot scores by inner product.
	DistanceDot DistanceMetric = "dot"

	// DistanceEuclid scores by 1 / (1 + euclidean distance).
	DistanceEuclid DistanceMetric = "euclid"
)

// ParseDistanceMetric parses a metric name case-insensitively.
// Unknown names fall back to DistanceDot.
func ParseDistanceMetric(s string) DistanceMetric {
	switch DistanceMetric(strings.ToLower(strings.TrimSpace(s))) {
	case DistanceCosine:
		return DistanceCosine
	case DistanceEuclid, "euclidean":
		return DistanceEuclid
	default:
		return DistanceDot
	}
}

// IsValid returns true if the metric is recognised.
func (m DistanceMetric) IsValid() bool {
	switch m {
	case DistanceCosine, DistanceDot, DistanceEuclid:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (m DistanceMetric) String() string {
	return string(m)
}

// VectorCollection describes a per-project vector namespace.
// Dimension and Metric are fixed at creation.
type VectorCollection struct {
	Name      string
	Dimension int
	Metric    DistanceMetric
}

// VectorRecord is the embedding of a chunk plus a payload copy of its
// metadata and text.
type VectorRecord struct {
	// ID is the record identifier. Upserting an existing ID overwrites it.
	ID string

	// Vector has exactly the collection's dimension.
	Vector []float32

	// Payload always carries PayloadText.
	Payload map[string]any
}

// VectorHit is a single similarity search result.
type VectorHit struct {
	// ID is the matching record ID.
	ID string

	// Score is the similarity, higher is closer.
	Score float64

	// Payload is the record payload.
	Payload map[string]any
}
