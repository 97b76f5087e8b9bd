// Package index implements the flat squared-L2 reference index the
// classifier searches, together with its on-disk layout.
package index

import (
	"errors"
	"fmt"

	"github.com/ziadkadry99/docintake/internal/doctype"
)

var (
	// ErrCorrupt marks a persisted index that cannot be trusted.
	ErrCorrupt = errors.New("index corrupt")
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInconsistent marks a stored label code that does not decode.
	ErrInconsistent = errors.New("index label inconsistent")
	// ErrEmpty is returned when searching an index with no vectors.
	ErrEmpty = errors.New("index is empty")
)

// CorruptIndexError describes why a persisted index was rejected.
type CorruptIndexError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptIndexError) Error() string {
	msg := fmt.Sprintf("corrupt index at %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptIndexError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCorrupt, e.Err}
	}
	return []error{ErrCorrupt}
}

// Neighbor is one search hit. Position is the insertion order of the
// reference vector.
type Neighbor struct {
	Position int
	Distance float32
	Code     int
}

// Label decodes the neighbor's stored code.
func (n Neighbor) Label() (doctype.Type, error) {
	t, err := doctype.FromCode(n.Code)
	if err != nil {
		return 0, fmt.Errorf("%w: position %d: %v", ErrInconsistent, n.Position, err)
	}
	return t, nil
}

// Index is an append-only set of reference vectors with a parallel list
// of label codes. Add must not run concurrently with Search; once built
// the index is safe for concurrent readers.
type Index struct {
	dim    int
	data   []float32
	labels []int
}

// New returns an empty index. A dim of 0 adopts the dimension of the
// first vector added.
func New(dim int) *Index {
	return &Index{dim: dim}
}

// Dim returns the vector dimension, or 0 for an empty index created without one.
func (x *Index) Dim() int { return x.dim }

// Len returns the number of reference vectors.
func (x *Index) Len() int { return len(x.labels) }

// Labels returns a copy of the label codes in insertion order.
func (x *Index) Labels() []int {
	out := make([]int, len(x.labels))
	copy(out, x.labels)
	return out
}

// Vector returns a copy of the vector stored at position i.
func (x *Index) Vector(i int) []float32 {
	out := make([]float32, x.dim)
	copy(out, x.data[i*x.dim:(i+1)*x.dim])
	return out
}

// Add appends a reference vector. The vector is copied.
func (x *Index) Add(vec []float32, label doctype.Type) error {
	if !label.Valid() {
		return fmt.Errorf("add: invalid label code %d", int(label))
	}
	if len(vec) == 0 {
		return fmt.Errorf("add: %w: empty vector", ErrDimensionMismatch)
	}
	if x.dim == 0 {
		x.dim = len(vec)
	}
	if len(vec) != x.dim {
		return fmt.Errorf("add: %w: got %d, index has %d", ErrDimensionMismatch, len(vec), x.dim)
	}
	x.data = append(x.data, vec...)
	x.labels = append(x.labels, label.Code())
	return nil
}

// Histogram counts reference vectors per label code.
func (x *Index) Histogram() map[int]int {
	h := make(map[int]int)
	for _, c := range x.labels {
		h[c]++
	}
	return h
}

// Search returns up to k nearest neighbors of q by squared Euclidean
// distance, nearest first. Equal distances keep insertion order.
func (x *Index) Search(q []float32, k int) ([]Neighbor, error) {
	n := x.Len()
	if n == 0 {
		return nil, ErrEmpty
	}
	if len(q) != x.dim {
		return nil, fmt.Errorf("search: %w: query has %d, index has %d", ErrDimensionMismatch, len(q), x.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	// Insertion into a short sorted list. Strict comparison keeps the
	// earlier position ahead on ties.
	top := make([]Neighbor, 0, k)
	for i := 0; i < n; i++ {
		d := squaredL2(q, x.data[i*x.dim:(i+1)*x.dim])
		if len(top) == k && d >= top[k-1].Distance {
			continue
		}
		pos := len(top)
		for pos > 0 && d < top[pos-1].Distance {
			pos--
		}
		nb := Neighbor{Position: i, Distance: d, Code: x.labels[i]}
		if len(top) < k {
			top = append(top, Neighbor{})
		}
		copy(top[pos+1:], top[pos:len(top)-1])
		top[pos] = nb
	}
	return top, nil
}

func squaredL2(a, b []float32) float32 {
	var s float32
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
