package classifier

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/index"
)

// tableEmbedder maps known texts to fixed vectors.
type tableEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (e *tableEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e.vecs[t]
		if !ok {
			v = []float32{0, 0}
		}
		out[i] = v
	}
	return out, nil
}

func (e *tableEmbedder) Dimensions() int { return 2 }
func (e *tableEmbedder) Name() string    { return "table" }

func buildIndex(t *testing.T, entries ...struct {
	vec   []float32
	label doctype.Type
}) *index.Index {
	t.Helper()
	idx := index.New(2)
	for _, e := range entries {
		if err := idx.Add(e.vec, e.label); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return idx
}

type entry = struct {
	vec   []float32
	label doctype.Type
}

func TestExactMatchInverseDistanceIsOne(t *testing.T) {
	idx := buildIndex(t,
		entry{[]float32{1, 0}, doctype.Memo},
		entry{[]float32{0, 1}, doctype.Invoice},
		entry{[]float32{5, 5}, doctype.Letter},
	)
	emb := &tableEmbedder{vecs: map[string][]float32{"total due": {0, 1}}}
	c := New(idx, emb, Config{Policy: PolicyInverseDistance}, nil)

	res, err := c.Classify(context.Background(), "total due")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Label == nil || *res.Label != doctype.Invoice {
		t.Fatalf("expected invoice, got %v", res.Label)
	}
	if res.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %v", res.Confidence)
	}
	if res.Neighbors[0].Distance != 0 {
		t.Errorf("expected distance 0, got %v", res.Neighbors[0].Distance)
	}
}

func TestInverseDistanceUsesNearestOnly(t *testing.T) {
	idx := buildIndex(t,
		entry{[]float32{1, 0}, doctype.Memo},
		entry{[]float32{3, 0}, doctype.Form},
	)
	emb := &tableEmbedder{vecs: map[string][]float32{"q": {0, 0}}}
	c := New(idx, emb, Config{Policy: PolicyInverseDistance}, nil)

	res, err := c.Classify(context.Background(), "q")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	// Nearest squared distance is 1.
	if math.Abs(res.Confidence-0.5) > 1e-9 {
		t.Errorf("expected 0.5, got %v", res.Confidence)
	}
}

func TestSoftmaxScoresSumToOne(t *testing.T) {
	idx := buildIndex(t,
		entry{[]float32{0.1, 0}, doctype.Email},
		entry{[]float32{1, 1}, doctype.Memo},
		entry{[]float32{2, 0}, doctype.Resume},
		entry{[]float32{9, 9}, doctype.Form},
	)
	emb := &tableEmbedder{vecs: map[string][]float32{"q": {0, 0}}}
	c := New(idx, emb, Config{Policy: PolicySoftmax}, nil)

	res, err := c.Classify(context.Background(), "q")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(res.Scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(res.Scores))
	}
	var sum float64
	for _, s := range res.Scores {
		sum += s
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("scores sum to %v", sum)
	}
	if res.Label == nil || *res.Label != doctype.Email {
		t.Errorf("expected email, got %v", res.Label)
	}
	if res.Confidence != res.Scores[0] {
		t.Errorf("confidence %v should equal top score %v", res.Confidence, res.Scores[0])
	}
}

func TestSoftmaxAbstainsBelowThreshold(t *testing.T) {
	// Four equidistant neighbors give each a score of 0.25.
	idx := buildIndex(t,
		entry{[]float32{1, 0}, doctype.Email},
		entry{[]float32{0, 1}, doctype.Memo},
		entry{[]float32{-1, 0}, doctype.Resume},
		entry{[]float32{0, -1}, doctype.Form},
	)
	emb := &tableEmbedder{vecs: map[string][]float32{"q": {0, 0}}}
	c := New(idx, emb, Config{K: 4, Threshold: 0.3, Policy: PolicySoftmax}, nil)

	res, err := c.Classify(context.Background(), "q")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if math.Abs(res.Confidence-0.25) > 1e-9 {
		t.Fatalf("expected best score 0.25, got %v", res.Confidence)
	}
	if !res.Abstained() {
		t.Errorf("expected abstention, got %v", *res.Label)
	}
}

func TestZeroThresholdNeverAbstains(t *testing.T) {
	idx := buildIndex(t,
		entry{[]float32{1, 0}, doctype.Email},
		entry{[]float32{0, 1}, doctype.Memo},
		entry{[]float32{-1, 0}, doctype.Resume},
		entry{[]float32{0, -1}, doctype.Form},
	)
	emb := &tableEmbedder{vecs: map[string][]float32{"q": {0, 0}}}
	c := New(idx, emb, Config{K: 4, Policy: PolicySoftmax}, nil)

	res, err := c.Classify(context.Background(), "q")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Abstained() {
		t.Errorf("threshold 0 must not abstain, confidence %v", res.Confidence)
	}
}

func TestInverseDistanceNeverAbstains(t *testing.T) {
	idx := buildIndex(t, entry{[]float32{100, 100}, doctype.Memo})
	emb := &tableEmbedder{vecs: map[string][]float32{"q": {0, 0}}}
	c := New(idx, emb, Config{Threshold: 0.9, Policy: PolicyInverseDistance}, nil)

	res, err := c.Classify(context.Background(), "q")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Abstained() {
		t.Error("inverse distance policy must not abstain")
	}
}

func TestTieGoesToEarliestInsertion(t *testing.T) {
	idx := buildIndex(t,
		entry{[]float32{1, 0}, doctype.Budget},
		entry{[]float32{0, 1}, doctype.Letter},
		entry{[]float32{-1, 0}, doctype.Memo},
	)
	emb := &tableEmbedder{vecs: map[string][]float32{"q": {0, 0}}}
	for _, p := range []Policy{PolicySoftmax, PolicyInverseDistance} {
		c := New(idx, emb, Config{Threshold: 0.1, Policy: p}, nil)
		res, err := c.Classify(context.Background(), "q")
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		if res.Label == nil || *res.Label != doctype.Budget {
			t.Errorf("%s: expected budget, got %v", p, res.Label)
		}
	}
}

func TestEmbeddingFailure(t *testing.T) {
	idx := buildIndex(t, entry{[]float32{1, 0}, doctype.Memo})
	emb := &tableEmbedder{err: errors.New("dial tcp: connection refused")}
	c := New(idx, emb, Config{}, nil)

	_, err := c.Classify(context.Background(), "anything")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestUndecodableLabelFailsLoudly(t *testing.T) {
	c := New(index.New(2), &tableEmbedder{}, Config{Policy: PolicyInverseDistance}, nil)
	_, err := c.decide([]index.Neighbor{{Position: 0, Distance: 0, Code: 404}}, PolicyInverseDistance)
	if !errors.Is(err, index.ErrInconsistent) {
		t.Errorf("expected ErrInconsistent, got %v", err)
	}
}

func TestClassifyWithUnknownPolicy(t *testing.T) {
	idx := buildIndex(t, entry{[]float32{1, 0}, doctype.Memo})
	c := New(idx, &tableEmbedder{}, Config{}, nil)
	if _, err := c.ClassifyWith(context.Background(), "x", "majority"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestSoftmaxLargeDistancesStayFinite(t *testing.T) {
	scores := Softmax([]float32{5000, 5001, 5002})
	var sum float64
	for _, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			t.Fatalf("non-finite score %v", s)
		}
		sum += s
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("scores sum to %v", sum)
	}
	if scores[0] <= scores[1] || scores[1] <= scores[2] {
		t.Errorf("scores should decrease with distance: %v", scores)
	}
}

func TestProbe(t *testing.T) {
	dim, err := Probe(context.Background(), &tableEmbedder{vecs: map[string][]float32{}})
	if err != nil || dim != 2 {
		t.Errorf("Probe = %d, %v", dim, err)
	}
	if _, err := Probe(context.Background(), &tableEmbedder{err: errors.New("down")}); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}
