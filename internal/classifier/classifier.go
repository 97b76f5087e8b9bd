// Package classifier predicts a document type by nearest-neighbor search
// over the reference index.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/embeddings"
	"github.com/ziadkadry99/docintake/internal/index"
)

const (
	// DefaultK is the number of neighbors retrieved per query.
	DefaultK = 3
	// DefaultThreshold is the softmax score below which the classifier abstains.
	DefaultThreshold = 0.3
)

var (
	// ErrEmbeddingUnavailable is returned when the embedding provider fails.
	// The classifier does not retry.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrAbstained marks a result whose confidence fell below the threshold.
	ErrAbstained = errors.New("classification abstained")
)

// Result is the outcome of a classification. A nil Label means the
// classifier abstained.
type Result struct {
	Label      *doctype.Type    `json:"label"`
	Confidence float64          `json:"confidence"`
	Policy     Policy           `json:"policy"`
	Neighbors  []index.Neighbor `json:"-"`
	Scores     []float64        `json:"-"`
}

// Abstained reports whether no label was chosen.
func (r Result) Abstained() bool { return r.Label == nil }

// Config tunes a Classifier.
type Config struct {
	K         int
	Threshold float64
	Policy    Policy
	// Timeout bounds each embedding call. Zero means no extra bound.
	Timeout time.Duration
}

// Classifier embeds text and labels it from its nearest references. It
// is safe for concurrent use once the index is built.
type Classifier struct {
	idx      *index.Index
	embedder embeddings.Embedder
	cfg      Config
	logger   *slog.Logger
}

// New creates a Classifier. A zero K or Policy takes the default (k=3,
// softmax). Threshold is used as given: zero disables abstention, and
// callers wanting the usual cut-off pass DefaultThreshold.
func New(idx *index.Index, embedder embeddings.Embedder, cfg Config, logger *slog.Logger) *Classifier {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicySoftmax
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{idx: idx, embedder: embedder, cfg: cfg, logger: logger}
}

// Policy returns the classifier's default policy.
func (c *Classifier) Policy() Policy { return c.cfg.Policy }

// Classify labels text with the classifier's default policy.
func (c *Classifier) Classify(ctx context.Context, text string) (Result, error) {
	return c.ClassifyWith(ctx, text, c.cfg.Policy)
}

// ClassifyWith labels text using the given policy.
func (c *Classifier) ClassifyWith(ctx context.Context, text string, policy Policy) (Result, error) {
	if _, err := ParsePolicy(string(policy)); err != nil {
		return Result{}, err
	}

	embedCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	vec, err := embeddings.EmbedOne(embedCtx, c.embedder, text)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	neighbors, err := c.idx.Search(vec, c.cfg.K)
	if err != nil {
		return Result{}, fmt.Errorf("search index: %w", err)
	}
	return c.decide(neighbors, policy)
}

// decide turns sorted neighbors into a result.
func (c *Classifier) decide(neighbors []index.Neighbor, policy Policy) (Result, error) {
	if len(neighbors) == 0 {
		return Result{}, index.ErrEmpty
	}
	res := Result{Policy: policy, Neighbors: neighbors}
	best := neighbors[0]

	switch policy {
	case PolicyInverseDistance:
		res.Confidence = InverseDistance(best.Distance)
		res.Scores = []float64{res.Confidence}
	default:
		dists := make([]float32, len(neighbors))
		for i, nb := range neighbors {
			dists[i] = nb.Distance
		}
		res.Scores = Softmax(dists)
		res.Confidence = res.Scores[0]
		if res.Confidence < c.cfg.Threshold {
			c.logger.Debug("classifier abstained", "confidence", res.Confidence, "threshold", c.cfg.Threshold)
			return res, nil
		}
	}

	label, err := best.Label()
	if err != nil {
		// A code that does not decode means the index and label set disagree.
		c.logger.Error("index label does not decode", "position", best.Position, "code", best.Code, "error", err)
		return Result{}, err
	}
	res.Label = &label
	return res, nil
}

// Probe embeds a short text to confirm the provider is reachable and
// returns the dimension it produces.
func Probe(ctx context.Context, e embeddings.Embedder) (int, error) {
	vec, err := embeddings.EmbedOne(ctx, e, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	return len(vec), nil
}
