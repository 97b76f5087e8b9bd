package pipeline

import (
	"context"
	"fmt"

	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/record"
)

// Analysis is the single-document view returned to API callers.
type Analysis struct {
	RawText      string         `json:"raw_text"`
	DocumentType string         `json:"document_type"`
	Entities     map[string]any `json:"entities"`
	Confidence   float64        `json:"confidence"`
}

// Analyze runs one file through OCR, classification and extraction
// without persisting anything. An empty policy uses the batch policy.
// Failures are returned as *StageError.
func (p *Pipeline) Analyze(ctx context.Context, path string, policy classifier.Policy) (res *Analysis, err error) {
	if policy == "" {
		policy = p.opts.Policy
	}
	stage := StageOCR
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	a, err := p.analyze(ctx, path, policy, &stage)
	if err != nil {
		p.logger.Warn("analysis failed", "file", path, "stage", stage.String(), "error", err)
		return nil, err
	}
	return &Analysis{
		RawText:      a.text,
		DocumentType: a.classification.Label.String(),
		Entities:     record.FlattenFields(a.extracted.Fields, a.fields),
		Confidence:   a.classification.Confidence,
	}, nil
}
