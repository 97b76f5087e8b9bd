package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/record"
	"github.com/ziadkadry99/docintake/internal/walker"
)

// ErrRootNotFound is returned when the batch root is missing or is not a
// directory. It aborts the batch before any document is processed.
var ErrRootNotFound = errors.New("root directory not found")

// ErrFileTooLarge fails the OCR stage of a document above
// Options.MaxFileSize.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// Stage is a step of the per-document state machine.
type Stage int

const (
	StageOCR Stage = iota + 1
	StageClassify
	StageExtract
	StagePersist
)

func (s Stage) String() string {
	switch s {
	case StageOCR:
		return "ocr"
	case StageClassify:
		return "classify"
	case StageExtract:
		return "extract"
	case StagePersist:
		return "persist"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError records the stage at which a document failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Outcome is the result of driving one document through the pipeline.
// Exactly one of Record and Err is set.
type Outcome struct {
	File           walker.FileInfo
	Record         *record.ProcessingRecord
	Classification classifier.Result
	Err            error
	Duration       time.Duration
}

// OK reports whether the document was persisted.
func (o Outcome) OK() bool { return o.Err == nil }

// FailedStage returns the stage that failed, or 0 for a success.
func (o Outcome) FailedStage() Stage {
	var se *StageError
	if errors.As(o.Err, &se) {
		return se.Stage
	}
	return 0
}
