package batch

import (
	"time"

	"github.com/hpv-information-centre/reportcompiler/internal/compiler"
	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
)

// Status is the outcome of one document.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Outcome records how one document of the batch went.
type Outcome struct {
	Suffix   string
	Param    docparam.Param
	Status   Status
	Output   string
	LogFile  string
	Counts   map[compiler.Status]int
	Duration time.Duration
	// Err is set when Status is StatusFailed.
	Err *rcerrors.FragmentGenerationError
}

// Report is the BatchReport of one run: one outcome per document, in
// parameter order.
type Report struct {
	RunID string
	Spec  string
	// Commit is the checked out commit when the specification lives in a
	// git work tree.
	Commit    string
	Documents []Outcome
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Succeeded counts the documents generated without error.
func (r *Report) Succeeded() int {
	n := 0
	for _, d := range r.Documents {
		if d.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// Failed counts the documents that failed.
func (r *Report) Failed() int { return len(r.Documents) - r.Succeeded() }

// Err returns the *errors.BatchError describing every failed document, or
// nil when all succeeded.
func (r *Report) Err() error {
	var docs []*rcerrors.FragmentGenerationError
	for _, d := range r.Documents {
		if d.Err != nil {
			docs = append(docs, d.Err)
		}
	}
	if len(docs) == 0 {
		return nil
	}
	be := &rcerrors.BatchError{Documents: docs}
	be.SortDocuments()
	return be
}
