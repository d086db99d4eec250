package errors

import (
	stdErrors "errors"
	"fmt"
	"sort"
	"strings"
)

// GlobalFragment names document-level failures that belong to no fragment.
const GlobalFragment = "<global>"

// FragmentFailure records one failed fragment of a document.
type FragmentFailure struct {
	Fragment string   `json:"fragment"`
	Message  string   `json:"message"`
	Trace    []string `json:"trace,omitempty"`
	Err      error    `json:"-"`
}

// NewFragmentFailure builds a failure from err, pulling the trace off a ReportError when present.
func NewFragmentFailure(fragment string, err error) FragmentFailure {
	return FragmentFailure{
		Fragment: fragment,
		Message:  err.Error(),
		Trace:    TraceOf(err),
		Err:      err,
	}
}

// FragmentGenerationError aggregates every fragment failure of one document.
// It is raised once, after the whole fragment tree has been traversed.
type FragmentGenerationError struct {
	Document string
	Failures []FragmentFailure
}

func (e *FragmentGenerationError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Fragment)
	}
	return fmt.Sprintf("document %q: %d fragment(s) failed: %s", e.Document, len(e.Failures), strings.Join(names, ", "))
}

// Unwrap exposes the underlying fragment errors to errors.Is/As.
func (e *FragmentGenerationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// Fragments returns the names of the failed fragments in failure order.
func (e *FragmentGenerationError) Fragments() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Fragment)
	}
	return out
}

// Failure returns the failure recorded for fragment, if any.
func (e *FragmentGenerationError) Failure(fragment string) (FragmentFailure, bool) {
	for _, f := range e.Failures {
		if f.Fragment == fragment {
			return f, true
		}
	}
	return FragmentFailure{}, false
}

// BatchError aggregates the failed documents of a batch run.
type BatchError struct {
	Documents []*FragmentGenerationError
}

func (e *BatchError) Error() string {
	names := make([]string, 0, len(e.Documents))
	for _, d := range e.Documents {
		names = append(names, d.Document)
	}
	return fmt.Sprintf("%d document(s) failed: %s", len(e.Documents), strings.Join(names, ", "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Documents))
	for _, d := range e.Documents {
		errs = append(errs, d)
	}
	return errs
}

// FailureDetail is the (message, trace) pair reported per failed fragment.
type FailureDetail struct {
	Message string   `json:"message"`
	Trace   []string `json:"trace,omitempty"`
}

// Failures returns the batch outcome keyed by document suffix, then fragment.
func (e *BatchError) Failures() map[string]map[string]FailureDetail {
	out := make(map[string]map[string]FailureDetail, len(e.Documents))
	for _, d := range e.Documents {
		frags := make(map[string]FailureDetail, len(d.Failures))
		for _, f := range d.Failures {
			frags[f.Fragment] = FailureDetail{Message: f.Message, Trace: f.Trace}
		}
		out[d.Document] = frags
	}
	return out
}

// AsDocumentFailure converts any document-level error into a FragmentGenerationError,
// filing errors that are not already aggregated under GlobalFragment.
func AsDocumentFailure(document string, err error) *FragmentGenerationError {
	var fge *FragmentGenerationError
	if stdErrors.As(err, &fge) {
		if fge.Document == "" {
			fge.Document = document
		}
		return fge
	}
	return &FragmentGenerationError{
		Document: document,
		Failures: []FragmentFailure{NewFragmentFailure(GlobalFragment, err)},
	}
}

// SortDocuments orders the failed documents by suffix for stable reports.
func (e *BatchError) SortDocuments() {
	sort.Slice(e.Documents, func(i, j int) bool {
		return e.Documents[i].Document < e.Documents[j].Document
	})
}
