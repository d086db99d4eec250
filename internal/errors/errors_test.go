package errors

import (
	"bytes"
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestReportError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ReportError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "configuration invalid"),
			expected: "config (fatal): configuration invalid",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("file not found"), CategoryConfig, SeverityFatal, "failed to load config"),
			expected: "config (fatal): failed to load config: file not found",
		},
		{
			name:     "fragment scoped",
			err:      Wrap(fmt.Errorf("boom"), CategoryContext, SeverityError, "context generation error").WithFragment("intro"),
			expected: "intro: context (error): context generation error: boom",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.err.Error()
			if result != test.expected {
				t.Errorf("Error() = %q, want %q", result, test.expected)
			}
		})
	}
}

func TestReportError_WithContext(t *testing.T) {
	err := DuplicateFetcher("table", "population")

	if err.Context == nil {
		t.Fatal("Context should not be nil")
	}
	if err.Context["fetcher"] != "population" {
		t.Errorf("Context[fetcher] = %v, want population", err.Context["fetcher"])
	}
	if err.Fragment != "table" {
		t.Errorf("Fragment = %q, want table", err.Fragment)
	}
	if !IsCategory(err, CategoryConfig) {
		t.Errorf("duplicate fetcher should be a configuration error")
	}
}

func TestIsCategory(t *testing.T) {
	configErr := ConfigurationError("config error")
	dataErr := DataFetchError("frag", "0", fmt.Errorf("connection refused"))
	standardErr := fmt.Errorf("standard error")

	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		expected bool
	}{
		{"config error matches config category", configErr, CategoryConfig, true},
		{"config error doesn't match data category", configErr, CategoryData, false},
		{"data error matches data category", dataErr, CategoryData, true},
		{"wrapped data error still matches", fmt.Errorf("outer: %w", dataErr), CategoryData, true},
		{"standard error doesn't match any category", standardErr, CategoryConfig, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsCategory(test.err, test.category)
			if result != test.expected {
				t.Errorf("IsCategory() = %v, want %v", result, test.expected)
			}
		})
	}
}

func TestFragmentScopedErrorsCarryTrace(t *testing.T) {
	err := MetadataError("intro", fmt.Errorf("bad yaml"))
	if len(err.Trace) == 0 {
		t.Fatal("expected a trace")
	}
	if len(err.Trace) > MaxTraceFrames {
		t.Errorf("trace has %d frames, want at most %d", len(err.Trace), MaxTraceFrames)
	}
	if !strings.Contains(err.Trace[0], "TestFragmentScopedErrorsCarryTrace") {
		t.Errorf("first frame = %q, want the calling test", err.Trace[0])
	}
}

func TestTruncateStack(t *testing.T) {
	stack := []byte(`goroutine 7 [running]:
runtime/debug.Stack()
	/usr/lib/go/src/runtime/debug/stack.go:26 +0x5e
panic({0x1, 0x2})
	/usr/lib/go/src/runtime/panic.go:785 +0x132
example.com/pkg.builder()
	/src/pkg/builder.go:12 +0x10
example.com/pkg.run()
	/src/pkg/run.go:30 +0x20
`)
	frames := TruncateStack(stack)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %v", len(frames), frames)
	}
	if !strings.HasPrefix(frames[0], "example.com/pkg.builder()") {
		t.Errorf("frames[0] = %q", frames[0])
	}
}

func TestFragmentGenerationError(t *testing.T) {
	cause := ContextGenerationError("b", fmt.Errorf("division by zero"), []string{"frame"})
	fge := &FragmentGenerationError{
		Document: "ESP",
		Failures: []FragmentFailure{NewFragmentFailure("b", cause)},
	}

	if got := fge.Fragments(); len(got) != 1 || got[0] != "b" {
		t.Errorf("Fragments() = %v, want [b]", got)
	}
	if f, ok := fge.Failure("b"); !ok || f.Trace[0] != "frame" {
		t.Errorf("Failure(b) = %+v, %v", f, ok)
	}

	var re *ReportError
	if !stdErrors.As(fge, &re) || re.Category != CategoryContext {
		t.Errorf("expected the context error to be reachable through errors.As")
	}
}

func TestAsDocumentFailure(t *testing.T) {
	fge := AsDocumentFailure("ESP", RenderError(fmt.Errorf("missing key")))
	if len(fge.Failures) != 1 || fge.Failures[0].Fragment != GlobalFragment {
		t.Fatalf("unexpected failures: %+v", fge.Failures)
	}

	inner := &FragmentGenerationError{Failures: []FragmentFailure{{Fragment: "a", Message: "x"}}}
	wrapped := AsDocumentFailure("FRA", fmt.Errorf("generate: %w", inner))
	if wrapped != inner || wrapped.Document != "FRA" {
		t.Errorf("expected the aggregated error to be reused and tagged")
	}
}

func TestBatchErrorFailures(t *testing.T) {
	be := &BatchError{Documents: []*FragmentGenerationError{
		{Document: "FRA", Failures: []FragmentFailure{{Fragment: "a", Message: "m1"}}},
		{Document: "ESP", Failures: []FragmentFailure{{Fragment: "b", Message: "m2", Trace: []string{"t"}}}},
	}}
	be.SortDocuments()
	if be.Documents[0].Document != "ESP" {
		t.Errorf("documents not sorted: %s", be.Error())
	}

	failures := be.Failures()
	if failures["ESP"]["b"].Message != "m2" || failures["FRA"]["a"].Message != "m1" {
		t.Errorf("unexpected failures map: %+v", failures)
	}
}

func TestCLIErrorAdapter(t *testing.T) {
	color.NoColor = true
	adapter := NewCLIErrorAdapter(true, nil)

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, 0},
		{"config", ConfigurationError("bad"), 7},
		{"render", RenderError(fmt.Errorf("x")), 11},
		{"batch", &BatchError{}, 3},
		{"plain", fmt.Errorf("plain"), 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(test.err); got != test.code {
				t.Errorf("ExitCodeFor() = %d, want %d", got, test.code)
			}
		})
	}

	be := &BatchError{Documents: []*FragmentGenerationError{
		{Document: "ESP", Failures: []FragmentFailure{{Fragment: "table", Message: "boom", Trace: []string{"pkg.fn\n\tfile.go:1"}}}},
	}}
	report := adapter.FormatError(be)
	for _, want := range []string{"Errors in 1 document(s):", "ESP", "table: boom", "pkg.fn"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	var buf bytes.Buffer
	adapter.SetOutput(&buf)
	if adapter.out != &buf {
		t.Error("SetOutput did not redirect")
	}
}
