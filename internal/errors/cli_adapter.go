package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
		out:     os.Stderr,
	}
}

// SetOutput redirects the formatted report.
func (a *CLIErrorAdapter) SetOutput(w io.Writer) {
	a.out = w
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	var be *BatchError
	if stdErrors.As(err, &be) {
		return 3
	}
	var fge *FragmentGenerationError
	if stdErrors.As(err, &fge) {
		return 3
	}

	var re *ReportError
	if stdErrors.As(err, &re) {
		return a.exitCodeFromReportError(re)
	}

	return 1
}

// exitCodeFromReportError maps ReportError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromReportError(err *ReportError) int {
	switch err.Category {
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryMetadata, CategoryData, CategoryContext:
		return 3 // Fragment generation error
	case CategoryRender, CategoryFileSystem:
		return 11 // Output error
	case CategoryInternal:
		return 10 // Internal error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	var be *BatchError
	if stdErrors.As(err, &be) {
		return a.formatBatch(be)
	}
	var fge *FragmentGenerationError
	if stdErrors.As(err, &fge) {
		return a.formatBatch(&BatchError{Documents: []*FragmentGenerationError{fge}})
	}

	var re *ReportError
	if stdErrors.As(err, &re) {
		return a.formatReportError(re)
	}

	return fmt.Sprintf("Error: %v", err)
}

// formatReportError formats a ReportError for display.
func (a *CLIErrorAdapter) formatReportError(err *ReportError) string {
	if a.verbose {
		return err.Error()
	}

	switch err.Category {
	case CategoryConfig:
		if err.Cause != nil {
			return fmt.Sprintf("%s: %v", err.Message, err.Cause)
		}
		return err.Message
	default:
		return fmt.Sprintf("%s: %s", err.Category, err.Message)
	}
}

// formatBatch renders one block per failed document and fragment.
func (a *CLIErrorAdapter) formatBatch(err *BatchError) string {
	bold := color.New(color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", red(fmt.Sprintf("Errors in %d document(s):", len(err.Documents))))
	for _, doc := range err.Documents {
		fmt.Fprintf(&b, "\n%s\n", bold(doc.Document))
		for _, f := range doc.Failures {
			fmt.Fprintf(&b, "  %s: %s\n", red(f.Fragment), f.Message)
			if !a.verbose {
				continue
			}
			for _, frame := range f.Trace {
				fmt.Fprintf(&b, "    %s\n", faint(strings.ReplaceAll(frame, "\n", "\n    ")))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(a.out, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	var re *ReportError
	if stdErrors.As(err, &re) {
		return re.Category == CategoryInternal || re.Severity == SeverityFatal
	}

	return false
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	var re *ReportError
	if stdErrors.As(err, &re) {
		level := slogLevelFromSeverity(re.Severity)
		attrs := []slog.Attr{
			slog.String("category", string(re.Category)),
		}
		if re.Fragment != "" {
			attrs = append(attrs, slog.String("fragment", re.Fragment))
		}

		a.logger.LogAttrs(context.Background(), level, re.Message, attrs...)
		return
	}

	a.logger.Error("Generation failed", "error", err)
}

// slogLevelFromSeverity converts ReportError severity to slog level.
func slogLevelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
