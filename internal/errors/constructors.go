package errors

// Convenience functions for the pipeline error taxonomy

// Configuration errors abort before any fragment work starts.

func ConfigurationError(message string) *ReportError {
	return New(CategoryConfig, SeverityFatal, message)
}

func WrapConfiguration(cause error, message string) *ReportError {
	return Wrap(cause, CategoryConfig, SeverityFatal, message)
}

func AmbiguousSource(fragment string, files []string) *ReportError {
	return ConfigurationError("more than one source file for fragment").
		WithFragment(fragment).
		WithContext("files", files)
}

func MissingTemplate(template, libraryPath string) *ReportError {
	return ConfigurationError("template does not exist in the document specification nor in the template library").
		WithContext("template", template).
		WithContext("library_path", libraryPath)
}

func DuplicateFetcher(fragment, name string) *ReportError {
	return ConfigurationError("fetcher id is duplicated").
		WithFragment(fragment).
		WithContext("fetcher", name)
}

// Fragment-scoped errors: fatal for the fragment only.

func MetadataError(fragment string, cause error) *ReportError {
	e := Wrap(cause, CategoryMetadata, SeverityError, "metadata retrieval error").WithFragment(fragment)
	e.Trace = CaptureTrace(1)
	return e
}

func DataFetchError(fragment, fetcher string, cause error) *ReportError {
	e := Wrap(cause, CategoryData, SeverityError, "data fetching error").
		WithFragment(fragment).
		WithContext("fetcher", fetcher)
	e.Trace = CaptureTrace(1)
	return e
}

// ContextGenerationError wraps a builder failure. trace may be supplied when
// the failure was a recovered panic; otherwise the call site is recorded.
func ContextGenerationError(fragment string, cause error, trace []string) *ReportError {
	e := Wrap(cause, CategoryContext, SeverityError, "context generation error").WithFragment(fragment)
	if trace == nil {
		trace = CaptureTrace(1)
	}
	e.Trace = trace
	return e
}

// Document-level errors

func RenderError(cause error) *ReportError {
	return Wrap(cause, CategoryRender, SeverityError, "template rendering error")
}

func PostprocessError(name string, cause error) *ReportError {
	return Wrap(cause, CategoryRender, SeverityError, "postprocessing error").
		WithContext("postprocessor", name)
}

func WorkspaceError(operation string, cause error) *ReportError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

func InternalError(message string, cause error) *ReportError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
