package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyDocument   = "document"
	KeyFragment   = "fragment"
	KeyFetcher    = "fetcher"
	KeyStage      = "stage"
	KeyStrategy   = "strategy"
	KeyCache      = "cache"
	KeyChanged    = "changed"
	KeyDurationMS = "duration_ms"
	KeyWorkers    = "workers"
	KeyCount      = "count"
	KeyPath       = "path"
	KeySpec       = "spec"
	KeyRepo       = "repository"
	KeyError      = "error"
	KeyParam      = "param"
	KeyBranch     = "branch"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Document(s string) slog.Attr     { return slog.String(KeyDocument, s) }
func Fragment(name string) slog.Attr  { return slog.String(KeyFragment, name) }
func Fetcher(name string) slog.Attr   { return slog.String(KeyFetcher, name) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Strategy(id string) slog.Attr    { return slog.String(KeyStrategy, id) }
func Cache(result string) slog.Attr   { return slog.String(KeyCache, result) }
func Changed(c []string) slog.Attr    { return slog.Any(KeyChanged, c) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Workers(n int) slog.Attr         { return slog.Int(KeyWorkers, n) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Spec(dir string) slog.Attr       { return slog.String(KeySpec, dir) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Param(p string) slog.Attr        { return slog.String(KeyParam, p) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
