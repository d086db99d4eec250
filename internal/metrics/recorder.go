package metrics

import "time"

// ResultLabel enumerates fragment result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultCached  ResultLabel = "cached"
	ResultFailed  ResultLabel = "failed"
)

// CacheLabel enumerates content cache lookup outcomes.
type CacheLabel string

const (
	CacheHit      CacheLabel = "hit"
	CacheMiss     CacheLabel = "miss"
	CacheDisabled CacheLabel = "disabled"
)

// Pool names used with SetWorkers.
const (
	PoolDocuments = "documents"
	PoolFragments = "fragments"
)

// Recorder defines observability hooks for fragment and document metrics. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe for nil receivers
// when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveFragmentDuration(d time.Duration)
	IncFragmentResult(result ResultLabel)
	IncCacheResult(result CacheLabel)
	ObserveDocumentDuration(d time.Duration)
	IncDocumentOutcome(success bool)
	SetWorkers(pool string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveFragmentDuration(time.Duration)      {}
func (NoopRecorder) IncFragmentResult(ResultLabel)              {}
func (NoopRecorder) IncCacheResult(CacheLabel)                  {}
func (NoopRecorder) ObserveDocumentDuration(time.Duration)      {}
func (NoopRecorder) IncDocumentOutcome(bool)                    {}
func (NoopRecorder) SetWorkers(string, int)                     {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
