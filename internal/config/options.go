package config

import (
	"fmt"
	"runtime"

	"github.com/hpv-information-centre/reportcompiler/internal/foundation/normalization"
)

// CacheBackend selects the record store behind the content cache.
type CacheBackend string

const (
	CacheFS     CacheBackend = "fs"
	CacheSQLite CacheBackend = "sqlite"
	CacheMemory CacheBackend = "memory"
	CacheNATS   CacheBackend = "nats"
)

var cacheBackends = normalization.NewNormalizer(map[string]CacheBackend{
	"fs":         CacheFS,
	"filesystem": CacheFS,
	"file":       CacheFS,
	"sqlite":     CacheSQLite,
	"memory":     CacheMemory,
	"mem":        CacheMemory,
	"nats":       CacheNATS,
	"jetstream":  CacheNATS,
}, CacheFS)

// NormalizeCacheBackend maps a user-supplied backend name onto CacheBackend.
func NormalizeCacheBackend(raw string) (CacheBackend, error) {
	return cacheBackends.NormalizeWithError(raw)
}

// DefaultDocWorkers is the document pool size when none is given.
const DefaultDocWorkers = 2

// RunOptions are the knobs of one generation run, independent of the
// document specification.
type RunOptions struct {
	DocWorkers      int
	FragmentWorkers int
	Debug           bool
	// Fragments restricts generation to the named fragments and their descendants.
	Fragments    []string
	LogLevel     string
	LogFormat    string
	CacheBackend string
	// NATSURL and NATSBucket configure the nats cache backend.
	NATSURL    string
	NATSBucket string
	// RandomSeed overrides the specification's random_seed when set.
	RandomSeed *int64
}

// Normalized is RunOptions after defaults and validation.
type Normalized struct {
	DocWorkers      int
	FragmentWorkers int
	Debug           bool
	Fragments       []string
	LogLevel        LogLevel
	LogFormat       LogFormat
	CacheBackend    CacheBackend
	NATSURL         string
	NATSBucket      string
	RandomSeed      *int64
}

// Normalize applies defaults and validates o. Debug runs are serial. The
// returned warnings describe values that were adjusted.
func (o RunOptions) Normalize() (Normalized, []string, error) {
	var warnings []string
	n := Normalized{
		DocWorkers:      o.DocWorkers,
		FragmentWorkers: o.FragmentWorkers,
		Debug:           o.Debug,
		Fragments:       append([]string(nil), o.Fragments...),
		NATSURL:         o.NATSURL,
		NATSBucket:      o.NATSBucket,
		RandomSeed:      o.RandomSeed,
	}
	if n.DocWorkers <= 0 {
		n.DocWorkers = DefaultDocWorkers
	}
	if n.FragmentWorkers <= 0 {
		n.FragmentWorkers = runtime.GOMAXPROCS(0)
	}
	if n.Debug && (n.DocWorkers != 1 || n.FragmentWorkers != 1) {
		warnings = append(warnings, fmt.Sprintf("debug mode: running serially instead of %d document and %d fragment workers", n.DocWorkers, n.FragmentWorkers))
		n.DocWorkers, n.FragmentWorkers = 1, 1
	}

	var err error
	if n.LogLevel, err = logLevels.NormalizeWithError(o.LogLevel); err != nil {
		return Normalized{}, nil, fmt.Errorf("log level: %w", err)
	}
	if n.LogFormat, err = logFormats.NormalizeWithError(o.LogFormat); err != nil {
		return Normalized{}, nil, fmt.Errorf("log format: %w", err)
	}
	if n.CacheBackend, err = NormalizeCacheBackend(o.CacheBackend); err != nil {
		return Normalized{}, nil, fmt.Errorf("cache backend: %w", err)
	}
	if n.CacheBackend == CacheNATS && n.NATSURL == "" {
		return Normalized{}, nil, fmt.Errorf("cache backend nats requires a server url")
	}
	return n, warnings, nil
}
