package audioio

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// SourceFactory creates a Source for a backend.
type SourceFactory func(cfg Config, logger *slog.Logger) (Source, error)

// SinkFactory creates a Sink for a backend.
type SinkFactory func(cfg Config, logger *slog.Logger) (Sink, error)

var (
	registryMu sync.RWMutex
	sources    = map[Backend]SourceFactory{}
	sinks      = map[Backend]SinkFactory{}
)

// Register installs factories for a backend. Hardware backends call this
// from init so importing them is enough to make them available.
func Register(backend Backend, src SourceFactory, snk SinkFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if src != nil {
		sources[backend] = src
	}
	if snk != nil {
		sinks[backend] = snk
	}
}

func init() {
	Register(BackendMock,
		func(cfg Config, logger *slog.Logger) (Source, error) { return NewMockSource(cfg, logger), nil },
		func(cfg Config, logger *slog.Logger) (Sink, error) { return NewMockSink(cfg, logger), nil },
	)
}

// NewSource creates a new audio source with the given configuration.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	registryMu.RLock()
	f, ok := sources[cfg.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}

	logger.Debug("creating audio source",
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
		"chunk_samples", cfg.ChunkSamples,
	)
	return f(cfg, logger)
}

// NewSink creates a new audio sink with the given configuration.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	registryMu.RLock()
	f, ok := sinks[cfg.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}

	logger.Debug("creating audio sink",
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
	)
	return f(cfg, logger)
}

// AvailableBackends returns the registered backends.
func AvailableBackends() []Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Backend, 0, len(sources))
	for b := range sources {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
