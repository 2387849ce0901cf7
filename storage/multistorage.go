package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ruteri/proof-credential-registry/interfaces"
)

// MultiStorageBackend replicates writes to every available backend and reads
// from the first backend holding the key.
type MultiStorageBackend struct {
	backends []interfaces.KVBackend
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback
func NewMultiStorageBackend(backends []interfaces.KVBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Get tries each available backend in order. ErrContentNotFound is returned only
// when every consulted backend reports the key missing.
func (m *MultiStorageBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var errs []error
	consulted := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key))
			continue
		}
		consulted++

		data, err := backend.Get(ctx, key)
		if err == nil {
			m.log.Debug("Fetched content",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}
		if errors.Is(err, interfaces.ErrContentNotFound) {
			continue
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("key", key),
			"err", err)
	}

	if consulted == 0 {
		return nil, interfaces.ErrBackendUnavailable
	}
	if len(errs) == 0 {
		return nil, interfaces.ErrContentNotFound
	}

	m.log.Error("All backends failed to fetch content",
		slog.String("key", key),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))
	return nil, fmt.Errorf("%w: all backends failed to fetch %s: %w", interfaces.ErrBackendUnavailable, key, errors.Join(errs...))
}

// Put saves data to all available backends. It succeeds when at least one write succeeds.
func (m *MultiStorageBackend) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		if err := backend.Put(ctx, key, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key),
				"err", err)
			continue
		}
		success = true
	}

	if !success {
		m.log.Error("All backends failed to store data",
			slog.String("key", key),
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("%w: all backends failed to store %s: %w", interfaces.ErrBackendUnavailable, key, errors.Join(errs...))
	}
	return nil
}

// List returns the sorted union of keys across available backends.
func (m *MultiStorageBackend) List(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}
		keys, err := backend.List(ctx, prefix)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			continue
		}
		success = true
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}

	if !success {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrBackendUnavailable, errors.Join(errs...))
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Available checks if any backend is available
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI combines the location URIs of all backends.
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
