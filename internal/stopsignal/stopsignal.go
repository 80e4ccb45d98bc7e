// Package stopsignal holds out-of-band stop requests for running detection
// jobs, keyed "stop_<recordingID>".
package stopsignal

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/logger"
)

// Store records stop requests.
type Store interface {
	Signal(ctx context.Context, recordingID uint) error
	IsSet(ctx context.Context, recordingID uint) (bool, error)
	Clear(ctx context.Context, recordingID uint) error
	Close() error
}

// Key returns the flag key for a recording.
func Key(recordingID uint) string {
	return fmt.Sprintf("stop_%d", recordingID)
}

// Open creates the configured backend.
func Open(settings *conf.StopSignalSettings, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Global().Module("stopsignal")
	}
	switch settings.Backend {
	case "", conf.StopBackendMemory:
		return NewMemoryStore(), nil
	case conf.StopBackendNATS:
		return OpenNATS(&settings.NATS, log)
	default:
		return nil, fmt.Errorf("unknown stop signal backend %q", settings.Backend)
	}
}

// MemoryStore keeps flags in process. Flags never expire.
type MemoryStore struct {
	flags *cache.Cache
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: cache.New(cache.NoExpiration, 0)}
}

func (m *MemoryStore) Signal(_ context.Context, recordingID uint) error {
	m.flags.Set(Key(recordingID), true, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) IsSet(_ context.Context, recordingID uint) (bool, error) {
	_, ok := m.flags.Get(Key(recordingID))
	return ok, nil
}

func (m *MemoryStore) Clear(_ context.Context, recordingID uint) error {
	m.flags.Delete(Key(recordingID))
	return nil
}

func (m *MemoryStore) Close() error { return nil }
