// Package debounce suppresses repeated incidents for the same recording and
// event key within a cooldown window.
package debounce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/yardwatch/yardwatch/internal/logger"
)

// DefaultWindow is the cooldown between two incidents with the same key.
const DefaultWindow = 60 * time.Second

// Lookup finds the most recent persisted incident time for a recording
// and class name. It is the authority when memory has no entry, such as
// after a restart.
type Lookup interface {
	LatestTimestamp(ctx context.Context, recordingID uint, className string) (time.Time, bool, error)
}

// Config controls the gate.
type Config struct {
	Window     time.Duration
	CacheTTL   time.Duration // memory retention; 0 means Window
	MaxEntries int           // 0 means unbounded
}

// Gate is the debounce check shared by all jobs of a worker process. Keys
// include the recording ID, so jobs never collide.
type Gate struct {
	window     time.Duration
	maxEntries int
	store      *cache.Cache
	lookup     Lookup
	log        logger.Logger
	mu         sync.Mutex // serializes eviction
}

// NewGate creates a gate. lookup may be nil for memory-only operation.
func NewGate(cfg Config, lookup Lookup, log logger.Logger) *Gate {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cfg.Window
	}
	if log == nil {
		log = logger.Global().Module("debounce")
	}
	return &Gate{
		window:     cfg.Window,
		maxEntries: cfg.MaxEntries,
		store:      cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		lookup:     lookup,
		log:        log,
	}
}

// Window returns the cooldown window.
func (g *Gate) Window() time.Duration { return g.window }

// Len returns the number of cached keys, including expired ones not yet purged.
func (g *Gate) Len() int { return g.store.ItemCount() }

func cacheKey(recordingID uint, eventKey string) string {
	return fmt.Sprintf("%d_%s", recordingID, eventKey)
}

// ShouldSkip reports whether an event seen at now falls within the window of
// the previous one. Memory is consulted first, then the lookup. A lookup
// failure is returned alongside false so detection keeps going while
// storage is degraded.
func (g *Gate) ShouldSkip(ctx context.Context, recordingID uint, eventKey string, now time.Time) (bool, error) {
	now = now.UTC()
	key := cacheKey(recordingID, eventKey)

	last, ok := g.cached(key)
	if !ok && g.lookup != nil {
		ts, found, err := g.lookup.LatestTimestamp(ctx, recordingID, eventKey)
		if err != nil {
			g.log.Warn("debounce lookup failed, not skipping",
				logger.Uint64("recording_id", uint64(recordingID)),
				logger.String("event_key", eventKey),
				logger.Error(err))
			return false, err
		}
		if found {
			last = fromStore(ts)
			ok = true
			g.set(key, last)
		}
	}
	if !ok {
		return false, nil
	}

	if now.Sub(last) < g.window {
		g.log.Debug("skipping duplicate event",
			logger.Uint64("recording_id", uint64(recordingID)),
			logger.String("event_key", eventKey),
			logger.Duration("since_last", now.Sub(last)))
		return true, nil
	}
	return false, nil
}

// Mark records now as the latest occurrence. Callers mark before
// persisting so a slow write cannot let a duplicate through.
func (g *Gate) Mark(recordingID uint, eventKey string, now time.Time) {
	g.set(cacheKey(recordingID, eventKey), now.UTC())
}

func (g *Gate) cached(key string) (time.Time, bool) {
	v, ok := g.store.Get(key)
	if !ok {
		return time.Time{}, false
	}
	ts, ok := v.(time.Time)
	return ts, ok
}

func (g *Gate) set(key string, ts time.Time) {
	if g.maxEntries > 0 {
		g.mu.Lock()
		defer g.mu.Unlock()
		if _, exists := g.store.Get(key); !exists && g.store.ItemCount() >= g.maxEntries {
			g.evict()
		}
	}
	g.store.Set(key, ts, cache.DefaultExpiration)
}

// evict purges expired items and, if still full, drops the oldest timestamp.
func (g *Gate) evict() {
	g.store.DeleteExpired()
	if g.store.ItemCount() < g.maxEntries {
		return
	}

	var oldestKey string
	var oldest time.Time
	for k, item := range g.store.Items() {
		ts, ok := item.Object.(time.Time)
		if !ok {
			continue
		}
		if oldestKey == "" || ts.Before(oldest) {
			oldestKey, oldest = k, ts
		}
	}
	if oldestKey != "" {
		g.store.Delete(oldestKey)
	}
}

// fromStore normalizes a stored timestamp to UTC. Drivers configured with
// loc=Local hand back zone-less columns in time.Local; those values were
// written as UTC wall time and are re-read as such.
func fromStore(ts time.Time) time.Time {
	if ts.Location() == time.Local && time.Local != time.UTC {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC)
	}
	return ts.UTC()
}
