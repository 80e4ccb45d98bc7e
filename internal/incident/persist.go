// Package incident writes detected events to the incident store and
// announces them to notification receivers.
package incident

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yardwatch/yardwatch/internal/datastore"
	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/inference"
	"github.com/yardwatch/yardwatch/internal/logger"
	"github.com/yardwatch/yardwatch/internal/notify"
)

const notifyTimeout = 15 * time.Second

// ErrPersist marks a failed incident write.
var ErrPersist = errors.NewStd("incident persist failed")

// Event is one incident ready to be written.
type Event struct {
	RecordingID uint
	Kind        string
	ClassName   string
	Confidence  float64
	BBox        *inference.BBox // nil stores an empty bbox
	Frame       []byte          // encoded JPEG, stored verbatim
	Timestamp   time.Time
}

// Repository is the write side of the incident store.
type Repository interface {
	Create(ctx context.Context, incident *datastore.Incident) error
}

// Persister writes incidents.
type Persister struct {
	repo     Repository
	notifier notify.Notifier
	log      logger.Logger
	wg       sync.WaitGroup
}

// NewPersister creates a Persister. notifier may be nil.
func NewPersister(repo Repository, notifier notify.Notifier, log logger.Logger) *Persister {
	if log == nil {
		log = logger.Global().Module("incident")
	}
	return &Persister{repo: repo, notifier: notifier, log: log}
}

// FormatBBox renders a box as "[x1, y1, x2, y2]" with two decimals, or ""
// for nil.
func FormatBBox(b *inference.BBox) string {
	if b == nil {
		return ""
	}
	return b.String()
}

// Persist writes ev and returns the new incident ID. The write is
// transactional; on failure nothing is stored and the error wraps
// ErrPersist.
func (p *Persister) Persist(ctx context.Context, ev Event) (uint, error) {
	start := time.Now()
	rec := &datastore.Incident{
		RecordingID: ev.RecordingID,
		ClassName:   ev.ClassName,
		Confidence:  ev.Confidence,
		BBox:        FormatBBox(ev.BBox),
		Frame:       ev.Frame,
		Timestamp:   ev.Timestamp.UTC(),
	}
	if err := p.repo.Create(ctx, rec); err != nil {
		return 0, errors.New(fmt.Errorf("%w: %w", ErrPersist, err)).
			Component("incident").
			Category(errors.CategoryPersist).
			Context("recording_id", ev.RecordingID).
			Context("class_name", ev.ClassName).
			Timing("persist_incident", time.Since(start)).
			Build()
	}

	p.log.WithContext(ctx).Info("incident stored",
		logger.Uint64("incident_id", uint64(rec.ID)),
		logger.Uint64("recording_id", uint64(ev.RecordingID)),
		logger.String("class_name", ev.ClassName),
		logger.Float64("confidence", ev.Confidence),
		logger.Int("frame_bytes", len(ev.Frame)))

	p.announce(ctx, rec, ev.Kind)
	return rec.ID, nil
}

func (p *Persister) announce(ctx context.Context, rec *datastore.Incident, kind string) {
	if p.notifier == nil {
		return
	}
	n := notify.Notification{
		IncidentID:  rec.ID,
		RecordingID: rec.RecordingID,
		Kind:        kind,
		ClassName:   rec.ClassName,
		Confidence:  rec.Confidence,
		BBox:        rec.BBox,
		Timestamp:   rec.Timestamp,
	}
	// outlives the job iteration but not the process
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	p.wg.Go(func() {
		defer cancel()
		if err := p.notifier.Notify(nctx, n); err != nil && !errors.Is(err, notify.ErrRateLimited) {
			p.log.WithContext(ctx).Warn("incident notification failed",
				logger.Uint64("incident_id", uint64(n.IncidentID)),
				logger.Error(err))
		}
	})
}

// Wait blocks until in-flight notifications finish.
func (p *Persister) Wait() {
	p.wg.Wait()
}
