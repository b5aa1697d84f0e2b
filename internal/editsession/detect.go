package editsession

import (
	"sync"
	"time"

	"almanac/internal/content"
)

// Detector answers whether the working document differs from the
// persisted snapshot. Comparison is pure and safe to run on every
// render tick; the only state is a short quiet window after a save
// that suppresses a one-frame false "unsaved" flicker while stale
// timers settle.
type Detector struct {
	clock func() time.Time

	mu         sync.Mutex
	quietUntil time.Time
}

// NewDetector returns a detector using the wall clock.
func NewDetector() *Detector {
	return &Detector{clock: time.Now}
}

// Dirty reports whether the session has unpersisted changes.
//
// Before the baseline exists (a document still in new mode) the answer
// depends on content alone: a freshly opened blank page is not dirty,
// anything beyond a single empty paragraph is. After the baseline
// exists, every editable field is compared: title and date by string
// equality, location and content structurally.
func (d *Detector) Dirty(s *EditSession) bool {
	d.mu.Lock()
	quiet := d.clock().Before(d.quietUntil)
	d.mu.Unlock()
	if quiet {
		return false
	}

	doc := s.Document()
	snap, ok := s.Snapshot()
	if !ok {
		return !doc.Content.IsBlank()
	}
	if doc.Title != snap.Title {
		return true
	}
	if doc.CustomDate != snap.CustomDate {
		return true
	}
	if !locationEqual(doc.Location, snap.Location) {
		return true
	}
	return !content.Equal(doc.Content, snap.Content)
}

// Suppress opens the post-save quiet window. Dirty reports false until
// it elapses or an edit clears it.
func (d *Detector) Suppress(window time.Duration) {
	d.mu.Lock()
	d.quietUntil = d.clock().Add(window)
	d.mu.Unlock()
}

// ClearGuard ends the quiet window early. A real edit always wins over
// flicker suppression.
func (d *Detector) ClearGuard() {
	d.mu.Lock()
	d.quietUntil = time.Time{}
	d.mu.Unlock()
}

func locationEqual(a, b *Location) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Lat == b.Lat && a.Lng == b.Lng && a.Zoom == b.Zoom
}
