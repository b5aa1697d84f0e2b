// Package editsession keeps a locally edited page consistent with its
// remotely persisted state. It owns the working document, the
// last-known-persisted snapshot, dirty detection, the debounced save
// state machine and the navigation guard. It has no opinion about
// rendering or transport; persistence is an injected collaborator.
package editsession

import (
	"context"
	"fmt"
	"sync"

	"almanac/internal/content"
)

// Location is a map position attached to a page.
type Location struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom float64 `json:"zoom"`
}

// Document is the live, user-editable state of a page. CustomDate is an
// ISO calendar date (YYYY-MM-DD) or empty when unset.
type Document struct {
	ID         string
	Title      string
	Content    content.Doc
	Location   *Location
	CustomDate string
	// IsNew is true until the first successful save. It gates the
	// discard-vs-delete behavior on cancel and the firstSave flag on
	// the wire.
	IsNew bool
}

// Snapshot holds the editable fields last confirmed durable by the
// persistence layer. It is advanced only by the SaveCoordinator, and
// only with the exact values that were transmitted.
type Snapshot struct {
	Title      string
	Content    content.Doc
	Location   *Location
	CustomDate string
}

// EditSession owns the working document and its persisted baseline.
// All mutation of the document goes through the setters; the snapshot
// is mutated only through InitializeSnapshot and AdvanceSnapshot.
type EditSession struct {
	mu            sync.Mutex
	doc           Document
	snapshot      Snapshot
	baselineSet   bool
	baselineDocID string
	onChange      func()
}

// New creates a session around an already hydrated document. For
// existing documents the caller must establish the baseline with
// InitializeSnapshot; for new documents the baseline appears with the
// first successful save.
func New(doc Document) *EditSession {
	if doc.Content == nil {
		doc.Content = content.Empty()
	}
	return &EditSession{doc: doc}
}

// Open hydrates a session from the persistence collaborator. The
// snapshot baseline is initialized for existing documents only; a
// document still in new mode has nothing durable to compare against.
func Open(ctx context.Context, p Persister, documentID string) (*EditSession, error) {
	doc, err := p.LoadInitial(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}
	s := New(doc)
	if !doc.IsNew {
		s.InitializeSnapshot(doc)
	}
	return s, nil
}

// SetOnChange registers the callback invoked after every field
// mutation. The coordinator uses it to drive the dirty/pending cycle.
func (s *EditSession) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Document returns a copy of the current working document.
func (s *EditSession) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// SetTitle replaces the working title. Empty titles are accepted here;
// validation happens at save time.
func (s *EditSession) SetTitle(title string) {
	s.mu.Lock()
	s.doc.Title = title
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetContent replaces the working content tree.
func (s *EditSession) SetContent(doc content.Doc) {
	s.mu.Lock()
	s.doc.Content = doc
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetLocation replaces the working location. nil clears it.
func (s *EditSession) SetLocation(loc *Location) {
	s.mu.Lock()
	s.doc.Location = loc
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetCustomDate replaces the working calendar date. Empty clears it.
func (s *EditSession) SetCustomDate(date string) {
	s.mu.Lock()
	s.doc.CustomDate = date
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// InitializeSnapshot establishes the dirty-check baseline, once per
// document. Repeat calls for the same document id are ignored, so the
// hydration effect can fire on every re-render without resetting the
// baseline under the user's unsaved edits. Returns whether the call
// took effect.
func (s *EditSession) InitializeSnapshot(doc Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baselineSet && s.baselineDocID == doc.ID {
		return false
	}
	s.snapshot = Snapshot{
		Title:      doc.Title,
		Content:    doc.Content,
		Location:   doc.Location,
		CustomDate: doc.CustomDate,
	}
	s.baselineSet = true
	s.baselineDocID = doc.ID
	return true
}

// AdvanceSnapshot replaces the baseline with the exact values a
// successful save transmitted. Only the SaveCoordinator calls this;
// passing the current working document instead of the sent values is a
// bug, because the two diverge when the user types during the round
// trip.
func (s *EditSession) AdvanceSnapshot(sent Snapshot) {
	s.mu.Lock()
	s.snapshot = sent
	s.baselineSet = true
	s.baselineDocID = s.doc.ID
	s.mu.Unlock()
}

// MarkPersisted flips the document out of new mode after its first
// successful save. Nothing else about the working state is touched.
func (s *EditSession) MarkPersisted() {
	s.mu.Lock()
	s.doc.IsNew = false
	s.mu.Unlock()
}

// Snapshot returns the persisted baseline and whether one exists yet.
func (s *EditSession) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.baselineSet
}

// SnapshotInitialized reports whether a baseline has been established.
func (s *EditSession) SnapshotInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baselineSet
}
