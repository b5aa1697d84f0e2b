package editsession

import (
	"testing"

	"almanac/internal/content"
)

func TestInitializeSnapshotIsOneShotPerDocument(t *testing.T) {
	doc := Document{ID: "page_1", Title: "Original", Content: body("hello")}
	s := New(doc)

	if !s.InitializeSnapshot(doc) {
		t.Fatal("first initialization must take effect")
	}

	// The hydration effect re-fires on every render; the baseline must
	// not reset under unsaved edits.
	s.SetTitle("edited meanwhile")
	if s.InitializeSnapshot(Document{ID: "page_1", Title: "stale rerender", Content: body("hello")}) {
		t.Fatal("repeat initialization for the same document must be ignored")
	}
	snap, _ := s.Snapshot()
	if snap.Title != "Original" {
		t.Fatalf("baseline title = %q, want the original", snap.Title)
	}

	// A different document id is a fresh baseline.
	other := Document{ID: "page_2", Title: "Other", Content: body("other")}
	if !s.InitializeSnapshot(other) {
		t.Fatal("new document id must re-initialize")
	}
}

func TestAdvanceSnapshotReplacesBaseline(t *testing.T) {
	doc := Document{ID: "page_1", Title: "v1", Content: body("one")}
	s := New(doc)
	s.InitializeSnapshot(doc)

	sent := Snapshot{Title: "v2", Content: body("two"), CustomDate: "2026-08-31"}
	s.AdvanceSnapshot(sent)

	snap, ok := s.Snapshot()
	if !ok {
		t.Fatal("baseline missing")
	}
	if snap.Title != "v2" || snap.CustomDate != "2026-08-31" || !content.Equal(snap.Content, body("two")) {
		t.Fatalf("baseline = %+v, want the sent values", snap)
	}
}

func TestNewSessionDefaultsNilContentToBlankDocument(t *testing.T) {
	s := New(Document{ID: "page_new", IsNew: true})
	if got := s.Document().Content; !got.IsBlank() {
		t.Fatalf("default content = %+v, want blank", got)
	}
	if !content.Equal(s.Document().Content, content.Empty()) {
		t.Fatal("default content must be the canonical empty document")
	}
}

func TestMarkPersistedOnlyFlipsNewMode(t *testing.T) {
	s := New(Document{ID: "page_new", Title: "kept", IsNew: true})
	s.MarkPersisted()
	doc := s.Document()
	if doc.IsNew {
		t.Fatal("still in new mode")
	}
	if doc.Title != "kept" {
		t.Fatalf("title = %q, working state must be untouched", doc.Title)
	}
}
