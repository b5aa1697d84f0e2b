package editsession

import (
	"context"
	"testing"
)

func guardFixture(t *testing.T, doc Document, p *fakePersister) (*NavigationGuard, *EditSession) {
	t.Helper()
	s := New(doc)
	if !doc.IsNew {
		s.InitializeSnapshot(doc)
	}
	detector := NewDetector()
	timers := &manualTimers{}
	c := NewCoordinator(s, detector, p, p, CoordinatorOptions{AfterFunc: timers.afterFunc})
	t.Cleanup(c.Close)
	return NewNavigationGuard(s, detector, c), s
}

func TestLeaveCleanDocumentProceedsImmediately(t *testing.T) {
	p := &fakePersister{}
	g, _ := guardFixture(t, Document{ID: "page_1", Title: "T", Content: body("x")}, p)

	if g.HasUnsavedChanges() {
		t.Fatal("clean document reported unsaved changes")
	}
	if g.ShouldBlockUnload() {
		t.Fatal("clean document must not block unload")
	}
	ok, err := g.Leave(context.Background(), LeaveStay)
	if err != nil || !ok {
		t.Fatalf("leave clean = (%v, %v), want (true, nil)", ok, err)
	}
	if p.saveCount() != 0 {
		t.Fatalf("clean leave hit the network: %d calls", p.saveCount())
	}
}

func TestLeaveDirtyDocumentActions(t *testing.T) {
	p := &fakePersister{}
	g, s := guardFixture(t, Document{ID: "page_1", Title: "T", Content: body("x")}, p)
	s.SetTitle("edited")

	if !g.HasUnsavedChanges() || !g.ShouldBlockUnload() {
		t.Fatal("dirty document must report unsaved changes on both exit paths")
	}

	ok, err := g.Leave(context.Background(), LeaveStay)
	if ok || err != nil {
		t.Fatalf("stay = (%v, %v), want (false, nil)", ok, err)
	}

	ok, err = g.Leave(context.Background(), LeaveDiscard)
	if !ok || err != nil {
		t.Fatalf("discard = (%v, %v), want (true, nil)", ok, err)
	}
	if p.saveCount() != 0 {
		t.Fatal("discard must not save")
	}

	ok, err = g.Leave(context.Background(), LeaveSave)
	if !ok || err != nil {
		t.Fatalf("save-and-leave = (%v, %v), want (true, nil)", ok, err)
	}
	if p.saveCount() != 1 {
		t.Fatalf("save-and-leave calls = %d, want 1", p.saveCount())
	}
	if p.lastSave().SessionID != "" {
		t.Fatal("save-and-leave is a manual save; no session grouping key")
	}
}

func TestLeaveSaveBlocksNavigationOnFailure(t *testing.T) {
	p := &fakePersister{}
	p.saveFn = func(ctx context.Context, id string, req SaveRequest) (Snapshot, error) {
		return Snapshot{}, &SaveError{Kind: KindNetwork, Message: "Could not reach the server."}
	}
	g, s := guardFixture(t, Document{ID: "page_1", Title: "T", Content: body("x")}, p)
	s.SetTitle("edited")

	ok, err := g.Leave(context.Background(), LeaveSave)
	if ok {
		t.Fatal("failed save must block navigation")
	}
	if err == nil {
		t.Fatal("failed save must surface its error")
	}
	// The unsaved work is still there for the user to retry.
	if !g.HasUnsavedChanges() {
		t.Fatal("edits must survive the failed save-and-leave")
	}
}

func TestDiscardNewDocumentSkipsNetworkEntirely(t *testing.T) {
	p := &fakePersister{}
	g, s := guardFixture(t, Document{ID: "page_new", IsNew: true}, p)
	s.SetTitle("Draft")
	s.SetContent(body("some words"))

	ok, err := g.Leave(context.Background(), LeaveDiscard)
	if !ok || err != nil {
		t.Fatalf("discard new = (%v, %v), want (true, nil)", ok, err)
	}
	if p.saveCount() != 0 {
		t.Fatalf("discarding a never-saved document made %d network calls", p.saveCount())
	}
}
