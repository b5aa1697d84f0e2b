package editsession

import "context"

// LeaveAction is the user's choice when leaving with unsaved changes.
type LeaveAction int

const (
	// LeaveStay cancels the navigation.
	LeaveStay LeaveAction = iota
	// LeaveDiscard abandons the unsaved changes and navigates.
	LeaveDiscard
	// LeaveSave persists first and navigates only if that succeeds.
	LeaveSave
)

// NavigationGuard gates navigation away from a page with unsaved work.
// Both the in-app route guard and the browser unload hook read the
// same detector output; there is no second dirty check to drift.
type NavigationGuard struct {
	session     *EditSession
	detector    *Detector
	coordinator *Coordinator
}

// NewNavigationGuard builds a guard over the session's coordinator.
func NewNavigationGuard(session *EditSession, detector *Detector, coordinator *Coordinator) *NavigationGuard {
	return &NavigationGuard{session: session, detector: detector, coordinator: coordinator}
}

// HasUnsavedChanges is the dirty predicate shared by every exit path.
func (g *NavigationGuard) HasUnsavedChanges() bool {
	return g.detector.Dirty(g.session)
}

// ShouldBlockUnload reports whether the platform's native leave-site
// confirmation must be raised on window close.
func (g *NavigationGuard) ShouldBlockUnload() bool {
	return g.HasUnsavedChanges()
}

// Leave resolves a navigation attempt. It returns whether navigation
// may proceed. LeaveSave runs the explicit save path and blocks the
// navigation on failure, surfacing the error instead.
func (g *NavigationGuard) Leave(ctx context.Context, action LeaveAction) (bool, error) {
	doc := g.session.Document()
	if doc.IsNew && action == LeaveDiscard {
		// Nothing exists server-side yet; cancel navigates directly.
		return true, nil
	}
	if !g.HasUnsavedChanges() {
		return true, nil
	}
	switch action {
	case LeaveStay:
		return false, nil
	case LeaveDiscard:
		return true, nil
	case LeaveSave:
		if err := g.coordinator.Flush(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
