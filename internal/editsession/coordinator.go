package editsession

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"almanac/internal/content"
	"almanac/internal/util"
)

// Status is the save lifecycle state.
type Status int

const (
	// StatusIdle means the working document matches the snapshot.
	StatusIdle Status = iota
	// StatusPending means unsaved changes exist and a save is queued
	// behind the debounce window.
	StatusPending
	// StatusSaving means a persistence call is in flight.
	StatusSaving
	// StatusSaved is the short post-success display state.
	StatusSaved
	// StatusError means the last save failed; the message sticks until
	// the next edit or retry.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// SaveRequest is the payload handed to the persistence collaborator.
// SessionID groups consecutive auto-saves of one editing session so
// the server can merge them into a single version; manual saves leave
// it empty. FirstSave marks the very first save of a document created
// in new mode.
type SaveRequest struct {
	Title      string
	Content    content.Doc
	Location   *Location
	CustomDate string
	SessionID  string
	FirstSave  bool
}

// Persister is the persistence collaborator. Save must be idempotent
// enough that retrying an identical payload after an auth refresh is
// safe.
type Persister interface {
	Save(ctx context.Context, documentID string, req SaveRequest) (Snapshot, error)
	LoadInitial(ctx context.Context, documentID string) (Document, error)
}

// Reauthenticator refreshes expired credentials. Consulted exactly
// once per auth-expired save failure.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context) error
}

// Timer is the cancellable unit behind the debounce window.
type Timer interface {
	Stop() bool
}

const (
	defaultDebounce    = time.Second
	defaultSavedHold   = 3 * time.Second
	defaultGuardWindow = 500 * time.Millisecond
)

// CoordinatorOptions tune the coordinator. Zero values pick the
// defaults; the timer and clock hooks exist so tests can drive the
// machine deterministically.
type CoordinatorOptions struct {
	Debounce    time.Duration
	SavedHold   time.Duration
	GuardWindow time.Duration

	// OnStatus is invoked on every status transition with the status
	// and the error message (empty outside StatusError).
	OnStatus func(Status, string)
	// OnTitleRequired raises the inline title-required field error.
	// Pre-flight validation never transitions the status.
	OnTitleRequired func()
	// OnFirstSave fires after the first successful save of a new
	// document, outside the coordinator lock, so the surrounding UI
	// can drop its new-document markers without disturbing the editor.
	OnFirstSave func(documentID string)

	AfterFunc func(time.Duration, func()) Timer
}

// Coordinator decides when the working document is persisted and
// reconciles the outcome. At most one save is in flight per document;
// edits arriving mid-flight are never dropped, they defer a follow-up.
type Coordinator struct {
	session   *EditSession
	detector  *Detector
	persister Persister
	reauth    Reauthenticator

	debounce    time.Duration
	savedHold   time.Duration
	guardWindow time.Duration

	onStatus        func(Status, string)
	onTitleRequired func()
	onFirstSave     func(string)
	afterFunc       func(time.Duration, func()) Timer

	mu            sync.Mutex
	cond          *sync.Cond
	status        Status
	errMsg        string
	sessionID     string
	saving        bool
	deferred      bool
	editSeq       uint64
	debounceTimer Timer
	savedTimer    Timer
	closed        bool
}

// NewCoordinator wires a coordinator to a session, detector and
// persistence collaborator. reauth may be nil if silent refresh is
// unavailable; auth failures then surface directly.
func NewCoordinator(session *EditSession, detector *Detector, persister Persister, reauth Reauthenticator, opts CoordinatorOptions) *Coordinator {
	c := &Coordinator{
		session:         session,
		detector:        detector,
		persister:       persister,
		reauth:          reauth,
		debounce:        opts.Debounce,
		savedHold:       opts.SavedHold,
		guardWindow:     opts.GuardWindow,
		onStatus:        opts.OnStatus,
		onTitleRequired: opts.OnTitleRequired,
		onFirstSave:     opts.OnFirstSave,
		afterFunc:       opts.AfterFunc,
	}
	if c.debounce <= 0 {
		c.debounce = defaultDebounce
	}
	if c.savedHold <= 0 {
		c.savedHold = defaultSavedHold
	}
	if c.guardWindow <= 0 {
		c.guardWindow = defaultGuardWindow
	}
	if c.afterFunc == nil {
		c.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	c.cond = sync.NewCond(&c.mu)
	session.SetOnChange(c.handleEdit)
	return c
}

// Status returns the current lifecycle state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ErrorMessage returns the sticky message of the last failed save, or
// empty outside StatusError.
func (c *Coordinator) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// SessionID returns the active save-session grouping key, empty if
// none has been minted yet.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Close stops outstanding timers. In-flight saves run to completion.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopDebounceLocked()
	if c.savedTimer != nil {
		c.savedTimer.Stop()
		c.savedTimer = nil
	}
	c.mu.Unlock()
}

// Flush performs an explicit save and waits for the result. It is the
// manual save path (keyboard shortcut, save-and-leave): no session
// grouping key is attached. A clean document flushes to nil without a
// network call.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	for c.saving {
		c.cond.Wait()
	}
	c.stopDebounceLocked()
	c.mu.Unlock()
	return c.dispatch(ctx, false)
}

// Retry re-attempts a save after a failure, on the explicit path.
func (c *Coordinator) Retry(ctx context.Context) error {
	return c.Flush(ctx)
}

// handleEdit runs after every field mutation on the session.
func (c *Coordinator) handleEdit() {
	c.detector.ClearGuard()

	var notify func()
	c.mu.Lock()
	c.editSeq++
	if c.saving {
		// Never fire a second concurrent request; the completion path
		// picks this up and schedules the follow-up.
		c.deferred = true
		c.mu.Unlock()
		return
	}
	if c.detector.Dirty(c.session) {
		notify = c.setStatusLocked(StatusPending, "")
		c.restartDebounceLocked()
	} else {
		// The edit reverted the document to its persisted state.
		c.stopDebounceLocked()
		if c.status == StatusPending || c.status == StatusError {
			notify = c.setStatusLocked(StatusIdle, "")
		}
	}
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// debounceFired runs when the quiet period elapses with no further
// edits.
func (c *Coordinator) debounceFired() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.saving {
		c.deferred = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	_ = c.dispatch(context.Background(), true)
}

// dispatch performs one save attempt. auto marks debounce-driven
// saves, which carry the session grouping key and re-validate
// dirtiness at fire time.
func (c *Coordinator) dispatch(ctx context.Context, auto bool) error {
	var notify func()

	c.mu.Lock()
	for c.saving {
		c.cond.Wait()
	}
	doc := c.session.Document()
	if !c.detector.Dirty(c.session) {
		// Edits were reverted (or already flushed) during the wait.
		if c.status == StatusPending {
			notify = c.setStatusLocked(StatusIdle, "")
		}
		c.mu.Unlock()
		if notify != nil {
			notify()
		}
		return nil
	}
	if strings.TrimSpace(doc.Title) == "" {
		// Pre-flight validation: inline field error, no status
		// transition, nothing on the wire.
		cb := c.onTitleRequired
		c.mu.Unlock()
		if cb != nil {
			cb()
		}
		return &SaveError{Kind: KindValidation, Message: "Title is required", Err: ErrTitleRequired}
	}

	req := SaveRequest{
		Title:      doc.Title,
		Content:    doc.Content,
		Location:   doc.Location,
		CustomDate: doc.CustomDate,
		FirstSave:  doc.IsNew,
	}
	if auto {
		if c.sessionID == "" {
			c.sessionID = util.NewID("edit")
		}
		req.SessionID = c.sessionID
	}
	seq := c.editSeq
	c.saving = true
	c.deferred = false
	notify = c.setStatusLocked(StatusSaving, "")
	c.mu.Unlock()
	if notify != nil {
		notify()
	}

	_, err := c.persister.Save(ctx, doc.ID, req)
	if err != nil && KindOf(err) == KindAuthExpired && c.reauth != nil {
		if rerr := c.reauth.Reauthenticate(ctx); rerr == nil {
			// Exactly one retry of the identical payload.
			_, err = c.persister.Save(ctx, doc.ID, req)
		}
		if err != nil && KindOf(err) == KindAuthExpired {
			err = &SaveError{Kind: KindAuthExpired, Message: "Your session has expired. Please sign in again.", Err: err}
		}
	}

	return c.complete(doc, req, seq, err)
}

// complete reconciles a finished save attempt.
func (c *Coordinator) complete(doc Document, req SaveRequest, seq uint64, err error) error {
	var notify func()
	var firstSaveCB func(string)

	c.mu.Lock()
	c.saving = false
	c.cond.Broadcast()

	if err != nil {
		// Snapshot untouched, working document untouched. If newer
		// edits superseded the failed payload their save is already
		// owed; suppress the stale error and reschedule.
		if c.editSeq != seq || c.deferred {
			c.deferred = false
			notify = c.setStatusLocked(StatusPending, "")
			c.restartDebounceLocked()
		} else {
			notify = c.setStatusLocked(StatusError, errorMessage(err))
		}
		c.mu.Unlock()
		if notify != nil {
			notify()
		}
		return err
	}

	// Advance the baseline to the exact values sent, never to the
	// current working document.
	c.session.AdvanceSnapshot(Snapshot{
		Title:      req.Title,
		Content:    req.Content,
		Location:   req.Location,
		CustomDate: req.CustomDate,
	})
	if req.FirstSave {
		c.session.MarkPersisted()
		firstSaveCB = c.onFirstSave
	}

	if c.editSeq != seq || c.deferred {
		// The user kept typing during the round trip: new unsaved work
		// exists, skip the saved display state.
		c.deferred = false
		notify = c.setStatusLocked(StatusPending, "")
		c.restartDebounceLocked()
	} else {
		c.detector.Suppress(c.guardWindow)
		notify = c.setStatusLocked(StatusSaved, "")
		c.startSavedTimerLocked()
	}
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
	if firstSaveCB != nil {
		// Off the completion path so the UI can absorb the new-mode
		// flip without resetting the editor mid-keystroke.
		go firstSaveCB(doc.ID)
	}
	return nil
}

func (c *Coordinator) savedHoldElapsed() {
	var notify func()
	c.mu.Lock()
	if c.status == StatusSaved {
		notify = c.setStatusLocked(StatusIdle, "")
	}
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// setStatusLocked updates the status under the lock and returns the
// observer notification to run after it is released.
func (c *Coordinator) setStatusLocked(status Status, msg string) func() {
	if c.status == status && c.errMsg == msg {
		return nil
	}
	c.status = status
	c.errMsg = msg
	cb := c.onStatus
	if cb == nil {
		return nil
	}
	return func() { cb(status, msg) }
}

func (c *Coordinator) restartDebounceLocked() {
	c.stopDebounceLocked()
	if c.closed {
		return
	}
	c.debounceTimer = c.afterFunc(c.debounce, c.debounceFired)
}

func (c *Coordinator) stopDebounceLocked() {
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
}

func (c *Coordinator) startSavedTimerLocked() {
	if c.savedTimer != nil {
		c.savedTimer.Stop()
	}
	if c.closed {
		return
	}
	c.savedTimer = c.afterFunc(c.savedHold, c.savedHoldElapsed)
}

func errorMessage(err error) string {
	var se *SaveError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "Saving failed. Your changes are kept locally."
}
