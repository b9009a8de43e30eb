// Package scheduler drives when reconciliation runs.
//
// One Engine exists per logged-in session. All triggers -- idle after
// activity, foreground/background transitions, the periodic backstop,
// connectivity changes, and explicit sync-now -- funnel into a single
// event loop, and at most one reconciliation pass executes at a time.
// A pass request arriving while one is in flight is dropped, not
// queued: the next scheduled trigger re-checks state anyway.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/repkit/brochuresync/internal/content"
	"github.com/repkit/brochuresync/internal/gateway"
	"github.com/repkit/brochuresync/internal/journal"
	"github.com/repkit/brochuresync/internal/reconcile"
	"github.com/repkit/brochuresync/internal/store"
	"github.com/repkit/brochuresync/internal/syncerr"
)

// Event is an external trigger fed to the engine.
type Event int

const (
	// EventActivity is any tracked user action: viewing a slide,
	// editing, navigating. It (re)arms the idle timer.
	EventActivity Event = iota
	// EventForeground fires when the app returns to the foreground.
	EventForeground
	// EventBackground fires when the app leaves the foreground; only
	// dirty documents are pushed, nothing is pulled.
	EventBackground
	// EventOnline fires when connectivity is restored.
	EventOnline
	// EventOffline fires when connectivity is lost.
	EventOffline
)

// String returns a human-readable representation of the event.
func (e Event) String() string {
	switch e {
	case EventActivity:
		return "activity"
	case EventForeground:
		return "foreground"
	case EventBackground:
		return "background"
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// state of the engine between passes.
type state int

const (
	stateIdle state = iota
	stateActivityWindow
	stateSyncing
)

// Config holds engine tunables. Zero values fall back to the defaults
// documented on each field.
type Config struct {
	// IdleDelay is how long after the last activity event a full pass
	// runs (default 30s).
	IdleDelay time.Duration

	// ForegroundMinInterval suppresses a foreground-triggered pass when
	// one already ran this recently (default 30s).
	ForegroundMinInterval time.Duration

	// BackstopInterval is the fixed-interval pass that covers documents
	// not actively being viewed (default 10m).
	BackstopInterval time.Duration

	// Threshold is the minimum remote-ahead delta considered a real
	// change (default reconcile.DefaultThreshold).
	Threshold time.Duration

	// Parallelism bounds concurrent per-document network operations
	// within one pass (default 4).
	Parallelism int

	// Logger for engine activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		IdleDelay:             30 * time.Second,
		ForegroundMinInterval: 30 * time.Second,
		BackstopInterval:      10 * time.Minute,
		Threshold:             reconcile.DefaultThreshold,
		Parallelism:           4,
		Logger:                log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.IdleDelay <= 0 {
		c.IdleDelay = d.IdleDelay
	}
	if c.ForegroundMinInterval <= 0 {
		c.ForegroundMinInterval = d.ForegroundMinInterval
	}
	if c.BackstopInterval <= 0 {
		c.BackstopInterval = d.BackstopInterval
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Parallelism <= 0 {
		c.Parallelism = d.Parallelism
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
}

// passKind selects how much work a pass does.
type passKind int

const (
	// passFull reconciles every locally-known document.
	passFull passKind = iota
	// passPushOnly pushes dirty documents and never pulls; used when
	// the app backgrounds to minimize time-in-background network work.
	passPushOnly
)

// Engine coordinates reconciliation passes for one user session.
type Engine struct {
	store   *store.Store
	gw      gateway.Gateway
	journal *journal.Journal // may be nil
	userID  string
	config  *Config

	events chan Event

	// passTok is the single-flight token: a pass runs only while
	// holding it. Acquisition never blocks; failure means a pass is in
	// flight and the trigger is dropped.
	passTok chan struct{}

	mu       sync.Mutex
	offline  bool
	lastPass time.Time
	state    state

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine. The journal may be nil, in which case
// operations are only logged.
func New(st *store.Store, gw gateway.Gateway, jr *journal.Journal, userID string, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	config.fillDefaults()

	tok := make(chan struct{}, 1)
	tok <- struct{}{}

	return &Engine{
		store:   st,
		gw:      gw,
		journal: jr,
		userID:  userID,
		config:  config,
		events:  make(chan Event, 32),
		passTok: tok,
	}
}

// Start launches the event loop. It returns immediately; use Stop to
// shut down. Timer and event handling never block on pass execution --
// passes run in their own goroutine under the single-flight token.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.loop()
}

// Stop shuts the engine down and waits for the event loop and any
// in-flight pass to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Notify feeds an event to the engine. It never blocks; if the event
// buffer is full the event is dropped, which is safe because every
// trigger is a hint to re-check state, not a unit of work.
func (e *Engine) Notify(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.config.Logger.Printf("Event buffer full, dropping %s", ev)
	}
}

// loop is the single goroutine owning timers and state transitions.
func (e *Engine) loop() {
	defer e.wg.Done()

	idle := time.NewTimer(e.config.IdleDelay)
	if !idle.Stop() {
		<-idle.C
	}
	backstop := time.NewTicker(e.config.BackstopInterval)
	defer backstop.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return

		case ev := <-e.events:
			e.handleEvent(ev, idle)

		case <-idle.C:
			e.setState(stateIdle)
			e.config.Logger.Printf("Idle timer fired, starting pass")
			e.startPass(passFull, false)

		case <-backstop.C:
			e.startPass(passFull, false)
		}
	}
}

func (e *Engine) handleEvent(ev Event, idle *time.Timer) {
	switch ev {
	case EventActivity:
		e.setState(stateActivityWindow)
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(e.config.IdleDelay)

	case EventForeground:
		e.mu.Lock()
		recent := time.Since(e.lastPass) < e.config.ForegroundMinInterval
		e.mu.Unlock()
		if recent {
			e.config.Logger.Printf("Foreground pass suppressed, last pass too recent")
			return
		}
		e.startPass(passFull, false)

	case EventBackground:
		e.startPass(passPushOnly, false)

	case EventOnline:
		e.mu.Lock()
		wasOffline := e.offline
		e.offline = false
		e.mu.Unlock()
		if wasOffline {
			e.config.Logger.Printf("Connectivity restored, starting pass")
		}
		e.startPass(passFull, false)

	case EventOffline:
		e.mu.Lock()
		e.offline = true
		e.mu.Unlock()
		e.config.Logger.Printf("Connectivity lost, suppressing ambient sync")
	}
}

func (e *Engine) setState(s state) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// startPass launches a pass in its own goroutine. Ambient triggers are
// suppressed while offline; a trigger that loses the single-flight race
// is dropped.
func (e *Engine) startPass(kind passKind, userInitiated bool) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.runPass(e.ctx, kind, userInitiated); err != nil &&
			!errors.Is(err, syncerr.ErrSyncInProgress) {
			e.config.Logger.Printf("Pass finished with error: %v", err)
		}
	}()
}

// SyncNow runs a full pass on behalf of an explicit user action. Unlike
// ambient triggers it bypasses the offline gate (the user asked) and
// propagates the first per-document failure to the caller. If a pass is
// already in flight it returns syncerr.ErrSyncInProgress immediately.
func (e *Engine) SyncNow(ctx context.Context) error {
	return e.runPass(ctx, passFull, true)
}

// runPass executes one reconciliation pass under the single-flight
// token.
func (e *Engine) runPass(ctx context.Context, kind passKind, userInitiated bool) error {
	select {
	case <-e.passTok:
	default:
		return syncerr.ErrSyncInProgress
	}
	defer func() { e.passTok <- struct{}{} }()

	e.mu.Lock()
	if e.offline && !userInitiated {
		e.mu.Unlock()
		e.config.Logger.Printf("Offline, skipping pass")
		return nil
	}
	e.lastPass = time.Now()
	e.state = stateSyncing
	e.mu.Unlock()
	defer e.setState(stateIdle)

	var ids []string
	var err error
	if kind == passPushOnly {
		ids = e.store.ListModified()
	} else {
		ids, err = e.store.List()
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	start := time.Now()
	e.config.Logger.Printf("Starting %s pass over %d documents", passKindName(kind), len(ids))

	// Bounded worker pool; per-document failures never abort the rest
	// of the pass.
	var (
		firstErrMu sync.Mutex
		firstErr   error
		failed     int
		failedMu   sync.Mutex
	)
	work := make(chan string)
	var workers sync.WaitGroup
	for i := 0; i < e.config.Parallelism; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for id := range work {
				if err := e.syncDocument(ctx, id, kind); err != nil {
					failedMu.Lock()
					failed++
					failedMu.Unlock()
					e.config.Logger.Printf("WARNING: failed to sync %s: %v", id, err)
					if errors.Is(err, syncerr.ErrNetworkUnavailable) {
						e.mu.Lock()
						e.offline = true
						e.mu.Unlock()
					}
					firstErrMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					firstErrMu.Unlock()
				}
			}
		}()
	}
	for _, id := range ids {
		work <- id
	}
	close(work)
	workers.Wait()

	e.config.Logger.Printf("Pass complete in %v: documents=%d failed=%d",
		time.Since(start).Round(time.Millisecond), len(ids), failed)

	if e.journal != nil {
		if _, err := e.journal.PruneCompleted(context.Background(), 24*time.Hour); err != nil {
			e.config.Logger.Printf("Warning: failed to prune journal: %v", err)
		}
	}

	if userInitiated {
		return firstErr
	}
	// Ambient passes swallow per-document failures; they were logged
	// and journaled above.
	return nil
}

func passKindName(kind passKind) string {
	if kind == passPushOnly {
		return "push-only"
	}
	return "full"
}

// syncDocument reconciles one document. The dirty check runs strictly
// before the remote timestamp comparison so that local edits win over
// an unknown remote state.
func (e *Engine) syncDocument(ctx context.Context, id string, kind passKind) error {
	doc, err := e.store.Load(id)
	if err != nil {
		if errors.Is(err, syncerr.ErrStorageCorrupt) {
			// Treated as not-found for sync purposes; never repaired by
			// pushing or pulling over it without an explicit user action.
			e.config.Logger.Printf("WARNING: document %s unreadable, skipping: %v", id, err)
			return nil
		}
		return err
	}

	if doc.NeedsSync {
		return e.push(ctx, doc)
	}
	if kind == passPushOnly {
		return nil
	}

	status, err := e.gw.CheckStatus(ctx, e.userID, id, doc.LastModified)
	remoteExists := true
	if err != nil {
		if errors.Is(err, syncerr.ErrNotFound) {
			remoteExists = false
		} else {
			return fmt.Errorf("status check for %s: %w", id, err)
		}
	}

	switch reconcile.Decide(doc.LastModified, status.ServerTimestamp, remoteExists, false, e.config.Threshold) {
	case reconcile.ActionPull:
		return e.pull(ctx, doc)
	default:
		return nil
	}
}

// push upserts the document and, on success, adopts the server-returned
// timestamp and clears the dirty flags. A failure leaves the flags set
// so the next pass retries. The network call runs on a detached
// context: cancelling a pass must not abandon an upload of local edits.
func (e *Engine) push(ctx context.Context, doc *content.Document) error {
	opID := e.record(doc, journal.DirectionPush)
	e.setOpStatus(opID, journal.StatusInProgress, nil)

	pushCtx := context.WithoutCancel(ctx)
	serverTS, err := e.gw.Push(pushCtx, e.userID, gateway.PushRequest{
		DocID:  doc.ID,
		Title:  doc.Title,
		Slides: doc.Slides,
		Groups: doc.Groups,
	})
	if err != nil {
		e.setOpStatus(opID, journal.StatusFailed, err)
		return fmt.Errorf("push %s: %w", doc.ID, err)
	}

	// doc.LastModified identifies the uploaded snapshot; an edit that
	// landed mid-push keeps the document dirty.
	if err := e.store.MarkSynced(doc.ID, doc.LastModified, serverTS); err != nil {
		e.setOpStatus(opID, journal.StatusFailed, err)
		return fmt.Errorf("mark synced %s: %w", doc.ID, err)
	}
	e.setOpStatus(opID, journal.StatusCompleted, nil)
	return nil
}

// pull fetches the server copy and replaces local slides and groups
// wholesale. A failure leaves local state untouched.
func (e *Engine) pull(ctx context.Context, doc *content.Document) error {
	opID := e.record(doc, journal.DirectionPull)
	e.setOpStatus(opID, journal.StatusInProgress, nil)

	result, err := e.gw.Pull(ctx, e.userID, doc.ID)
	if err != nil {
		e.setOpStatus(opID, journal.StatusFailed, err)
		return fmt.Errorf("pull %s: %w", doc.ID, err)
	}

	if _, err := e.store.ReplaceFromRemote(doc.ID, result.Title, result.Slides, result.Groups, result.Timestamp); err != nil {
		e.setOpStatus(opID, journal.StatusFailed, err)
		return fmt.Errorf("install pulled content for %s: %w", doc.ID, err)
	}
	e.setOpStatus(opID, journal.StatusCompleted, nil)
	return nil
}

// record journals a new operation; journaling failures are logged, not
// fatal -- sync must not depend on the journal being writable.
func (e *Engine) record(doc *content.Document, dir journal.Direction) int64 {
	if e.journal == nil {
		return 0
	}
	id, err := e.journal.Record(context.Background(), doc.ID, doc.DisplayTitle(), dir)
	if err != nil {
		e.config.Logger.Printf("Warning: failed to journal %s of %s: %v", dir, doc.ID, err)
		return 0
	}
	return id
}

func (e *Engine) setOpStatus(opID int64, status journal.Status, opErr error) {
	if e.journal == nil || opID == 0 {
		return
	}
	if err := e.journal.SetStatus(context.Background(), opID, status, opErr); err != nil {
		e.config.Logger.Printf("Warning: failed to update journal entry %d: %v", opID, err)
	}
}
