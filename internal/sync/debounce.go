package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDebounceDelay is the quiet period that must follow a change before
// its upload is submitted.
const DefaultDebounceDelay = time.Second

// PathState is the lifecycle of one watched relative path. A path with no
// table entry is Idle.
type PathState int

const (
	StateIdle PathState = iota
	StateDebouncing
	StateUploading
	StateUploadingRetrigger
)

func (s PathState) String() string {
	switch s {
	case StateDebouncing:
		return "debouncing"
	case StateUploading:
		return "uploading"
	case StateUploadingRetrigger:
		return "uploading+retrigger"
	default:
		return "idle"
	}
}

type pathEntry struct {
	state PathState
	timer clockwork.Timer
	// gen invalidates timer callbacks that lost a cancel/reschedule race; a
	// fire only counts if it carries the current generation.
	gen uint64
}

// Debouncer coalesces bursts of change events per path into a single upload,
// serialized against any in-flight upload of the same path. Different paths
// proceed independently; the table mutex is only held for state transitions,
// never across a transfer.
type Debouncer struct {
	mu      gosync.Mutex
	entries map[string]*pathEntry

	clock  clockwork.Clock
	delay  time.Duration
	submit func(ctx context.Context, relPath string, done func(UploadResult))
	log    *slog.Logger
}

func NewDebouncer(delay time.Duration, clock clockwork.Clock, submit func(ctx context.Context, relPath string, done func(UploadResult)), log *slog.Logger) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Debouncer{
		entries: make(map[string]*pathEntry),
		clock:   clock,
		delay:   delay,
		submit:  submit,
		log:     log,
	}
}

// HandleChange feeds one create/modify notification into the state machine.
// Events must be pre-filtered (see ShouldSkipEvent).
func (d *Debouncer) HandleChange(ctx context.Context, relPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[relPath]
	if !ok {
		e = &pathEntry{}
		d.entries[relPath] = e
	}

	switch e.state {
	case StateIdle:
		d.armLocked(ctx, relPath, e)
	case StateDebouncing:
		// Coalesce: cancel and re-arm. The generation bump makes a timer that
		// already fired but lost the race a no-op.
		e.timer.Stop()
		d.armLocked(ctx, relPath, e)
	case StateUploading:
		// An in-flight copy cannot be aborted; remember to go again.
		e.state = StateUploadingRetrigger
	case StateUploadingRetrigger:
		// Already marked.
	}
}

// armLocked starts a fresh debounce window. Caller holds d.mu.
func (d *Debouncer) armLocked(ctx context.Context, relPath string, e *pathEntry) {
	e.state = StateDebouncing
	e.gen++
	gen := e.gen
	e.timer = d.clock.AfterFunc(d.delay, func() {
		d.timerFired(ctx, relPath, gen)
	})
}

func (d *Debouncer) timerFired(ctx context.Context, relPath string, gen uint64) {
	d.mu.Lock()
	e, ok := d.entries[relPath]
	if !ok || e.gen != gen || e.state != StateDebouncing {
		d.mu.Unlock()
		return
	}
	e.state = StateUploading
	d.mu.Unlock()

	// Submission is asynchronous; the timer goroutine never waits for a pool
	// slot while other paths need state transitions.
	d.submit(ctx, relPath, func(res UploadResult) {
		d.uploadDone(ctx, relPath, res)
	})
}

func (d *Debouncer) uploadDone(ctx context.Context, relPath string, res UploadResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[relPath]
	if !ok {
		return
	}

	if e.state == StateUploadingRetrigger {
		// The file changed during the transfer; the final on-disk content
		// still needs to go out. Clear the flag and start a new cycle.
		d.armLocked(ctx, relPath, e)
		return
	}

	delete(d.entries, relPath)
}

// State reports the current lifecycle state of a path.
func (d *Debouncer) State(relPath string) PathState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[relPath]; ok {
		return e.state
	}
	return StateIdle
}

// Len is the number of paths with live state, for status reporting.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
