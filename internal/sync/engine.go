package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
)

// statusInterval is how often the watch loop reports pool counters while
// transfers are in flight.
const statusInterval = 30 * time.Second

// DeletePolicy decides what a local deletion does to the remote tree. The
// default keeps remote files, so a live-watch session never performs a
// destructive remote operation on its own.
type DeletePolicy int

const (
	DeleteIgnore DeletePolicy = iota
	DeletePropagate
)

func (p DeletePolicy) String() string {
	if p == DeletePropagate {
		return "propagate"
	}
	return "ignore"
}

// Options configures an Engine. The zero value of most fields falls back to
// the documented defaults.
type Options struct {
	LocalRoot  string
	RemoteRoot string
	Exclude    *ExclusionSet

	Workers       int
	BulkThreshold int
	DebounceDelay time.Duration
	TopLargest    int

	DeletePolicy DeletePolicy

	// Clock is swappable for tests; nil means the real clock.
	Clock clockwork.Clock
	Log   *slog.Logger
}

// Engine owns the full sync lifecycle: one reconciliation pass, then the live
// watch phase feeding the same per-file upload primitive.
type Engine struct {
	opts      Options
	transport Transport
	scanner   *Scanner
	uploader  *Uploader
	archiver  *Archiver
	debouncer *Debouncer
	watcher   *Watcher
	log       *slog.Logger
}

func NewEngine(transport Transport, opts Options) *Engine {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.BulkThreshold <= 0 {
		opts.BulkThreshold = DefaultBulkThreshold
	}
	if opts.TopLargest <= 0 {
		opts.TopLargest = 10
	}

	scanner := NewScanner(opts.LocalRoot, opts.Exclude)
	uploader := NewUploader(transport, opts.LocalRoot, opts.RemoteRoot, opts.Workers, opts.Log)

	e := &Engine{
		opts:      opts,
		transport: transport,
		scanner:   scanner,
		uploader:  uploader,
		archiver:  NewArchiver(scanner, transport, opts.RemoteRoot, opts.Log),
		watcher:   NewWatcher(opts.LocalRoot, opts.Log),
		log:       opts.Log,
	}
	e.debouncer = NewDebouncer(opts.DebounceDelay, opts.Clock, e.submitLive, opts.Log)
	return e
}

// Uploader exposes the pool for status reporting.
func (e *Engine) Uploader() *Uploader { return e.uploader }

// Reconcile performs the initial sync: inventory, scan, plan, then either the
// bulk archive path or the incremental pool. A bulk failure falls back to the
// incremental path against the already-computed pending set; the plan is
// never rebuilt.
func (e *Engine) Reconcile(ctx context.Context) (*SyncPlan, error) {
	tstart := time.Now()

	if err := e.transport.EnsureRemoteDirs(ctx, e.opts.RemoteRoot); err != nil {
		return nil, fmt.Errorf("ensure remote root: %w", err)
	}

	inventory, err := e.transport.ListRemoteFiles(ctx, e.opts.RemoteRoot)
	if err != nil {
		// Conservative fallback: treat the remote as empty and re-upload
		// everything rather than fail the run.
		e.log.Warn("remote inventory unavailable, assuming empty remote", "error", err)
		inventory = map[string]string{}
	}
	inventory = FilterInventory(inventory, e.opts.Exclude)

	entries, err := e.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan local tree: %w", err)
	}

	plan := BuildPlan(entries, inventory)
	e.log.Info("reconcile plan",
		"remote", len(inventory),
		"local", len(entries),
		"pending", len(plan.ToUpload),
		"skipped", plan.Skipped)

	if plan.Empty() {
		e.log.Info("already in sync", "took", time.Since(tstart))
		return plan, nil
	}

	switch plan.PickStrategy(e.opts.BulkThreshold) {
	case StrategyBulk:
		e.log.Info("pending count above threshold, using bulk archive path",
			"pending", len(plan.ToUpload), "threshold", e.opts.BulkThreshold)
		LogLargestFiles(e.log, entries, e.opts.TopLargest)

		report, err := e.archiver.Transfer(ctx, false)
		if err == nil {
			e.log.Info("bulk sync done",
				"files", report.Files,
				"size", humanize.Bytes(uint64(report.Size)),
				"took", report.Total())
			return plan, nil
		}
		e.log.Warn("bulk path failed, falling back to incremental upload", "error", err)
		fallthrough
	default:
		summary := e.uploader.Run(ctx, plan, e.logResult)
		e.log.Info("incremental sync done",
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"skipped", plan.Skipped,
			"took", time.Since(tstart))
	}

	return plan, nil
}

// ForceFullSync transfers the whole filtered tree as one archive with
// overwrite-on-extract, with no digest comparison at all.
func (e *Engine) ForceFullSync(ctx context.Context) error {
	e.log.Info("forced full sync, using bulk archive path", "dest", e.opts.RemoteRoot)

	entries, err := e.scanner.Scan(ctx)
	if err == nil {
		LogLargestFiles(e.log, entries, e.opts.TopLargest)
	}

	report, err := e.archiver.Transfer(ctx, true)
	if err != nil {
		return err
	}
	e.log.Info("forced full sync done",
		"files", report.Files,
		"size", humanize.Bytes(uint64(report.Size)),
		"compress", report.BuildTime,
		"upload", report.CopyTime,
		"extract", report.ExtractTime)
	return nil
}

// Watch consumes change notifications until the context ends. Filtered
// create/modify events flow through the debouncer into the shared upload
// pool; deletions go through the configured policy.
func (e *Engine) Watch(ctx context.Context) error {
	if err := e.watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer e.watcher.Stop()

	e.log.Info("watching for changes",
		"dir", e.opts.LocalRoot,
		"workers", e.uploader.workers,
		"deletes", e.opts.DeletePolicy)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if active := e.uploader.Active(); active > 0 {
				e.log.Info("transfer status",
					"active", active,
					"completed", e.uploader.Completed(),
					"tracked", e.debouncer.Len())
			}

		case ev, ok := <-e.watcher.Events():
			if !ok {
				return nil
			}
			e.handleEvent(ctx, ev)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev Event) {
	if ev.Kind == EventDeleted {
		e.handleDelete(ctx, ev)
		return
	}

	if ShouldSkipEvent(ev, e.opts.Exclude) {
		return
	}

	e.log.Debug("change detected", "path", ev.RelPath, "kind", ev.Kind)
	e.debouncer.HandleChange(ctx, ev.RelPath)
}

func (e *Engine) handleDelete(ctx context.Context, ev Event) {
	if e.opts.DeletePolicy != DeletePropagate {
		return
	}
	// A deleted path cannot be stat'd, so dir filtering falls to the remote
	// rm -f, which is a no-op on directories.
	if hasDotSegment(ev.RelPath) || e.opts.Exclude.Match(ev.RelPath) || IsTempFile(path.Base(ev.RelPath)) {
		return
	}

	e.log.Debug("delete detected", "path", ev.RelPath)
	e.uploader.SubmitRemove(ctx, ev.RelPath, func(res UploadResult) {
		if res.Err != nil {
			e.log.Error("remote delete failed", "path", res.RelPath, "error", res.Err)
			return
		}
		e.log.Info("remote delete", "path", res.RelPath, "took", res.Elapsed)
	})
}

// submitLive hands a debounced path to the upload pool.
func (e *Engine) submitLive(ctx context.Context, relPath string, done func(UploadResult)) {
	e.uploader.Submit(ctx, relPath, func(res UploadResult) {
		e.logResult(res)
		done(res)
	})
}

func (e *Engine) logResult(res UploadResult) {
	if res.Err != nil {
		e.log.Error("upload failed",
			"path", res.RelPath,
			"attempts", res.Attempts,
			"took", res.Elapsed,
			"error", res.Err)
		return
	}
	if res.Retries() > 0 {
		e.log.Info("upload ok",
			"path", res.RelPath,
			"retries", res.Retries(),
			"took", res.Elapsed)
		return
	}
	e.log.Info("upload ok", "path", res.RelPath, "took", res.Elapsed)
}
