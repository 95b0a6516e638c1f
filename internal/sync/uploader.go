package sync

import (
	"context"
	"log/slog"
	"path"
	gosync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultWorkers bounds concurrent transfers; the pool size is the only
	// admission-control mechanism.
	DefaultWorkers = 10

	// DefaultAttempts is the per-file copy attempt bound. Retries re-send the
	// whole file immediately, with no backoff and no partial resume.
	DefaultAttempts = 3
)

// UploadResult is the per-file outcome. One file exhausting its retries never
// cancels or blocks another file's task.
type UploadResult struct {
	RelPath  string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (r UploadResult) Retries() int {
	if r.Attempts > 0 {
		return r.Attempts - 1
	}
	return 0
}

// UploadSummary aggregates a batch run.
type UploadSummary struct {
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Uploader performs single-file transfers against the remote target, with a
// bounded worker pool for batch runs and a semaphore for live submissions.
type Uploader struct {
	transport  Transport
	localRoot  string
	remoteRoot string
	workers    int
	attempts   int
	log        *slog.Logger

	sem *semaphore.Weighted

	// Remote directories known to exist. Each task still ensures its parent
	// directory, but a directory already created in this run costs nothing.
	muDirs      gosync.Mutex
	ensuredDirs map[string]struct{}

	active    atomic.Int64
	completed atomic.Int64
}

func NewUploader(transport Transport, localRoot, remoteRoot string, workers int, log *slog.Logger) *Uploader {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Uploader{
		transport:   transport,
		localRoot:   localRoot,
		remoteRoot:  remoteRoot,
		workers:     workers,
		attempts:    DefaultAttempts,
		log:         log,
		sem:         semaphore.NewWeighted(int64(workers)),
		ensuredDirs: make(map[string]struct{}),
	}
}

// Active and Completed expose pool counters for status reporting only; they
// never influence scheduling.
func (u *Uploader) Active() int64    { return u.active.Load() }
func (u *Uploader) Completed() int64 { return u.completed.Load() }

// RemotePath maps a relative entry path onto the remote root.
func (u *Uploader) RemotePath(relPath string) string {
	return path.Join(u.remoteRoot, relPath)
}

// UploadFile ensures the remote parent directory exists and copies one file,
// retrying the copy up to the attempt bound. Errors are contained in the
// result, never propagated.
func (u *Uploader) UploadFile(ctx context.Context, relPath string) UploadResult {
	start := time.Now()
	u.active.Add(1)
	defer func() {
		u.active.Add(-1)
		u.completed.Add(1)
	}()

	res := UploadResult{RelPath: relPath}

	remotePath := u.RemotePath(relPath)
	if err := u.ensureParentDir(ctx, remotePath); err != nil {
		res.Err = err
		res.Elapsed = time.Since(start)
		return res
	}

	localPath := localAbsPath(u.localRoot, relPath)
	for attempt := 1; attempt <= u.attempts; attempt++ {
		res.Attempts = attempt
		err := u.transport.CopyToRemote(ctx, localPath, remotePath)
		if err == nil {
			res.Err = nil
			break
		}
		res.Err = err
		if ctx.Err() != nil {
			break
		}
		if attempt < u.attempts {
			u.log.Debug("upload retry", "path", relPath, "attempt", attempt, "error", err)
		}
	}

	res.Elapsed = time.Since(start)
	return res
}

// Run drains the plan through the worker pool. Directories are batch-created
// first from the plan's pruned set. Tasks are admitted in plan order; no
// completion order is guaranteed.
func (u *Uploader) Run(ctx context.Context, plan *SyncPlan, onResult func(UploadResult)) UploadSummary {
	start := time.Now()
	summary := UploadSummary{}
	if plan.Empty() {
		return summary
	}

	if len(plan.DirsToCreate) > 0 {
		dirs := make([]string, 0, len(plan.DirsToCreate))
		for _, d := range plan.DirsToCreate {
			dirs = append(dirs, path.Join(u.remoteRoot, d))
		}
		if err := u.transport.EnsureRemoteDirs(ctx, dirs...); err != nil {
			// Not fatal; each task re-ensures its own parent.
			u.log.Warn("batch directory creation failed", "dirs", len(dirs), "error", err)
		} else {
			u.markEnsured(dirs...)
		}
	}

	var mu gosync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for _, entry := range plan.ToUpload {
		relPath := entry.RelPath
		g.Go(func() error {
			res := u.UploadFile(ctx, relPath)
			mu.Lock()
			if res.Err != nil {
				summary.Failed++
			} else {
				summary.Succeeded++
			}
			mu.Unlock()
			if onResult != nil {
				onResult(res)
			}
			return nil
		})
	}
	g.Wait()

	summary.Elapsed = time.Since(start)
	return summary
}

// Submit schedules one live upload without blocking the caller. The pool
// bound is enforced by the semaphore; a full pool back-pressures by making
// the task wait for a slot.
func (u *Uploader) Submit(ctx context.Context, relPath string, done func(UploadResult)) {
	go func() {
		if err := u.sem.Acquire(ctx, 1); err != nil {
			done(UploadResult{RelPath: relPath, Err: err})
			return
		}
		defer u.sem.Release(1)
		done(u.UploadFile(ctx, relPath))
	}()
}

// SubmitRemove schedules a live remote deletion through the same pool bound.
func (u *Uploader) SubmitRemove(ctx context.Context, relPath string, done func(UploadResult)) {
	go func() {
		if err := u.sem.Acquire(ctx, 1); err != nil {
			done(UploadResult{RelPath: relPath, Err: err})
			return
		}
		defer u.sem.Release(1)

		start := time.Now()
		err := u.transport.RemoveRemotePath(ctx, u.RemotePath(relPath))
		done(UploadResult{RelPath: relPath, Attempts: 1, Elapsed: time.Since(start), Err: err})
	}()
}

func (u *Uploader) ensureParentDir(ctx context.Context, remotePath string) error {
	dir := path.Dir(remotePath)
	if dir == "." || dir == "/" {
		return nil
	}

	u.muDirs.Lock()
	_, ok := u.ensuredDirs[dir]
	u.muDirs.Unlock()
	if ok {
		return nil
	}

	if err := u.transport.EnsureRemoteDirs(ctx, dir); err != nil {
		return err
	}
	u.markEnsured(dir)
	return nil
}

func (u *Uploader) markEnsured(dirs ...string) {
	u.muDirs.Lock()
	defer u.muDirs.Unlock()
	for _, d := range dirs {
		u.ensuredDirs[d] = struct{}{}
	}
}
