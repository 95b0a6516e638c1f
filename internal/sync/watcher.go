package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rjeczalik/notify"
)

type EventKind int

const (
	EventCreated EventKind = iota
	EventModified
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	default:
		return "deleted"
	}
}

// Event is a normalized filesystem change notification with a slash-separated
// root-relative path.
type Event struct {
	RelPath string
	Kind    EventKind
	IsDir   bool
}

// Watcher subscribes to recursive change notifications for a local root and
// re-delivers them as normalized Events. Translation is cheap and never blocks
// on uploads; the out channel is buffered to absorb bursts.
type Watcher struct {
	root string
	raw  chan notify.EventInfo
	out  chan Event
	log  *slog.Logger
}

func NewWatcher(root string, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		root: root,
		raw:  make(chan notify.EventInfo, 256),
		out:  make(chan Event, 1024),
		log:  log,
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	w.log.Info("file watcher start", "dir", w.root)

	recursivePath := filepath.Join(w.root, "...")
	if err := notify.Watch(recursivePath, w.raw, notify.Create|notify.Write|notify.Remove|notify.Rename); err != nil {
		return err
	}

	go w.translate(ctx)
	return nil
}

func (w *Watcher) Stop() {
	notify.Stop(w.raw)
	w.log.Info("file watcher stop")
}

func (w *Watcher) Events() <-chan Event {
	return w.out
}

func (w *Watcher) translate(ctx context.Context) {
	defer close(w.out)
	for {
		select {
		case <-ctx.Done():
			return
		case ei, ok := <-w.raw:
			if !ok {
				return
			}
			ev, ok := w.normalize(ei)
			if !ok {
				continue
			}
			select {
			case w.out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Watcher) normalize(ei notify.EventInfo) (Event, bool) {
	rel, err := filepath.Rel(w.root, ei.Path())
	if err != nil || rel == "." || rel == ".." {
		return Event{}, false
	}

	ev := Event{RelPath: filepath.ToSlash(rel)}

	switch ei.Event() {
	case notify.Create:
		ev.Kind = EventCreated
	case notify.Write:
		ev.Kind = EventModified
	case notify.Remove, notify.Rename:
		ev.Kind = EventDeleted
	default:
		return Event{}, false
	}

	if ev.Kind != EventDeleted {
		info, err := os.Stat(ei.Path())
		if err != nil {
			// Gone already; a later notification will cover whatever replaced
			// it.
			return Event{}, false
		}
		ev.IsDir = info.IsDir()
	}

	return ev, true
}
