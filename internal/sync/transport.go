package sync

import "context"

// Transport is the narrow boundary to the remote execution target. Every call
// may block for non-trivial wall-clock time and is only ever invoked from
// worker tasks or dedicated one-shot calls, never from the event-delivery
// goroutine.
type Transport interface {
	// ListRemoteFiles returns a mapping of slash-separated relative path to
	// content digest for every file under root.
	ListRemoteFiles(ctx context.Context, root string) (map[string]string, error)

	// EnsureRemoteDirs idempotently creates the given absolute remote
	// directories, batching them into as few calls as possible.
	EnsureRemoteDirs(ctx context.Context, dirs ...string) error

	// CopyToRemote copies a single local file to an absolute remote path.
	CopyToRemote(ctx context.Context, localPath, remotePath string) error

	// CopyArchiveToRemote moves a local archive to a remote staging path.
	CopyArchiveToRemote(ctx context.Context, localArchive, remoteStaging string) error

	// ExtractRemoteArchive unpacks a staged archive into destPath and removes
	// the staged file. With overwrite set, the existing tree is replaced via
	// stage-then-swap rather than deleted up front.
	ExtractRemoteArchive(ctx context.Context, remoteArchive, destPath string, overwrite bool) error

	// RemoveRemotePath deletes a single remote file.
	RemoveRemotePath(ctx context.Context, remotePath string) error
}
