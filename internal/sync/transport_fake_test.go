package sync

import (
	"context"
	"fmt"
	gosync "sync"
)

type copyCall struct {
	Local  string
	Remote string
}

// fakeTransport records every boundary call and can inject per-path copy
// failures, list failures and bulk-step failures.
type fakeTransport struct {
	mu gosync.Mutex

	inventory map[string]string
	listErr   error
	listCalls int

	ensureCalls [][]string

	copies         []copyCall
	failCopies     map[string]int // remote path -> remaining forced failures
	blockCopy      chan struct{}  // non-nil: every copy waits until closed
	inFlight       map[string]int
	maxInFlight    map[string]int
	archiveCopyErr error
	extractErr     error

	archiveCopies []copyCall
	extracts      []struct {
		Archive   string
		Dest      string
		Overwrite bool
	}

	removed []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inventory:   map[string]string{},
		failCopies:  map[string]int{},
		inFlight:    map[string]int{},
		maxInFlight: map[string]int{},
	}
}

func (f *fakeTransport) ListRemoteFiles(ctx context.Context, root string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make(map[string]string, len(f.inventory))
	for k, v := range f.inventory {
		out[k] = v
	}
	return out, nil
}

func (f *fakeTransport) EnsureRemoteDirs(ctx context.Context, dirs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls = append(f.ensureCalls, append([]string(nil), dirs...))
	return nil
}

func (f *fakeTransport) CopyToRemote(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.inFlight[remotePath]++
	if f.inFlight[remotePath] > f.maxInFlight[remotePath] {
		f.maxInFlight[remotePath] = f.inFlight[remotePath]
	}
	block := f.blockCopy
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight[remotePath]--
	if n := f.failCopies[remotePath]; n > 0 {
		f.failCopies[remotePath] = n - 1
		return fmt.Errorf("injected copy failure for %s", remotePath)
	}
	f.copies = append(f.copies, copyCall{Local: localPath, Remote: remotePath})
	return nil
}

func (f *fakeTransport) CopyArchiveToRemote(ctx context.Context, localArchive, remoteStaging string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.archiveCopyErr != nil {
		return f.archiveCopyErr
	}
	f.archiveCopies = append(f.archiveCopies, copyCall{Local: localArchive, Remote: remoteStaging})
	return nil
}

func (f *fakeTransport) ExtractRemoteArchive(ctx context.Context, remoteArchive, destPath string, overwrite bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.extractErr != nil {
		return f.extractErr
	}
	f.extracts = append(f.extracts, struct {
		Archive   string
		Dest      string
		Overwrite bool
	}{remoteArchive, destPath, overwrite})
	return nil
}

func (f *fakeTransport) RemoveRemotePath(ctx context.Context, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, remotePath)
	return nil
}

func (f *fakeTransport) copyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.copies)
}

func (f *fakeTransport) copiedRemotePaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.copies))
	for _, c := range f.copies {
		paths = append(paths, c.Remote)
	}
	return paths
}

func (f *fakeTransport) inFlightFor(remotePath string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight[remotePath]
}

func (f *fakeTransport) maxInFlightFor(remotePath string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight[remotePath]
}

func (f *fakeTransport) removedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}
