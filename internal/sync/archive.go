package sync

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/pgzip"
)

// ArchiveReport carries the per-step timings and sizes of one bulk transfer,
// for operator visibility only.
type ArchiveReport struct {
	Files       int
	Size        int64
	BuildTime   time.Duration
	CopyTime    time.Duration
	ExtractTime time.Duration
}

func (r *ArchiveReport) Total() time.Duration {
	return r.BuildTime + r.CopyTime + r.ExtractTime
}

// Archiver implements the bulk path: the whole filtered tree as one
// compressed stream, staged on the remote and unpacked there. It is not
// cancellable mid-step; each of the three steps runs to completion or failure.
type Archiver struct {
	scanner    *Archive
	transport  Transport
	remoteRoot string
	log        *slog.Logger
}

// Archive builds tar.gz streams of a local tree using the exact same
// traversal and exclusion rules as the Scanner.
type Archive struct {
	scanner *Scanner
}

func NewArchive(scanner *Scanner) *Archive {
	return &Archive{scanner: scanner}
}

// WriteTo streams a tar.gz of the filtered tree. Entry names are the
// slash-separated relative paths, so extraction reproduces the tree layout.
func (a *Archive) WriteTo(ctx context.Context, w io.Writer) (int, error) {
	gz := pgzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	files := 0
	err := a.scanner.Walk(ctx, func(relPath, absPath string, info fs.FileInfo) error {
		if info == nil {
			// Vanished between readdir and stat; skip rather than abort the
			// whole archive.
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("tar header %s: %w", relPath, err)
		}
		hdr.Name = relPath

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", relPath, err)
		}

		f, err := os.Open(absPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", relPath, err)
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("archive %s: %w", relPath, err)
		}
		files++
		return nil
	})
	if err != nil {
		return files, err
	}

	if err := tw.Close(); err != nil {
		return files, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return files, fmt.Errorf("close gzip: %w", err)
	}
	return files, nil
}

// BuildFile writes the archive into a temp file and returns its path and the
// entry count. The caller removes the file when done.
func (a *Archive) BuildFile(ctx context.Context) (string, int, error) {
	f, err := os.CreateTemp("", "podmirror-*.tar.gz")
	if err != nil {
		return "", 0, fmt.Errorf("create temp archive: %w", err)
	}

	files, err := a.WriteTo(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, err
	}
	return f.Name(), files, nil
}

func NewArchiver(scanner *Scanner, transport Transport, remoteRoot string, log *slog.Logger) *Archiver {
	if log == nil {
		log = slog.Default()
	}
	return &Archiver{
		scanner:    NewArchive(scanner),
		transport:  transport,
		remoteRoot: remoteRoot,
		log:        log,
	}
}

// Transfer runs the three-step bulk path: build locally, copy to a remote
// staging path, extract remotely. Any step's failure aborts the bulk path and
// is surfaced to the caller; partial remote state is tolerable because a
// subsequent incremental reconciliation corrects it.
func (ar *Archiver) Transfer(ctx context.Context, overwrite bool) (*ArchiveReport, error) {
	report := &ArchiveReport{}

	tstart := time.Now()
	archivePath, files, err := ar.scanner.BuildFile(ctx)
	if err != nil {
		return report, fmt.Errorf("build archive: %w", err)
	}
	defer os.Remove(archivePath)
	report.BuildTime = time.Since(tstart)
	report.Files = files

	if info, err := os.Stat(archivePath); err == nil {
		report.Size = info.Size()
	}
	ar.log.Info("archive built",
		"files", files,
		"size", humanize.Bytes(uint64(report.Size)),
		"took", report.BuildTime)

	staging := fmt.Sprintf("/tmp/podmirror-%d.tar.gz", time.Now().UnixNano())

	tstart = time.Now()
	if err := ar.transport.CopyArchiveToRemote(ctx, archivePath, staging); err != nil {
		return report, fmt.Errorf("copy archive: %w", err)
	}
	report.CopyTime = time.Since(tstart)
	ar.log.Info("archive copied", "staging", staging, "took", report.CopyTime)

	tstart = time.Now()
	if err := ar.transport.ExtractRemoteArchive(ctx, staging, ar.remoteRoot, overwrite); err != nil {
		return report, fmt.Errorf("extract archive: %w", err)
	}
	report.ExtractTime = time.Since(tstart)
	ar.log.Info("archive extracted", "dest", ar.remoteRoot, "overwrite", overwrite, "took", report.ExtractTime)

	return report, nil
}

// LargestFiles returns the n biggest entries by size, for the pre-archive
// report. It has no effect on the transfer itself.
func LargestFiles(entries []FileEntry, n int) []FileEntry {
	if n <= 0 || len(entries) == 0 {
		return nil
	}
	sorted := append([]FileEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size > sorted[j].Size
		}
		return sorted[i].RelPath < sorted[j].RelPath
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// LogLargestFiles emits the report the way operators see it: biggest first,
// humanized sizes.
func LogLargestFiles(log *slog.Logger, entries []FileEntry, n int) {
	for _, e := range LargestFiles(entries, n) {
		log.Info("large file", "path", path.Clean(e.RelPath), "size", humanize.Bytes(uint64(e.Size)))
	}
}
