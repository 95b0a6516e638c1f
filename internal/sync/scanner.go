package sync

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
)

// FileEntry describes one local file retained by a scan. RelPath is
// slash-separated and root-relative. Entries are recomputed on every scan; the
// filesystem is the only source of truth.
type FileEntry struct {
	RelPath string
	Size    int64
	Digest  Digest
}

// Scanner walks a local root applying the exclusion rules. Dot-directories are
// pruned without descending, dot-files are skipped.
type Scanner struct {
	root    string
	exclude *ExclusionSet
}

func NewScanner(root string, exclude *ExclusionSet) *Scanner {
	return &Scanner{root: root, exclude: exclude}
}

// Walk visits every retained file exactly once, in no particular order. The
// callback receives the slash-separated relative path, the absolute path and
// the file info. Walk never caches; each call is a fresh filesystem walk.
func (s *Scanner) Walk(ctx context.Context, fn func(relPath, absPath string, info fs.FileInfo) error) error {
	return filepath.WalkDir(s.root, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if absPath == s.root {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			rel, err := filepath.Rel(s.root, absPath)
			if err != nil {
				return err
			}
			if s.exclude.Match(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		rel, err := filepath.Rel(s.root, absPath)
		if err != nil {
			return err
		}
		relSlash := filepath.ToSlash(rel)
		if s.exclude.Match(relSlash) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Vanished mid-scan. Report it with unknown size so the planner
			// still considers it; the digest will come back unavailable.
			return fn(relSlash, absPath, nil)
		}
		return fn(relSlash, absPath, info)
	})
}

// Scan walks the tree and fingerprints every retained file.
func (s *Scanner) Scan(ctx context.Context) ([]FileEntry, error) {
	var entries []FileEntry
	err := s.Walk(ctx, func(relPath, absPath string, info fs.FileInfo) error {
		entry := FileEntry{RelPath: relPath, Digest: FileDigest(absPath)}
		if info != nil {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// AbsPath maps a relative entry path back onto the local root.
func (s *Scanner) AbsPath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

func (s *Scanner) Root() string { return s.root }

func localAbsPath(root, relPath string) string {
	return filepath.Join(root, filepath.FromSlash(relPath))
}
