package sync

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	gz, err := pgzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	contents := map[string]string{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(body)
	}
	return contents
}

func TestArchive_WriteToMatchesScanner(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":          "alpha",
		"sub/b.txt":      "beta",
		".hidden":        "x",
		"skip/c.txt":     "x",
		"sub/deep/d.txt": "delta",
	})

	scanner := NewScanner(root, NewExclusionSet("skip"))
	var buf bytes.Buffer
	files, err := NewArchive(scanner).WriteTo(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, files)

	contents := readArchive(t, buf.Bytes())
	assert.Equal(t, map[string]string{
		"a.txt":          "alpha",
		"sub/b.txt":      "beta",
		"sub/deep/d.txt": "delta",
	}, contents)
}

func TestArchive_BuildFileCleansUpOnError(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewArchive(NewScanner(root, nil)).BuildFile(ctx)
	assert.Error(t, err)
}

func TestArchive_BuildFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "alpha", "b/c.txt": "gamma"})

	path, files, err := NewArchive(NewScanner(root, nil)).BuildFile(context.Background())
	require.NoError(t, err)
	defer os.Remove(path)

	assert.Equal(t, 2, files)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, readArchive(t, data), 2)
}

func TestArchiver_TransferStepsInOrder(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a", "b.txt": "b"})

	tr := newFakeTransport()
	ar := NewArchiver(NewScanner(root, nil), tr, "/remote/app", slog.Default())

	report, err := ar.Transfer(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.Positive(t, report.Size)

	require.Len(t, tr.archiveCopies, 1)
	require.Len(t, tr.extracts, 1)
	ext := tr.extracts[0]
	assert.Equal(t, tr.archiveCopies[0].Remote, ext.Archive)
	assert.Equal(t, "/remote/app", ext.Dest)
	assert.False(t, ext.Overwrite)

	// the local temp archive is removed once the transfer completes
	_, statErr := os.Stat(tr.archiveCopies[0].Local)
	assert.True(t, os.IsNotExist(statErr))
}

func TestArchiver_TransferSurfacesCopyFailure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	tr := newFakeTransport()
	tr.archiveCopyErr = errFailed

	ar := NewArchiver(NewScanner(root, nil), tr, "/remote/app", slog.Default())
	_, err := ar.Transfer(context.Background(), false)
	assert.ErrorIs(t, err, errFailed)
	assert.Empty(t, tr.extracts)
}

func TestLargestFiles(t *testing.T) {
	entries := []FileEntry{
		{RelPath: "small.txt", Size: 10},
		{RelPath: "big.bin", Size: 5000},
		{RelPath: "mid.dat", Size: 300},
		{RelPath: "also-mid.dat", Size: 300},
	}

	top := LargestFiles(entries, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "big.bin", top[0].RelPath)
	// ties break on path so the report is stable
	assert.Equal(t, "also-mid.dat", top[1].RelPath)
	assert.Equal(t, "mid.dat", top[2].RelPath)

	assert.Nil(t, LargestFiles(entries, 0))
	assert.Len(t, LargestFiles(entries, 100), 4)

	// the input order is untouched
	var got []string
	for _, e := range entries {
		got = append(got, e.RelPath)
	}
	assert.Equal(t, []string{"small.txt", "big.bin", "mid.dat", "also-mid.dat"}, got)
}
