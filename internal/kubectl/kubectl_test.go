package kubectl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Name string
	Args []string
}

func (c recordedCall) Line() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// fakeRunner returns canned output per call and records every command line.
type fakeRunner struct {
	calls   []recordedCall
	outputs []string
	err     error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, recordedCall{Name: name, Args: args})
	if f.err != nil {
		return "", f.err
	}
	out := ""
	if len(f.outputs) > 0 {
		out = f.outputs[0]
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

func newTestClient(fr *fakeRunner) *Client {
	c := New([]string{"kubectl"}, "", "apps", nil)
	c.run = fr.run
	return c
}

func TestArgs_WrapperCommandAndFlags(t *testing.T) {
	fr := &fakeRunner{}
	c := New([]string{"tess", "kubectl"}, "prod-west", "apps", nil)
	c.run = fr.run

	_, err := c.kubectl(context.Background(), "get", "pods")
	require.NoError(t, err)

	require.Len(t, fr.calls, 1)
	assert.Equal(t, "tess", fr.calls[0].Name)
	assert.Equal(t, []string{"kubectl", "--cluster", "prod-west", "-n", "apps", "get", "pods"}, fr.calls[0].Args)
}

func TestArgs_OmitsEmptyCluster(t *testing.T) {
	fr := &fakeRunner{}
	c := newTestClient(fr)

	_, err := c.kubectl(context.Background(), "version")
	require.NoError(t, err)
	assert.Equal(t, []string{"-n", "apps", "version"}, fr.calls[0].Args)
}

func TestResolvePod_PinsRunningPod(t *testing.T) {
	fr := &fakeRunner{outputs: []string{"'myapp-7d9f-abcde'\n"}}
	c := newTestClient(fr)

	pod, err := c.ResolvePod(context.Background(), "app=myapp")
	require.NoError(t, err)
	assert.Equal(t, "myapp-7d9f-abcde", pod)
	assert.Equal(t, "myapp-7d9f-abcde", c.Pod())

	line := fr.calls[0].Line()
	assert.Contains(t, line, "get pods -l app=myapp")
	assert.Contains(t, line, "--field-selector=status.phase=Running")
	assert.Contains(t, line, "jsonpath={.items[0].metadata.name}")
}

func TestResolvePod_EmptyOutputIsError(t *testing.T) {
	fr := &fakeRunner{outputs: []string{"  \n"}}
	c := newTestClient(fr)

	_, err := c.ResolvePod(context.Background(), "app=myapp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no running pod")
}

func TestResolvePod_PropagatesRunnerError(t *testing.T) {
	boom := errors.New("connection refused")
	fr := &fakeRunner{err: boom}
	c := newTestClient(fr)

	_, err := c.ResolvePod(context.Background(), "app=myapp")
	assert.ErrorIs(t, err, boom)
}

func TestParseMD5Listing(t *testing.T) {
	out := strings.Join([]string{
		"5eb63bbbe01eeed093cb22bb8f5acdc3  /app/src/main.py",
		"d41d8cd98f00b204e9800998ecf8427e  /app/with space.txt",
		"d41d8cd98f00b204e9800998ecf8427e  /elsewhere/file.txt",
		"not a digest line",
		"",
		"deadbeef  /app/short-digest.txt",
	}, "\n")

	inv := parseMD5Listing(out, "/app")
	assert.Equal(t, map[string]string{
		"src/main.py":    "5eb63bbbe01eeed093cb22bb8f5acdc3",
		"with space.txt": "d41d8cd98f00b204e9800998ecf8427e",
	}, inv)
}

func TestParseMD5Listing_TrailingSlashRoot(t *testing.T) {
	out := "5eb63bbbe01eeed093cb22bb8f5acdc3  /app/a.txt"
	inv := parseMD5Listing(out, "/app/")
	assert.Equal(t, map[string]string{"a.txt": "5eb63bbbe01eeed093cb22bb8f5acdc3"}, inv)
}

func TestListRemoteFiles_ToleratesMissingRoot(t *testing.T) {
	fr := &fakeRunner{outputs: []string{""}}
	c := newTestClient(fr)
	c.pod = "myapp-0"

	inv, err := c.ListRemoteFiles(context.Background(), "/app")
	require.NoError(t, err)
	assert.Empty(t, inv)

	line := fr.calls[0].Line()
	assert.Contains(t, line, "exec myapp-0 -- sh -c")
	assert.Contains(t, line, "find '/app' -type f -exec md5sum {} +")
	assert.Contains(t, line, "|| true")
}

func TestEnsureRemoteDirs_SingleExec(t *testing.T) {
	fr := &fakeRunner{}
	c := newTestClient(fr)
	c.pod = "myapp-0"

	require.NoError(t, c.EnsureRemoteDirs(context.Background(), "/app/a/b", "/app/c"))
	require.Len(t, fr.calls, 1)
	assert.Equal(t,
		[]string{"-n", "apps", "exec", "myapp-0", "--", "mkdir", "-p", "/app/a/b", "/app/c"},
		fr.calls[0].Args)

	// no dirs, no exec
	require.NoError(t, c.EnsureRemoteDirs(context.Background()))
	assert.Len(t, fr.calls, 1)
}

func TestCopyToRemote_UsesPodColonPath(t *testing.T) {
	fr := &fakeRunner{}
	c := newTestClient(fr)
	c.pod = "myapp-0"

	require.NoError(t, c.CopyToRemote(context.Background(), "/tmp/a.txt", "/app/a.txt"))
	assert.Equal(t, []string{"-n", "apps", "cp", "/tmp/a.txt", "myapp-0:/app/a.txt"}, fr.calls[0].Args)
}

func TestExtractRemoteArchive_PlainLaysOverTree(t *testing.T) {
	fr := &fakeRunner{}
	c := newTestClient(fr)
	c.pod = "myapp-0"

	require.NoError(t, c.ExtractRemoteArchive(context.Background(), "/tmp/x.tar.gz", "/app", false))
	line := fr.calls[0].Line()
	assert.Contains(t, line, "mkdir -p '/app'")
	assert.Contains(t, line, "tar -xzf '/tmp/x.tar.gz' -C '/app'")
	assert.Contains(t, line, "rm -f '/tmp/x.tar.gz'")
	assert.NotContains(t, line, "mv ")
}

func TestExtractRemoteArchive_OverwriteSwapsTrees(t *testing.T) {
	fr := &fakeRunner{}
	c := newTestClient(fr)
	c.pod = "myapp-0"

	require.NoError(t, c.ExtractRemoteArchive(context.Background(), "/tmp/x.tar.gz", "/srv/app", true))
	line := fr.calls[0].Line()

	// extraction happens in a sibling staging dir, then the trees swap
	assert.Contains(t, line, "tar -xzf '/tmp/x.tar.gz' -C '/srv/.app.podmirror-staged'")
	assert.Contains(t, line, "mv '/srv/app' '/srv/.app.podmirror-old'")
	assert.Contains(t, line, "mv '/srv/.app.podmirror-staged' '/srv/app'")
	assert.Contains(t, line, "rm -rf '/srv/.app.podmirror-old'")
}

func TestRemoveRemotePath(t *testing.T) {
	fr := &fakeRunner{}
	c := newTestClient(fr)
	c.pod = "myapp-0"

	require.NoError(t, c.RemoveRemotePath(context.Background(), "/app/gone.txt"))
	assert.Equal(t, []string{"-n", "apps", "exec", "myapp-0", "--", "rm", "-f", "/app/gone.txt"}, fr.calls[0].Args)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'/app/plain'", shellQuote("/app/plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
