package kubectl

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// ListRemoteFiles hashes every file under root inside the pod and returns the
// relative-path to digest mapping. A root that does not exist yet yields an
// empty inventory, not an error.
func (c *Client) ListRemoteFiles(ctx context.Context, root string) (map[string]string, error) {
	script := fmt.Sprintf("find %s -type f -exec md5sum {} + 2>/dev/null || true", shellQuote(root))
	out, err := c.execPod(ctx, "sh", "-c", script)
	if err != nil {
		return nil, fmt.Errorf("list remote files: %w", err)
	}
	return parseMD5Listing(out, root), nil
}

// parseMD5Listing converts `md5sum` output lines into relpath -> digest.
// Lines whose path does not sit under root are dropped.
func parseMD5Listing(out, root string) map[string]string {
	inventory := make(map[string]string)
	root = strings.TrimSuffix(root, "/")

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Format: "<digest>  <path>"; the path may contain spaces.
		sum, rest, ok := strings.Cut(line, " ")
		if !ok || len(sum) != 32 {
			continue
		}
		filePath := strings.TrimLeft(rest, " *")
		if !strings.HasPrefix(filePath, root+"/") {
			continue
		}
		relPath := strings.TrimPrefix(filePath, root+"/")
		if relPath == "" {
			continue
		}
		inventory[relPath] = sum
	}
	return inventory
}

// EnsureRemoteDirs creates all directories in one exec call.
func (c *Client) EnsureRemoteDirs(ctx context.Context, dirs ...string) error {
	if len(dirs) == 0 {
		return nil
	}
	args := append([]string{"mkdir", "-p"}, dirs...)
	if _, err := c.execPod(ctx, args...); err != nil {
		return fmt.Errorf("ensure remote dirs: %w", err)
	}
	return nil
}

// CopyToRemote is a single-shot byte-exact copy of one file into the pod.
func (c *Client) CopyToRemote(ctx context.Context, localPath, remotePath string) error {
	if _, err := c.kubectl(ctx, "cp", localPath, c.pod+":"+remotePath); err != nil {
		return fmt.Errorf("copy %s: %w", localPath, err)
	}
	return nil
}

// CopyArchiveToRemote stages an archive in the pod; same primitive as
// CopyToRemote, kept separate per the transport contract.
func (c *Client) CopyArchiveToRemote(ctx context.Context, localArchive, remoteStaging string) error {
	if _, err := c.kubectl(ctx, "cp", localArchive, c.pod+":"+remoteStaging); err != nil {
		return fmt.Errorf("copy archive: %w", err)
	}
	return nil
}

// ExtractRemoteArchive unpacks the staged archive into destPath and removes
// the staged file, all in one exec round-trip. Plain extraction lays files
// over the existing tree. With overwrite set, the old tree is replaced via
// stage-then-swap: extract into a sibling staging dir, move the old tree
// aside, move the staging dir in, then delete the old tree. A failure before
// the swap leaves the target untouched.
func (c *Client) ExtractRemoteArchive(ctx context.Context, remoteArchive, destPath string, overwrite bool) error {
	archive := shellQuote(remoteArchive)
	dest := shellQuote(strings.TrimSuffix(destPath, "/"))

	var script string
	if overwrite {
		staging := shellQuote(stagingSibling(destPath, "staged"))
		old := shellQuote(stagingSibling(destPath, "old"))
		script = fmt.Sprintf(
			"set -e; rm -rf %[1]s %[2]s; mkdir -p %[1]s; tar -xzf %[3]s -C %[1]s; rm -f %[3]s; "+
				"if [ -d %[4]s ]; then mv %[4]s %[2]s; fi; mv %[1]s %[4]s; rm -rf %[2]s",
			staging, old, archive, dest)
	} else {
		script = fmt.Sprintf("set -e; mkdir -p %[1]s; tar -xzf %[2]s -C %[1]s; rm -f %[2]s", dest, archive)
	}

	if _, err := c.execPod(ctx, "bash", "-c", script); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}
	return nil
}

// RemoveRemotePath deletes one file in the pod. Only ever used by the
// opt-in deletion policy.
func (c *Client) RemoveRemotePath(ctx context.Context, remotePath string) error {
	if _, err := c.execPod(ctx, "rm", "-f", remotePath); err != nil {
		return fmt.Errorf("remove %s: %w", remotePath, err)
	}
	return nil
}

func stagingSibling(destPath, tag string) string {
	destPath = strings.TrimSuffix(destPath, "/")
	return path.Join(path.Dir(destPath), fmt.Sprintf(".%s.podmirror-%s", path.Base(destPath), tag))
}
