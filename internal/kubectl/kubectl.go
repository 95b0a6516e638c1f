// Package kubectl drives a Kubernetes pod through the kubectl CLI, exposing
// the coarse copy/exec/list primitives the sync engine needs. It deliberately
// shells out instead of using client-go: the original workflow runs behind
// wrapper binaries (e.g. `tess kubectl`) that own auth and cluster selection.
package kubectl

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// runner executes a built command line and returns its stdout. Swappable in
// tests.
type runner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return "", fmt.Errorf("%s: %s: %w", name, msg, err)
	}
	return stdout.String(), nil
}

// Client addresses one pod in one namespace. The zero Pod is resolved with
// ResolvePod before any transfer.
type Client struct {
	command   []string
	cluster   string
	namespace string
	pod       string
	log       *slog.Logger
	run       runner
}

func New(command []string, cluster, namespace string, log *slog.Logger) *Client {
	if len(command) == 0 {
		command = []string{"kubectl"}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		command:   command,
		cluster:   cluster,
		namespace: namespace,
		log:       log,
		run:       execRunner,
	}
}

func (c *Client) Pod() string { return c.pod }

// args assembles the common kubectl prefix: wrapper command, cluster and
// namespace flags, then the verb-specific tail.
func (c *Client) args(tail ...string) (string, []string) {
	full := append([]string(nil), c.command...)
	if c.cluster != "" {
		full = append(full, "--cluster", c.cluster)
	}
	if c.namespace != "" {
		full = append(full, "-n", c.namespace)
	}
	full = append(full, tail...)
	return full[0], full[1:]
}

func (c *Client) kubectl(ctx context.Context, tail ...string) (string, error) {
	name, args := c.args(tail...)
	c.log.Debug("kubectl", "cmd", name+" "+strings.Join(args, " "))
	return c.run(ctx, name, args...)
}

// ResolvePod picks the first Running pod matching the label selector and pins
// the client to it. No matching pod is a hard error; nothing can be synced
// without a live target.
func (c *Client) ResolvePod(ctx context.Context, labelSelector string) (string, error) {
	out, err := c.kubectl(ctx,
		"get", "pods",
		"-l", labelSelector,
		"--field-selector=status.phase=Running",
		"-o", "jsonpath={.items[0].metadata.name}",
	)
	if err != nil {
		return "", fmt.Errorf("resolve pod %q: %w", labelSelector, err)
	}

	pod := strings.Trim(strings.TrimSpace(out), "'\"")
	if pod == "" {
		return "", fmt.Errorf("no running pod matches %q", labelSelector)
	}
	c.pod = pod
	return pod, nil
}

// execPod runs a command inside the pinned pod.
func (c *Client) execPod(ctx context.Context, podCmd ...string) (string, error) {
	tail := append([]string{"exec", c.pod, "--"}, podCmd...)
	return c.kubectl(ctx, tail...)
}

// shellQuote wraps s in single quotes for safe embedding in a bash -c script.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
