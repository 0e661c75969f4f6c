package k8s

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultQueryTimeout bounds short kubectl queries.
const DefaultQueryTimeout = 10 * time.Second

// RunKubectlFn runs a short-lived kubectl query and returns its stdout.
// Tests replace it to avoid needing a cluster.
var RunKubectlFn = runKubectl

func runKubectl(ctx context.Context, kubectl string, args ...string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultQueryTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, kubectl, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s %s timed out: %w", kubectl, strings.Join(args, " "), ctx.Err())
		}
		return nil, fmt.Errorf("%s %s failed: %w (stderr: %s)", kubectl, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
