package vault

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// CommandRunner abstracts vault CLI child-process invocation so providers
// can be tested without the real binaries installed.
type CommandRunner interface {
	// Run executes the command and returns its stdout. The context bounds
	// the child process; stderr is folded into the returned error.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookPath reports whether the binary is on PATH.
	LookPath(name string) bool
}

// execRunner shells out to the real CLI. Vault CLI calls are blocking,
// bounded child-process invocations - acceptable because discovery and
// authentication are rare, user-supervised foreground operations, not a hot
// path.
type execRunner struct {
	timeout time.Duration
	limiter *rate.Limiter
}

// NewRunner creates an exec-backed CommandRunner. Every invocation is
// bounded by timeout and paced by a small rate limiter so a misbehaving
// caller cannot hammer the vault CLI.
func NewRunner(timeout time.Duration) CommandRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &execRunner{
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s timed out after %s: %s", name, r.timeout, msg)
		}
		return nil, fmt.Errorf("%s failed: %s", name, msg)
	}

	return stdout.Bytes(), nil
}

func (r *execRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
