// Package exec provides the CommandRunner abstraction used for every
// subprocess wasmverify starts (build commands, account setup, candid encoding).
package exec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	osexec "os/exec"
	"strings"
	"syscall"
	"time"
)

// GracePeriod is how long a cancelled process group gets between SIGINT and SIGKILL.
const GracePeriod = 3 * time.Second

// WaitDelay bounds how long Run waits for output pipes after the process
// exits. Background children that inherited the pipes would otherwise keep
// Run blocked until they exit.
const WaitDelay = 2 * time.Second

// RunOpts configures a single command invocation.
type RunOpts struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is appended to the current process environment. Later entries win.
	Env map[string]string

	// Stdin is fed to the process when non-nil.
	Stdin io.Reader

	// Stdout and Stderr receive a copy of the output in addition to capture.
	Stdout io.Writer
	Stderr io.Writer

	// NoCapture leaves CmdResult.Stdout and Stderr empty. Output reaches only
	// the Stdout/Stderr writers.
	NoCapture bool

	// Credential runs the process as another uid/gid (requires privileges).
	Credential *syscall.Credential
}

// CmdResult holds captured output from a finished process.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs external commands.
//
// A non-zero exit is reported through CmdResult.ExitCode with a nil error.
// The error is reserved for failures to start the process or context
// cancellation.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, opts RunOpts) (CmdResult, error)
}

// RealRunner executes commands via os/exec.
type RealRunner struct{}

// NewRealRunner returns a CommandRunner backed by os/exec.
func NewRealRunner() *RealRunner {
	return &RealRunner{}
}

// Run implements CommandRunner.
//
// The process runs in its own process group. When ctx is done the whole
// group gets SIGINT, then SIGKILL after GracePeriod, and Run returns
// ctx.Err().
func (r *RealRunner) Run(ctx context.Context, name string, args []string, opts RunOpts) (CmdResult, error) {
	if err := ctx.Err(); err != nil {
		return CmdResult{ExitCode: -1}, err
	}

	cmd := osexec.Command(name, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), opts.Env)
	}
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = output(&stdout, opts.Stdout, opts.NoCapture)
	cmd.Stderr = output(&stderr, opts.Stderr, opts.NoCapture)
	cmd.WaitDelay = WaitDelay

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Credential: opts.Credential}

	if err := cmd.Start(); err != nil {
		return CmdResult{ExitCode: -1}, err
	}
	pgid := cmd.Process.Pid

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	var err error
	cancelled := false
	select {
	case err = <-waitDone:
	case <-ctx.Done():
		cancelled = true
		killProcessGroup(pgid, waitDone)
		err = <-waitDone
	}

	result := CmdResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if cancelled {
		result.ExitCode = -1
		return result, ctx.Err()
	}
	if err == nil {
		return result, nil
	}

	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode < 0 {
			// killed by signal
			result.ExitCode = 128
		}
		return result, nil
	}
	result.ExitCode = -1
	return result, err
}

// output picks the writer for one stream. A nil return makes os/exec
// connect the stream to the null device.
func output(capture *bytes.Buffer, tee io.Writer, noCapture bool) io.Writer {
	switch {
	case noCapture:
		return tee
	case tee != nil:
		return io.MultiWriter(capture, tee)
	default:
		return capture
	}
}

// killProcessGroup sends SIGINT to the group, waits up to GracePeriod for
// the leader to exit, then sends SIGKILL to whatever is left in the group.
// The leader's exit status is pushed back onto waitDone for the caller.
func killProcessGroup(pgid int, waitDone chan error) {
	// negative pid targets the group
	_ = syscall.Kill(-pgid, syscall.SIGINT)

	timer := time.NewTimer(GracePeriod)
	defer timer.Stop()
	select {
	case err := <-waitDone:
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		waitDone <- err
	case <-timer.C:
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
}

// MergeEnv overlays overrides onto base (KEY=VALUE entries). Overridden keys
// are removed from base so the child sees exactly one value per key.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}

// LookPath reports whether name is on PATH.
func LookPath(name string) (string, bool) {
	p, err := osexec.LookPath(name)
	return p, err == nil
}
