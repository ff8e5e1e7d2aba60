package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/NielsdaWheelz/wasmverify/internal/exec"
)

// Call is one recorded FakeRunner invocation.
type Call struct {
	Name string
	Args []string
	Opts exec.RunOpts
}

// Line renders the call as "name arg1 arg2".
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// FakeRunner is an exec.CommandRunner that records calls and delegates the
// result to Handler. A nil Handler succeeds with empty output.
type FakeRunner struct {
	Handler func(c Call) (exec.CmdResult, error)

	mu    sync.Mutex
	calls []Call
}

// Run implements exec.CommandRunner.
func (f *FakeRunner) Run(_ context.Context, name string, args []string, opts exec.RunOpts) (exec.CmdResult, error) {
	c := Call{Name: name, Args: append([]string(nil), args...), Opts: opts}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.Handler == nil {
		return exec.CmdResult{}, nil
	}
	res, err := f.Handler(c)
	if opts.Stdout != nil && res.Stdout != "" {
		_, _ = opts.Stdout.Write([]byte(res.Stdout))
	}
	if opts.Stderr != nil && res.Stderr != "" {
		_, _ = opts.Stderr.Write([]byte(res.Stderr))
	}
	return res, err
}

// Calls returns a copy of the recorded calls.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns Call.Line for every recorded call.
func (f *FakeRunner) Lines() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Line())
	}
	return out
}
