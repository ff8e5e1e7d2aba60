// Package build checks out a proposal's commit and runs its build plan,
// trying a narrow targeted build first for the large monorepo and falling
// back to the full command sequence.
package build

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/NielsdaWheelz/wasmverify/internal/config"
	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/events"
	"github.com/NielsdaWheelz/wasmverify/internal/exec"
	"github.com/NielsdaWheelz/wasmverify/internal/fs"
	"github.com/NielsdaWheelz/wasmverify/internal/locate"
	"github.com/NielsdaWheelz/wasmverify/internal/plan"
	"github.com/NielsdaWheelz/wasmverify/internal/repo"
)

// Strategy records which build path produced the artifact.
type Strategy string

const (
	StrategyTargeted Strategy = "targeted"
	StrategyFull     Strategy = "full"
	StrategyNone     Strategy = "none"
)

// Outcome is the result of one execution attempt. It is not persisted.
type Outcome struct {
	Strategy Strategy `json:"strategy"`
	// ArtifactPath is the copy at the fixed output location; empty when none.
	ArtifactPath string `json:"artifact_path,omitempty"`
	// SourcePath is where the build left the artifact inside the checkout.
	SourcePath string `json:"source_path,omitempty"`
	Target     string `json:"target,omitempty"`
	LogPath    string `json:"log_path"`
}

// Executor runs build plans. All host interaction goes through its fields;
// it never mutates the process environment. FS must view the same tree the
// Checkouter and Runner write to, since the checkout directory is reset,
// normalized and searched through it.
type Executor struct {
	Runner      exec.CommandRunner
	FS          afero.Fs
	Checkout    Checkouter
	Deescalator *Deescalator // nil runs commands as the current user
	Config      config.BuildConfig
	WorkDir     string
	OutputDir   string
	Logger      *zap.Logger
	Events      *events.Recorder
	Now         func() time.Time
}

// Execute checks out bp.Commit and builds it. The returned Outcome always
// carries LogPath; on error Strategy is StrategyNone.
func (e *Executor) Execute(ctx context.Context, proposalID uint64, bp plan.BuildPlan) (Outcome, error) {
	logger := e.logger().With(zap.Uint64("proposal_id", proposalID), zap.String("commit", bp.Commit))
	out := Outcome{Strategy: StrategyNone, LogPath: filepath.Join(e.OutputDir, config.BuildLogName)}

	if err := e.FS.MkdirAll(e.OutputDir, 0o755); err != nil {
		return out, errors.Wrap(errors.EInternal, "failed to create output directory", err)
	}
	logFile, err := e.FS.Create(out.LogPath)
	if err != nil {
		return out, errors.Wrap(errors.EInternal, "failed to open build log", err)
	}
	defer func() { _ = logFile.Close() }()
	log := &syncWriter{w: logFile}

	dir := filepath.Join(e.WorkDir, "proposal-"+strconv.FormatUint(proposalID, 10))
	if err := fs.ResetDir(e.FS, dir, e.WorkDir); err != nil {
		return out, errors.WrapWithDetails(errors.EInternal, "failed to reset checkout directory", err,
			map[string]string{"dir": dir})
	}

	start := e.now()
	fmt.Fprintf(log, "# checkout %s @ %s\n", bp.RepoURL, bp.Commit)
	if err := e.Checkout.Checkout(ctx, bp.RepoURL, bp.Commit, dir); err != nil {
		fmt.Fprintf(log, "# checkout failed: %v\n", err)
		return out, err
	}
	e.Events.Emit(events.CheckoutFinished, events.CheckoutFinishedData(bp.Commit, dir, e.since(start)))
	logger.Info("checkout finished", zap.String("dir", dir))

	env := map[string]string{}
	if e.Config.DisableBuildKit {
		changed, err := DisableBuildKit(e.FS, dir)
		if err != nil {
			logger.Warn("buildkit normalization incomplete", zap.Error(err))
		}
		for _, p := range changed {
			logger.Debug("disabled buildkit", zap.String("script", p))
		}
		env["DOCKER_BUILDKIT"] = "0"
	}

	var acct *Account
	if e.Deescalator != nil {
		owned := append([]string{dir}, e.Config.CacheDirs...)
		acct, err = e.Deescalator.Prepare(ctx, e.Config.BuildUser, owned)
		if err != nil {
			return out, err
		}
		for k, v := range acct.Env() {
			env[k] = v
		}
	}
	opts := exec.RunOpts{Dir: dir, Env: env, Stdout: log, Stderr: log, NoCapture: true, Credential: acct.Credential()}

	if src, target, ok := e.targeted(ctx, logger, bp, dir, opts, log); ok {
		out.Strategy, out.SourcePath, out.Target = StrategyTargeted, src, target
	} else {
		src, err := e.full(ctx, logger, bp, dir, opts, log)
		if err != nil {
			return out, withLog(err, out.LogPath)
		}
		out.Strategy, out.SourcePath = StrategyFull, src
	}

	dest := filepath.Join(e.OutputDir, config.ArtifactBaseName+plan.ExtOf(filepath.Base(out.SourcePath)))
	if err := fs.CopyFile(e.FS, out.SourcePath, dest, 0o644); err != nil {
		out.Strategy = StrategyNone
		return out, errors.WrapWithDetails(errors.EInternal, "failed to copy artifact", err,
			map[string]string{"artifact": out.SourcePath})
	}
	out.ArtifactPath = dest

	e.Events.Emit(events.ArtifactLocated, events.ArtifactLocatedData(string(out.Strategy), out.SourcePath, dest))
	logger.Info("artifact located",
		zap.String("strategy", string(out.Strategy)),
		zap.String("artifact", out.SourcePath),
	)
	return out, nil
}

// targeted attempts the narrow build once. Any failure falls back.
func (e *Executor) targeted(ctx context.Context, logger *zap.Logger, bp plan.BuildPlan, dir string, opts exec.RunOpts, log io.Writer) (string, string, bool) {
	name := bp.ArtifactName()
	if bp.Profile != repo.ProfileLargeMonorepo || e.Config.SkipTargeted || name == "" {
		return "", "", false
	}
	label, ok := FindTarget(e.FS, dir, name)
	if !ok {
		logger.Info("no targeted mapping; skipping to full build", zap.String("artifact", name))
		return "", "", false
	}
	target := label.String()
	logger = logger.With(zap.String("strategy", string(StrategyTargeted)), zap.String("target", target))
	e.Events.Emit(events.TargetedStarted, events.TargetedStartedData(target))

	fmt.Fprintf(log, "$ %s build %s\n", e.Config.TargetedTool, target)
	res, err := e.Runner.Run(ctx, e.Config.TargetedTool, []string{"build", target}, opts)
	if err != nil || res.ExitCode != 0 {
		reason := fmt.Sprintf("exit %d", res.ExitCode)
		if err != nil {
			reason = err.Error()
		}
		e.Events.Emit(events.TargetedFinished, events.TargetedFinishedData(false, target, res.ExitCode, reason))
		logger.Warn("targeted build failed; falling back to full build",
			zap.Int("exit_code", res.ExitCode), zap.String("reason", reason))
		return "", "", false
	}

	src, err := locate.FromTargeted(e.FS, filepath.Join(dir, "bazel-bin"), label, name)
	if err != nil {
		e.Events.Emit(events.TargetedFinished, events.TargetedFinishedData(false, target, 0, err.Error()))
		logger.Warn("targeted build produced no artifact; falling back to full build", zap.Error(err))
		return "", "", false
	}
	e.Events.Emit(events.TargetedFinished, events.TargetedFinishedData(true, target, 0, ""))
	logger.Info("targeted build succeeded")
	return src, target, true
}

// full runs every plan command in order and locates the artifact.
func (e *Executor) full(ctx context.Context, logger *zap.Logger, bp plan.BuildPlan, dir string, opts exec.RunOpts, log io.Writer) (string, error) {
	logger = logger.With(zap.String("strategy", string(StrategyFull)))
	var failed []string

	for i, step := range Steps(bp.Commands, e.Config.TolerantFailures) {
		start := e.now()
		fmt.Fprintf(log, "$ %s\n", step.Command)
		res, err := e.Runner.Run(ctx, "bash", []string{"-c", step.Command}, opts)
		exitCode := res.ExitCode
		fatal := step.Policy == PolicyFatal
		e.Events.Emit(events.FullCommandFinished,
			events.FullCommandFinishedData(i, step.Command, exitCode, fatal, e.since(start)))

		if err != nil {
			return "", errors.WrapWithDetails(errors.EFullBuildFailed, "build command did not complete", err,
				map[string]string{"command": step.Command})
		}
		if exitCode == 0 {
			logger.Debug("build command finished", zap.Int("index", i), zap.String("command", step.Command))
			continue
		}
		if fatal {
			logger.Error("fatal build command failed",
				zap.String("command", step.Command), zap.Int("exit_code", exitCode))
			return "", errors.NewWithDetails(errors.EFullBuildFailed, "build command failed",
				map[string]string{"command": step.Command, "exit_code": strconv.Itoa(exitCode)})
		}
		logger.Warn("build command exited non-zero; continuing",
			zap.String("command", step.Command), zap.Int("exit_code", exitCode))
		failed = append(failed, step.Command)
	}

	src, err := locate.FromFull(e.FS, dir, bp.ArtifactPath, bp.ArtifactExt())
	if err != nil {
		if len(failed) > 0 {
			return "", errors.WrapWithDetails(errors.EFullBuildFailed,
				"no artifact after build commands failed", err,
				map[string]string{"command": strings.Join(failed, "; "), "artifact": bp.ArtifactPath})
		}
		return "", err
	}
	return src, nil
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Executor) since(t time.Time) int64 {
	return e.now().Sub(t).Milliseconds()
}

// withLog attaches the build log path so error output can tail it.
func withLog(err error, logPath string) error {
	ve, ok := errors.AsVerifyError(err)
	if !ok {
		return err
	}
	details := map[string]string{"log": logPath}
	for k, v := range ve.Details {
		details[k] = v
	}
	return errors.WrapWithDetails(ve.Code, ve.Msg, ve.Cause, details)
}

// syncWriter serializes writes from the stdout and stderr copiers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
