// Package pipeline runs the per-proposal verification stages in order:
// fetch, preflight, resolve, build, verify, persist. Each stage is also
// exposed on its own so a CI workflow can split them across hosts and hand
// data over through the fixed files in the output directory.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/NielsdaWheelz/wasmverify/internal/build"
	"github.com/NielsdaWheelz/wasmverify/internal/config"
	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/events"
	"github.com/NielsdaWheelz/wasmverify/internal/exec"
	"github.com/NielsdaWheelz/wasmverify/internal/fs"
	"github.com/NielsdaWheelz/wasmverify/internal/logging"
	"github.com/NielsdaWheelz/wasmverify/internal/plan"
	"github.com/NielsdaWheelz/wasmverify/internal/proposal"
	"github.com/NielsdaWheelz/wasmverify/internal/state"
	"github.com/NielsdaWheelz/wasmverify/internal/verify"
)

// ProposalSource fetches proposals from governance.
type ProposalSource interface {
	Fetch(ctx context.Context, id uint64) (proposal.Payload, error)
	List(ctx context.Context, limit int) ([]proposal.GovernanceProposal, error)
}

// ThreadFinder looks up a discussion thread for a proposal.
type ThreadFinder interface {
	Search(ctx context.Context, proposalID uint64) (string, error)
}

// PlanResolver turns proposal text into a BuildPlan.
type PlanResolver interface {
	Resolve(ctx context.Context, in plan.Input) (plan.BuildPlan, error)
}

// Pipeline wires the stages together. Every collaborator is explicit.
type Pipeline struct {
	Config      config.Config
	FS          afero.Fs
	Runner      exec.CommandRunner
	Proposals   ProposalSource
	Forum       ThreadFinder // nil disables the lookup
	Resolver    PlanResolver
	Checkout    build.Checkouter
	Deescalator *build.Deescalator
	Encoder     verify.Encoder
	State       *state.Store
	Logger      *zap.Logger
	Now         func() time.Time
	NewRunID    func() string
}

// Report is what one run produced, successful or not.
type Report struct {
	RunID    string
	Payload  proposal.Payload
	Plan     plan.BuildPlan
	Outcome  build.Outcome
	Result   verify.Result
	ForumURL string
	// Skipped holds the preflight early exit, if any.
	Skipped error
}

// ReportInput returns the inputs for verify.Markdown.
func (r Report) ReportInput() verify.ReportInput {
	return verify.ReportInput{
		Result:   r.Result,
		Title:    r.Payload.Title,
		Commit:   r.Plan.Commit,
		RepoURL:  r.Plan.RepoURL,
		Strategy: string(r.Outcome.Strategy),
		ForumURL: r.ForumURL,
	}
}

// Run executes every stage for one proposal. A preflight early exit returns
// a Report with Skipped set and a nil error. Any other failure is recorded
// as a terminal error entry in the state store before being returned; a
// completed verification that is not verified is returned as the Result's
// error so callers exit non-zero.
func (p *Pipeline) Run(ctx context.Context, id uint64) (Report, error) {
	start := p.now()
	rep := Report{RunID: p.runID()}
	logger := p.logger().With(zap.Uint64("proposal_id", id), zap.String("run_id", rep.RunID))
	rec := p.recorder(id, rep.RunID)
	rec.Emit(events.RunStarted, events.RunStartedData("run"))

	err := withRunDetails(p.run(ctx, logger, rec, id, &rep), id, rep.RunID)
	status, code := string(rep.Result.Status), ""
	switch {
	case rep.Skipped != nil:
		status = "skipped"
	case err != nil:
		status, code = string(state.StatusError), string(errors.GetCode(err))
		p.recordFailure(logger, id, rep, err)
		logger.Error("run failed", zap.Error(err))
	}
	rec.Emit(events.RunFinished, events.RunFinishedData(status, p.now().Sub(start).Milliseconds(), code))
	if err != nil || rep.Skipped != nil {
		return rep, err
	}
	return rep, rep.Result.AsError()
}

func (p *Pipeline) run(ctx context.Context, logger *zap.Logger, rec *events.Recorder, id uint64, rep *Report) error {
	payload, err := p.Proposals.Fetch(ctx, id)
	if err != nil {
		return err
	}
	rep.Payload = payload
	if err := payload.Preflight(); err != nil {
		rep.Skipped = err
		logger.Info("proposal skipped", zap.String("reason", string(errors.GetCode(err))))
		return nil
	}

	if _, err := p.State.Upsert(id, state.Patch{
		Status:               state.Ptr(state.StatusPending),
		RunID:                state.Ptr(rep.RunID),
		Title:                state.Ptr(payload.Title),
		ExpectedArtifactHash: state.Ptr(payload.ExpectedArtifactHash),
		ExpectedArgHash:      state.Ptr(payload.ExpectedArgHash),
	}); err != nil {
		return err
	}

	rep.ForumURL = p.lookupThread(ctx, logger, id)

	bp, err := p.resolve(ctx, logger, rec, payload)
	if err != nil {
		return err
	}
	rep.Plan = bp

	out, err := p.executor(rec).Execute(ctx, id, bp)
	rep.Outcome = out
	if err != nil {
		return err
	}

	rep.Result = p.verify(ctx, rec, payload, bp, out.ArtifactPath, rep.RunID)
	return p.recordResult(rep.Result, payload.Title)
}

// Resolve fetches the proposal, checks its preconditions and writes
// proposal.json and plan.json to the output directory.
func (p *Pipeline) Resolve(ctx context.Context, id uint64) (proposal.Payload, plan.BuildPlan, error) {
	logger := p.logger().With(zap.Uint64("proposal_id", id))
	payload, err := p.Proposals.Fetch(ctx, id)
	if err != nil {
		return proposal.Payload{}, plan.BuildPlan{}, err
	}
	if err := payload.Preflight(); err != nil {
		return payload, plan.BuildPlan{}, err
	}
	bp, err := p.resolve(ctx, logger, p.recorder(id, ""), payload)
	return payload, bp, err
}

// Build reads plan.json and runs the executor, writing outcome.json. The
// artifact ends up at the fixed location under the output directory.
func (p *Pipeline) Build(ctx context.Context, id uint64) (build.Outcome, error) {
	bp, err := plan.ReadFile(p.FS, p.Config.PlanPath())
	if err != nil {
		return build.Outcome{}, err
	}
	runID := p.runID()
	rec := p.recorder(id, runID)
	out, err := p.executor(rec).Execute(ctx, id, bp)
	if werr := fs.WriteJSONAtomic(p.FS, p.Config.OutcomePath(), out, 0o644); werr != nil && err == nil {
		err = errors.Wrap(errors.EPersistFailed, "failed to write "+config.OutcomeFileName, werr)
	}
	return out, err
}

// Verify reads proposal.json, plan.json and the artifact from the output
// directory, compares hashes and records the verdict in the state store.
func (p *Pipeline) Verify(ctx context.Context) (Report, error) {
	payload, err := proposal.ReadPayloadFile(p.FS, p.Config.ProposalPath())
	if err != nil {
		return Report{}, err
	}
	bp, err := plan.ReadFile(p.FS, p.Config.PlanPath())
	if err != nil {
		return Report{}, err
	}
	rep := Report{RunID: p.runID(), Payload: payload, Plan: bp}
	var out build.Outcome
	if ferr := fs.ReadJSON(p.FS, p.Config.OutcomePath(), &out); ferr == nil {
		rep.Outcome = out
	}

	artifact := filepath.Join(p.Config.OutputDir, config.ArtifactBaseName+bp.ArtifactExt())
	if out.ArtifactPath != "" {
		artifact = out.ArtifactPath
	}
	rec := p.recorder(payload.ProposalID, rep.RunID)
	rep.Result = p.verify(ctx, rec, payload, bp, artifact, rep.RunID)
	if err := p.recordResult(rep.Result, payload.Title); err != nil {
		return rep, err
	}
	return rep, rep.Result.AsError()
}

func (p *Pipeline) resolve(ctx context.Context, logger *zap.Logger, rec *events.Recorder, payload proposal.Payload) (plan.BuildPlan, error) {
	bp, err := p.Resolver.Resolve(ctx, plan.Input{
		Title:     payload.Title,
		Summary:   payload.Summary,
		SourceURL: payload.URL,
		Commit:    payload.Commit,
	})
	if err != nil {
		return plan.BuildPlan{}, err
	}
	if err := plan.WriteFile(p.FS, p.Config.PlanPath(), bp); err != nil {
		return bp, err
	}
	if err := proposal.WritePayloadFile(p.FS, p.Config.ProposalPath(), payload); err != nil {
		return bp, err
	}
	rec.Emit(events.PlanResolved, events.PlanResolvedData(bp.RepoURL, string(bp.Profile), len(bp.Commands), bp.ArtifactPath))
	logging.Stage(logger, "resolve").Info("build plan resolved",
		zap.String("repo", bp.RepoURL),
		zap.String("profile", string(bp.Profile)),
		zap.Int("commands", len(bp.Commands)),
	)
	return bp, nil
}

func (p *Pipeline) verify(ctx context.Context, rec *events.Recorder, payload proposal.Payload, bp plan.BuildPlan, artifact, runID string) verify.Result {
	v := &verify.Verifier{FS: p.FS, Encoder: p.Encoder, Logger: logging.Stage(p.logger(), "verify")}
	r := v.Verify(ctx, verify.Input{
		Payload:      payload,
		Plan:         bp,
		ArtifactPath: artifact,
		RunID:        runID,
		SourceDir:    p.Config.CheckoutDir(payload.ProposalID),
	})
	rec.Emit(events.VerifyFinished, events.VerifyFinishedData(string(r.Status), r.HashMatch, r.ArgHashMatch, r.ActualHash))
	return r
}

func (p *Pipeline) executor(rec *events.Recorder) *build.Executor {
	return &build.Executor{
		Runner:      p.Runner,
		FS:          p.FS,
		Checkout:    p.Checkout,
		Deescalator: p.Deescalator,
		Config:      p.Config.Build,
		WorkDir:     p.Config.WorkDir,
		OutputDir:   p.Config.OutputDir,
		Logger:      logging.Stage(p.logger(), "build"),
		Events:      rec,
		Now:         p.Now,
	}
}

func (p *Pipeline) lookupThread(ctx context.Context, logger *zap.Logger, id uint64) string {
	if p.Forum == nil {
		return ""
	}
	u, err := p.Forum.Search(ctx, id)
	if err != nil {
		logger.Warn("forum lookup failed", zap.Error(err))
		return ""
	}
	return u
}

// recordResult writes a completed verification as a terminal entry.
func (p *Pipeline) recordResult(r verify.Result, title string) error {
	patch := state.Patch{
		Status:               state.Ptr(state.Status(r.Status)),
		RunID:                state.Ptr(r.RunID),
		HashMatch:            state.Ptr(r.HashMatch),
		ArgHashMatch:         state.Ptr(r.ArgHashMatch),
		ArtifactHash:         state.Ptr(r.ActualHash),
		ExpectedArtifactHash: state.Ptr(r.ExpectedHash),
		ArgHash:              state.Ptr(r.ActualArgHash),
		ExpectedArgHash:      state.Ptr(r.ExpectedArgHash),
		Error:                state.Ptr(r.Error),
	}
	if title != "" {
		patch.Title = state.Ptr(title)
	}
	_, err := p.State.Upsert(r.ProposalID, patch)
	return err
}

// recordFailure marks the proposal as error. A persistence failure here is
// only logged; the original error is what the caller reports.
func (p *Pipeline) recordFailure(logger *zap.Logger, id uint64, rep Report, cause error) {
	patch := state.Patch{
		Status: state.Ptr(state.StatusError),
		RunID:  state.Ptr(rep.RunID),
		Error:  state.Ptr(cause.Error()),
	}
	if rep.Payload.Title != "" {
		patch.Title = state.Ptr(rep.Payload.Title)
	}
	if _, err := p.State.Upsert(id, patch); err != nil {
		logger.Error("failed to record error state", zap.Error(err))
	}
}

// withRunDetails adds proposal_id and run_id to a VerifyError so the
// printed error can suggest the stage command to rerun.
func withRunDetails(err error, id uint64, runID string) error {
	ve, ok := errors.AsVerifyError(err)
	if !ok {
		return err
	}
	details := map[string]string{"proposal_id": state.Key(id), "run_id": runID}
	for k, v := range ve.Details {
		details[k] = v
	}
	return errors.WrapWithDetails(ve.Code, ve.Msg, ve.Cause, details)
}

func (p *Pipeline) recorder(id uint64, runID string) *events.Recorder {
	rec := events.NewRecorder(p.Config.EventsPath(), id, runID)
	if p.Now != nil {
		rec.Now = p.Now
	}
	return rec
}

func (p *Pipeline) runID() string {
	if p.NewRunID != nil {
		return p.NewRunID()
	}
	return uuid.NewString()
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
