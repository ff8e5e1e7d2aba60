package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/NielsdaWheelz/wasmverify/internal/build"
	"github.com/NielsdaWheelz/wasmverify/internal/config"
	verrors "github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/exec"
	"github.com/NielsdaWheelz/wasmverify/internal/plan"
	"github.com/NielsdaWheelz/wasmverify/internal/proposal"
	"github.com/NielsdaWheelz/wasmverify/internal/repo"
	"github.com/NielsdaWheelz/wasmverify/internal/state"
	"github.com/NielsdaWheelz/wasmverify/internal/testutil"
)

const (
	testCommit   = "9f1c2d3e4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d"
	artifactBody = "\x00asm wasm bytes"
)

func artifactHash() string {
	sum := sha256.Sum256([]byte(artifactBody))
	return hex.EncodeToString(sum[:])
}

type fakeSource struct {
	payloads map[uint64]proposal.Payload
	list     []proposal.GovernanceProposal
	err      error
}

func (f *fakeSource) Fetch(_ context.Context, id uint64) (proposal.Payload, error) {
	if f.err != nil {
		return proposal.Payload{}, f.err
	}
	return f.payloads[id], nil
}

func (f *fakeSource) List(context.Context, int) ([]proposal.GovernanceProposal, error) {
	return f.list, f.err
}

type fakeResolver struct {
	bp  plan.BuildPlan
	err error
}

func (f fakeResolver) Resolve(_ context.Context, in plan.Input) (plan.BuildPlan, error) {
	if f.err != nil {
		return plan.BuildPlan{}, f.err
	}
	bp := f.bp
	bp.Commit = in.Commit
	return bp, nil
}

type fakeForum struct {
	url string
	err error
}

func (f fakeForum) Search(context.Context, uint64) (string, error) { return f.url, f.err }

type noopCheckout struct{}

func (noopCheckout) Checkout(context.Context, string, string, string) error { return nil }

// builderRunner emulates a build command that writes the artifact.
func builderRunner() *testutil.FakeRunner {
	return &testutil.FakeRunner{Handler: func(c testutil.Call) (exec.CmdResult, error) {
		if c.Name == "bash" {
			p := filepath.Join(c.Opts.Dir, "out", "app.wasm.gz")
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return exec.CmdResult{}, err
			}
			if err := os.WriteFile(p, []byte(artifactBody), 0o644); err != nil {
				return exec.CmdResult{}, err
			}
		}
		return exec.CmdResult{}, nil
	}}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.WorkDir = filepath.Join(root, "work")
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.StateFile = filepath.Join(root, "state.json")
	cfg.EventsFile = filepath.Join(root, "events.jsonl")
	cfg.Build.TolerantFailures = true
	return cfg
}

func codeInstall(expected, expectedArg string) proposal.Payload {
	return proposal.Payload{
		ProposalID:           134567,
		Title:                "Upgrade the ledger canister",
		Summary:              "Build at commit " + testCommit,
		URL:                  "https://github.com/example/ledger",
		Topic:                17,
		Action:               proposal.ActionInstallCode,
		Commit:               testCommit,
		ExpectedArtifactHash: expected,
		ExpectedArgHash:      expectedArg,
	}
}

func newPipeline(t *testing.T, payload proposal.Payload, bp plan.BuildPlan) *Pipeline {
	t.Helper()
	cfg := testConfig(t)
	fsys := afero.NewOsFs()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Pipeline{
		Config:    cfg,
		FS:        fsys,
		Runner:    builderRunner(),
		Proposals: &fakeSource{payloads: map[uint64]proposal.Payload{payload.ProposalID: payload}},
		Forum:     fakeForum{url: "https://forum.example/t/ledger/42"},
		Resolver:  fakeResolver{bp: bp},
		Checkout:  noopCheckout{},
		State:     state.NewStore(fsys, cfg.StateFile, func() time.Time { return fixed }),
		Now:       func() time.Time { return fixed },
		NewRunID:  func() string { return "run-1" },
	}
}

func standalonePlan() plan.BuildPlan {
	return plan.BuildPlan{
		RepoURL:      "https://github.com/example/ledger",
		Profile:      repo.ProfileStandalone,
		Commands:     []string{"./scripts/build.sh"},
		ArtifactPath: "out/app.wasm.gz",
	}
}

func TestRun_VerifiedCaseInsensitive(t *testing.T) {
	p := newPipeline(t, codeInstall(strings.ToUpper(artifactHash()), ""), standalonePlan())

	rep, err := p.Run(context.Background(), 134567)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Result.Status != "verified" {
		t.Fatalf("Status = %q, want verified", rep.Result.Status)
	}
	if rep.Outcome.Strategy != build.StrategyFull {
		t.Errorf("Strategy = %q", rep.Outcome.Strategy)
	}
	if rep.ForumURL != "https://forum.example/t/ledger/42" {
		t.Errorf("ForumURL = %q", rep.ForumURL)
	}
	if verrors.ExitCode(err) != 0 {
		t.Errorf("exit code = %d", verrors.ExitCode(err))
	}

	e, ok := p.State.Get(134567)
	if !ok {
		t.Fatal("state entry missing")
	}
	if e.Status != state.StatusVerified || !e.HashMatch || e.ArtifactHash != artifactHash() || e.RunID != "run-1" {
		t.Errorf("entry = %+v", e)
	}
	if e.Title != "Upgrade the ledger canister" {
		t.Errorf("Title = %q", e.Title)
	}

	// fixed-path artifacts for the verify CLI
	for _, path := range []string{p.Config.ProposalPath(), p.Config.PlanPath(), filepath.Join(p.Config.OutputDir, "artifact.wasm.gz")} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s: %v", path, err)
		}
	}

	evts, err := os.ReadFile(p.Config.EventsFile)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{`"run_started"`, `"plan_resolved"`, `"artifact_located"`, `"verify_finished"`, `"run_finished"`} {
		if !strings.Contains(string(evts), name) {
			t.Errorf("events missing %s", name)
		}
	}
}

func TestRun_Mismatch(t *testing.T) {
	p := newPipeline(t, codeInstall(strings.Repeat("ab", 32), ""), standalonePlan())

	rep, err := p.Run(context.Background(), 134567)
	if verrors.GetCode(err) != verrors.EHashMismatch {
		t.Fatalf("error code = %q, want %q", verrors.GetCode(err), verrors.EHashMismatch)
	}
	if verrors.ExitCode(err) != 1 {
		t.Errorf("exit code = %d, want 1", verrors.ExitCode(err))
	}
	if rep.Result.Status != "failed" {
		t.Errorf("Status = %q", rep.Result.Status)
	}
	if e, _ := p.State.Get(134567); e.Status != state.StatusFailed || e.HashMatch {
		t.Errorf("entry = %+v", e)
	}
}

func TestRun_ArgHashWithoutLiteralFails(t *testing.T) {
	p := newPipeline(t, codeInstall(artifactHash(), "e3b0c44298fc1c149afbf4c8996fb924"), standalonePlan())

	rep, err := p.Run(context.Background(), 134567)
	if err == nil {
		t.Fatal("expected failure")
	}
	if rep.Result.Status != "failed" || !rep.Result.HashMatch || rep.Result.ArgHashMatch {
		t.Errorf("Result = %+v", rep.Result)
	}
	if e, _ := p.State.Get(134567); e.Status != state.StatusFailed || !e.HashMatch || e.ArgHashMatch {
		t.Errorf("entry = %+v", e)
	}
}

func TestRun_PreflightEarlyExit(t *testing.T) {
	payload := codeInstall(artifactHash(), "")
	payload.Action = "Motion"
	p := newPipeline(t, payload, standalonePlan())

	rep, err := p.Run(context.Background(), 134567)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil for early exit", err)
	}
	if verrors.GetCode(rep.Skipped) != verrors.ENotCodeInstall {
		t.Errorf("Skipped = %v", rep.Skipped)
	}
	if _, ok := p.State.Get(134567); ok {
		t.Error("skipped proposal should not be recorded")
	}
	if calls := p.Runner.(*testutil.FakeRunner).Calls(); len(calls) != 0 {
		t.Errorf("no commands expected, got %v", calls)
	}
}

func TestRun_FatalErrorRecordedAsError(t *testing.T) {
	p := newPipeline(t, codeInstall(artifactHash(), ""), standalonePlan())
	p.Resolver = fakeResolver{err: verrors.New(verrors.EMalformedExtraction, "build_commands missing")}

	_, err := p.Run(context.Background(), 134567)
	if verrors.GetCode(err) != verrors.EMalformedExtraction {
		t.Fatalf("error = %v", err)
	}
	if ve, _ := verrors.AsVerifyError(err); ve.Details["proposal_id"] != "134567" || ve.Details["run_id"] != "run-1" {
		t.Errorf("details = %v", ve.Details)
	}
	e, ok := p.State.Get(134567)
	if !ok || e.Status != state.StatusError {
		t.Fatalf("entry = %+v, ok = %v", e, ok)
	}
	if !strings.Contains(e.Error, "build_commands missing") {
		t.Errorf("Error = %q", e.Error)
	}
	if e.ExpectedArtifactHash != artifactHash() {
		t.Errorf("pending fields lost: %+v", e)
	}
}

func TestRun_ForumFailureIsNonFatal(t *testing.T) {
	p := newPipeline(t, codeInstall(artifactHash(), ""), standalonePlan())
	p.Forum = fakeForum{err: errors.New("forum down")}

	rep, err := p.Run(context.Background(), 134567)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.ForumURL != "" {
		t.Errorf("ForumURL = %q", rep.ForumURL)
	}
}

func TestRun_NoArtifact(t *testing.T) {
	p := newPipeline(t, codeInstall(artifactHash(), ""), standalonePlan())
	p.Runner = &testutil.FakeRunner{}

	_, err := p.Run(context.Background(), 134567)
	if verrors.GetCode(err) != verrors.EArtifactNotFound {
		t.Fatalf("error = %v", err)
	}
	if e, _ := p.State.Get(134567); e.Status != state.StatusError {
		t.Errorf("entry = %+v", e)
	}
}

func TestStages_ResolveBuildVerify(t *testing.T) {
	p := newPipeline(t, codeInstall(artifactHash(), ""), standalonePlan())
	ctx := context.Background()

	payload, bp, err := p.Resolve(ctx, 134567)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if bp.Commit != testCommit || payload.ProposalID != 134567 {
		t.Errorf("Resolve() = %+v, %+v", payload, bp)
	}

	out, err := p.Build(ctx, 134567)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, err := os.Stat(p.Config.OutcomePath()); err != nil {
		t.Errorf("outcome.json: %v", err)
	}
	if out.ArtifactPath == "" {
		t.Error("ArtifactPath empty")
	}

	rep, err := p.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if rep.Result.Status != "verified" || rep.Outcome.Strategy != build.StrategyFull {
		t.Errorf("Verify() = %+v", rep)
	}
	if e, _ := p.State.Get(134567); e.Status != state.StatusVerified {
		t.Errorf("entry = %+v", e)
	}
}

func TestVerify_MissingInputs(t *testing.T) {
	p := newPipeline(t, codeInstall(artifactHash(), ""), standalonePlan())

	_, err := p.Verify(context.Background())
	if verrors.GetCode(err) != verrors.EPayloadInvalid {
		t.Errorf("error = %v, want %s", err, verrors.EPayloadInvalid)
	}
}

func TestMonitor(t *testing.T) {
	p := newPipeline(t, codeInstall(artifactHash(), ""), standalonePlan())
	p.Config.Monitor.Topics = []int{17}
	p.Config.Monitor.MinProposalID = 100
	p.Proposals = &fakeSource{list: []proposal.GovernanceProposal{
		{ProposalID: 90, Title: "too old", Topic: []byte(`17`)},
		{ProposalID: 101, Title: "already seen", Topic: []byte(`17`)},
		{ProposalID: 102, Title: "other topic", Topic: []byte(`5`)},
		{ProposalID: 103, Title: "new upgrade", Topic: []byte(`"TOPIC_PROTOCOL_CANISTER_MANAGEMENT"`)},
		{ProposalID: 104, Title: "another upgrade", Topic: []byte(`17`)},
	}}
	if _, err := p.State.Upsert(101, state.Patch{Status: state.Ptr(state.StatusVerified)}); err != nil {
		t.Fatal(err)
	}

	ids, err := p.Monitor(context.Background())
	if err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 103 || ids[1] != 104 {
		t.Fatalf("Monitor() = %v, want [103 104]", ids)
	}

	d := p.State.Load()
	if d.LastCheckedTimestamp == 0 {
		t.Error("lastCheckedTimestamp not updated")
	}
	if e := d.Proposals["103"]; e.Status != state.StatusPending || e.Title != "new upgrade" {
		t.Errorf("entry 103 = %+v", e)
	}
	if e := d.Proposals["101"]; e.Status != state.StatusVerified {
		t.Errorf("existing entry changed: %+v", e)
	}

	// a second pass selects nothing
	again, err := p.Monitor(context.Background())
	if err != nil || len(again) != 0 {
		t.Errorf("second Monitor() = %v, %v", again, err)
	}
}

func TestDoctor(t *testing.T) {
	runner := &testutil.FakeRunner{Handler: func(c testutil.Call) (exec.CmdResult, error) {
		switch c.Name {
		case "bazel":
			return exec.CmdResult{ExitCode: -1}, errors.New("not found")
		case "bash":
			return exec.CmdResult{Stdout: "GNU bash, version 5.2.21\nCopyright"}, nil
		}
		return exec.CmdResult{Stdout: c.Name + " 1.0\n"}, nil
	}}

	r, err := Doctor(context.Background(), runner, config.Default(), false)
	if err != nil {
		t.Fatalf("Doctor() error = %v", err)
	}
	var b strings.Builder
	WriteDoctorReport(&b, r)
	out := b.String()
	for _, want := range []string{"bash_version: GNU bash, version 5.2.21\n", "bazel_version: missing\n", "didc_version: didc 1.0\n", "superuser: false\n", "status: ok\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDoctor_MissingBash(t *testing.T) {
	runner := &testutil.FakeRunner{Handler: func(c testutil.Call) (exec.CmdResult, error) {
		if c.Name == "bash" {
			return exec.CmdResult{ExitCode: -1}, errors.New("not found")
		}
		return exec.CmdResult{Stdout: "ok"}, nil
	}}
	_, err := Doctor(context.Background(), runner, config.Default(), true)
	if verrors.GetCode(err) != verrors.EToolNotInstalled {
		t.Errorf("error = %v", err)
	}
}
