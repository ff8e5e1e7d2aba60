package verify

import (
	"context"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/plan"
	"github.com/NielsdaWheelz/wasmverify/internal/proposal"
)

// Result is the outcome of verifying one proposal in one run.
// Verified requires HashMatch and, when ArgHashApplicable, ArgHashMatch.
type Result struct {
	ProposalID        uint64 `json:"proposal_id"`
	RunID             string `json:"run_id"`
	Status            Status `json:"status"`
	HashMatch         bool   `json:"hash_match"`
	ActualHash        string `json:"actual_hash,omitempty"`
	ExpectedHash      string `json:"expected_hash,omitempty"`
	ArgHashApplicable bool   `json:"arg_hash_applicable"`
	ArgHashMatch      bool   `json:"arg_hash_match"`
	ActualArgHash     string `json:"actual_arg_hash,omitempty"`
	ExpectedArgHash   string `json:"expected_arg_hash,omitempty"`
	Error             string `json:"error,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
}

// Input is everything the verifier reads.
type Input struct {
	Payload      proposal.Payload
	Plan         plan.BuildPlan
	ArtifactPath string
	RunID        string
	// SourceDir resolves a relative argument schema path; may be empty.
	SourceDir string
}

// Verifier compares artifacts against proposal hashes.
type Verifier struct {
	FS      afero.Fs
	Encoder Encoder
	Logger  *zap.Logger
}

// Verify never returns an error: every problem becomes a non-verified Result.
func (v *Verifier) Verify(ctx context.Context, in Input) Result {
	logger := v.logger().With(zap.Uint64("proposal_id", in.Payload.ProposalID), zap.String("run_id", in.RunID))
	r := Result{
		ProposalID:      in.Payload.ProposalID,
		RunID:           in.RunID,
		ExpectedHash:    in.Payload.ExpectedArtifactHash,
		ExpectedArgHash: in.Payload.ExpectedArgHash,
		ArgHashMatch:    true,
	}

	actual, err := ComputeContentHash(v.FS, in.ArtifactPath)
	if err != nil {
		r.Status = StatusError
		r.HashMatch = false
		r.Error = err.Error()
		r.ErrorCode = string(errors.EArtifactNotFound)
		logger.Error("artifact hash failed", zap.String("artifact", in.ArtifactPath), zap.Error(err))
		return r
	}
	r.ActualHash = actual
	artifact := CompareHashes(actual, in.Payload.ExpectedArtifactHash)
	r.HashMatch = artifact.Match
	if artifact.Status == StatusError {
		r.Error = "proposal declares no expected wasm hash"
		r.ErrorCode = string(errors.EExpectedHashAbsent)
	}

	arg := ArgCheck{Applicable: in.Payload.ExpectedArgHash != ""}
	r.ArgHashApplicable = arg.Applicable
	if arg.Applicable {
		arg.Match = v.verifyArg(ctx, logger, in, &r)
		r.ArgHashMatch = arg.Match
	}

	r.Status = DeriveStatus(artifact, arg)
	if r.Status == StatusFailed && (!r.HashMatch || r.ErrorCode == "") {
		r.ErrorCode = string(errors.EHashMismatch)
	}
	logger.Info("verification finished",
		zap.String("status", string(r.Status)),
		zap.String("hash", r.ActualHash),
		zap.Bool("hash_match", r.HashMatch),
		zap.Bool("arg_hash_match", r.ArgHashMatch),
	)
	return r
}

// verifyArg encodes the extracted literal and compares its digest. A
// declared argument hash with nothing to encode is a mismatch.
func (v *Verifier) verifyArg(ctx context.Context, logger *zap.Logger, in Input, r *Result) bool {
	if !in.Plan.HasUpgradeArg() {
		setErr(r, errors.EHashMismatch, "proposal declares an argument hash but no upgrade argument was extracted")
		logger.Warn("argument hash expected but no literal extracted")
		return false
	}
	if v.Encoder == nil {
		setErr(r, errors.EArgumentEncodingFailed, "no argument encoder configured")
		return false
	}
	encoded, err := v.Encoder.Encode(ctx, Arg{
		Literal:    in.Plan.UpgradeArg,
		SchemaPath: in.Plan.ArgSchemaPath,
		Type:       in.Plan.ArgType,
		Dir:        in.SourceDir,
	})
	if err != nil {
		setErr(r, errors.EArgumentEncodingFailed, "argument encoding failed: "+err.Error())
		logger.Warn("argument encoding failed", zap.Error(err))
		return false
	}
	r.ActualArgHash = HashBytes(encoded)
	return CompareHashes(r.ActualArgHash, in.Payload.ExpectedArgHash).Match
}

func setErr(r *Result, code errors.Code, msg string) {
	if r.Error == "" {
		r.Error = msg
		r.ErrorCode = string(code)
	}
}

func (v *Verifier) logger() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}

// AsError converts a non-verified result into an error carrying the exit
// status: E_EXPECTED_HASH_ABSENT for error verdicts, E_HASH_MISMATCH (or the
// recorded code) otherwise. A verified result yields nil.
func (r Result) AsError() error {
	if r.Status == StatusVerified {
		return nil
	}
	code := errors.Code(r.ErrorCode)
	if code == "" {
		code = errors.EHashMismatch
		if r.Status == StatusError {
			code = errors.EExpectedHashAbsent
		}
	}
	details := map[string]string{"expected": r.ExpectedHash, "actual": r.ActualHash}
	return errors.NewWithDetails(code, DeriveSummary(r), details)
}
