package verify

// ArgCheck is the argument-hash part of a verification.
type ArgCheck struct {
	// Applicable is true when the proposal declares an expected argument hash.
	Applicable bool
	Match      bool
}

// DeriveStatus computes the overall verdict.
//
// Precedence order:
//  1. artifact comparison is error (no expected hash) => error
//  2. else artifact mismatch => failed
//  3. else argument hash applicable and not matched => failed
//  4. else => verified
func DeriveStatus(artifact Comparison, arg ArgCheck) Status {
	if artifact.Status == StatusError {
		return StatusError
	}
	if !artifact.Match {
		return StatusFailed
	}
	if arg.Applicable && !arg.Match {
		return StatusFailed
	}
	return StatusVerified
}

// DeriveSummary returns the one-line verdict shown in reports.
func DeriveSummary(r Result) string {
	switch {
	case r.Status == StatusVerified && r.ArgHashApplicable:
		return "wasm and upgrade argument hashes match the proposal"
	case r.Status == StatusVerified:
		return "wasm hash matches the proposal"
	case r.Status == StatusError && r.Error != "":
		return r.Error
	case !r.HashMatch:
		return "wasm hash does not match the proposal"
	case r.Error != "":
		return r.Error
	case r.ArgHashApplicable && !r.ArgHashMatch:
		return "upgrade argument hash does not match the proposal"
	}
	return "verification failed"
}
