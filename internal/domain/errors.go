package domain

import "errors"

var (
	// ErrUnknownPacketType rejects a packet type outside the closed set.
	ErrUnknownPacketType = errors.New("unknown packet type")

	// ErrAlreadyFinalized rejects a write against a run whose artifact
	// and hash are frozen. Callers must create a new run instead.
	ErrAlreadyFinalized = errors.New("report run already finalized")

	// ErrContentDrift means the source entities changed between run
	// generation and artifact rendering, so the rebuilt payload no
	// longer matches the frozen data_hash. The run stays draft; callers
	// generate a fresh run for the current content.
	ErrContentDrift = errors.New("report content drifted since generation")

	// ErrBuilderVersionUnavailable means a run cannot be verified because
	// the builder version recorded at generation time is absent or no
	// longer supported. Reported distinctly from a hash mismatch so
	// "cannot check" is never mistaken for "tampered".
	ErrBuilderVersionUnavailable = errors.New("builder version unavailable")
)
