package domain

import "time"

// ContentIntegrity is the outcome of comparing a freshly recomputed
// payload hash against the hash stored at generation time.
type ContentIntegrity string

const (
	IntegrityMatch    ContentIntegrity = "match"
	IntegrityMismatch ContentIntegrity = "mismatch"
)

// SignatureCheck is the verification outcome for one stored signature.
// Verified covers the signature commitment only; a tampered payload does
// not invalidate signatures and vice versa.
type SignatureCheck struct {
	SignatureID string
	Role        SignatureRole
	SignerName  string
	Verified    bool
	Revoked     bool
}

// VerificationResult is the structured outcome of verifying a report run.
// It is never collapsed to a boolean: content drift, a tampered
// signature, and a missing approver are distinct, reportable findings.
type VerificationResult struct {
	RunID            string
	PacketType       PacketType
	BuilderVersion   string
	ContentIntegrity ContentIntegrity
	StoredHash       string
	ComputedHash     string
	Signatures       []SignatureCheck
	RequiredRoles    []SignatureRole
	MissingRoles     []SignatureRole
	IsComplete       bool
	CheckedAt        time.Time
}
