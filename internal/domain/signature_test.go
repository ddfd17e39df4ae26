package domain

import (
	"testing"
	"time"
)

func testSignature() ReportSignature {
	return ReportSignature{
		ID:           "sig-1",
		RunID:        "run-1",
		Role:         RoleReviewedBy,
		SignerName:   "Dana Ortiz",
		SignerTitle:  "Site Supervisor",
		SignatureSVG: "<svg>stroke</svg>",
		SignedAt:     time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestSignatureDigestRoundTrip(t *testing.T) {
	sig := testSignature()
	sig.SignatureHash = SignatureDigest(sig.SignatureSVG, sig.SignerName, sig.SignerTitle, sig.Role)

	if !VerifySignatureDigest(sig) {
		t.Fatal("freshly computed digest must verify")
	}
}

func TestSignatureDigestDetectsTamper(t *testing.T) {
	sig := testSignature()
	sig.SignatureHash = SignatureDigest(sig.SignatureSVG, sig.SignerName, sig.SignerTitle, sig.Role)

	tampered := sig
	tampered.SignerName = "Someone Else"
	if VerifySignatureDigest(tampered) {
		t.Fatal("digest must not verify after signer name change")
	}

	tampered = sig
	tampered.SignatureSVG = "<svg>forged</svg>"
	if VerifySignatureDigest(tampered) {
		t.Fatal("digest must not verify after svg change")
	}

	tampered = sig
	tampered.Role = RoleApprovedBy
	if VerifySignatureDigest(tampered) {
		t.Fatal("digest must not verify after role change")
	}
}

func TestSignatureDigestFieldBoundaries(t *testing.T) {
	// Shifting bytes across field boundaries must change the digest even
	// when the concatenation of all fields is identical.
	a := SignatureDigest("ab", "c", "t", RolePreparedBy)
	b := SignatureDigest("a", "bc", "t", RolePreparedBy)
	if a == b {
		t.Fatal("digest collided across field boundaries")
	}
}

func TestSignatureActive(t *testing.T) {
	sig := testSignature()
	if !sig.Active() {
		t.Fatal("unrevoked signature must be active")
	}
	revokedAt := sig.SignedAt.Add(time.Hour)
	sig.RevokedAt = &revokedAt
	if sig.Active() {
		t.Fatal("revoked signature must not be active")
	}
}

func TestMissingRoles(t *testing.T) {
	required := []SignatureRole{RolePreparedBy, RoleReviewedBy, RoleApprovedBy}

	prepared := testSignature()
	prepared.Role = RolePreparedBy
	reviewed := testSignature()
	reviewed.ID = "sig-2"
	reviewed.Role = RoleReviewedBy

	missing := MissingRoles(required, []ReportSignature{prepared, reviewed})
	if len(missing) != 1 || missing[0] != RoleApprovedBy {
		t.Fatalf("missing = %v, want [approved_by]", missing)
	}

	approved := testSignature()
	approved.ID = "sig-3"
	approved.Role = RoleApprovedBy
	missing = MissingRoles(required, []ReportSignature{prepared, reviewed, approved})
	if len(missing) != 0 {
		t.Fatalf("missing = %v, want none", missing)
	}
}

func TestMissingRolesIgnoresRevoked(t *testing.T) {
	required := []SignatureRole{RolePreparedBy}

	sig := testSignature()
	sig.Role = RolePreparedBy
	revokedAt := sig.SignedAt.Add(time.Hour)
	sig.RevokedAt = &revokedAt

	missing := MissingRoles(required, []ReportSignature{sig})
	if len(missing) != 1 || missing[0] != RolePreparedBy {
		t.Fatalf("missing = %v, want [prepared_by]", missing)
	}
}

func TestMissingRolesRepeatSignatureSatisfiesOnce(t *testing.T) {
	required := []SignatureRole{RolePreparedBy, RoleApprovedBy}

	first := testSignature()
	first.Role = RolePreparedBy
	second := testSignature()
	second.ID = "sig-2"
	second.Role = RolePreparedBy

	missing := MissingRoles(required, []ReportSignature{first, second})
	if len(missing) != 1 || missing[0] != RoleApprovedBy {
		t.Fatalf("missing = %v, want [approved_by]", missing)
	}
}
