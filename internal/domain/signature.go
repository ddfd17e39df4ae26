package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ReportSignature is one role attestation over a report run. The row is
// never hard-deleted; Revoke sets RevokedAt and keeps the audit trail.
type ReportSignature struct {
	ID            string
	RunID         string
	Role          SignatureRole
	SignerName    string
	SignerTitle   string
	SignatureSVG  string
	SignatureHash string
	SignedAt      time.Time
	RevokedAt     *time.Time
}

func (s ReportSignature) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("signature id is required")
	}
	if strings.TrimSpace(s.RunID) == "" {
		return errors.New("run id is required")
	}
	if _, ok := signatureRoles[s.Role]; !ok {
		return errors.New("signature role is required")
	}
	if strings.TrimSpace(s.SignerName) == "" {
		return errors.New("signer name is required")
	}
	if strings.TrimSpace(s.SignatureSVG) == "" {
		return errors.New("signature svg is required")
	}
	if strings.TrimSpace(s.SignatureHash) == "" {
		return errors.New("signature hash is required")
	}
	if s.SignedAt.IsZero() {
		return errors.New("signed at is required")
	}
	return nil
}

// Active reports whether the signature still counts toward completeness.
func (s ReportSignature) Active() bool {
	return s.RevokedAt == nil
}

// SignatureDigest commits the drawn signature and the signer's identity
// and role. Fields are length-prefixed before concatenation so adjacent
// fields can never collide ("ab"+"c" vs "a"+"bc").
func SignatureDigest(signatureSVG, signerName, signerTitle string, role SignatureRole) string {
	buf := &bytes.Buffer{}
	for _, field := range []string{signatureSVG, signerName, signerTitle, string(role)} {
		buf.WriteString(strconv.Itoa(len(field)))
		buf.WriteByte(':')
		buf.WriteString(field)
		buf.WriteByte(';')
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// VerifySignatureDigest recomputes the digest from the stored fields and
// compares it to the stored hash.
func VerifySignatureDigest(s ReportSignature) bool {
	return SignatureDigest(s.SignatureSVG, s.SignerName, s.SignerTitle, s.Role) == s.SignatureHash
}

// MissingRoles returns the required roles with no active signature, in
// required order. Any one active signature satisfies its role; repeat
// signatures for the same role are allowed and equivalent.
func MissingRoles(required []SignatureRole, sigs []ReportSignature) []SignatureRole {
	active := make(map[SignatureRole]struct{}, len(sigs))
	for _, s := range sigs {
		if s.Active() {
			active[s.Role] = struct{}{}
		}
	}
	missing := make([]SignatureRole, 0)
	for _, role := range required {
		if _, ok := active[role]; !ok {
			missing = append(missing, role)
		}
	}
	return missing
}
