package domain

import (
	"errors"
	"fmt"
)

// EnsureReportRunImmutable enforces that a stored run's identity and hash
// never change once written. Status may only move forward and a storage
// path may only be set once.
func EnsureReportRunImmutable(before, after ReportRun) error {
	if before.ID == "" || after.ID == "" {
		return errors.New("report run ids are required")
	}
	if before.ID != after.ID {
		return fmt.Errorf("report run id changed from %q to %q", before.ID, after.ID)
	}
	if before.OrganizationID != after.OrganizationID {
		return errors.New("organization id is immutable")
	}
	if before.JobID != after.JobID {
		return errors.New("job id is immutable")
	}
	if before.PacketType != after.PacketType {
		return errors.New("packet type is immutable")
	}
	if before.BuilderVersion != after.BuilderVersion {
		return errors.New("builder version is immutable")
	}
	if before.DataHash != after.DataHash {
		return errors.New("data hash is immutable")
	}
	if !before.GeneratedAt.Equal(after.GeneratedAt) {
		return errors.New("generated at is immutable")
	}
	if before.Status != after.Status && !before.Status.CanTransitionTo(after.Status) {
		return fmt.Errorf("status cannot move from %q to %q", before.Status, after.Status)
	}
	if before.StoragePath != nil {
		if after.StoragePath == nil || *before.StoragePath != *after.StoragePath {
			return errors.New("storage path is immutable once set")
		}
	}
	return nil
}

// EnsureSignatureImmutable enforces that a stored signature only ever
// gains a revocation timestamp.
func EnsureSignatureImmutable(before, after ReportSignature) error {
	if before.ID == "" || after.ID == "" {
		return errors.New("signature ids are required")
	}
	if before.ID != after.ID {
		return fmt.Errorf("signature id changed from %q to %q", before.ID, after.ID)
	}
	if before.RunID != after.RunID {
		return errors.New("run id is immutable")
	}
	if before.Role != after.Role {
		return errors.New("signature role is immutable")
	}
	if before.SignerName != after.SignerName {
		return errors.New("signer name is immutable")
	}
	if before.SignerTitle != after.SignerTitle {
		return errors.New("signer title is immutable")
	}
	if before.SignatureSVG != after.SignatureSVG {
		return errors.New("signature svg is immutable")
	}
	if before.SignatureHash != after.SignatureHash {
		return errors.New("signature hash is immutable")
	}
	if !before.SignedAt.Equal(after.SignedAt) {
		return errors.New("signed at is immutable")
	}
	if before.RevokedAt != nil {
		if after.RevokedAt == nil || !before.RevokedAt.Equal(*after.RevokedAt) {
			return errors.New("revoked at is immutable once set")
		}
	}
	return nil
}
