// Package verify re-derives a report run's integrity from first
// principles: rebuild the payload with the recorded builder version,
// recompute the hash, and recheck every signature commitment.
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/canonical"
	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
	"github.com/fieldcert-labs/fieldcert-go/internal/payload"
	"github.com/fieldcert-labs/fieldcert-go/internal/policy"
	"github.com/fieldcert-labs/fieldcert-go/internal/repo"
)

// Engine verifies report runs. It is strictly read-only: verification
// never mutates the run, its signatures, or the audit log it reads
// through the entity source.
type Engine struct {
	runs     repo.ReportRunRepository
	sigs     repo.SignatureRepository
	entities repo.EntitySource
	builders *payload.Registry
	signing  policy.Spec
	now      func() time.Time
}

type Config struct {
	Runs       repo.ReportRunRepository
	Signatures repo.SignatureRepository
	Entities   repo.EntitySource
	Builders   *payload.Registry
	Signing    policy.Spec
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Runs == nil {
		return nil, fmt.Errorf("report run repository is required")
	}
	if cfg.Signatures == nil {
		return nil, fmt.Errorf("signature repository is required")
	}
	if cfg.Entities == nil {
		return nil, fmt.Errorf("entity source is required")
	}
	if cfg.Builders == nil {
		return nil, fmt.Errorf("builder registry is required")
	}
	if err := cfg.Signing.Validate(); err != nil {
		return nil, fmt.Errorf("signing policy: %w", err)
	}
	return &Engine{
		runs:     cfg.Runs,
		sigs:     cfg.Signatures,
		entities: cfg.Entities,
		builders: cfg.Builders,
		signing:  cfg.Signing,
		now:      time.Now,
	}, nil
}

// Verify rebuilds the run's payload at its pinned generation time and
// reports content integrity, per-signature validity, and role
// completeness as separate findings. A hash mismatch is a result, not an
// error; only an unusable run (missing, or generated by a builder
// version this binary no longer carries) errors out.
func (e *Engine) Verify(ctx context.Context, runID string) (domain.VerificationResult, error) {
	run, err := e.runs.GetRun(ctx, strings.TrimSpace(runID))
	if err != nil {
		return domain.VerificationResult{}, err
	}

	// Rebuilding with a different builder than the one recorded would
	// make every such run look tampered, so an absent version fails
	// loudly instead of falling back.
	if strings.TrimSpace(run.BuilderVersion) == "" || !e.builders.Supported(run.BuilderVersion) {
		return domain.VerificationResult{}, fmt.Errorf("%w: run %s recorded %q", domain.ErrBuilderVersionUnavailable, run.ID, run.BuilderVersion)
	}

	doc, err := e.builders.Build(ctx, e.entities, run.BuilderVersion, run.OrganizationID, run.JobID, run.GeneratedAt)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("rebuild payload: %w", err)
	}
	computedHash, err := canonical.Hash(doc)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("canonicalize payload: %w", err)
	}

	integrity := domain.IntegrityMismatch
	if computedHash == run.DataHash {
		integrity = domain.IntegrityMatch
	}

	sigs, err := e.sigs.ListByRun(ctx, run.ID)
	if err != nil {
		return domain.VerificationResult{}, err
	}
	checks := make([]domain.SignatureCheck, 0, len(sigs))
	for _, sig := range sigs {
		checks = append(checks, domain.SignatureCheck{
			SignatureID: sig.ID,
			Role:        sig.Role,
			SignerName:  sig.SignerName,
			Verified:    domain.VerifySignatureDigest(sig),
			Revoked:     !sig.Active(),
		})
	}

	required, err := e.signing.RequiredRoles(run.PacketType)
	if err != nil {
		return domain.VerificationResult{}, err
	}
	missing := domain.MissingRoles(required, sigs)

	return domain.VerificationResult{
		RunID:            run.ID,
		PacketType:       run.PacketType,
		BuilderVersion:   run.BuilderVersion,
		ContentIntegrity: integrity,
		StoredHash:       run.DataHash,
		ComputedHash:     computedHash,
		Signatures:       checks,
		RequiredRoles:    required,
		MissingRoles:     missing,
		IsComplete:       len(missing) == 0,
		CheckedAt:        e.now().UTC(),
	}, nil
}
