package repo

import (
	"context"
	"errors"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
	"github.com/fieldcert-labs/fieldcert-go/internal/platform/auditlog"
)

var ErrNotFound = errors.New("not found")

type RunFilter struct {
	OrganizationID string
	JobID          string
	PacketType     domain.PacketType
	Status         domain.RunStatus
	Limit          int
}

// ReportRunRepository manages the run ledger. Rows are insert-once: the
// only updates are the single artifact attach and forward status moves.
type ReportRunRepository interface {
	CreateRun(ctx context.Context, run domain.ReportRun) error
	GetRun(ctx context.Context, id string) (domain.ReportRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.ReportRun, error)

	// FindDraftByHash returns an existing draft for the same scope and
	// payload hash, if any. Used to dedupe repeat generation of
	// unchanged content.
	FindDraftByHash(ctx context.Context, organizationID, jobID string, packetType domain.PacketType, dataHash string) (domain.ReportRun, error)

	// AttachArtifact writes storage path, artifact checksum, and the new
	// status in one statement, guarded on the run still being draft.
	// Returns false when the guard did not match.
	AttachArtifact(ctx context.Context, id, storagePath, artifactSHA256 string, status domain.RunStatus) (bool, error)

	// PromoteStatus moves a run forward, guarded on the current status.
	// Returns false when the guard did not match.
	PromoteStatus(ctx context.Context, id string, from, to domain.RunStatus) (bool, error)
}

// SignatureRepository manages role attestations. Rows are append-only;
// revocation is the only permitted update and never removes the row.
type SignatureRepository interface {
	CreateSignature(ctx context.Context, sig domain.ReportSignature) error
	GetSignature(ctx context.Context, id string) (domain.ReportSignature, error)
	ListByRun(ctx context.Context, runID string) ([]domain.ReportSignature, error)
	RevokeSignature(ctx context.Context, id string, revokedAt time.Time) error
}

// EntitySource is the read-only view of the job/compliance store the
// payload builders consume. Implementations must not cache across calls
// within one build.
type EntitySource interface {
	Job(ctx context.Context, organizationID, jobID string) (domain.Job, error)
	Organization(ctx context.Context, organizationID string) (domain.Organization, error)
	RiskScore(ctx context.Context, organizationID, jobID string) (domain.RiskScore, error)
	RiskFactors(ctx context.Context, organizationID, jobID string) ([]domain.RiskFactor, error)
	Mitigations(ctx context.Context, organizationID, jobID string) ([]domain.MitigationItem, error)
	Documents(ctx context.Context, organizationID, jobID string) ([]domain.Document, error)

	// AuditEntries returns entries with occurred_at <= upTo. The audit
	// log is append-only, so pinning the upper bound makes the query
	// repeatable at verification time.
	AuditEntries(ctx context.Context, organizationID, jobID string, upTo time.Time) ([]domain.AuditEntry, error)
}

// AuditEventAppender ensures append-only audit writes.
type AuditEventAppender interface {
	Append(ctx context.Context, event auditlog.Event) (int64, error)
}
