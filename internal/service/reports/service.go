// Package reports owns the report run ledger: generating frozen
// snapshots, attaching rendered artifacts, and the signature chain.
package reports

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldcert-labs/fieldcert-go/internal/canonical"
	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
	"github.com/fieldcert-labs/fieldcert-go/internal/payload"
	"github.com/fieldcert-labs/fieldcert-go/internal/platform/auditlog"
	"github.com/fieldcert-labs/fieldcert-go/internal/policy"
	"github.com/fieldcert-labs/fieldcert-go/internal/render"
	"github.com/fieldcert-labs/fieldcert-go/internal/repo"
	store "github.com/fieldcert-labs/fieldcert-go/internal/storage/objectstore"
)

// AuditContext captures request identity details for audit logging.
type AuditContext struct {
	Actor     string
	RequestID string
	IP        net.IP
	UserAgent string
	Path      string
	Service   string
}

// SignInput describes one role attestation request.
type SignInput struct {
	Role         domain.SignatureRole
	SignerName   string
	SignerTitle  string
	SignatureSVG string
}

type Config struct {
	Runs       repo.ReportRunRepository
	Signatures repo.SignatureRepository
	Entities   repo.EntitySource
	Builders   *payload.Registry
	Signing    policy.Spec
	Store      store.Store
	Renderer   render.Renderer
	Bucket     string
	PresignTTL time.Duration
	PutTimeout time.Duration
	PutRetries int
	Audit      repo.AuditEventAppender
}

// Service coordinates the run ledger, signature chain, and artifact
// storage.
type Service struct {
	runs       repo.ReportRunRepository
	sigs       repo.SignatureRepository
	entities   repo.EntitySource
	builders   *payload.Registry
	signing    policy.Spec
	store      store.Store
	renderer   render.Renderer
	bucket     string
	presignTTL time.Duration
	putTimeout time.Duration
	putRetries int
	audit      repo.AuditEventAppender
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Runs == nil {
		return nil, errors.New("report run repository is required")
	}
	if cfg.Signatures == nil {
		return nil, errors.New("signature repository is required")
	}
	if cfg.Entities == nil {
		return nil, errors.New("entity source is required")
	}
	if cfg.Builders == nil {
		return nil, errors.New("builder registry is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("object store is required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.JSONRenderer{}
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if err := cfg.Signing.Validate(); err != nil {
		return nil, fmt.Errorf("signing policy: %w", err)
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 10 * time.Minute
	}
	if cfg.PutTimeout <= 0 {
		cfg.PutTimeout = 30 * time.Second
	}
	if cfg.PutRetries < 1 {
		cfg.PutRetries = 3
	}
	return &Service{
		runs:       cfg.Runs,
		sigs:       cfg.Signatures,
		entities:   cfg.Entities,
		builders:   cfg.Builders,
		signing:    cfg.Signing,
		store:      cfg.Store,
		renderer:   cfg.Renderer,
		bucket:     bucket,
		presignTTL: cfg.PresignTTL,
		putTimeout: cfg.PutTimeout,
		putRetries: cfg.PutRetries,
		audit:      cfg.Audit,
		now:        time.Now,
		sleep:      sleepCtx,
	}, nil
}

// GenerateReportRun builds the payload, hashes it, and records a draft
// run. Regenerating unchanged content returns the existing draft instead
// of inserting a duplicate; changed content always becomes a new run.
func (s *Service) GenerateReportRun(ctx context.Context, organizationID, jobID string, packetType domain.PacketType, auditCtx AuditContext) (domain.ReportRun, error) {
	organizationID = strings.TrimSpace(organizationID)
	jobID = strings.TrimSpace(jobID)
	if organizationID == "" || jobID == "" {
		return domain.ReportRun{}, errors.New("organization id and job id are required")
	}
	if !packetType.Valid() || !s.signing.Enabled(packetType) {
		return domain.ReportRun{}, fmt.Errorf("%w: %q", domain.ErrUnknownPacketType, packetType)
	}

	builderVersion, err := s.builders.CurrentVersion(packetType)
	if err != nil {
		return domain.ReportRun{}, err
	}

	// Sub-second precision is dropped so the stored audit-trail cutoff
	// replays exactly when the payload is rebuilt later.
	generatedAt := s.now().UTC().Truncate(time.Second)

	doc, err := s.builders.Build(ctx, s.entities, builderVersion, organizationID, jobID, generatedAt)
	if err != nil {
		return domain.ReportRun{}, err
	}
	dataHash, err := canonical.Hash(doc)
	if err != nil {
		return domain.ReportRun{}, fmt.Errorf("canonicalize payload: %w", err)
	}

	existing, err := s.runs.FindDraftByHash(ctx, organizationID, jobID, packetType, dataHash)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.ReportRun{}, err
	}

	run := domain.ReportRun{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		JobID:          jobID,
		PacketType:     packetType,
		BuilderVersion: builderVersion,
		Status:         domain.RunStatusDraft,
		DataHash:       dataHash,
		GeneratedAt:    generatedAt,
		CreatedBy:      strings.TrimSpace(auditCtx.Actor),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return domain.ReportRun{}, err
	}

	s.appendAudit(ctx, auditCtx, "report_run.generated", run.ID, map[string]any{
		"organization_id": run.OrganizationID,
		"job_id":          run.JobID,
		"packet_type":     string(run.PacketType),
		"builder_version": run.BuilderVersion,
		"data_hash":       run.DataHash,
	})
	return run, nil
}

// AttachArtifact renders the packet, stores it, and freezes the run in a
// single guarded write. Re-attaching an already stored artifact is a
// no-op; a run that was finalized with a different artifact rejects the
// call. A rebuild that no longer matches the frozen data_hash rejects
// the call with ErrContentDrift. Storage failures are retried with
// backoff; after the final attempt the run stays draft and the error
// surfaces.
func (s *Service) AttachArtifact(ctx context.Context, runID string, auditCtx AuditContext) (domain.ReportRun, error) {
	run, err := s.runs.GetRun(ctx, strings.TrimSpace(runID))
	if err != nil {
		return domain.ReportRun{}, err
	}

	objectKey := artifactKey(run)
	if run.StoragePath != nil {
		if *run.StoragePath == objectKey {
			return run, nil
		}
		return domain.ReportRun{}, fmt.Errorf("%w: run %s", domain.ErrAlreadyFinalized, run.ID)
	}

	doc, err := s.builders.Build(ctx, s.entities, run.BuilderVersion, run.OrganizationID, run.JobID, run.GeneratedAt)
	if err != nil {
		return domain.ReportRun{}, err
	}
	rebuiltHash, err := canonical.Hash(doc)
	if err != nil {
		return domain.ReportRun{}, fmt.Errorf("canonicalize payload: %w", err)
	}
	// The artifact must render exactly what the signers attested. If the
	// source entities moved since generation the run stays draft and the
	// caller generates a fresh run instead.
	if rebuiltHash != run.DataHash {
		return domain.ReportRun{}, fmt.Errorf("%w: run %s", domain.ErrContentDrift, run.ID)
	}
	sigs, err := s.sigs.ListByRun(ctx, run.ID)
	if err != nil {
		return domain.ReportRun{}, err
	}

	blob, contentType, err := s.renderer.Render(ctx, doc, sigs)
	if err != nil {
		return domain.ReportRun{}, fmt.Errorf("render artifact: %w", err)
	}

	if err := s.putWithRetry(ctx, objectKey, blob, contentType); err != nil {
		return domain.ReportRun{}, err
	}

	status := domain.RunStatusFinal
	required, err := s.signing.RequiredRoles(run.PacketType)
	if err != nil {
		return domain.ReportRun{}, err
	}
	if len(domain.MissingRoles(required, sigs)) == 0 {
		status = domain.RunStatusComplete
	}

	attached, err := s.runs.AttachArtifact(ctx, run.ID, objectKey, sha256Hex(blob), status)
	if err != nil {
		return domain.ReportRun{}, err
	}
	if !attached {
		// Lost a race: someone else finalized first. Identical artifact
		// keys commute; anything else is a conflict.
		current, err := s.runs.GetRun(ctx, run.ID)
		if err != nil {
			return domain.ReportRun{}, err
		}
		if current.StoragePath != nil && *current.StoragePath == objectKey {
			return current, nil
		}
		return domain.ReportRun{}, fmt.Errorf("%w: run %s", domain.ErrAlreadyFinalized, run.ID)
	}

	updated, err := s.runs.GetRun(ctx, run.ID)
	if err != nil {
		return domain.ReportRun{}, err
	}

	s.appendAudit(ctx, auditCtx, "report_run.artifact_attached", run.ID, map[string]any{
		"organization_id": run.OrganizationID,
		"job_id":          run.JobID,
		"storage_path":    objectKey,
		"artifact_sha256": sha256Hex(blob),
		"status":          string(updated.Status),
	})
	return updated, nil
}

// Sign appends a role attestation to a run. Signing is append-only and
// commutes across roles; a repeat signature for an already-signed role
// creates another active row.
func (s *Service) Sign(ctx context.Context, runID string, input SignInput, auditCtx AuditContext) (domain.ReportSignature, error) {
	run, err := s.runs.GetRun(ctx, strings.TrimSpace(runID))
	if err != nil {
		return domain.ReportSignature{}, err
	}

	signerName := strings.TrimSpace(input.SignerName)
	if signerName == "" {
		return domain.ReportSignature{}, errors.New("signer name is required")
	}
	if strings.TrimSpace(input.SignatureSVG) == "" {
		return domain.ReportSignature{}, errors.New("signature svg is required")
	}
	signerTitle := strings.TrimSpace(input.SignerTitle)

	sig := domain.ReportSignature{
		ID:            uuid.NewString(),
		RunID:         run.ID,
		Role:          input.Role,
		SignerName:    signerName,
		SignerTitle:   signerTitle,
		SignatureSVG:  input.SignatureSVG,
		SignatureHash: domain.SignatureDigest(input.SignatureSVG, signerName, signerTitle, input.Role),
		SignedAt:      s.now().UTC(),
	}
	if err := sig.Validate(); err != nil {
		return domain.ReportSignature{}, err
	}
	if err := s.sigs.CreateSignature(ctx, sig); err != nil {
		return domain.ReportSignature{}, err
	}

	if run.Status == domain.RunStatusFinal {
		if err := s.promoteIfComplete(ctx, run); err != nil {
			return domain.ReportSignature{}, err
		}
	}

	s.appendAudit(ctx, auditCtx, "report_run.signed", run.ID, map[string]any{
		"organization_id": run.OrganizationID,
		"job_id":          run.JobID,
		"signature_id":    sig.ID,
		"signature_role":  string(sig.Role),
		"signature_hash":  sig.SignatureHash,
	})
	return sig, nil
}

// RevokeSignature soft-revokes one signature. The row stays for audit
// and the run's status never moves backward; completeness is reported by
// verification, not rewritten here.
func (s *Service) RevokeSignature(ctx context.Context, signatureID string, auditCtx AuditContext) error {
	sig, err := s.sigs.GetSignature(ctx, strings.TrimSpace(signatureID))
	if err != nil {
		return err
	}
	if err := s.sigs.RevokeSignature(ctx, sig.ID, s.now().UTC()); err != nil {
		return err
	}

	s.appendAudit(ctx, auditCtx, "report_signature.revoked", sig.RunID, map[string]any{
		"signature_id":   sig.ID,
		"signature_role": string(sig.Role),
	})
	return nil
}

func (s *Service) GetRun(ctx context.Context, runID string) (domain.ReportRun, error) {
	return s.runs.GetRun(ctx, strings.TrimSpace(runID))
}

func (s *Service) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.ReportRun, error) {
	return s.runs.ListRuns(ctx, filter)
}

func (s *Service) ListSignatures(ctx context.Context, runID string) ([]domain.ReportSignature, error) {
	return s.sigs.ListByRun(ctx, strings.TrimSpace(runID))
}

// ArtifactDownloadURL presigns a download for the stored artifact.
func (s *Service) ArtifactDownloadURL(ctx context.Context, runID string, auditCtx AuditContext) (string, error) {
	run, err := s.runs.GetRun(ctx, strings.TrimSpace(runID))
	if err != nil {
		return "", err
	}
	if run.StoragePath == nil {
		return "", repo.ErrNotFound
	}
	url, err := s.store.PresignGet(ctx, s.bucket, *run.StoragePath, s.presignTTL)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}

	s.appendAudit(ctx, auditCtx, "report_run.artifact_url_issued", run.ID, map[string]any{
		"organization_id": run.OrganizationID,
		"storage_path":    *run.StoragePath,
	})
	return url, nil
}

func (s *Service) promoteIfComplete(ctx context.Context, run domain.ReportRun) error {
	required, err := s.signing.RequiredRoles(run.PacketType)
	if err != nil {
		return err
	}
	sigs, err := s.sigs.ListByRun(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(domain.MissingRoles(required, sigs)) > 0 {
		return nil
	}
	// A concurrent promotion losing the guard is fine: the run is
	// complete either way.
	_, err = s.runs.PromoteStatus(ctx, run.ID, domain.RunStatusFinal, domain.RunStatusComplete)
	return err
}

func (s *Service) putWithRetry(ctx context.Context, key string, blob []byte, contentType string) error {
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 1; attempt <= s.putRetries; attempt++ {
		putCtx, cancel := context.WithTimeout(ctx, s.putTimeout)
		err := s.store.Put(putCtx, s.bucket, key, bytes.NewReader(blob), int64(len(blob)), contentType)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == s.putRetries {
			break
		}
		if err := s.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("store artifact: %w", err)
		}
		backoff *= 2
	}
	return fmt.Errorf("store artifact after %d attempts: %w", s.putRetries, lastErr)
}

func (s *Service) appendAudit(ctx context.Context, auditCtx AuditContext, action, runID string, payloadFields map[string]any) {
	if s.audit == nil {
		return
	}
	fields := map[string]any{
		"service":      strings.TrimSpace(auditCtx.Service),
		"request_path": auditCtx.Path,
	}
	for k, v := range payloadFields {
		fields[k] = v
	}
	_, _ = s.audit.Append(ctx, auditlog.Event{
		OccurredAt:   s.now().UTC(),
		Actor:        strings.TrimSpace(auditCtx.Actor),
		Action:       action,
		ResourceType: "report_run",
		ResourceID:   runID,
		RequestID:    auditCtx.RequestID,
		IP:           auditCtx.IP,
		UserAgent:    auditCtx.UserAgent,
		Payload:      fields,
	})
}

func artifactKey(run domain.ReportRun) string {
	return fmt.Sprintf("%s/report-runs/%s.json", run.OrganizationID, run.ID)
}

func sha256Hex(value []byte) string {
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
