package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
)

// EntityStore is the read-only view of the job/compliance tables the
// payload builders consume. The ledger never writes these tables.
type EntityStore struct {
	db DB
}

func NewEntityStore(db DB) *EntityStore {
	if db == nil {
		return nil
	}
	return &EntityStore{db: db}
}

func (s *EntityStore) Job(ctx context.Context, organizationID, jobID string) (domain.Job, error) {
	if s == nil || s.db == nil {
		return domain.Job{}, fmt.Errorf("entity store not initialized")
	}
	var job domain.Job
	var startedOn, completedOn sql.NullTime
	row := s.db.QueryRowContext(
		ctx,
		`SELECT job_id, organization_id, title, site_address, client_name, status, started_on, completed_on
		 FROM jobs
		 WHERE organization_id = $1 AND job_id = $2`,
		strings.TrimSpace(organizationID),
		strings.TrimSpace(jobID),
	)
	if err := row.Scan(&job.ID, &job.OrganizationID, &job.Title, &job.SiteAddress, &job.ClientName, &job.Status, &startedOn, &completedOn); err != nil {
		return domain.Job{}, handleNotFound(err)
	}
	job.StartedOn = timePtr(startedOn)
	job.CompletedOn = timePtr(completedOn)
	return job, nil
}

func (s *EntityStore) Organization(ctx context.Context, organizationID string) (domain.Organization, error) {
	if s == nil || s.db == nil {
		return domain.Organization{}, fmt.Errorf("entity store not initialized")
	}
	var org domain.Organization
	row := s.db.QueryRowContext(
		ctx,
		`SELECT organization_id, name, legal_name, logo_url, brand_color
		 FROM organizations
		 WHERE organization_id = $1`,
		strings.TrimSpace(organizationID),
	)
	if err := row.Scan(&org.ID, &org.Name, &org.LegalName, &org.LogoURL, &org.BrandColor); err != nil {
		return domain.Organization{}, handleNotFound(err)
	}
	return org, nil
}

func (s *EntityStore) RiskScore(ctx context.Context, organizationID, jobID string) (domain.RiskScore, error) {
	if s == nil || s.db == nil {
		return domain.RiskScore{}, fmt.Errorf("entity store not initialized")
	}
	var score domain.RiskScore
	row := s.db.QueryRowContext(
		ctx,
		`SELECT r.job_id, r.overall_score, r.band, r.assessed_at
		 FROM risk_scores r
		 JOIN jobs j ON j.job_id = r.job_id
		 WHERE j.organization_id = $1 AND r.job_id = $2`,
		strings.TrimSpace(organizationID),
		strings.TrimSpace(jobID),
	)
	if err := row.Scan(&score.JobID, &score.OverallScore, &score.Band, &score.AssessedAt); err != nil {
		return domain.RiskScore{}, handleNotFound(err)
	}
	score.AssessedAt = score.AssessedAt.UTC()
	return score, nil
}

func (s *EntityStore) RiskFactors(ctx context.Context, organizationID, jobID string) ([]domain.RiskFactor, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("entity store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT f.factor_id, f.job_id, f.category, f.label, f.score, f.weight
		 FROM risk_factors f
		 JOIN jobs j ON j.job_id = f.job_id
		 WHERE j.organization_id = $1 AND f.job_id = $2
		 ORDER BY f.factor_id ASC`,
		strings.TrimSpace(organizationID),
		strings.TrimSpace(jobID),
	)
	if err != nil {
		return nil, fmt.Errorf("list risk factors: %w", err)
	}
	defer rows.Close()

	factors := make([]domain.RiskFactor, 0)
	for rows.Next() {
		var f domain.RiskFactor
		if err := rows.Scan(&f.ID, &f.JobID, &f.Category, &f.Label, &f.Score, &f.Weight); err != nil {
			return nil, fmt.Errorf("scan risk factor: %w", err)
		}
		factors = append(factors, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list risk factors: %w", err)
	}
	return factors, nil
}

func (s *EntityStore) Mitigations(ctx context.Context, organizationID, jobID string) ([]domain.MitigationItem, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("entity store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT m.item_id, m.job_id, m.title, m.status, m.due_on, m.resolved_on
		 FROM mitigation_items m
		 JOIN jobs j ON j.job_id = m.job_id
		 WHERE j.organization_id = $1 AND m.job_id = $2
		 ORDER BY m.item_id ASC`,
		strings.TrimSpace(organizationID),
		strings.TrimSpace(jobID),
	)
	if err != nil {
		return nil, fmt.Errorf("list mitigations: %w", err)
	}
	defer rows.Close()

	items := make([]domain.MitigationItem, 0)
	for rows.Next() {
		var m domain.MitigationItem
		var dueOn, resolvedOn sql.NullTime
		if err := rows.Scan(&m.ID, &m.JobID, &m.Title, &m.Status, &dueOn, &resolvedOn); err != nil {
			return nil, fmt.Errorf("scan mitigation: %w", err)
		}
		m.DueOn = timePtr(dueOn)
		m.ResolvedOn = timePtr(resolvedOn)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mitigations: %w", err)
	}
	return items, nil
}

func (s *EntityStore) Documents(ctx context.Context, organizationID, jobID string) ([]domain.Document, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("entity store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT d.document_id, d.job_id, d.kind, d.filename, d.content_sha256, d.uploaded_at
		 FROM documents d
		 JOIN jobs j ON j.job_id = d.job_id
		 WHERE j.organization_id = $1 AND d.job_id = $2
		 ORDER BY d.document_id ASC`,
		strings.TrimSpace(organizationID),
		strings.TrimSpace(jobID),
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.JobID, &d.Kind, &d.Filename, &d.ContentSHA256, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.UploadedAt = d.UploadedAt.UTC()
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *EntityStore) AuditEntries(ctx context.Context, organizationID, jobID string, upTo time.Time) ([]domain.AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("entity store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT a.entry_id, a.job_id, a.occurred_at, a.actor, a.action, a.detail
		 FROM job_audit_entries a
		 JOIN jobs j ON j.job_id = a.job_id
		 WHERE j.organization_id = $1 AND a.job_id = $2 AND a.occurred_at <= $3
		 ORDER BY a.occurred_at ASC, a.entry_id ASC`,
		strings.TrimSpace(organizationID),
		strings.TrimSpace(jobID),
		upTo.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var a domain.AuditEntry
		if err := rows.Scan(&a.ID, &a.JobID, &a.OccurredAt, &a.Actor, &a.Action, &a.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		a.OccurredAt = a.OccurredAt.UTC()
		entries = append(entries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
