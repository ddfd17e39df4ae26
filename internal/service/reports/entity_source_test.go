package reports

import (
	"context"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
	"github.com/fieldcert-labs/fieldcert-go/internal/repo"
)

type stubEntitySource struct {
	job          domain.Job
	organization domain.Organization
	riskScore    *domain.RiskScore
	riskFactors  []domain.RiskFactor
	mitigations  []domain.MitigationItem
	documents    []domain.Document
	auditEntries []domain.AuditEntry
}

func (s *stubEntitySource) Job(ctx context.Context, organizationID, jobID string) (domain.Job, error) {
	if jobID != s.job.ID || organizationID != s.job.OrganizationID {
		return domain.Job{}, repo.ErrNotFound
	}
	return s.job, nil
}

func (s *stubEntitySource) Organization(ctx context.Context, organizationID string) (domain.Organization, error) {
	if organizationID != s.organization.ID {
		return domain.Organization{}, repo.ErrNotFound
	}
	return s.organization, nil
}

func (s *stubEntitySource) RiskScore(ctx context.Context, organizationID, jobID string) (domain.RiskScore, error) {
	if s.riskScore == nil {
		return domain.RiskScore{}, repo.ErrNotFound
	}
	return *s.riskScore, nil
}

func (s *stubEntitySource) RiskFactors(ctx context.Context, organizationID, jobID string) ([]domain.RiskFactor, error) {
	return append([]domain.RiskFactor(nil), s.riskFactors...), nil
}

func (s *stubEntitySource) Mitigations(ctx context.Context, organizationID, jobID string) ([]domain.MitigationItem, error) {
	return append([]domain.MitigationItem(nil), s.mitigations...), nil
}

func (s *stubEntitySource) Documents(ctx context.Context, organizationID, jobID string) ([]domain.Document, error) {
	return append([]domain.Document(nil), s.documents...), nil
}

func (s *stubEntitySource) AuditEntries(ctx context.Context, organizationID, jobID string, upTo time.Time) ([]domain.AuditEntry, error) {
	out := make([]domain.AuditEntry, 0, len(s.auditEntries))
	for _, entry := range s.auditEntries {
		if !entry.OccurredAt.After(upTo) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func testEntitySource() *stubEntitySource {
	return &stubEntitySource{
		job: domain.Job{
			ID:             "job-1",
			OrganizationID: "org-1",
			Title:          "Warehouse roof replacement",
			SiteAddress:    "14 Dock Rd",
			ClientName:     "Harbor Logistics",
			Status:         "active",
		},
		organization: domain.Organization{
			ID:        "org-1",
			Name:      "Acme Contracting",
			LegalName: "Acme Contracting LLC",
		},
		riskScore: &domain.RiskScore{
			JobID:        "job-1",
			OverallScore: 55,
			Band:         "moderate",
			AssessedAt:   time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC),
		},
		riskFactors: []domain.RiskFactor{
			{ID: "rf-1", JobID: "job-1", Category: "height", Label: "Roof work", Score: 30, Weight: 2},
		},
		mitigations: []domain.MitigationItem{
			{ID: "mit-1", JobID: "job-1", Title: "Install guardrails", Status: "open"},
		},
		documents: []domain.Document{
			{ID: "doc-1", JobID: "job-1", Kind: "permit", Filename: "permit.pdf", ContentSHA256: "aa11", UploadedAt: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)},
		},
		auditEntries: []domain.AuditEntry{
			{ID: "ae-1", JobID: "job-1", OccurredAt: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC), Actor: "user-1", Action: "job.created"},
		},
	}
}
