package payload

import (
	"context"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
	"github.com/fieldcert-labs/fieldcert-go/internal/repo"
)

// buildInsuranceV1 assembles the full insurance packet: job, risk score
// with factors, mitigation items, document inventory, audit trail, and
// organization letterhead data.
func buildInsuranceV1(ctx context.Context, src repo.EntitySource, organizationID, jobID string, generatedAt time.Time) (map[string]any, error) {
	s, err := loadSections(ctx, src, organizationID, jobID, generatedAt)
	if err != nil {
		return nil, err
	}

	factors := make([]any, 0, len(s.riskFactors))
	for _, f := range s.riskFactors {
		factors = append(factors, map[string]any{
			"factor_id": f.ID,
			"category":  f.Category,
			"label":     f.Label,
			"score":     f.Score,
			"weight":    f.Weight,
		})
	}

	mitigations := make([]any, 0, len(s.mitigations))
	for _, m := range s.mitigations {
		mitigations = append(mitigations, map[string]any{
			"item_id":     m.ID,
			"title":       m.Title,
			"status":      m.Status,
			"due_on":      timeOrNil(m.DueOn),
			"resolved_on": timeOrNil(m.ResolvedOn),
		})
	}

	documents := make([]any, 0, len(s.documents))
	for _, d := range s.documents {
		documents = append(documents, map[string]any{
			"document_id":    d.ID,
			"kind":           d.Kind,
			"filename":       d.Filename,
			"content_sha256": d.ContentSHA256,
			"uploaded_at":    d.UploadedAt,
		})
	}

	auditTrail := make([]any, 0, len(s.auditTrail))
	for _, a := range s.auditTrail {
		auditTrail = append(auditTrail, map[string]any{
			"entry_id":    a.ID,
			"occurred_at": a.OccurredAt,
			"actor":       a.Actor,
			"action":      a.Action,
			"detail":      a.Detail,
		})
	}

	// generatedAt pins the audit-trail cutoff only. It lives on the run
	// row, not in the document, so unchanged content hashes identically
	// no matter when it is rebuilt.
	return map[string]any{
		"schema":          SchemaReportPacket,
		"builder_version": BuilderInsuranceV1,
		"packet_type":     string(domain.PacketInsurance),
		"organization": map[string]any{
			"organization_id": s.organization.ID,
			"name":            s.organization.Name,
			"legal_name":      s.organization.LegalName,
			"logo_url":        s.organization.LogoURL,
			"brand_color":     s.organization.BrandColor,
		},
		"job": map[string]any{
			"job_id":       s.job.ID,
			"title":        s.job.Title,
			"site_address": s.job.SiteAddress,
			"client_name":  s.job.ClientName,
			"status":       s.job.Status,
			"started_on":   timeOrNil(s.job.StartedOn),
			"completed_on": timeOrNil(s.job.CompletedOn),
		},
		"risk_score":   riskScoreSection(s.riskScore),
		"risk_factors": factors,
		"mitigations":  mitigations,
		"documents":    documents,
		"audit_trail":  auditTrail,
	}, nil
}

func riskScoreSection(score *domain.RiskScore) any {
	if score == nil {
		return nil
	}
	return map[string]any{
		"overall_score": score.OverallScore,
		"band":          score.Band,
		"assessed_at":   score.AssessedAt,
	}
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
