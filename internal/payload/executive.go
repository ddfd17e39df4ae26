package payload

import (
	"context"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
	"github.com/fieldcert-labs/fieldcert-go/internal/repo"
)

// buildExecutiveBriefV1 assembles the condensed executive packet: job
// summary, risk score, mitigation counts by status, and document counts.
// Individual audit entries and document rows stay out of this variant.
func buildExecutiveBriefV1(ctx context.Context, src repo.EntitySource, organizationID, jobID string, generatedAt time.Time) (map[string]any, error) {
	s, err := loadSections(ctx, src, organizationID, jobID, generatedAt)
	if err != nil {
		return nil, err
	}

	open, resolved := 0, 0
	for _, m := range s.mitigations {
		if m.ResolvedOn != nil {
			resolved++
			continue
		}
		open++
	}

	topFactors := make([]any, 0, len(s.riskFactors))
	for _, f := range s.riskFactors {
		topFactors = append(topFactors, map[string]any{
			"category": f.Category,
			"label":    f.Label,
			"score":    f.Score,
		})
	}

	return map[string]any{
		"schema":          SchemaReportPacket,
		"builder_version": BuilderExecutiveBriefV1,
		"packet_type":     string(domain.PacketExecutiveBrief),
		"organization": map[string]any{
			"organization_id": s.organization.ID,
			"name":            s.organization.Name,
			"logo_url":        s.organization.LogoURL,
			"brand_color":     s.organization.BrandColor,
		},
		"job": map[string]any{
			"job_id":      s.job.ID,
			"title":       s.job.Title,
			"client_name": s.job.ClientName,
			"status":      s.job.Status,
		},
		"risk_score":   riskScoreSection(s.riskScore),
		"risk_factors": topFactors,
		"mitigation_summary": map[string]any{
			"open":     open,
			"resolved": resolved,
			"total":    len(s.mitigations),
		},
		"document_count":    len(s.documents),
		"audit_entry_count": len(s.auditTrail),
	}, nil
}
