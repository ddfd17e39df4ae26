package payload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/canonical"
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
	return s.job, nil
}

func (s *stubEntitySource) Organization(ctx context.Context, organizationID string) (domain.Organization, error) {
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

func testSource() *stubEntitySource {
	started := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	return &stubEntitySource{
		job: domain.Job{
			ID:             "job-1",
			OrganizationID: "org-1",
			Title:          "Warehouse roof replacement",
			SiteAddress:    "14 Dock Rd",
			ClientName:     "Harbor Logistics",
			Status:         "active",
			StartedOn:      &started,
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
			{ID: "rf-2", JobID: "job-1", Category: "height", Label: "Roof work", Score: 30, Weight: 2},
			{ID: "rf-1", JobID: "job-1", Category: "weather", Label: "Winter season", Score: 25, Weight: 1},
		},
		mitigations: []domain.MitigationItem{
			{ID: "mit-1", JobID: "job-1", Title: "Install guardrails", Status: "open"},
		},
		documents: []domain.Document{
			{ID: "doc-1", JobID: "job-1", Kind: "permit", Filename: "permit.pdf", ContentSHA256: "aa11", UploadedAt: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)},
		},
		auditEntries: []domain.AuditEntry{
			{ID: "ae-1", JobID: "job-1", OccurredAt: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC), Actor: "user-1", Action: "job.created"},
			{ID: "ae-2", JobID: "job-1", OccurredAt: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC), Actor: "user-2", Action: "document.uploaded"},
		},
	}
}

func TestBuildDeterministic(t *testing.T) {
	src := testSource()
	reg := NewRegistry()
	generatedAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	first, err := reg.Build(context.Background(), src, BuilderInsuranceV1, "org-1", "job-1", generatedAt)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := reg.Build(context.Background(), src, BuilderInsuranceV1, "org-1", "job-1", generatedAt)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	hashFirst, err := canonical.Hash(first)
	if err != nil {
		t.Fatalf("hash first: %v", err)
	}
	hashSecond, err := canonical.Hash(second)
	if err != nil {
		t.Fatalf("hash second: %v", err)
	}
	if hashFirst != hashSecond {
		t.Fatalf("repeated builds hash differently: %s vs %s", hashFirst, hashSecond)
	}
}

func TestBuildSortsInputIndependentOfStoreOrder(t *testing.T) {
	generatedAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry()

	src := testSource()
	forward, err := reg.Build(context.Background(), src, BuilderInsuranceV1, "org-1", "job-1", generatedAt)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	shuffled := testSource()
	shuffled.riskFactors[0], shuffled.riskFactors[1] = shuffled.riskFactors[1], shuffled.riskFactors[0]
	reordered, err := reg.Build(context.Background(), shuffled, BuilderInsuranceV1, "org-1", "job-1", generatedAt)
	if err != nil {
		t.Fatalf("build shuffled: %v", err)
	}

	hashA, _ := canonical.Hash(forward)
	hashB, _ := canonical.Hash(reordered)
	if hashA != hashB {
		t.Fatal("store row order must not leak into the payload hash")
	}
}

func TestBuildPinsAuditTrailToGeneratedAt(t *testing.T) {
	src := testSource()
	reg := NewRegistry()

	// ae-2 occurred after this generation time and must stay out of the
	// rebuilt payload.
	generatedAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	doc, err := reg.Build(context.Background(), src, BuilderInsuranceV1, "org-1", "job-1", generatedAt)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	trail, ok := doc["audit_trail"].([]any)
	if !ok {
		t.Fatalf("audit_trail type %T", doc["audit_trail"])
	}
	if len(trail) != 1 {
		t.Fatalf("audit trail has %d entries, want 1", len(trail))
	}
	entry := trail[0].(map[string]any)
	if entry["entry_id"] != "ae-1" {
		t.Fatalf("entry_id = %v, want ae-1", entry["entry_id"])
	}
}

func TestBuildHashIndependentOfGenerationTime(t *testing.T) {
	src := testSource()
	reg := NewRegistry()

	// Both times land between ae-1 and ae-2, so the audit-trail cutoff
	// admits the same entries; only the wall clock differs.
	earlier := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Second)

	first, err := reg.Build(context.Background(), src, BuilderInsuranceV1, "org-1", "job-1", earlier)
	if err != nil {
		t.Fatalf("build earlier: %v", err)
	}
	second, err := reg.Build(context.Background(), src, BuilderInsuranceV1, "org-1", "job-1", later)
	if err != nil {
		t.Fatalf("build later: %v", err)
	}

	hashFirst, _ := canonical.Hash(first)
	hashSecond, _ := canonical.Hash(second)
	if hashFirst != hashSecond {
		t.Fatalf("unchanged content hashed differently across seconds: %s vs %s", hashFirst, hashSecond)
	}
}

func TestBuildContentChangeChangesHash(t *testing.T) {
	generatedAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry()

	src := testSource()
	before, err := reg.Build(context.Background(), src, BuilderInsuranceV1, "org-1", "job-1", generatedAt)
	if err != nil {
		t.Fatalf("build before: %v", err)
	}
	src.riskScore.OverallScore = 60
	after, err := reg.Build(context.Background(), src, BuilderInsuranceV1, "org-1", "job-1", generatedAt)
	if err != nil {
		t.Fatalf("build after: %v", err)
	}

	hashBefore, _ := canonical.Hash(before)
	hashAfter, _ := canonical.Hash(after)
	if hashBefore == hashAfter {
		t.Fatal("risk score change must change the payload hash")
	}
}

func TestBuildMissingRiskScoreIsNull(t *testing.T) {
	src := testSource()
	src.riskScore = nil
	reg := NewRegistry()

	doc, err := reg.Build(context.Background(), src, BuilderInsuranceV1, "org-1", "job-1", time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if doc["risk_score"] != nil {
		t.Fatalf("risk_score = %v, want nil", doc["risk_score"])
	}
}

func TestBuildUnknownVersion(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Build(context.Background(), testSource(), "fieldcert.report.insurance.v999", "org-1", "job-1", time.Now())
	if !errors.Is(err, domain.ErrBuilderVersionUnavailable) {
		t.Fatalf("err = %v, want ErrBuilderVersionUnavailable", err)
	}
}

func TestCurrentVersion(t *testing.T) {
	reg := NewRegistry()

	version, err := reg.CurrentVersion(domain.PacketInsurance)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != BuilderInsuranceV1 {
		t.Fatalf("version = %q", version)
	}
	if !reg.Supported(version) {
		t.Fatal("current version must be supported")
	}

	if _, err := reg.CurrentVersion("quarterly"); !errors.Is(err, domain.ErrUnknownPacketType) {
		t.Fatalf("err = %v, want ErrUnknownPacketType", err)
	}
}

func TestExecutiveBriefCounts(t *testing.T) {
	src := testSource()
	resolved := time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)
	src.mitigations = append(src.mitigations, domain.MitigationItem{
		ID: "mit-2", JobID: "job-1", Title: "Weather hold procedure", Status: "resolved", ResolvedOn: &resolved,
	})
	reg := NewRegistry()

	doc, err := reg.Build(context.Background(), src, BuilderExecutiveBriefV1, "org-1", "job-1", time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	summary, ok := doc["mitigation_summary"].(map[string]any)
	if !ok {
		t.Fatalf("mitigation_summary type %T", doc["mitigation_summary"])
	}
	if summary["open"] != 1 || summary["resolved"] != 1 || summary["total"] != 2 {
		t.Fatalf("summary = %v", summary)
	}
	if doc["document_count"] != 1 {
		t.Fatalf("document_count = %v", doc["document_count"])
	}
}
