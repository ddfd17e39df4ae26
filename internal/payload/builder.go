// Package payload assembles the point-in-time report snapshot that gets
// canonically hashed. Builders are pure: given the same store contents,
// scope, and pinned generation time they produce the same payload, which
// is what makes later re-verification possible.
package payload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
	"github.com/fieldcert-labs/fieldcert-go/internal/repo"
)

const SchemaReportPacket = "fieldcert.report_packet"

const (
	BuilderInsuranceV1      = "fieldcert.report.insurance.v1"
	BuilderExecutiveBriefV1 = "fieldcert.report.executive_brief.v1"
)

// BuildFunc assembles one payload variant. generatedAt is a pinned input:
// builders never read the clock, so a rebuild at verification time sees
// the identical value. It scopes the audit trail and stays out of the
// document itself, so regenerating unchanged content yields the same
// hash regardless of wall-clock time.
type BuildFunc func(ctx context.Context, src repo.EntitySource, organizationID, jobID string, generatedAt time.Time) (map[string]any, error)

// Registry maps packet types to their current builder version and keeps
// every still-supported version addressable for verification.
type Registry struct {
	current  map[domain.PacketType]string
	builders map[string]BuildFunc
}

func NewRegistry() *Registry {
	return &Registry{
		current: map[domain.PacketType]string{
			domain.PacketInsurance:      BuilderInsuranceV1,
			domain.PacketExecutiveBrief: BuilderExecutiveBriefV1,
		},
		builders: map[string]BuildFunc{
			BuilderInsuranceV1:      buildInsuranceV1,
			BuilderExecutiveBriefV1: buildExecutiveBriefV1,
		},
	}
}

// CurrentVersion returns the builder version new runs of this packet type
// are generated with.
func (r *Registry) CurrentVersion(packetType domain.PacketType) (string, error) {
	version, ok := r.current[packetType]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownPacketType, packetType)
	}
	return version, nil
}

// Supported reports whether a recorded builder version can still rebuild
// payloads.
func (r *Registry) Supported(builderVersion string) bool {
	_, ok := r.builders[builderVersion]
	return ok
}

// Build rebuilds a payload with an explicit builder version. Verification
// uses the version recorded on the run; an absent or retired version is a
// loud error, never a silent fallback to another builder.
func (r *Registry) Build(ctx context.Context, src repo.EntitySource, builderVersion, organizationID, jobID string, generatedAt time.Time) (map[string]any, error) {
	build, ok := r.builders[builderVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrBuilderVersionUnavailable, builderVersion)
	}
	return build(ctx, src, organizationID, jobID, generatedAt)
}

type sections struct {
	job          domain.Job
	organization domain.Organization
	riskScore    *domain.RiskScore
	riskFactors  []domain.RiskFactor
	mitigations  []domain.MitigationItem
	documents    []domain.Document
	auditTrail   []domain.AuditEntry
}

func loadSections(ctx context.Context, src repo.EntitySource, organizationID, jobID string, generatedAt time.Time) (sections, error) {
	var out sections

	job, err := src.Job(ctx, organizationID, jobID)
	if err != nil {
		return sections{}, fmt.Errorf("job: %w", err)
	}
	out.job = job

	org, err := src.Organization(ctx, organizationID)
	if err != nil {
		return sections{}, fmt.Errorf("organization: %w", err)
	}
	out.organization = org

	score, err := src.RiskScore(ctx, organizationID, jobID)
	switch {
	case err == nil:
		out.riskScore = &score
	case isNotFound(err):
		// A job without an assessment renders a null score section.
	default:
		return sections{}, fmt.Errorf("risk score: %w", err)
	}

	if out.riskFactors, err = src.RiskFactors(ctx, organizationID, jobID); err != nil {
		return sections{}, fmt.Errorf("risk factors: %w", err)
	}
	if out.mitigations, err = src.Mitigations(ctx, organizationID, jobID); err != nil {
		return sections{}, fmt.Errorf("mitigations: %w", err)
	}
	if out.documents, err = src.Documents(ctx, organizationID, jobID); err != nil {
		return sections{}, fmt.Errorf("documents: %w", err)
	}
	if out.auditTrail, err = src.AuditEntries(ctx, organizationID, jobID, generatedAt); err != nil {
		return sections{}, fmt.Errorf("audit entries: %w", err)
	}

	// Array order is part of the hashed bytes, so ordering lives here
	// rather than in whatever the store happens to return.
	sort.Slice(out.riskFactors, func(i, j int) bool { return out.riskFactors[i].ID < out.riskFactors[j].ID })
	sort.Slice(out.mitigations, func(i, j int) bool { return out.mitigations[i].ID < out.mitigations[j].ID })
	sort.Slice(out.documents, func(i, j int) bool { return out.documents[i].ID < out.documents[j].ID })
	sort.Slice(out.auditTrail, func(i, j int) bool {
		a, b := out.auditTrail[i], out.auditTrail[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.ID < b.ID
	})

	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
