package policy

import (
	"errors"
	"testing"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
)

func TestDefaultSpec(t *testing.T) {
	spec := Default()
	if err := spec.Validate(); err != nil {
		t.Fatalf("default spec invalid: %v", err)
	}

	roles, err := spec.RequiredRoles(domain.PacketInsurance)
	if err != nil {
		t.Fatalf("insurance roles: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("insurance requires %d roles, want 3", len(roles))
	}

	roles, err = spec.RequiredRoles(domain.PacketExecutiveBrief)
	if err != nil {
		t.Fatalf("executive brief roles: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("executive brief requires %d roles, want 2", len(roles))
	}
}

func TestParseSpec(t *testing.T) {
	raw := []byte(`
schema: fieldcert.signing.v1
packets:
  - type: insurance
    required_roles: [prepared_by, approved_by]
  - type: executive_brief
    disabled: true
`)
	spec, err := ParseSpec(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if !spec.Enabled(domain.PacketInsurance) {
		t.Fatal("insurance must be enabled")
	}
	if spec.Enabled(domain.PacketExecutiveBrief) {
		t.Fatal("executive_brief must be disabled")
	}

	roles, err := spec.RequiredRoles(domain.PacketInsurance)
	if err != nil {
		t.Fatalf("required roles: %v", err)
	}
	if len(roles) != 2 || roles[0] != domain.RolePreparedBy || roles[1] != domain.RoleApprovedBy {
		t.Fatalf("roles = %v", roles)
	}

	// Disabled stops new generation only. Existing executive_brief runs
	// still resolve their role set for verification.
	roles, err = spec.RequiredRoles(domain.PacketExecutiveBrief)
	if err != nil {
		t.Fatalf("disabled packet roles: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("disabled packet resolved %d roles, want default 2", len(roles))
	}
}

func TestRequiredRolesSurviveSpecChanges(t *testing.T) {
	disabledWithRoles, err := ParseSpec([]byte(`
schema: fieldcert.signing.v1
packets:
  - type: insurance
    disabled: true
    required_roles: [prepared_by, approved_by]
  - type: executive_brief
    required_roles: [approved_by]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	roles, err := disabledWithRoles.RequiredRoles(domain.PacketInsurance)
	if err != nil {
		t.Fatalf("disabled insurance roles: %v", err)
	}
	if len(roles) != 2 || roles[0] != domain.RolePreparedBy {
		t.Fatalf("disabled insurance roles = %v, want declared set", roles)
	}

	dropped, err := ParseSpec([]byte(`
schema: fieldcert.signing.v1
packets:
  - type: executive_brief
    required_roles: [approved_by]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	roles, err = dropped.RequiredRoles(domain.PacketInsurance)
	if err != nil {
		t.Fatalf("dropped insurance roles: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("dropped insurance resolved %d roles, want default 3", len(roles))
	}

	if _, err := dropped.RequiredRoles(domain.PacketType("quarterly")); !errors.Is(err, domain.ErrUnknownPacketType) {
		t.Fatalf("invalid type err = %v, want ErrUnknownPacketType", err)
	}
}

func TestParseSpecRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"wrong schema", "schema: fieldcert.signing.v2\npackets:\n  - type: insurance\n    required_roles: [prepared_by]\n"},
		{"no packets", "schema: fieldcert.signing.v1\npackets: []\n"},
		{"unknown packet type", "schema: fieldcert.signing.v1\npackets:\n  - type: quarterly\n    required_roles: [prepared_by]\n"},
		{"unknown role", "schema: fieldcert.signing.v1\npackets:\n  - type: insurance\n    required_roles: [witnessed_by]\n"},
		{"duplicate packet", "schema: fieldcert.signing.v1\npackets:\n  - type: insurance\n    required_roles: [prepared_by]\n  - type: insurance\n    required_roles: [approved_by]\n"},
		{"duplicate role", "schema: fieldcert.signing.v1\npackets:\n  - type: insurance\n    required_roles: [prepared_by, prepared_by]\n"},
		{"empty roles", "schema: fieldcert.signing.v1\npackets:\n  - type: insurance\n    required_roles: []\n"},
	}
	for _, tc := range tests {
		if _, err := ParseSpec([]byte(tc.raw)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestLoadEmptyPathFallsBackToDefault(t *testing.T) {
	spec, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !spec.Enabled(domain.PacketInsurance) {
		t.Fatal("default spec must enable insurance")
	}
}
