// Package policy defines the signing policy: which packet types a
// deployment generates and which attestation roles each one needs before
// a run counts as complete.
package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
)

const SpecSchemaV1 = "fieldcert.signing.v1"

type Spec struct {
	Schema  string         `json:"schema" yaml:"schema"`
	Packets []PacketPolicy `json:"packets" yaml:"packets"`
}

type PacketPolicy struct {
	Type          string   `json:"type" yaml:"type"`
	Disabled      bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	RequiredRoles []string `json:"required_roles" yaml:"required_roles"`
}

// Default is the compiled-in policy used when no spec file is configured.
func Default() Spec {
	return Spec{
		Schema: SpecSchemaV1,
		Packets: []PacketPolicy{
			{
				Type:          string(domain.PacketInsurance),
				RequiredRoles: []string{string(domain.RolePreparedBy), string(domain.RoleReviewedBy), string(domain.RoleApprovedBy)},
			},
			{
				Type:          string(domain.PacketExecutiveBrief),
				RequiredRoles: []string{string(domain.RolePreparedBy), string(domain.RoleApprovedBy)},
			},
		},
	}
}

func ParseSpec(input []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(input, &spec); err != nil {
		return Spec{}, fmt.Errorf("decode spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Load reads a spec file, falling back to the compiled-in default when
// path is empty.
func Load(path string) (Spec, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read spec: %w", err)
	}
	return ParseSpec(raw)
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Schema) != SpecSchemaV1 {
		return fmt.Errorf("schema must be %q (got %q)", SpecSchemaV1, s.Schema)
	}
	if len(s.Packets) == 0 {
		return errors.New("at least one packet policy is required")
	}
	seen := map[string]struct{}{}
	for i, p := range s.Packets {
		pt, err := domain.ParsePacketType(p.Type)
		if err != nil {
			return fmt.Errorf("packet %d: %w", i, err)
		}
		if _, dup := seen[string(pt)]; dup {
			return fmt.Errorf("packet %d: duplicate type %q", i, pt)
		}
		seen[string(pt)] = struct{}{}
		if p.Disabled {
			continue
		}
		if len(p.RequiredRoles) == 0 {
			return fmt.Errorf("packet %d: required_roles must not be empty", i)
		}
		roleSeen := map[string]struct{}{}
		for _, raw := range p.RequiredRoles {
			role, err := domain.ParseSignatureRole(raw)
			if err != nil {
				return fmt.Errorf("packet %d: %w", i, err)
			}
			if _, dup := roleSeen[string(role)]; dup {
				return fmt.Errorf("packet %d: duplicate role %q", i, role)
			}
			roleSeen[string(role)] = struct{}{}
		}
	}
	return nil
}

// Enabled reports whether the deployment generates this packet type.
func (s Spec) Enabled(packetType domain.PacketType) bool {
	for _, p := range s.Packets {
		if p.Type == string(packetType) {
			return !p.Disabled
		}
	}
	return false
}

// RequiredRoles returns the role set a run of this packet type needs for
// completeness. Historical runs must stay verifiable after their packet
// type is disabled or dropped from the spec file, so a disabled entry
// keeps its declared roles and an unlisted (but valid) type falls back
// to the compiled-in default.
func (s Spec) RequiredRoles(packetType domain.PacketType) ([]domain.SignatureRole, error) {
	for _, p := range s.Packets {
		if p.Type != string(packetType) || len(p.RequiredRoles) == 0 {
			continue
		}
		return toRoles(p.RequiredRoles), nil
	}
	if !packetType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownPacketType, packetType)
	}
	for _, p := range Default().Packets {
		if p.Type == string(packetType) {
			return toRoles(p.RequiredRoles), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownPacketType, packetType)
}

func toRoles(raw []string) []domain.SignatureRole {
	roles := make([]domain.SignatureRole, 0, len(raw))
	for _, r := range raw {
		roles = append(roles, domain.SignatureRole(r))
	}
	return roles
}
