package domain

import (
	"fmt"
	"strings"
)

// PacketType names the payload shape a report run is built under. The set
// is closed: an unknown type is rejected at the boundary, never dispatched
// on a raw string.
type PacketType string

const (
	PacketInsurance      PacketType = "insurance"
	PacketExecutiveBrief PacketType = "executive_brief"
)

var packetTypes = map[PacketType]struct{}{
	PacketInsurance:      {},
	PacketExecutiveBrief: {},
}

func ParsePacketType(raw string) (PacketType, error) {
	pt := PacketType(strings.TrimSpace(raw))
	if _, ok := packetTypes[pt]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPacketType, raw)
	}
	return pt, nil
}

func (p PacketType) Valid() bool {
	_, ok := packetTypes[p]
	return ok
}

// SignatureRole is the attestation role a signature was made under.
type SignatureRole string

const (
	RolePreparedBy SignatureRole = "prepared_by"
	RoleReviewedBy SignatureRole = "reviewed_by"
	RoleApprovedBy SignatureRole = "approved_by"
)

var signatureRoles = map[SignatureRole]struct{}{
	RolePreparedBy: {},
	RoleReviewedBy: {},
	RoleApprovedBy: {},
}

func ParseSignatureRole(raw string) (SignatureRole, error) {
	role := SignatureRole(strings.TrimSpace(raw))
	if _, ok := signatureRoles[role]; !ok {
		return "", fmt.Errorf("unknown signature role %q", raw)
	}
	return role, nil
}
