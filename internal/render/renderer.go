// Package render turns a report payload and its signatures into the
// artifact bytes stored alongside the run. The rendered output is never
// part of the hashed payload; it carries its own independent checksum.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
)

type Renderer interface {
	Render(ctx context.Context, payload map[string]any, signatures []domain.ReportSignature) ([]byte, string, error)
}

// JSONRenderer emits the packet as a self-contained JSON document. A PDF
// renderer satisfies the same interface in deployments that need one.
type JSONRenderer struct{}

func (JSONRenderer) Render(ctx context.Context, payload map[string]any, signatures []domain.ReportSignature) ([]byte, string, error) {
	type signatureBlock struct {
		Role         string     `json:"role"`
		SignerName   string     `json:"signer_name"`
		SignerTitle  string     `json:"signer_title,omitempty"`
		SignatureSVG string     `json:"signature_svg"`
		SignedAt     time.Time  `json:"signed_at"`
		RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	}

	blocks := make([]signatureBlock, 0, len(signatures))
	for _, s := range signatures {
		blocks = append(blocks, signatureBlock{
			Role:         string(s.Role),
			SignerName:   s.SignerName,
			SignerTitle:  s.SignerTitle,
			SignatureSVG: s.SignatureSVG,
			SignedAt:     s.SignedAt.UTC(),
			RevokedAt:    s.RevokedAt,
		})
	}

	doc := map[string]any{
		"report":     payload,
		"signatures": blocks,
	}
	blob, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("render packet: %w", err)
	}
	return blob, "application/json", nil
}
