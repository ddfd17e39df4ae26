package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
)

const signatureColumns = `signature_id, run_id, signature_role, signer_name, signer_title, signature_svg, signature_hash, signed_at, revoked_at`

type SignatureStore struct {
	db DB
}

func NewSignatureStore(db DB) *SignatureStore {
	if db == nil {
		return nil
	}
	return &SignatureStore{db: db}
}

func (s *SignatureStore) CreateSignature(ctx context.Context, sig domain.ReportSignature) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("signature store not initialized")
	}
	if err := sig.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO report_signatures (
			signature_id,
			run_id,
			signature_role,
			signer_name,
			signer_title,
			signature_svg,
			signature_hash,
			signed_at,
			revoked_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		strings.TrimSpace(sig.ID),
		strings.TrimSpace(sig.RunID),
		string(sig.Role),
		strings.TrimSpace(sig.SignerName),
		nullString(sig.SignerTitle),
		sig.SignatureSVG,
		strings.TrimSpace(sig.SignatureHash),
		normalizeTime(sig.SignedAt),
		nullTime(sig.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

func (s *SignatureStore) GetSignature(ctx context.Context, id string) (domain.ReportSignature, error) {
	if s == nil || s.db == nil {
		return domain.ReportSignature{}, fmt.Errorf("signature store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ReportSignature{}, fmt.Errorf("signature id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+signatureColumns+` FROM report_signatures WHERE signature_id = $1`,
		id,
	)
	return scanSignature(row.Scan)
}

func (s *SignatureStore) ListByRun(ctx context.Context, runID string) ([]domain.ReportSignature, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("signature store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+signatureColumns+`
		 FROM report_signatures
		 WHERE run_id = $1
		 ORDER BY signed_at ASC, signature_id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	sigs := make([]domain.ReportSignature, 0)
	for rows.Next() {
		sig, err := scanSignature(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	return sigs, nil
}

// RevokeSignature soft-deletes: it stamps revoked_at and keeps the row.
// Revoking an already-revoked signature is a no-op that preserves the
// original timestamp.
func (s *SignatureStore) RevokeSignature(ctx context.Context, id string, revokedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("signature store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("signature id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE report_signatures SET revoked_at = $2 WHERE signature_id = $1 AND revoked_at IS NULL`,
		id,
		normalizeTime(revokedAt),
	)
	if err != nil {
		return fmt.Errorf("revoke signature: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke signature: %w", err)
	}
	if affected == 0 {
		// Either absent or already revoked; distinguish for the caller.
		if _, err := s.GetSignature(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func scanSignature(scan func(dest ...any) error) (domain.ReportSignature, error) {
	var sig domain.ReportSignature
	var role string
	var title sql.NullString
	var revokedAt sql.NullTime
	if err := scan(
		&sig.ID,
		&sig.RunID,
		&role,
		&sig.SignerName,
		&title,
		&sig.SignatureSVG,
		&sig.SignatureHash,
		&sig.SignedAt,
		&revokedAt,
	); err != nil {
		return domain.ReportSignature{}, handleNotFound(err)
	}
	sig.Role = domain.SignatureRole(role)
	if title.Valid {
		sig.SignerTitle = title.String
	}
	sig.SignedAt = sig.SignedAt.UTC()
	sig.RevokedAt = timePtr(revokedAt)
	return sig, nil
}
