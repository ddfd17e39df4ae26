package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
	"github.com/fieldcert-labs/fieldcert-go/internal/repo"
)

func sampleSignature() domain.ReportSignature {
	sig := domain.ReportSignature{
		ID:           "sig-1",
		RunID:        "run-1",
		Role:         domain.RoleReviewedBy,
		SignerName:   "Dana Ortiz",
		SignerTitle:  "Site Supervisor",
		SignatureSVG: "<svg>stroke</svg>",
		SignedAt:     time.Date(2026, 2, 1, 13, 0, 0, 0, time.UTC),
	}
	sig.SignatureHash = domain.SignatureDigest(sig.SignatureSVG, sig.SignerName, sig.SignerTitle, sig.Role)
	return sig
}

func signatureRows(sig domain.ReportSignature) *sqlmock.Rows {
	var revoked any
	if sig.RevokedAt != nil {
		revoked = *sig.RevokedAt
	}
	return sqlmock.NewRows([]string{
		"signature_id", "run_id", "signature_role", "signer_name", "signer_title",
		"signature_svg", "signature_hash", "signed_at", "revoked_at",
	}).AddRow(
		sig.ID, sig.RunID, string(sig.Role), sig.SignerName, sig.SignerTitle,
		sig.SignatureSVG, sig.SignatureHash, sig.SignedAt, revoked,
	)
}

func TestCreateSignature(t *testing.T) {
	db, mock := newMock(t)
	store := NewSignatureStore(db)
	sig := sampleSignature()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_signatures")).
		WithArgs(
			sig.ID, sig.RunID, string(sig.Role), sig.SignerName,
			sql.NullString{String: sig.SignerTitle, Valid: true},
			sig.SignatureSVG, sig.SignatureHash, sig.SignedAt, sql.NullTime{},
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.CreateSignature(context.Background(), sig); err != nil {
		t.Fatalf("create signature: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateSignatureRejectsInvalid(t *testing.T) {
	db, _ := newMock(t)
	store := NewSignatureStore(db)

	sig := sampleSignature()
	sig.SignatureHash = ""
	if err := store.CreateSignature(context.Background(), sig); err == nil {
		t.Fatal("invalid signature must be rejected before hitting the database")
	}
}

func TestGetSignature(t *testing.T) {
	db, mock := newMock(t)
	store := NewSignatureStore(db)
	sig := sampleSignature()

	mock.ExpectQuery(regexp.QuoteMeta("FROM report_signatures WHERE signature_id = $1")).
		WithArgs("sig-1").
		WillReturnRows(signatureRows(sig))

	got, err := store.GetSignature(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("get signature: %v", err)
	}
	if got.ID != sig.ID || got.Role != sig.Role || got.SignerTitle != sig.SignerTitle {
		t.Fatalf("signature = %+v", got)
	}
	if got.RevokedAt != nil {
		t.Fatal("revoked_at must be nil")
	}
}

func TestListByRun(t *testing.T) {
	db, mock := newMock(t)
	store := NewSignatureStore(db)
	sig := sampleSignature()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnRows(signatureRows(sig))

	sigs, err := store.ListByRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sigs) != 1 || sigs[0].ID != "sig-1" {
		t.Fatalf("sigs = %+v", sigs)
	}
}

func TestRevokeSignature(t *testing.T) {
	db, mock := newMock(t)
	store := NewSignatureStore(db)
	revokedAt := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("WHERE signature_id = $1 AND revoked_at IS NULL")).
		WithArgs("sig-1", revokedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.RevokeSignature(context.Background(), "sig-1", revokedAt); err != nil {
		t.Fatalf("revoke: %v", err)
	}
}

func TestRevokeSignatureAlreadyRevokedIsNoOp(t *testing.T) {
	db, mock := newMock(t)
	store := NewSignatureStore(db)
	revokedAt := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)

	sig := sampleSignature()
	earlier := revokedAt.Add(-time.Hour)
	sig.RevokedAt = &earlier

	mock.ExpectExec(regexp.QuoteMeta("revoked_at IS NULL")).
		WithArgs("sig-1", revokedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE signature_id = $1")).
		WithArgs("sig-1").
		WillReturnRows(signatureRows(sig))

	if err := store.RevokeSignature(context.Background(), "sig-1", revokedAt); err != nil {
		t.Fatalf("repeat revoke must be a no-op: %v", err)
	}
}

func TestRevokeSignatureMissing(t *testing.T) {
	db, mock := newMock(t)
	store := NewSignatureStore(db)
	revokedAt := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("revoked_at IS NULL")).
		WithArgs("missing", revokedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE signature_id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := store.RevokeSignature(context.Background(), "missing", revokedAt)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
