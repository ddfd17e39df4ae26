package domain

import (
	"testing"
	"time"
)

func testRun() ReportRun {
	return ReportRun{
		ID:             "run-1",
		OrganizationID: "org-1",
		JobID:          "job-1",
		PacketType:     PacketInsurance,
		BuilderVersion: "fieldcert.report.insurance.v1",
		Status:         RunStatusDraft,
		DataHash:       "abc123",
		GeneratedAt:    time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
		CreatedBy:      "user-1",
	}
}

func TestRunStatusTransitions(t *testing.T) {
	tests := []struct {
		from RunStatus
		to   RunStatus
		want bool
	}{
		{RunStatusDraft, RunStatusFinal, true},
		{RunStatusDraft, RunStatusComplete, true},
		{RunStatusFinal, RunStatusComplete, true},
		{RunStatusFinal, RunStatusDraft, false},
		{RunStatusComplete, RunStatusDraft, false},
		{RunStatusComplete, RunStatusFinal, false},
		{RunStatusDraft, RunStatusDraft, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestReportRunValidate(t *testing.T) {
	run := testRun()
	if err := run.Validate(); err != nil {
		t.Fatalf("valid run rejected: %v", err)
	}

	broken := run
	broken.PacketType = "quarterly"
	if err := broken.Validate(); err == nil {
		t.Fatal("unknown packet type must be rejected")
	}

	broken = run
	broken.DataHash = ""
	if err := broken.Validate(); err == nil {
		t.Fatal("empty data hash must be rejected")
	}
}

func TestEnsureReportRunImmutable(t *testing.T) {
	before := testRun()

	after := before
	after.Status = RunStatusFinal
	path := "org-1/report-runs/run-1.json"
	after.StoragePath = &path
	if err := EnsureReportRunImmutable(before, after); err != nil {
		t.Fatalf("forward finalization rejected: %v", err)
	}

	after = before
	after.DataHash = "changed"
	if err := EnsureReportRunImmutable(before, after); err == nil {
		t.Fatal("data hash change must be rejected")
	}

	finalized := before
	finalized.Status = RunStatusFinal
	finalized.StoragePath = &path
	reverted := finalized
	reverted.Status = RunStatusDraft
	if err := EnsureReportRunImmutable(finalized, reverted); err == nil {
		t.Fatal("status must never move backward")
	}

	otherPath := "org-1/report-runs/other.json"
	repointed := finalized
	repointed.StoragePath = &otherPath
	if err := EnsureReportRunImmutable(finalized, repointed); err == nil {
		t.Fatal("storage path must be write-once")
	}
}

func TestEnsureSignatureImmutable(t *testing.T) {
	before := testSignature()

	after := before
	revokedAt := before.SignedAt.Add(time.Hour)
	after.RevokedAt = &revokedAt
	if err := EnsureSignatureImmutable(before, after); err != nil {
		t.Fatalf("revocation rejected: %v", err)
	}

	unrevoked := after
	cleared := unrevoked
	cleared.RevokedAt = nil
	if err := EnsureSignatureImmutable(unrevoked, cleared); err == nil {
		t.Fatal("revocation must not be cleared")
	}

	forged := before
	forged.SignatureSVG = "<svg>other</svg>"
	if err := EnsureSignatureImmutable(before, forged); err == nil {
		t.Fatal("signature svg change must be rejected")
	}
}
