package domain

import (
	"errors"
	"strings"
	"time"
)

// RunStatus is the ledger lifecycle state of a report run.
type RunStatus string

const (
	RunStatusDraft    RunStatus = "draft"
	RunStatusFinal    RunStatus = "final"
	RunStatusComplete RunStatus = "complete"
)

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusDraft, RunStatusFinal, RunStatusComplete:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status transition is allowed. A run
// never reverts toward draft.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusDraft:
		return next == RunStatusFinal || next == RunStatusComplete
	case RunStatusFinal:
		return next == RunStatusComplete
	}
	return false
}

// ReportRun is one frozen, hashable snapshot of a compliance report.
// DataHash commits the canonical payload bytes at generation time and is
// immutable once the run leaves draft; changed content always becomes a
// new run, never an update.
type ReportRun struct {
	ID             string
	OrganizationID string
	JobID          string
	PacketType     PacketType
	BuilderVersion string
	Status         RunStatus
	DataHash       string
	GeneratedAt    time.Time
	StoragePath    *string
	ArtifactSHA256 *string
	CreatedBy      string
}

func (r ReportRun) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.OrganizationID) == "" {
		return errors.New("organization id is required")
	}
	if strings.TrimSpace(r.JobID) == "" {
		return errors.New("job id is required")
	}
	if !r.PacketType.Valid() {
		return ErrUnknownPacketType
	}
	if strings.TrimSpace(r.BuilderVersion) == "" {
		return errors.New("builder version is required")
	}
	if !r.Status.Valid() {
		return errors.New("status is required")
	}
	if strings.TrimSpace(r.DataHash) == "" {
		return errors.New("data hash is required")
	}
	if r.GeneratedAt.IsZero() {
		return errors.New("generated at is required")
	}
	return nil
}

// Finalized reports whether an artifact has been attached and the run has
// left draft.
func (r ReportRun) Finalized() bool {
	return r.Status != RunStatusDraft
}
