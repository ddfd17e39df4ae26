package postgres

import (
	"context"
	"fmt"

	"github.com/fieldcert-labs/fieldcert-go/internal/platform/auditlog"
)

// AuditEventStore appends audit events through the shared auditlog
// integrity path.
type AuditEventStore struct {
	db DB
}

func NewAuditEventStore(db DB) *AuditEventStore {
	if db == nil {
		return nil
	}
	return &AuditEventStore{db: db}
}

func (s *AuditEventStore) Append(ctx context.Context, event auditlog.Event) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("audit event store not initialized")
	}
	return auditlog.Insert(ctx, s.db, event)
}
