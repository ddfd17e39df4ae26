package domain

import "time"

// The entity records below are read-only inputs to the payload builders.
// They are owned by the job/compliance side of the product; the ledger
// only ever reads them.

type Job struct {
	ID             string
	OrganizationID string
	Title          string
	SiteAddress    string
	ClientName     string
	Status         string
	StartedOn      *time.Time
	CompletedOn    *time.Time
}

type RiskScore struct {
	JobID        string
	OverallScore int
	Band         string
	AssessedAt   time.Time
}

type RiskFactor struct {
	ID       string
	JobID    string
	Category string
	Label    string
	Score    int
	Weight   int
}

type MitigationItem struct {
	ID         string
	JobID      string
	Title      string
	Status     string
	DueOn      *time.Time
	ResolvedOn *time.Time
}

type Document struct {
	ID            string
	JobID         string
	Kind          string
	Filename      string
	ContentSHA256 string
	UploadedAt    time.Time
}

type AuditEntry struct {
	ID         string
	JobID      string
	OccurredAt time.Time
	Actor      string
	Action     string
	Detail     string
}

type Organization struct {
	ID         string
	Name       string
	LegalName  string
	LogoURL    string
	BrandColor string
}
