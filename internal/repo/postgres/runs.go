package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
	"github.com/fieldcert-labs/fieldcert-go/internal/repo"
)

const reportRunColumns = `run_id, organization_id, job_id, packet_type, builder_version, status, data_hash, generated_at, storage_path, artifact_sha256, created_by`

type ReportRunStore struct {
	db DB
}

func NewReportRunStore(db DB) *ReportRunStore {
	if db == nil {
		return nil
	}
	return &ReportRunStore{db: db}
}

func (s *ReportRunStore) CreateRun(ctx context.Context, run domain.ReportRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("report run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO report_runs (
			run_id,
			organization_id,
			job_id,
			packet_type,
			builder_version,
			status,
			data_hash,
			generated_at,
			storage_path,
			artifact_sha256,
			created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.OrganizationID),
		strings.TrimSpace(run.JobID),
		string(run.PacketType),
		strings.TrimSpace(run.BuilderVersion),
		string(run.Status),
		strings.TrimSpace(run.DataHash),
		normalizeTime(run.GeneratedAt),
		nullStringPtr(run.StoragePath),
		nullStringPtr(run.ArtifactSHA256),
		strings.TrimSpace(run.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert report run: %w", err)
	}
	return nil
}

func (s *ReportRunStore) GetRun(ctx context.Context, id string) (domain.ReportRun, error) {
	if s == nil || s.db == nil {
		return domain.ReportRun{}, fmt.Errorf("report run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ReportRun{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+reportRunColumns+` FROM report_runs WHERE run_id = $1`,
		id,
	)
	return scanRun(row.Scan)
}

func (s *ReportRunStore) FindDraftByHash(ctx context.Context, organizationID, jobID string, packetType domain.PacketType, dataHash string) (domain.ReportRun, error) {
	if s == nil || s.db == nil {
		return domain.ReportRun{}, fmt.Errorf("report run store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+reportRunColumns+`
		 FROM report_runs
		 WHERE organization_id = $1 AND job_id = $2 AND packet_type = $3 AND data_hash = $4 AND status = $5
		 ORDER BY generated_at DESC
		 LIMIT 1`,
		strings.TrimSpace(organizationID),
		strings.TrimSpace(jobID),
		string(packetType),
		strings.TrimSpace(dataHash),
		string(domain.RunStatusDraft),
	)
	return scanRun(row.Scan)
}

func (s *ReportRunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.ReportRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("report run store not initialized")
	}
	if strings.TrimSpace(filter.OrganizationID) == "" {
		return nil, fmt.Errorf("organization id is required")
	}

	clauses := make([]string, 0, 4)
	args := make([]any, 0, 5)

	args = append(args, strings.TrimSpace(filter.OrganizationID))
	clauses = append(clauses, fmt.Sprintf("organization_id = $%d", len(args)))
	if strings.TrimSpace(filter.JobID) != "" {
		args = append(args, strings.TrimSpace(filter.JobID))
		clauses = append(clauses, fmt.Sprintf("job_id = $%d", len(args)))
	}
	if filter.PacketType != "" {
		args = append(args, string(filter.PacketType))
		clauses = append(clauses, fmt.Sprintf("packet_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + reportRunColumns + ` FROM report_runs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY generated_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list report runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.ReportRun, 0)
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan report run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list report runs: %w", err)
	}
	return runs, nil
}

// AttachArtifact freezes hash, path, and status in one guarded statement.
// The guard keeps a lost race (or a repeat call) from ever rewriting an
// attached artifact.
func (s *ReportRunStore) AttachArtifact(ctx context.Context, id, storagePath, artifactSHA256 string, status domain.RunStatus) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("report run store not initialized")
	}
	id = strings.TrimSpace(id)
	storagePath = strings.TrimSpace(storagePath)
	if id == "" || storagePath == "" {
		return false, fmt.Errorf("run id and storage path are required")
	}
	if status != domain.RunStatusFinal && status != domain.RunStatusComplete {
		return false, fmt.Errorf("attach must finalize the run (got %q)", status)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE report_runs
		 SET storage_path = $2, artifact_sha256 = $3, status = $4
		 WHERE run_id = $1 AND status = $5 AND storage_path IS NULL`,
		id,
		storagePath,
		strings.TrimSpace(artifactSHA256),
		string(status),
		string(domain.RunStatusDraft),
	)
	if err != nil {
		return false, fmt.Errorf("attach artifact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attach artifact: %w", err)
	}
	return affected == 1, nil
}

func (s *ReportRunStore) PromoteStatus(ctx context.Context, id string, from, to domain.RunStatus) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("report run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("run id is required")
	}
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("status cannot move from %q to %q", from, to)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE report_runs SET status = $3 WHERE run_id = $1 AND status = $2`,
		id,
		string(from),
		string(to),
	)
	if err != nil {
		return false, fmt.Errorf("promote status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("promote status: %w", err)
	}
	return affected == 1, nil
}

func scanRun(scan func(dest ...any) error) (domain.ReportRun, error) {
	var run domain.ReportRun
	var packetType, status string
	var storagePath, artifactSHA sql.NullString
	if err := scan(
		&run.ID,
		&run.OrganizationID,
		&run.JobID,
		&packetType,
		&run.BuilderVersion,
		&status,
		&run.DataHash,
		&run.GeneratedAt,
		&storagePath,
		&artifactSHA,
		&run.CreatedBy,
	); err != nil {
		return domain.ReportRun{}, handleNotFound(err)
	}
	run.PacketType = domain.PacketType(packetType)
	run.Status = domain.RunStatus(status)
	run.GeneratedAt = run.GeneratedAt.UTC()
	run.StoragePath = stringPtr(storagePath)
	run.ArtifactSHA256 = stringPtr(artifactSHA)
	return run, nil
}

func nullStringPtr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return nullString(*v)
}
