package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fieldcert-labs/fieldcert-go/internal/domain"
	"github.com/fieldcert-labs/fieldcert-go/internal/platform/auditlog"
	"github.com/fieldcert-labs/fieldcert-go/internal/platform/auth"
	"github.com/fieldcert-labs/fieldcert-go/internal/repo"
	"github.com/fieldcert-labs/fieldcert-go/internal/service/reports"
	"github.com/fieldcert-labs/fieldcert-go/internal/service/verify"
)

type reportLedgerAPI struct {
	logger   *slog.Logger
	svc      *reports.Service
	verifier *verify.Engine
	audit    repo.AuditEventAppender
}

func newReportLedgerAPI(logger *slog.Logger, svc *reports.Service, verifier *verify.Engine, audit repo.AuditEventAppender) *reportLedgerAPI {
	return &reportLedgerAPI{
		logger:   logger,
		svc:      svc,
		verifier: verifier,
		audit:    audit,
	}
}

func (api *reportLedgerAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /report-runs", api.handleGenerateRun)
	mux.HandleFunc("GET /report-runs", api.handleListRuns)
	mux.HandleFunc("GET /report-runs/{run_id}", api.handleGetRun)

	mux.HandleFunc("POST /report-runs/{run_id}/artifact", api.handleAttachArtifact)
	mux.HandleFunc("GET /report-runs/{run_id}/artifact", api.handleArtifactURL)

	mux.HandleFunc("POST /report-runs/{run_id}/signatures", api.handleSign)
	mux.HandleFunc("GET /report-runs/{run_id}/signatures", api.handleListSignatures)
	mux.HandleFunc("DELETE /signatures/{signature_id}", api.handleRevokeSignature)

	mux.HandleFunc("GET /report-runs/{run_id}/verification", api.handleVerify)
}

type reportRun struct {
	RunID          string    `json:"run_id"`
	OrganizationID string    `json:"organization_id"`
	JobID          string    `json:"job_id"`
	PacketType     string    `json:"packet_type"`
	BuilderVersion string    `json:"builder_version"`
	Status         string    `json:"status"`
	DataHash       string    `json:"data_hash"`
	GeneratedAt    time.Time `json:"generated_at"`
	StoragePath    *string   `json:"storage_path,omitempty"`
	ArtifactSHA256 *string   `json:"artifact_sha256,omitempty"`
	CreatedBy      string    `json:"created_by"`
}

type reportSignature struct {
	SignatureID   string     `json:"signature_id"`
	RunID         string     `json:"run_id"`
	Role          string     `json:"role"`
	SignerName    string     `json:"signer_name"`
	SignerTitle   string     `json:"signer_title,omitempty"`
	SignatureHash string     `json:"signature_hash"`
	SignedAt      time.Time  `json:"signed_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

type signatureCheck struct {
	SignatureID string `json:"signature_id"`
	Role        string `json:"role"`
	SignerName  string `json:"signer_name"`
	Verified    bool   `json:"verified"`
	Revoked     bool   `json:"revoked"`
}

type verificationResult struct {
	RunID            string           `json:"run_id"`
	PacketType       string           `json:"packet_type"`
	BuilderVersion   string           `json:"builder_version"`
	ContentIntegrity string           `json:"content_integrity"`
	StoredHash       string           `json:"stored_hash"`
	ComputedHash     string           `json:"computed_hash"`
	Signatures       []signatureCheck `json:"signatures"`
	RequiredRoles    []string         `json:"required_roles"`
	MissingRoles     []string         `json:"missing_roles"`
	IsComplete       bool             `json:"is_complete"`
	CheckedAt        time.Time        `json:"checked_at"`
}

type generateRunRequest struct {
	OrganizationID string `json:"organization_id"`
	JobID          string `json:"job_id"`
	PacketType     string `json:"packet_type"`
}

type signRequest struct {
	Role         string `json:"role"`
	SignerName   string `json:"signer_name"`
	SignerTitle  string `json:"signer_title,omitempty"`
	SignatureSVG string `json:"signature_svg"`
}

func (api *reportLedgerAPI) handleGenerateRun(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	var req generateRunRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.OrganizationID) == "" {
		api.writeError(w, r, http.StatusBadRequest, "organization_id_required")
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		api.writeError(w, r, http.StatusBadRequest, "job_id_required")
		return
	}
	packetType, err := domain.ParsePacketType(req.PacketType)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "unknown_packet_type")
		return
	}

	run, err := api.svc.GenerateReportRun(r.Context(), req.OrganizationID, req.JobID, packetType, buildAuditContext(r, identity))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownPacketType):
			api.writeError(w, r, http.StatusBadRequest, "unknown_packet_type")
		case errors.Is(err, repo.ErrNotFound):
			api.writeError(w, r, http.StatusNotFound, "job_not_found")
		case isUniqueViolation(err):
			api.writeError(w, r, http.StatusConflict, "run_exists")
		default:
			api.logger.Error("generate run failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	w.Header().Set("Location", "/report-runs/"+run.ID)
	api.writeJSON(w, http.StatusCreated, toReportRun(run))
}

func (api *reportLedgerAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}
	organizationID := strings.TrimSpace(r.URL.Query().Get("organization_id"))
	if organizationID == "" {
		api.writeError(w, r, http.StatusBadRequest, "organization_id_required")
		return
	}

	filter := repo.RunFilter{
		OrganizationID: organizationID,
		JobID:          strings.TrimSpace(r.URL.Query().Get("job_id")),
		Limit:          parseIntQuery(r, "limit", 100),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("packet_type")); raw != "" {
		packetType, err := domain.ParsePacketType(raw)
		if err != nil {
			api.writeError(w, r, http.StatusBadRequest, "unknown_packet_type")
			return
		}
		filter.PacketType = packetType
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.RunStatus(raw)
		if !status.Valid() {
			api.writeError(w, r, http.StatusBadRequest, "unknown_status")
			return
		}
		filter.Status = status
	}

	runs, err := api.svc.ListRuns(r.Context(), filter)
	if err != nil {
		api.logger.Error("list runs failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	out := make([]reportRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, toReportRun(run))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"report_runs": out})
}

func (api *reportLedgerAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	run, err := api.svc.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, toReportRun(run))
}

func (api *reportLedgerAPI) handleAttachArtifact(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	run, err := api.svc.AttachArtifact(r.Context(), runID, buildAuditContext(r, identity))
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			api.writeError(w, r, http.StatusNotFound, "not_found")
		case errors.Is(err, domain.ErrAlreadyFinalized):
			api.writeError(w, r, http.StatusConflict, "already_finalized")
		case errors.Is(err, domain.ErrContentDrift):
			api.writeError(w, r, http.StatusConflict, "content_drift")
		case errors.Is(err, domain.ErrBuilderVersionUnavailable):
			api.writeError(w, r, http.StatusConflict, "builder_version_unavailable")
		default:
			api.logger.Error("attach artifact failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
			api.writeError(w, r, http.StatusBadGateway, "artifact_store_failed")
		}
		return
	}
	api.writeJSON(w, http.StatusOK, toReportRun(run))
}

func (api *reportLedgerAPI) handleArtifactURL(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	url, err := api.svc.ArtifactDownloadURL(r.Context(), runID, buildAuditContext(r, identity))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("presign artifact failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
		api.writeError(w, r, http.StatusBadGateway, "object_store_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"download_url": url})
}

func (api *reportLedgerAPI) handleSign(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	var req signRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	role, err := domain.ParseSignatureRole(req.Role)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "unknown_role")
		return
	}
	if strings.TrimSpace(req.SignerName) == "" {
		api.writeError(w, r, http.StatusBadRequest, "signer_name_required")
		return
	}
	if strings.TrimSpace(req.SignatureSVG) == "" {
		api.writeError(w, r, http.StatusBadRequest, "signature_svg_required")
		return
	}

	sig, err := api.svc.Sign(r.Context(), runID, reports.SignInput{
		Role:         role,
		SignerName:   req.SignerName,
		SignerTitle:  req.SignerTitle,
		SignatureSVG: req.SignatureSVG,
	}, buildAuditContext(r, identity))
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			api.writeError(w, r, http.StatusNotFound, "not_found")
		case isUniqueViolation(err):
			api.writeError(w, r, http.StatusConflict, "signature_exists")
		default:
			api.logger.Error("sign failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	w.Header().Set("Location", "/report-runs/"+runID+"/signatures")
	api.writeJSON(w, http.StatusCreated, toReportSignature(sig))
}

func (api *reportLedgerAPI) handleListSignatures(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	if _, err := api.svc.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	sigs, err := api.svc.ListSignatures(r.Context(), runID)
	if err != nil {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]reportSignature, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, toReportSignature(sig))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"signatures": out})
}

func (api *reportLedgerAPI) handleRevokeSignature(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	signatureID := strings.TrimSpace(r.PathValue("signature_id"))
	if signatureID == "" {
		api.writeError(w, r, http.StatusBadRequest, "signature_id_required")
		return
	}
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	if err := api.svc.RevokeSignature(r.Context(), signatureID, buildAuditContext(r, identity)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("revoke signature failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *reportLedgerAPI) handleVerify(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}
	if api.verifier == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	result, err := api.verifier.Verify(r.Context(), runID)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			api.writeError(w, r, http.StatusNotFound, "not_found")
		case errors.Is(err, domain.ErrBuilderVersionUnavailable):
			api.writeError(w, r, http.StatusConflict, "builder_version_unavailable")
		default:
			api.logger.Error("verification failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	if api.audit != nil {
		if identity, ok := auth.IdentityFromContext(r.Context()); ok {
			_, _ = api.audit.Append(r.Context(), auditlog.Event{
				OccurredAt:   time.Now().UTC(),
				Actor:        identity.Subject,
				Action:       "report_run.verified",
				ResourceType: "report_run",
				ResourceID:   runID,
				RequestID:    r.Header.Get("X-Request-Id"),
				IP:           requestIP(r.RemoteAddr),
				UserAgent:    r.UserAgent(),
				Payload: map[string]any{
					"service":           "report-ledger",
					"content_integrity": string(result.ContentIntegrity),
					"is_complete":       result.IsComplete,
				},
			})
		}
	}

	api.writeJSON(w, http.StatusOK, toVerificationResult(result))
}

func toReportRun(run domain.ReportRun) reportRun {
	return reportRun{
		RunID:          run.ID,
		OrganizationID: run.OrganizationID,
		JobID:          run.JobID,
		PacketType:     string(run.PacketType),
		BuilderVersion: run.BuilderVersion,
		Status:         string(run.Status),
		DataHash:       run.DataHash,
		GeneratedAt:    run.GeneratedAt,
		StoragePath:    run.StoragePath,
		ArtifactSHA256: run.ArtifactSHA256,
		CreatedBy:      run.CreatedBy,
	}
}

func toReportSignature(sig domain.ReportSignature) reportSignature {
	return reportSignature{
		SignatureID:   sig.ID,
		RunID:         sig.RunID,
		Role:          string(sig.Role),
		SignerName:    sig.SignerName,
		SignerTitle:   sig.SignerTitle,
		SignatureHash: sig.SignatureHash,
		SignedAt:      sig.SignedAt,
		RevokedAt:     sig.RevokedAt,
	}
}

func toVerificationResult(result domain.VerificationResult) verificationResult {
	checks := make([]signatureCheck, 0, len(result.Signatures))
	for _, c := range result.Signatures {
		checks = append(checks, signatureCheck{
			SignatureID: c.SignatureID,
			Role:        string(c.Role),
			SignerName:  c.SignerName,
			Verified:    c.Verified,
			Revoked:     c.Revoked,
		})
	}
	return verificationResult{
		RunID:            result.RunID,
		PacketType:       string(result.PacketType),
		BuilderVersion:   result.BuilderVersion,
		ContentIntegrity: string(result.ContentIntegrity),
		StoredHash:       result.StoredHash,
		ComputedHash:     result.ComputedHash,
		Signatures:       checks,
		RequiredRoles:    roleStrings(result.RequiredRoles),
		MissingRoles:     roleStrings(result.MissingRoles),
		IsComplete:       result.IsComplete,
		CheckedAt:        result.CheckedAt,
	}
}

func roleStrings(roles []domain.SignatureRole) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func buildAuditContext(r *http.Request, identity auth.Identity) reports.AuditContext {
	return reports.AuditContext{
		Actor:     strings.TrimSpace(identity.Subject),
		RequestID: r.Header.Get("X-Request-Id"),
		IP:        requestIP(r.RemoteAddr),
		UserAgent: r.UserAgent(),
		Path:      r.URL.Path,
		Service:   "report-ledger",
	}
}

func (api *reportLedgerAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *reportLedgerAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func requestIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
