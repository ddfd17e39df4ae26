package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldcert-labs/fieldcert-go/internal/payload"
	"github.com/fieldcert-labs/fieldcert-go/internal/platform/auth"
	"github.com/fieldcert-labs/fieldcert-go/internal/platform/env"
	"github.com/fieldcert-labs/fieldcert-go/internal/platform/httpserver"
	"github.com/fieldcert-labs/fieldcert-go/internal/platform/objectstore"
	"github.com/fieldcert-labs/fieldcert-go/internal/platform/postgres"
	"github.com/fieldcert-labs/fieldcert-go/internal/policy"
	repopg "github.com/fieldcert-labs/fieldcert-go/internal/repo/postgres"
	reportsvc "github.com/fieldcert-labs/fieldcert-go/internal/service/reports"
	verifysvc "github.com/fieldcert-labs/fieldcert-go/internal/service/verify"
	storageobjectstore "github.com/fieldcert-labs/fieldcert-go/internal/storage/objectstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("REPORT_LEDGER_HTTP_ADDR", ":8084")
	shutdownTimeout, err := env.Duration("REPORT_LEDGER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	internalAuthSecret := env.String("FIELDCERT_INTERNAL_AUTH_SECRET", "")
	headersAuth, err := auth.NewGatewayHeadersAuthenticator(internalAuthSecret)
	if err != nil {
		logger.Error("invalid internal auth config", "error", err)
		os.Exit(2)
	}

	signingSpec, err := policy.Load(env.String("REPORT_LEDGER_SIGNING_SPEC", ""))
	if err != nil {
		logger.Error("invalid signing spec", "error", err)
		os.Exit(2)
	}

	presignTTL, err := env.Duration("REPORT_LEDGER_ARTIFACT_PRESIGN_TTL", 10*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	putTimeout, err := env.Duration("REPORT_LEDGER_ARTIFACT_PUT_TIMEOUT", 30*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	putRetries, err := env.Int("REPORT_LEDGER_ARTIFACT_PUT_RETRIES", 3)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("report-ledger"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"report-ledger",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)

	runStore := repopg.NewReportRunStore(db)
	sigStore := repopg.NewSignatureStore(db)
	entityStore := repopg.NewEntityStore(db)
	auditAppender := repopg.NewAuditEventStore(db)
	builders := payload.NewRegistry()

	artifactStore, err := storageobjectstore.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("artifact object store init failed", "error", err)
		os.Exit(2)
	}

	svc, err := reportsvc.NewService(reportsvc.Config{
		Runs:       runStore,
		Signatures: sigStore,
		Entities:   entityStore,
		Builders:   builders,
		Signing:    signingSpec,
		Store:      artifactStore,
		Bucket:     storeCfg.BucketReports,
		PresignTTL: presignTTL,
		PutTimeout: putTimeout,
		PutRetries: putRetries,
		Audit:      auditAppender,
	})
	if err != nil {
		logger.Error("report service init failed", "error", err)
		os.Exit(2)
	}

	verifier, err := verifysvc.NewEngine(verifysvc.Config{
		Runs:       runStore,
		Signatures: sigStore,
		Entities:   entityStore,
		Builders:   builders,
		Signing:    signingSpec,
	})
	if err != nil {
		logger.Error("verification engine init failed", "error", err)
		os.Exit(2)
	}

	api := newReportLedgerAPI(logger, svc, verifier, auditAppender)
	api.register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: headersAuth,
		Authorize:     auth.MethodRoleAuthorizer("report.reader", "report.writer"),
		SkipPrefixes:  []string{"/healthz", "/readyz"},
	}.Wrap(mux)

	cfg := httpserver.Config{
		Service:         "report-ledger",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "report-ledger", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
