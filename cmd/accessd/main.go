// Command accessd runs the HSM key-log verifier and access key resolver as
// an HTTP service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmhodges/clock"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"hsmauthd/accesskey"
	"hsmauthd/accessverifier"
	"hsmauthd/audit"
	"hsmauthd/config"
	"hsmauthd/crypto"
	"hsmauthd/keylog"
	"hsmauthd/noncestore"
	"hsmauthd/observability/logging"
	telemetry "hsmauthd/observability/otel"
	"hsmauthd/server"
	"hsmauthd/storage"
)

func main() {
	env := strings.TrimSpace(os.Getenv("ACCESSD_ENV"))
	logging.Setup("accessd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "accessd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	hsmKeysStore, err := storage.NewRedisStore(cfg.Redis.Host, cfg.Redis.DBHSMKeys)
	if err != nil {
		log.Fatalf("hsm key-log store: %v", err)
	}
	accessKeysStore, err := storage.NewRedisStore(cfg.Redis.Host, cfg.Redis.DBAccessKeys)
	if err != nil {
		log.Fatalf("access key store: %v", err)
	}
	responseKeysStore, err := storage.NewRedisStore(cfg.Redis.Host, cfg.Redis.DBResponseKeys)
	if err != nil {
		log.Fatalf("response key store: %v", err)
	}
	revokedDevicesStore, err := storage.NewRedisStore(cfg.Redis.Host, cfg.Redis.DBRevokedDevices)
	if err != nil {
		log.Fatalf("revoked devices store: %v", err)
	}

	realClock := clock.New()

	keyLogVerifier := keylog.NewVerifier(hsmKeysStore, realClock, cfg.HSM.Identity, cfg.Lifetimes.VerificationWindow())

	accessKeys, err := accesskey.New(accesskey.Config{Store: accessKeysStore, KeyLog: keyLogVerifier, Clock: realClock})
	if err != nil {
		log.Fatalf("access key store: %v", err)
	}

	nonces := noncestore.New(realClock, cfg.Lifetimes.NonceLifetime())
	revocationChecker := accessverifier.NewStoreRevocationChecker(revokedDevicesStore)

	verifier := accessverifier.NewVerifier(keyLogVerifier, accessKeys, nonces, revocationChecker, realClock)

	responseKey, err := bootstrapResponseKey(context.Background(), responseKeysStore, cfg.HSM.Identity)
	if err != nil {
		log.Fatalf("bootstrap response key: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(envOr("AUDIT_DB_PATH", "accessd-audit.db")), &gorm.Config{})
	if err != nil {
		log.Fatalf("open audit database: %v", err)
	}
	if err := audit.AutoMigrate(db); err != nil {
		log.Fatalf("migrate audit database: %v", err)
	}
	auditLog := audit.NewLog(db)

	srv := server.New(server.Config{
		Verifier:    verifier,
		ResponseKey: responseKey,
		AuditLog:    auditLog,
	})

	addr := envOr("LISTEN_ADDRESS", ":8443")
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(srv, "accessd"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("accessd listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("serve: %v", err)
	}
}

// bootstrapResponseKey loads this server's response private key from the
// response-key database, generating and storing a fresh one on first boot.
// The key is stored as a hex-encoded scalar under a fixed name, with no
// expiry. Its public half is not written to the database, it is not
// chained through or authorized by the HSM key log, and identity is unused.
func bootstrapResponseKey(ctx context.Context, store storage.KeyValueStore, identity string) (*crypto.PrivateKey, error) {
	const secretKeyName = "response-key-secret"

	raw, err := store.Get(ctx, secretKeyName)
	if err == nil {
		return crypto.ParsePrivateKeyHex(string(raw))
	}
	if err != storage.ErrNotFound {
		return nil, fmt.Errorf("fetch existing response key: %w", err)
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate response key: %w", err)
	}
	if err := store.Set(ctx, secretKeyName, []byte(key.Hex())); err != nil {
		return nil, fmt.Errorf("persist response key: %w", err)
	}
	return key, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
