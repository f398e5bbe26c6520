// Package server exposes the access verification chain over HTTP: a thin
// boundary around accessverifier.Verifier, the core of this system.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hsmauthd/accessverifier"
	"hsmauthd/audit"
	"hsmauthd/crypto"
	"hsmauthd/observability"
	"hsmauthd/verifyerr"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Verifier   *accessverifier.Verifier
	ResponseKey *crypto.PrivateKey
	AuditLog   *audit.Log
	Now        func() time.Time
}

// Server wires the access verification chain to an HTTP boundary.
type Server struct {
	verifier    *accessverifier.Verifier
	responseKey *crypto.PrivateKey
	audit       *audit.Log
	now         func() time.Time

	router http.Handler
}

// New builds a Server from cfg.
func New(cfg Config) *Server {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		verifier:    cfg.Verifier,
		responseKey: cfg.ResponseKey,
		audit:       cfg.AuditLog,
		now:         now,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/access-keys/resolve", s.handleResolve)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type resolveRequest struct {
	Nonce                   string `json:"nonce"`
	AccessPublicKeyIdentity string `json:"accessPublicKeyIdentity"`
	Token                   string `json:"token"`
	RequestPayload          string `json:"requestPayload"`
	Signature               string `json:"signature"`
}

type resolveResponseBody struct {
	DeviceID string `json:"deviceId"`
	Allowed  bool   `json:"allowed"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	start := s.now()

	var body resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeDenied(w, r.Context(), "", verifyerr.New(verifyerr.KindMalformedInput, "server.bad_json", err))
		return
	}

	req := accessverifier.Request{
		Nonce:                   body.Nonce,
		AccessPublicKeyIdentity: body.AccessPublicKeyIdentity,
		TokenBlob:               body.Token,
		RequestPayload:          []byte(body.RequestPayload),
		Signature:               body.Signature,
	}

	token, err := s.verifier.VerifyRequest(r.Context(), req)
	deviceID := ""
	if token != nil {
		deviceID = token.DeviceID
	}

	observability.Verify().ObserveLatency(s.now().Sub(start))

	if err != nil {
		s.writeDenied(w, r.Context(), deviceID, err)
		return
	}

	observability.Verify().RecordOutcome(true, "")
	s.appendAudit(r.Context(), deviceID, token, audit.OutcomeAllowed, "", "")

	respBody := resolveResponseBody{DeviceID: deviceID, Allowed: true}
	resp, signErr := accessverifier.Sign(respBody, s.responseKey)
	if signErr != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// writeDenied logs, records metrics and the audit trail for, and responds
// to a failed verification. Every denial reply is the same generic 500
// regardless of kind, per the disposition table: the caller never learns
// which check failed.
func (s *Server) writeDenied(w http.ResponseWriter, ctx context.Context, deviceID string, err error) {
	kind := string(verifyerr.KindOf(err))
	code := ""
	if ve, ok := verifyerr.As(err); ok {
		code = ve.Code
	}

	level := slog.LevelWarn
	switch verifyerr.KindOf(err) {
	case verifyerr.KindMalformedInput, verifyerr.KindTransientIO:
		level = slog.LevelError
	case verifyerr.KindReplay, verifyerr.KindRevoked:
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, "verification denied", "kind", kind, "code", code)

	observability.Verify().RecordOutcome(false, kind)
	s.appendAudit(ctx, deviceID, nil, audit.OutcomeDenied, kind, code)

	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) appendAudit(ctx context.Context, deviceID string, token *accessverifier.AccessToken, outcome audit.Outcome, kind, code string) {
	if s.audit == nil {
		return
	}
	rec := audit.Record{
		DeviceID: deviceID,
		Outcome:  outcome,
		ErrorKind: kind,
		ErrorCode: code,
	}
	if token != nil {
		rec.HSMIdentity = token.HSMIdentity
		rec.HSMGenerationID = token.HSMGenerationID
	}
	_ = s.audit.Append(ctx, rec)
}
