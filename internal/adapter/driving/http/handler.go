// Package httphandler is the HTTP driving adapter serving the notipi send API.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/notipi/internal/application"
)

// maxBodyBytes caps request bodies; bulk payloads are the largest legitimate case.
const maxBodyBytes = 1 << 20

// Options tunes request handling.
type Options struct {
	// TrustProxy keys the global rate window by the first X-Forwarded-For hop.
	TrustProxy bool
	// ExposeInternalErrors adds the internal error chain to 500 bodies.
	ExposeInternalErrors bool
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	gate    *application.CredentialGate
	limiter *application.RateLimiter
	sends   *application.SendService
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	gate *application.CredentialGate,
	limiter *application.RateLimiter,
	sends *application.SendService,
	opts Options,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		gate:    gate,
		limiter: limiter,
		sends:   sends,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// NewServeMux creates an http.Handler with all routes registered. Send routes
// pass global limit, authentication and the per-user limit in that order;
// bulk routes add the bulk limit last. metrics may be nil.
func NewServeMux(h *Handler, metrics http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	protected := func(next http.HandlerFunc) http.Handler {
		chain := h.rateLimitMiddleware(application.TierUser, h.ownerKey, next)
		chain = h.authMiddleware(chain)
		return h.rateLimitMiddleware(application.TierGlobal, globalKey, chain)
	}
	bulk := func(next http.HandlerFunc) http.Handler {
		chain := h.rateLimitMiddleware(application.TierBulk, h.ownerKey, next)
		chain = h.rateLimitMiddleware(application.TierUser, h.ownerKey, chain)
		chain = h.authMiddleware(chain)
		return h.rateLimitMiddleware(application.TierGlobal, globalKey, chain)
	}

	mux.Handle("POST /api/v1/send", protected(h.Send))
	mux.Handle("POST /api/send-email", protected(h.Send))
	mux.Handle("POST /api/v1/send-bulk", bulk(h.SendBulk))
	mux.Handle("POST /api/send-bulk-email", bulk(h.SendBulk))
	mux.Handle("GET /api/v1/queue-stats", protected(h.QueueStats))
	mux.HandleFunc("GET /api/v1/health", h.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Send queues a single message and returns its job id.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req sendRequest
	if !h.decode(w, r, &req) {
		return
	}

	jobID, err := h.sends.Send(r.Context(), id, req.toApplication())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SendResponse{JobID: jobID, Status: "queued"})
}

// SendBulk queues one job per valid recipient.
func (h *Handler) SendBulk(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req bulkSendRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.sends.SendBulk(r.Context(), id, req.toApplication())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBulkSendResponse(res))
}

// QueueStats returns the number of jobs in each state.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sends.QueueStats(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, QueueStatsResponse{
		Waiting:   stats.Waiting,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
	})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   h.now().UTC().Format(time.RFC3339),
	})
}

// decode reads a JSON body into v, writing a 400 and returning false when
// the body is malformed or too large.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
