package httphandler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/notipi/internal/application"
	"github.com/ericfisherdev/notipi/internal/domain/model"
)

type ctxKey int

const identityKey ctxKey = iota

// withIdentity stores the resolved caller on the request context.
func withIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// identityFrom returns the caller resolved by authMiddleware, if any.
func identityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		}
		if id, ok := identityFrom(r.Context()); ok {
			attrs = append(attrs, "owner", id.Owner())
		}
		logger.Info("http request", attrs...)
	})
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the caller from x-api-key or a bearer session
// token. Nothing downstream runs for an unresolved caller.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := application.Credentials{APIKey: strings.TrimSpace(r.Header.Get("x-api-key"))}
		if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			creds.BearerToken = strings.TrimSpace(auth[7:])
		}

		id, err := h.gate.Resolve(r.Context(), creds)
		if err != nil {
			h.writeAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// rateLimitMiddleware charges one request against tier. keyFn picks the
// window key; the RateLimit-* headers describe the window after the hit.
func (h *Handler) rateLimitMiddleware(tier application.RateTier, keyFn func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := h.limiter.Allow(r.Context(), tier, keyFn(r))
		if decision.Limit > 0 {
			w.Header().Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("RateLimit-Reset", strconv.Itoa(application.RetryAfterSeconds(decision.Reset)))
		}
		if err != nil {
			h.writeAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// globalKey puts every request into one shared window, whoever sent it.
func globalKey(*http.Request) string { return "all" }

// clientKey identifies an anonymous caller by client address.
func (h *Handler) clientKey(r *http.Request) string {
	if h.opts.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ownerKey keys per-user windows by owner, falling back to the client
// address for anonymous requests.
func (h *Handler) ownerKey(r *http.Request) string {
	if id, ok := identityFrom(r.Context()); ok {
		return id.Owner()
	}
	return h.clientKey(r)
}
