package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/seowallet/internal/handlers/render"
	"github.com/nkiryanov/seowallet/internal/handlers/userctx"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	// Set by handlers when a failed mutation may have been applied anyway
	OutcomeUnknownHeader = "Outcome-Unknown"

	DefaultIdempotencyTTL = 24 * time.Hour

	idempotencyPrefix = "idempotency:v1:"
	inProgressMarker  = "__in_progress__"
	redisTimeout      = 2 * time.Second
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`

	OutcomeUnknown bool `json:"outcome_unknown,omitempty"`
}

type idempotencyLogger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// recordWriter passes the response through and keeps a copy of it
type recordWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

// Idempotency makes a mutating request safe to repeat with the same Idempotency-Key.
// The first request reserves the key, its final response is stored and replayed for repeats.
// A repeat arriving while the first one is still running gets 409.
// Server errors release the key so the client may retry, unless the outcome is unknown:
// a gateway timeout or a response marked with Outcome-Unknown is stored like any other.
// Keys are scoped by the authenticated owner, so it must be used after AuthMiddleware.
// Without a cache the middleware does nothing.
func Idempotency(cache *redis.Client, ttl time.Duration, l idempotencyLogger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}

	return func(next http.Handler) http.Handler {
		if cache == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				render.ServiceError(w, "Idempotency-Key header is required", http.StatusBadRequest)
				return
			}

			user, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			cacheKey := idempotencyPrefix + user.ID.String() + ":" + r.Method + ":" + r.URL.Path + ":" + key

			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), redisTimeout)
			defer cancel()

			reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
			if err != nil {
				l.Error("Idempotency reservation failed", "key", key, "error", err)
				render.ServiceError(w, "Idempotency store is unavailable", http.StatusServiceUnavailable)
				return
			}

			if !reserved {
				replay(ctx, w, cache, cacheKey, key, l)
				return
			}

			rw := &recordWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)

			ctx, cancel = context.WithTimeout(context.WithoutCancel(r.Context()), redisTimeout)
			defer cancel()

			if !keepKey(rw) {
				if err := cache.Del(ctx, cacheKey).Err(); err != nil {
					l.Error("Failed to release idempotency key", "key", key, "error", err)
				}
				return
			}

			payload, err := json.Marshal(storedResponse{
				Status:      rw.status,
				ContentType: rw.Header().Get("Content-Type"),
				Body:        rw.body.Bytes(),

				OutcomeUnknown: rw.status == http.StatusGatewayTimeout || rw.Header().Get(OutcomeUnknownHeader) == "true",
			})
			if err == nil {
				err = cache.Set(ctx, cacheKey, payload, ttl).Err()
			}
			if err != nil {
				// The response is already sent, a repeat will get 409 until the key expires
				l.Error("Failed to persist idempotent response", "key", key, "error", err)
			}
		})
	}
}

// The key survives every response except a server error known to have changed nothing
func keepKey(rw *recordWriter) bool {
	switch {
	case rw.status == 0:
		return false
	case rw.status == http.StatusGatewayTimeout:
		return true
	case rw.Header().Get(OutcomeUnknownHeader) == "true":
		return true
	default:
		return rw.status < http.StatusInternalServerError
	}
}

func replay(ctx context.Context, w http.ResponseWriter, cache *redis.Client, cacheKey string, key string, l idempotencyLogger) {
	cached, err := cache.Get(ctx, cacheKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Released by a failed first request right now
		render.ServiceError(w, "Duplicate request is being processed, retry later", http.StatusConflict)
		return
	case err != nil:
		l.Error("Idempotency lookup failed", "key", key, "error", err)
		render.ServiceError(w, "Idempotency store is unavailable", http.StatusServiceUnavailable)
		return
	case cached == inProgressMarker:
		render.ServiceError(w, "Duplicate request is being processed", http.StatusConflict)
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		l.Warn("Failed to decode stored idempotent response", "key", key, "error", err)
		render.ServiceError(w, "Duplicate request", http.StatusConflict)
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	if stored.OutcomeUnknown {
		w.Header().Set(OutcomeUnknownHeader, "true")
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}
