package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/iho/bankledger/internal/usecase"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency keys.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyReplayHeader marks a response served from the cache.
	IdempotencyReplayHeader = "X-Idempotency-Replay"

	maxIdempotencyKeyLength = 255
)

// cachedResponse is what gets stored for a completed request.
type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// IdempotencyMiddleware replays successful responses for repeated
// Idempotency-Key values.
type IdempotencyMiddleware struct {
	store   usecase.IdempotencyStore
	ttl     time.Duration
	replays prometheus.Counter
	logger  zerolog.Logger
}

// NewIdempotencyMiddleware creates a new IdempotencyMiddleware.
func NewIdempotencyMiddleware(store usecase.IdempotencyStore, ttl time.Duration, logger zerolog.Logger) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = usecase.IdempotencyKeyTTL
	}
	return &IdempotencyMiddleware{store: store, ttl: ttl, logger: logger}
}

// WithReplayCounter counts replayed responses on c.
func (m *IdempotencyMiddleware) WithReplayCounter(c prometheus.Counter) *IdempotencyMiddleware {
	m.replays = c
	return m
}

// Wrap wraps an http.Handler with idempotency checking.
func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}

		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			writeError(w, http.StatusBadRequest, "idempotency key too long")
			return
		}

		scoped := scopeKey(r, key)
		ctx := r.Context()

		exists, stored, err := m.store.CheckAndSet(ctx, scoped, nil, m.ttl)
		if err != nil {
			m.logger.Error().Err(err).Str("idempotency_key", key).Msg("idempotency check failed")
			writeError(w, http.StatusInternalServerError, "idempotency check failed")
			return
		}

		if exists {
			m.replay(w, key, stored)
			return
		}

		storeCtx := context.WithoutCancel(ctx)
		completed := false
		defer func() {
			if !completed {
				m.release(storeCtx, scoped, key)
			}
		}()

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		body := &bytes.Buffer{}
		ww.Tee(body)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status < 200 || status >= 300 {
			return
		}

		// The request took effect. Keep the key held even if the response
		// cannot be cached; retries then see 409 until the TTL expires.
		completed = true

		data, err := json.Marshal(cachedResponse{Status: status, Body: body.Bytes()})
		if err != nil {
			m.logger.Error().Err(err).Str("idempotency_key", key).Msg("failed to encode idempotent response")
			return
		}
		if err := m.store.Update(storeCtx, scoped, data, m.ttl); err != nil {
			m.logger.Error().Err(err).Str("idempotency_key", key).Msg("failed to store idempotent response; key stays reserved")
		}
	})
}

func (m *IdempotencyMiddleware) replay(w http.ResponseWriter, key string, stored []byte) {
	if string(stored) == usecase.IdempotencyProcessing {
		writeError(w, http.StatusConflict, "a request with this idempotency key is still being processed")
		return
	}

	var cached cachedResponse
	if err := json.Unmarshal(stored, &cached); err != nil || cached.Status == 0 {
		m.logger.Error().Err(err).Str("idempotency_key", key).Msg("unreadable idempotency record")
		writeError(w, http.StatusInternalServerError, "idempotency record unreadable")
		return
	}

	if m.replays != nil {
		m.replays.Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(IdempotencyReplayHeader, "true")
	w.WriteHeader(cached.Status)
	w.Write(cached.Body)
}

// release frees a reservation so the key can be retried.
func (m *IdempotencyMiddleware) release(ctx context.Context, scoped, key string) {
	if err := m.store.Release(ctx, scoped); err != nil {
		m.logger.Warn().Err(err).Str("idempotency_key", key).Msg("failed to release idempotency key")
	}
}

// scopeKey binds key to the route and caller so one key cannot replay
// another endpoint's response.
func scopeKey(r *http.Request, key string) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(r.URL.Path)
	b.WriteByte(':')
	if user, ok := GetUserFromContext(r.Context()); ok {
		b.WriteString(user.ID)
	}
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}
