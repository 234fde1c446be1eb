package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/iho/bankledger/internal/usecase"
	"github.com/iho/bankledger/internal/usecase/mocks"
)

type fakeIdempotencyStore struct {
	checkAndSetFn func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	updateFn      func(ctx context.Context, key string, response []byte, ttl time.Duration) error
	released      []string
}

func (f *fakeIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	if f.checkAndSetFn != nil {
		return f.checkAndSetFn(ctx, key, response, ttl)
	}
	return false, nil, nil
}

func (f *fakeIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, key, response, ttl)
	}
	return nil
}

func (f *fakeIdempotencyStore) Release(ctx context.Context, key string) error {
	f.released = append(f.released, key)
	return nil
}

func idempotentRequest(method, path, key string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(`{}`))
	req.Header.Set(IdempotencyKeyHeader, key)
	return req
}

func TestIdempotencyMiddleware_StoreErrorFailsRequest(t *testing.T) {
	var called bool
	store := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			return false, nil, context.DeadlineExceeded
		},
	}
	mw := NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop())

	rr := httptest.NewRecorder()
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rr, idempotentRequest(http.MethodPost, "/api/transaction/transfer", "key-err"))

	if called {
		t.Fatalf("handler should not be called when store errors")
	}
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestIdempotencyMiddleware_ReleasesFailedResponses(t *testing.T) {
	var updated bool
	store := &fakeIdempotencyStore{
		updateFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) error {
			updated = true
			return nil
		},
	}
	mw := NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop())

	rr := httptest.NewRecorder()
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"insufficient funds"}`))
	})).ServeHTTP(rr, idempotentRequest(http.MethodPost, "/api/transaction/withdraw", "key-fail"))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
	if updated {
		t.Fatalf("failed responses must not be cached")
	}
	if len(store.released) != 1 {
		t.Fatalf("expected key to be released once, got %v", store.released)
	}
}

func TestIdempotencyMiddleware_CachesSuccessfulResponses(t *testing.T) {
	var stored []byte
	var storedTTL time.Duration
	store := &fakeIdempotencyStore{
		updateFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) error {
			stored = response
			storedTTL = ttl
			return nil
		},
	}
	mw := NewIdempotencyMiddleware(store, 2*time.Hour, zerolog.Nop())

	rr := httptest.NewRecorder()
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"A"}`))
	})).ServeHTTP(rr, idempotentRequest(http.MethodPost, "/api/accounts", "key-ok"))

	if rr.Code != http.StatusCreated || rr.Body.String() != `{"id":"A"}` {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
	if storedTTL != 2*time.Hour {
		t.Fatalf("expected configured TTL, got %v", storedTTL)
	}

	var cached cachedResponse
	if err := json.Unmarshal(stored, &cached); err != nil {
		t.Fatalf("stored response is not an envelope: %v", err)
	}
	if cached.Status != http.StatusCreated || string(cached.Body) != `{"id":"A"}` {
		t.Fatalf("unexpected envelope %+v", cached)
	}
	if len(store.released) != 0 {
		t.Fatalf("successful key must not be released")
	}
}

func TestIdempotencyMiddleware_ReplaysCachedResponse(t *testing.T) {
	envelope, _ := json.Marshal(cachedResponse{Status: http.StatusOK, Body: []byte(`{"message":"Deposit successful"}`)})
	store := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			return true, envelope, nil
		},
	}
	replays := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_idempotency_replays_total"})
	mw := NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop()).WithReplayCounter(replays)

	rr := httptest.NewRecorder()
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on replay")
	})).ServeHTTP(rr, idempotentRequest(http.MethodPost, "/api/transaction/deposit", "key-replay"))

	if rr.Code != http.StatusOK || rr.Body.String() != `{"message":"Deposit successful"}` {
		t.Fatalf("unexpected replay %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(IdempotencyReplayHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if got := testutil.ToFloat64(replays); got != 1 {
		t.Fatalf("expected one replay counted, got %v", got)
	}
}

func TestIdempotencyMiddleware_InFlightKeyConflicts(t *testing.T) {
	store := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			return true, []byte(usecase.IdempotencyProcessing), nil
		},
	}
	mw := NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop())

	rr := httptest.NewRecorder()
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run while the key is in flight")
	})).ServeHTTP(rr, idempotentRequest(http.MethodPost, "/api/transaction/deposit", "key-busy"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestIdempotencyMiddleware_ReleasesOnPanic(t *testing.T) {
	store := &fakeIdempotencyStore{}
	mw := NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop())

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})).ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPost, "/api/transaction/deposit", "key-panic"))
	}()

	if len(store.released) != 1 {
		t.Fatalf("expected key to be released after panic, got %v", store.released)
	}
}

func TestIdempotencyMiddleware_BypassesReadsAndMissingKeys(t *testing.T) {
	store := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			t.Fatal("store must not be consulted")
			return false, nil, nil
		},
	}
	mw := NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rr := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rr, idempotentRequest(http.MethodGet, "/api/accounts/A", "key"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/transaction/deposit", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestScopeKeySeparatesRoutes(t *testing.T) {
	deposit := scopeKey(httptest.NewRequest(http.MethodPost, "/api/transaction/deposit", nil), "k")
	withdraw := scopeKey(httptest.NewRequest(http.MethodPost, "/api/transaction/withdraw", nil), "k")

	if deposit == withdraw {
		t.Fatalf("expected different scoped keys, got %q", deposit)
	}
}

func TestIdempotencyMiddleware_RetryAfterFailureThenReplay(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop())

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Deposit successful"}`))
	}))

	statuses := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, idempotentRequest(http.MethodPost, "/api/transaction/deposit", "key-1"))
		statuses = append(statuses, last.Code)
	}

	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", calls)
	}
	if statuses[0] != http.StatusServiceUnavailable || statuses[1] != http.StatusOK || statuses[2] != http.StatusOK {
		t.Fatalf("unexpected statuses %v", statuses)
	}
	if last.Header().Get(IdempotencyReplayHeader) != "true" || last.Body.String() != `{"message":"Deposit successful"}` {
		t.Fatalf("third request was not a replay: %v %q", last.Header(), last.Body.String())
	}
}

func TestIdempotencyMiddleware_InFlightKeyConflictsWithMockStore(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop())

	if _, _, err := store.CheckAndSet(context.Background(), "POST /api/transaction/withdraw::key-2", nil, time.Hour); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run while the key is in flight")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, idempotentRequest(http.MethodPost, "/api/transaction/withdraw", "key-2"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestIdempotencyMiddleware_CacheFailureKeepsKeyReserved(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	store.UpdateFunc = func(ctx context.Context, key string, response []byte, ttl time.Duration) error {
		return errors.New("redis down")
	}
	mw := NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop())

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Deposit successful"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(http.MethodPost, "/api/transaction/deposit", "key-3"))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}

	retry := httptest.NewRecorder()
	handler.ServeHTTP(retry, idempotentRequest(http.MethodPost, "/api/transaction/deposit", "key-3"))
	if retry.Code != http.StatusConflict {
		t.Fatalf("expected retry to conflict with the held key, got %d", retry.Code)
	}
	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
}

func TestIdempotencyMiddleware_CacheFailureDoesNotRelease(t *testing.T) {
	store := &fakeIdempotencyStore{
		updateFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) error {
			return errors.New("redis down")
		},
	}
	mw := NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop())

	rr := httptest.NewRecorder()
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})).ServeHTTP(rr, idempotentRequest(http.MethodPost, "/api/accounts", "key-4"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if len(store.released) != 0 {
		t.Fatalf("a completed request must not release its key, released %v", store.released)
	}
}
