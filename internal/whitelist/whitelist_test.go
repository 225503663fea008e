package whitelist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/welldanyogia/replydesk/backend/internal/api"
	appctx "github.com/welldanyogia/replydesk/backend/internal/context"
	"github.com/welldanyogia/replydesk/backend/internal/logger"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
)

// mockStore is an in-memory Store enforcing (user, address) uniqueness
type mockStore struct {
	mu      sync.Mutex
	entries []repository.WhitelistEntry
	err     error
}

func (m *mockStore) Add(ctx context.Context, userID uuid.UUID, address string) (*repository.WhitelistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	address = repository.NormalizeAddress(address)
	for _, e := range m.entries {
		if e.UserID == userID && e.EmailAddress == address {
			return nil, repository.ErrAlreadyWhitelisted
		}
	}
	e := repository.WhitelistEntry{ID: uuid.New(), UserID: userID, EmailAddress: address, CreatedAt: time.Now()}
	m.entries = append(m.entries, e)
	return &e, nil
}

func (m *mockStore) Remove(ctx context.Context, userID uuid.UUID, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.UserID == userID && e.EmailAddress == repository.NormalizeAddress(address) {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return repository.ErrWhitelistEntryNotFound
}

func (m *mockStore) List(ctx context.Context, userID uuid.UUID) ([]repository.WhitelistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []repository.WhitelistEntry{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *mockStore) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	var n int64
	for _, e := range m.entries {
		if e.UserID == userID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n, nil
}

func (m *mockStore) countFor(userID uuid.UUID, address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.UserID == userID && e.EmailAddress == address {
			n++
		}
	}
	return n
}

// fakeAuth injects a fixed user into the request context
func fakeAuth(userID uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(appctx.WithUser(r.Context(), userID.String(), "u@x.com")))
		})
	}
}

func newRouter(store *mockStore, userID uuid.UUID) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(NewService(store, logger.Discard()), logger.Discard()), fakeAuth(userID))
	return r
}

func do(h http.Handler, method, path, body string) (*httptest.ResponseRecorder, api.APIResponse) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp api.APIResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestAddAndList(t *testing.T) {
	userID := uuid.New()
	store := &mockStore{}
	h := newRouter(store, userID)

	rec, resp := do(h, http.MethodPost, "/auto-reply/whitelist", `{"email_address":"  Friend@Example.COM "}`)
	if rec.Code != http.StatusCreated || !resp.Success {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.countFor(userID, "friend@example.com") != 1 {
		t.Errorf("Expected lowercased entry to be stored")
	}

	do(h, http.MethodPost, "/auto-reply/whitelist", `{"email_address":"second@example.com"}`)

	rec, _ = do(h, http.MethodGet, "/auto-reply/whitelist", "")
	var body struct {
		Data struct {
			Entries []repository.WhitelistEntry `json:"entries"`
			Total   int                         `json:"total"`
		} `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data.Total != 2 || body.Data.Entries[0].EmailAddress != "second@example.com" {
		t.Errorf("Expected newest first, got %+v", body.Data)
	}
}

func TestAddDuplicate(t *testing.T) {
	userID := uuid.New()
	store := &mockStore{}
	h := newRouter(store, userID)

	do(h, http.MethodPost, "/auto-reply/whitelist", `{"email_address":"dup@example.com"}`)
	rec, resp := do(h, http.MethodPost, "/auto-reply/whitelist", `{"email_address":"DUP@example.com"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != CodeAlreadyWhitelisted {
		t.Errorf("Expected %s, got %+v", CodeAlreadyWhitelisted, resp.Error)
	}
	if n := store.countFor(userID, "dup@example.com"); n != 1 {
		t.Errorf("Expected exactly one row, got %d", n)
	}
}

func TestAddTrimsBeforeValidating(t *testing.T) {
	userID := uuid.New()
	store := &mockStore{}
	h := newRouter(store, userID)

	for _, body := range []string{
		`{"email_address":" friend@example.com"}`,
		`{"email_address":"other@example.com\t"}`,
		`{"email_address":"\n  THIRD@Example.com  "}`,
	} {
		rec, resp := do(h, http.MethodPost, "/auto-reply/whitelist", body)
		if rec.Code != http.StatusCreated || !resp.Success {
			t.Errorf("body %s: expected 201, got %d: %s", body, rec.Code, rec.Body.String())
		}
	}
	for _, address := range []string{"friend@example.com", "other@example.com", "third@example.com"} {
		if store.countFor(userID, address) != 1 {
			t.Errorf("Expected %s stored normalized", address)
		}
	}

	rec, resp := do(h, http.MethodPost, "/auto-reply/whitelist", `{"email_address":"   "}`)
	if rec.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != api.CodeValidationError {
		t.Errorf("Expected 400 for a blank address, got %d", rec.Code)
	}
}

func TestAddValidation(t *testing.T) {
	h := newRouter(&mockStore{}, uuid.New())

	tests := []struct {
		name string
		body string
	}{
		{"missing", `{}`},
		{"not an email", `{"email_address":"nope"}`},
		{"malformed json", `{"email_address":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(h, http.MethodPost, "/auto-reply/whitelist", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rec.Code)
			}
			if resp.Error == nil || resp.Error.Code != api.CodeValidationError {
				t.Errorf("Expected validation error, got %+v", resp.Error)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	userID := uuid.New()
	store := &mockStore{}
	h := newRouter(store, userID)

	do(h, http.MethodPost, "/auto-reply/whitelist", `{"email_address":"bye@example.com"}`)

	rec, _ := do(h, http.MethodDelete, "/auto-reply/whitelist/bye%40example.com", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.countFor(userID, "bye@example.com") != 0 {
		t.Errorf("Expected entry removed")
	}

	rec, resp := do(h, http.MethodDelete, "/auto-reply/whitelist/bye@example.com", "")
	if rec.Code != http.StatusNotFound || resp.Error.Code != CodeEntryNotFound {
		t.Errorf("Expected 404 for missing entry, got %d", rec.Code)
	}
}

func TestClearOnlyTouchesCaller(t *testing.T) {
	userID, other := uuid.New(), uuid.New()
	store := &mockStore{}
	store.Add(context.Background(), other, "keep@example.com")
	h := newRouter(store, userID)

	do(h, http.MethodPost, "/auto-reply/whitelist", `{"email_address":"a@example.com"}`)
	do(h, http.MethodPost, "/auto-reply/whitelist", `{"email_address":"b@example.com"}`)

	rec, _ := do(h, http.MethodDelete, "/auto-reply/whitelist", "")
	var body struct {
		Data struct {
			Removed int64 `json:"removed"`
		} `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data.Removed != 2 {
		t.Errorf("Expected 2 removed, got %d", body.Data.Removed)
	}
	if store.countFor(other, "keep@example.com") != 1 {
		t.Errorf("Expected other user's entry untouched")
	}
}

func TestStoreFailure(t *testing.T) {
	h := newRouter(&mockStore{err: errors.New("db down")}, uuid.New())
	rec, resp := do(h, http.MethodPost, "/auto-reply/whitelist", `{"email_address":"a@example.com"}`)
	if rec.Code != http.StatusInternalServerError || resp.Error.Code != api.CodeInternalError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

func TestMissingUser(t *testing.T) {
	r := chi.NewRouter()
	noAuth := func(next http.Handler) http.Handler { return next }
	RegisterRoutes(r, NewHandler(NewService(&mockStore{}, nil), nil), noAuth)

	rec, _ := do(r, http.MethodGet, "/auto-reply/whitelist", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without user context, got %d", rec.Code)
	}
}

// Adding the same address any number of times, in any case, leaves one row
func TestProperty_DuplicateAddsKeepOneRow(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		userID := uuid.New()
		store := &mockStore{}
		svc := NewService(store, logger.Discard())

		local := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "local")
		address := local + "@example.com"
		attempts := rapid.IntRange(2, 6).Draw(rt, "attempts")

		for i := 0; i < attempts; i++ {
			variant := address
			if rapid.Bool().Draw(rt, "upper") {
				variant = strings.ToUpper(address)
			}
			_, err := svc.Add(context.Background(), userID, variant)
			if i == 0 && err != nil {
				rt.Fatalf("first add failed: %v", err)
			}
			if i > 0 && !errors.Is(err, ErrAlreadyWhitelisted) {
				rt.Fatalf("Expected ErrAlreadyWhitelisted on attempt %d, got %v", i, err)
			}
		}
		if n := store.countFor(userID, address); n != 1 {
			rt.Fatalf("Expected one row, got %d", n)
		}
	})
}
