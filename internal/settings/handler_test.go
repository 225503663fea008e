package settings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appctx "github.com/welldanyogia/replydesk/backend/internal/context"
	"github.com/welldanyogia/replydesk/backend/internal/logger"
)

// mockStore keeps the toggle in memory; a nil value means the row is absent
type mockStore struct {
	value *bool
	err   error
}

func (m *mockStore) AutoReplyEnabled(ctx context.Context) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.value != nil && *m.value, nil
}

func (m *mockStore) SetAutoReplyEnabled(ctx context.Context, enabled bool) error {
	if m.err != nil {
		return m.err
	}
	m.value = &enabled
	return nil
}

func newRouter(store Store) http.Handler {
	userID := uuid.New().String()
	auth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(appctx.WithUser(r.Context(), userID, "u@x.com")))
		})
	}
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(store, logger.Discard()), auth)
	return r
}

type toggleBody struct {
	Success bool `json:"success"`
	Data    struct {
		Enabled bool `json:"enabled"`
	} `json:"data"`
}

func request(h http.Handler, method, body string) (int, toggleBody) {
	req := httptest.NewRequest(method, "/auto-reply/toggle", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out toggleBody
	json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func TestToggleDefaultsToDisabled(t *testing.T) {
	code, body := request(newRouter(&mockStore{}), http.MethodGet, "")
	if code != http.StatusOK || !body.Success || body.Data.Enabled {
		t.Fatalf("Expected disabled by default, got %d %+v", code, body)
	}
}

func TestToggleRoundTrip(t *testing.T) {
	store := &mockStore{}
	h := newRouter(store)

	code, body := request(h, http.MethodPost, `{"enabled":true}`)
	if code != http.StatusOK || !body.Data.Enabled {
		t.Fatalf("Expected enabled, got %d %+v", code, body)
	}

	_, body = request(h, http.MethodGet, "")
	if !body.Data.Enabled {
		t.Errorf("Expected persisted value to be read back")
	}

	request(h, http.MethodPost, `{"enabled":false}`)
	_, body = request(h, http.MethodGet, "")
	if body.Data.Enabled {
		t.Errorf("Expected disabled after second toggle")
	}
}

func TestToggleRejectsNonBoolean(t *testing.T) {
	store := &mockStore{}
	for _, body := range []string{`{"enabled":"yes"}`, `{}`, `{"enabled":1}`, `nope`} {
		code, _ := request(newRouter(store), http.MethodPost, body)
		if code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, code)
		}
	}
	if store.value != nil {
		t.Errorf("Expected nothing persisted")
	}
}

func TestToggleStoreFailure(t *testing.T) {
	code, _ := request(newRouter(&mockStore{err: errors.New("db down")}), http.MethodGet, "")
	if code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", code)
	}
}
