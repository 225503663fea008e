package sentmail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/welldanyogia/replydesk/backend/internal/api"
	appctx "github.com/welldanyogia/replydesk/backend/internal/context"
	"github.com/welldanyogia/replydesk/backend/internal/logger"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
)

type mockStore struct {
	mails []repository.SentMail
	last  repository.ListSentMailParams
	err   error
}

func (m *mockStore) List(ctx context.Context, params repository.ListSentMailParams) ([]repository.SentMail, error) {
	m.last = params
	if m.err != nil {
		return nil, m.err
	}
	return m.mails, nil
}

func (m *mockStore) GetByMessageID(ctx context.Context, messageID string) (*repository.SentMail, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.mails {
		if m.mails[i].MessageID == messageID {
			return &m.mails[i], nil
		}
	}
	return nil, repository.ErrSentMailNotFound
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

func get(h http.Handler, target string) (*httptest.ResponseRecorder, api.APIResponse) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var resp api.APIResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestListPassesFilters(t *testing.T) {
	store := &mockStore{mails: []repository.SentMail{{MessageID: "<a@x>", Type: repository.SentMailTypeAutoReply}}}
	rec, _ := get(newRouter(store), "/emails/sent?type=auto-reply&status=delivered&thread_id=t1&limit=10")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	want := repository.ListSentMailParams{
		Type:     repository.SentMailTypeAutoReply,
		Status:   repository.SentMailStatusDelivered,
		ThreadID: "t1",
		Limit:    10,
	}
	if store.last != want {
		t.Errorf("Expected %+v, got %+v", want, store.last)
	}

	var body struct {
		Data struct {
			Emails []repository.SentMail `json:"emails"`
			Total  int                   `json:"total"`
		} `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data.Total != 1 || body.Data.Emails[0].MessageID != "<a@x>" {
		t.Errorf("unexpected body %+v", body.Data)
	}
}

func TestListLimitBounds(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", repository.DefaultSentMailLimit},
		{"?limit=0", repository.DefaultSentMailLimit},
		{"?limit=-3", repository.DefaultSentMailLimit},
		{"?limit=500", repository.MaxSentMailLimit},
		{"?limit=200", 200},
	}
	for _, tt := range tests {
		store := &mockStore{}
		get(newRouter(store), "/emails/sent"+tt.query)
		if store.last.Limit != tt.want {
			t.Errorf("query %q: expected limit %d, got %d", tt.query, tt.want, store.last.Limit)
		}
	}
}

func TestListRejectsBadFilters(t *testing.T) {
	for _, q := range []string{"?type=bulk", "?status=bounced", "?limit=ten"} {
		rec, resp := get(newRouter(&mockStore{}), "/emails/sent"+q)
		if rec.Code != http.StatusBadRequest || resp.Error.Code != api.CodeValidationError {
			t.Errorf("query %q: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestGetByMessageID(t *testing.T) {
	store := &mockStore{mails: []repository.SentMail{{MessageID: "<a@x>"}}}
	h := newRouter(store)

	rec, _ := get(h, "/emails/sent/%3Ca@x%3E")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, resp := get(h, "/emails/sent/missing")
	if rec.Code != http.StatusNotFound || resp.Error.Code != CodeSentMailNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestStoreFailure(t *testing.T) {
	rec, _ := get(newRouter(&mockStore{err: errors.New("db down")}), "/emails/sent")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}
