package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/welldanyogia/replydesk/backend/internal/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", AccessToken: "ee-token"}, logger.Discard())
}

func TestSearchByThread(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/account/me@x.com/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("path") != `\All` {
			t.Errorf("unexpected mailbox path %q", r.URL.Query().Get("path"))
		}
		if r.Header.Get("Authorization") != "Bearer ee-token" {
			t.Errorf("missing bearer token")
		}

		var body struct {
			Search struct {
				ThreadID string `json:"threadId"`
			} `json:"search"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Search.ThreadID != "t1" {
			t.Errorf("Expected threadId t1, got %q", body.Search.ThreadID)
		}

		w.Write([]byte(`{"total":1,"messages":[{"id":"m1","subject":"Hi","date":"2026-01-02T10:00:00Z","from":{"name":"Ann","address":"ann@y.com"},"text":{"id":"txt1"}}]}`))
	})

	msgs, err := client.SearchByThread(context.Background(), "me@x.com", "t1")
	if err != nil {
		t.Fatalf("SearchByThread failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ContentID() != "txt1" {
		t.Errorf("Expected content id txt1, got %s", msgs[0].ContentID())
	}
	if msgs[0].Time().IsZero() {
		t.Error("Expected parsed date")
	}
}

func TestFetchContentError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Message not found"}`))
	})

	_, err := client.FetchContent(context.Background(), "me@x.com", "missing")
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("Expected ErrRequestFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Message not found") {
		t.Errorf("Expected gateway message in error, got %v", err)
	}
}

func TestSubmitReply(t *testing.T) {
	var got submitPayload
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/account/me@x.com/submit" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"messageId":"<out-1@x.com>","queueId":"q1","sentAt":"2026-01-02T10:00:00Z"}`))
	})

	results, err := client.Submit(context.Background(), "me@x.com", SubmitRequest{
		To:        []string{"ann@y.com"},
		Subject:   "Re: Hi",
		Text:      "Thanks!",
		HTML:      "<p>Thanks!</p>",
		Reference: &Reference{Message: "m1", Action: ActionReply},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(results) != 1 || !results[0].OK() || results[0].ID != "<out-1@x.com>" {
		t.Fatalf("unexpected results %+v", results)
	}
	if got.Reference == nil || got.Reference.Message != "m1" || got.Reference.Action != "reply" {
		t.Errorf("Expected reply reference, got %+v", got.Reference)
	}
	if got.Gateway != "me@x.com" || got.From != nil {
		t.Errorf("Expected gateway routing, got gateway=%q from=%v", got.Gateway, got.From)
	}
	if !got.TrackOpens {
		t.Error("Expected open tracking to be enabled")
	}
}

func TestSubmitMicrosoftSenderUsesFrom(t *testing.T) {
	var got submitPayload
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"messageId":"x"}`))
	})

	if _, err := client.Submit(context.Background(), "me@Outlook.com", SubmitRequest{To: []string{"a@b.com"}}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got.From == nil || got.From.Address != "me@Outlook.com" || got.Gateway != "" {
		t.Errorf("Expected explicit from for outlook sender, got %+v", got)
	}
}

func TestSubmitPerRecipientFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var p submitPayload
		json.NewDecoder(r.Body).Decode(&p)
		if p.To[0].Address == "bad@y.com" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"invalid recipient"}`))
			return
		}
		w.Write([]byte(`{"messageId":"ok"}`))
	})

	results, err := client.Submit(context.Background(), "me@x.com", SubmitRequest{To: []string{"bad@y.com", "good@y.com"}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if results[0].OK() || !strings.Contains(results[0].Error, "invalid recipient") {
		t.Errorf("Expected first recipient to fail, got %+v", results[0])
	}
	if !results[1].OK() {
		t.Errorf("Expected second recipient to succeed, got %+v", results[1])
	}
	if !results[0].Rejected || results[1].Rejected {
		t.Errorf("Expected only the refused recipient marked rejected, got %+v", results)
	}
}

func TestSubmitTimeoutIsNotRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"messageId":"late"}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results, err := client.Submit(ctx, "me@x.com", SubmitRequest{To: []string{"a@y.com"}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(results) != 1 || results[0].OK() {
		t.Fatalf("Expected one failed result, got %+v", results)
	}
	if results[0].Rejected {
		t.Errorf("Expected a timed out submit not to count as a rejection")
	}
}

func TestContextTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.SearchByThread(ctx, "me@x.com", "t1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	client := NewClient(Config{}, nil)
	if _, err := client.FetchContent(context.Background(), "a", "b"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestSenderLabel(t *testing.T) {
	cases := []struct {
		from *Address
		want string
	}{
		{nil, "Unknown"},
		{&Address{Name: "Ann", Address: "ann@y.com"}, "Ann"},
		{&Address{Address: "ann@y.com"}, "ann@y.com"},
		{&Address{}, "Unknown"},
	}
	for _, c := range cases {
		if got := (MessageSummary{From: c.from}).SenderLabel(); got != c.want {
			t.Errorf("SenderLabel(%+v) = %q, want %q", c.from, got, c.want)
		}
	}
}

func TestCreateGateway(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/gateway" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body CreateGatewayRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Gateway != "me@x.com" || body.Host != "smtp.gmail.com" || body.Port != 587 {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write([]byte(`{"gateway":"me@x.com","state":"new"}`))
	})

	resp, err := client.CreateGateway(context.Background(), CreateGatewayRequest{
		Gateway: "me@x.com",
		Name:    "Gmail",
		User:    "me@x.com",
		Pass:    "secret",
		Host:    "smtp.gmail.com",
		Port:    587,
	})
	if err != nil {
		t.Fatalf("CreateGateway failed: %v", err)
	}
	if resp.Gateway != "me@x.com" {
		t.Errorf("Expected gateway id me@x.com, got %q", resp.Gateway)
	}
}

func TestCreateAccountOAuth2Redirect(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body CreateAccountRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.OAuth2 == nil || !body.OAuth2.Authorize || body.IMAP != nil {
			t.Errorf("Expected oauth2-only account body, got %+v", body)
		}
		w.Write([]byte(`{"account":"me@outlook.com","state":"new","redirect":"https://login.example/consent"}`))
	})

	resp, err := client.CreateAccount(context.Background(), CreateAccountRequest{
		Account: "me@outlook.com",
		Email:   "me@outlook.com",
		OAuth2:  &OAuth2Settings{Authorize: true, RedirectURL: "http://localhost/cb", Provider: "microsoft"},
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if resp.Redirect != "https://login.example/consent" {
		t.Errorf("Expected redirect to be decoded, got %q", resp.Redirect)
	}
}

func TestListMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/account/me@x.com/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("path") != `\All` || q.Get("page") != "2" || q.Get("pageSize") != "10" {
			t.Errorf("unexpected query %v", q)
		}
		w.Write([]byte(`{"total":21,"page":2,"pages":3,"messages":[{"id":"m21","subject":"Last"}]}`))
	})

	list, err := client.ListMessages(context.Background(), "me@x.com", 2, 10)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if list.Total != 21 || list.Pages != 3 || len(list.Messages) != 1 || list.Messages[0].ID != "m21" {
		t.Errorf("unexpected list %+v", list)
	}
}
