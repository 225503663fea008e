package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type flag bool

func (f flag) IsConfigured() bool { return bool(f) }

func up() Pinger   { return PingFunc(func(ctx context.Context) error { return nil }) }
func down() Pinger { return PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }) }

func call(h http.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		code   int
		status string
	}{
		{"all up", Config{Database: up(), Redis: up(), Gateway: flag(true), Completion: flag(true)}, http.StatusOK, "healthy"},
		{"redis optional", Config{Database: up(), Gateway: flag(true), Completion: flag(true)}, http.StatusOK, "healthy"},
		{"database down", Config{Database: down(), Gateway: flag(true), Completion: flag(true)}, http.StatusServiceUnavailable, "degraded"},
		{"redis down", Config{Database: up(), Redis: down(), Gateway: flag(true), Completion: flag(true)}, http.StatusServiceUnavailable, "degraded"},
		{"completion missing", Config{Database: up(), Gateway: flag(true), Completion: flag(false)}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := call(NewHandler(tt.cfg).Health)
			if rec.Code != tt.code || body["status"] != tt.status {
				t.Errorf("Expected %d %s, got %d %v", tt.code, tt.status, rec.Code, body["status"])
			}
		})
	}
}

func TestHealthReportsServices(t *testing.T) {
	_, body := call(NewHandler(Config{Database: down(), Gateway: flag(false)}).Health)
	services := body["services"].(map[string]any)

	db := services["database"].(map[string]any)
	if db["status"] != StatusDown || db["error"] != "connection refused" {
		t.Errorf("unexpected database status %v", db)
	}
	if services["gateway"].(map[string]any)["status"] != StatusNotConfigured {
		t.Errorf("Expected gateway not_configured")
	}
	if _, ok := services["redis"]; ok {
		t.Errorf("Expected redis omitted when not configured")
	}
}

func TestReadiness(t *testing.T) {
	h := NewHandler(Config{Database: up()})
	if rec, _ := call(h.Readiness); rec.Code != http.StatusOK {
		t.Errorf("Expected ready, got %d", rec.Code)
	}

	h.SetReady(false)
	if rec, body := call(h.Readiness); rec.Code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Errorf("Expected not ready during shutdown, got %d", rec.Code)
	}

	if rec, _ := call(NewHandler(Config{Database: down()}).Readiness); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected not ready with database down, got %d", rec.Code)
	}
}

func TestLiveness(t *testing.T) {
	rec, body := call(NewHandler(Config{}).Liveness)
	if rec.Code != http.StatusOK || body["alive"] != true {
		t.Errorf("Expected alive, got %d %v", rec.Code, body)
	}
}
