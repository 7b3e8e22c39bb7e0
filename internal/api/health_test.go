package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
)

func healthApp(h *HealthHandler) *fiber.App {
	app := fiber.New()
	app.Get("/health", h.Health)
	return app
}

func TestHealth_NoBackends(t *testing.T) {
	t.Parallel()
	app := healthApp(NewHealthHandler(nil, nil))

	resp := doReq(t, app, jsonReq(http.MethodGet, "/health", ""))
	wantStatus(t, resp, http.StatusOK)

	var data map[string]string
	if err := json.Unmarshal(parseSuccess(t, readBody(t, resp)).Data, &data); err != nil {
		t.Fatalf("unmarshal health payload: %v", err)
	}
	if data["status"] != "ok" || data["postgres"] != "disabled" || data["valkey"] != "disabled" {
		t.Errorf("health = %v", data)
	}
}

func TestHealth_Valkey(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := healthApp(NewHealthHandler(nil, rdb))

	resp := doReq(t, app, jsonReq(http.MethodGet, "/health", ""))
	wantStatus(t, resp, http.StatusOK)

	var data map[string]string
	if err := json.Unmarshal(parseSuccess(t, readBody(t, resp)).Data, &data); err != nil {
		t.Fatalf("unmarshal health payload: %v", err)
	}
	if data["status"] != "ok" || data["valkey"] != "ok" {
		t.Errorf("health = %v", data)
	}

	// A dead backend degrades the whole check.
	mr.Close()
	resp = doReq(t, app, jsonReq(http.MethodGet, "/health", ""))
	wantStatus(t, resp, http.StatusServiceUnavailable)

	if err := json.Unmarshal(parseSuccess(t, readBody(t, resp)).Data, &data); err != nil {
		t.Fatalf("unmarshal health payload: %v", err)
	}
	if data["status"] != "degraded" || data["valkey"] != "unavailable" {
		t.Errorf("degraded health = %v", data)
	}
}
