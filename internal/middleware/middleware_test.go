package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"teamup/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

func whoami(c *fiber.Ctx) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return c.SendStatus(fiber.StatusTeapot)
	}
	return c.JSON(identity)
}

func decodeUserID(t *testing.T, app *fiber.App, target, header string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		UserID string `json:"user_id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body.UserID
}

func TestIdentityMiddleware(t *testing.T) {
	verifier, err := auth.NewIdentityVerifier("secret", "")
	if err != nil {
		t.Fatal(err)
	}
	token, err := verifier.Issue(auth.Identity{UserID: "u1", Username: "ada"})
	if err != nil {
		t.Fatal(err)
	}

	app := fiber.New()
	app.Get("/me", IdentityMiddleware(verifier, "production"), whoami)

	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"bearer header", "/me", "Bearer " + token, fiber.StatusOK, "u1"},
		{"query token", "/me?token=" + token, "", fiber.StatusOK, "u1"},
		{"missing", "/me", "", fiber.StatusUnauthorized, ""},
		{"malformed header", "/me", "Token " + token, fiber.StatusUnauthorized, ""},
		{"invalid token", "/me", "Bearer nope", fiber.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, userID := decodeUserID(t, app, tt.target, tt.header)
			if status != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, status)
			}
			if userID != tt.wantUser {
				t.Errorf("Expected user %q, got %q", tt.wantUser, userID)
			}
		})
	}
}

func TestIdentityMiddleware_DevBypass(t *testing.T) {
	app := fiber.New()
	app.Get("/me", IdentityMiddleware(nil, "development"), whoami)

	status, userID := decodeUserID(t, app, "/me", "")
	if status != fiber.StatusOK || userID != "dev-user" {
		t.Errorf("Expected dev-user, got %d %q", status, userID)
	}

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set(DevUserHeader, "alice")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		UserID string `json:"user_id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body.UserID != "alice" {
		t.Errorf("Expected header override alice, got %q", body.UserID)
	}
}

func TestIdentityMiddleware_ProductionWithoutVerifier(t *testing.T) {
	app := fiber.New()
	app.Get("/me", IdentityMiddleware(nil, "production"), whoami)

	status, _ := decodeUserID(t, app, "/me", "")
	if status != fiber.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", status)
	}
}

func TestAdminMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", IdentityMiddleware(nil, "development"), AdminMiddleware([]string{"ops"}), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/anonymous", AdminMiddleware([]string{"ops"}), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	tests := []struct {
		name   string
		target string
		user   string
		want   int
	}{
		{"admin", "/admin", "ops", fiber.StatusOK},
		{"regular user", "/admin", "u1", fiber.StatusForbidden},
		{"no identity", "/anonymous", "", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.user != "" {
				req.Header.Set(DevUserHeader, tt.user)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestWriteRateLimiter(t *testing.T) {
	cfg := &RateLimitConfig{WriteMax: 2, WriteExpiration: time.Minute}
	app := fiber.New()
	app.Use(IdentityMiddleware(nil, "development"), WriteRateLimiter(cfg))
	app.All("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })

	send := func(method, user string) int {
		req := httptest.NewRequest(method, "/x", nil)
		req.Header.Set(DevUserHeader, user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := send("POST", "u1"); got != fiber.StatusOK {
			t.Fatalf("write %d: expected 200, got %d", i, got)
		}
	}
	if got := send("POST", "u1"); got != fiber.StatusTooManyRequests {
		t.Errorf("Expected 429 after limit, got %d", got)
	}
	if got := send("GET", "u1"); got != fiber.StatusOK {
		t.Errorf("Reads should not be limited, got %d", got)
	}
	if got := send("POST", "u2"); got != fiber.StatusOK {
		t.Errorf("Limit should be per user, got %d", got)
	}
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_WRITE", "7")
	t.Setenv("RATE_LIMIT_WEBSOCKET", "-1")

	cfg := LoadRateLimitConfig("production")
	if cfg.WriteMax != 7 {
		t.Errorf("Expected WriteMax 7, got %d", cfg.WriteMax)
	}
	if cfg.WebSocketMax != DefaultRateLimitConfig().WebSocketMax {
		t.Errorf("Negative override should be ignored, got %d", cfg.WebSocketMax)
	}
}
