package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anandk/vidya-server/internal/auth"
	"github.com/anandk/vidya-server/internal/log"
)

func newGuardedRouter(middleware gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/guarded", middleware, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func getGuarded(router *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAgentKeyMiddleware(t *testing.T) {
	router := newGuardedRouter(AgentKeyMiddleware("secret-key", log.Nop()))

	if w := getGuarded(router, "X-Agent-Key", "secret-key"); w.Code != http.StatusOK {
		t.Errorf("valid key: status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := getGuarded(router, "Authorization", "Bearer secret-key"); w.Code != http.StatusOK {
		t.Errorf("valid bearer: status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := getGuarded(router, "X-Agent-Key", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := getGuarded(router, "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAgentKeyMiddlewareRejectsWhenUnconfigured(t *testing.T) {
	router := newGuardedRouter(AgentKeyMiddleware("", log.Nop()))

	if w := getGuarded(router, "X-Agent-Key", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("empty configured key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	authService := auth.NewService("hunter2", &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "vidya-server",
		Audience: "vidya-admin",
		TTL:      time.Minute,
	})
	router := newGuardedRouter(AdminAuthMiddleware(authService, log.Nop()))

	token, err := authService.Login("hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if w := getGuarded(router, "Authorization", "Bearer "+token); w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := getGuarded(router, "Authorization", "Bearer garbage"); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := getGuarded(router, "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing header: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
