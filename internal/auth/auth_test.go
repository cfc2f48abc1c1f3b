package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const testKey = "test-signing-key"

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue("device-1", RoleScanner, "qrattend", testKey, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := Parse(tok.AccessToken, testKey, "qrattend")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "device-1" || claims.Role != RoleScanner || claims.SessionID() != tok.SessionID {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	other, _ := Issue("device-1", RoleScanner, "qrattend", testKey, time.Hour)
	if other.SessionID == tok.SessionID {
		t.Fatal("each token should get its own session id")
	}
}

func TestParseRejects(t *testing.T) {
	tok, _ := Issue("device-1", RoleAdmin, "qrattend", testKey, time.Hour)
	expired, _ := Issue("device-1", RoleAdmin, "qrattend", testKey, -time.Minute)

	cases := map[string]struct{ token, key, issuer string }{
		"wrong key":    {tok.AccessToken, "other", "qrattend"},
		"wrong issuer": {tok.AccessToken, testKey, "someone-else"},
		"expired":      {expired.AccessToken, testKey, "qrattend"},
		"garbage":      {"not.a.token", testKey, ""},
	}
	for name, c := range cases {
		if _, err := Parse(c.token, c.key, c.issuer); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := Issue("", RoleScanner, "qrattend", testKey, time.Hour); err == nil {
		t.Error("expected error for empty device id")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/scan", DeviceAuth(testKey, "qrattend"), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.SessionID())
	})
	r.GET("/admin", DeviceAuth(testKey, "qrattend"), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	scanner, _ := Issue("d1", RoleScanner, "qrattend", testKey, time.Hour)
	admin, _ := Issue("d2", RoleAdmin, "qrattend", testKey, time.Hour)

	do := func(path, authz string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := do("/scan", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d", w.Code)
	}
	if w := do("/scan", "Bearer nope"); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d", w.Code)
	}
	w := do("/scan", "bearer "+scanner.AccessToken)
	if w.Code != http.StatusOK || w.Body.String() != scanner.SessionID {
		t.Fatalf("scanner token: got %d %q", w.Code, w.Body.String())
	}
	if w := do("/admin", "Bearer "+scanner.AccessToken); w.Code != http.StatusForbidden {
		t.Fatalf("scanner on admin route: got %d", w.Code)
	}
	if w := do("/admin", "Bearer "+admin.AccessToken); w.Code != http.StatusNoContent {
		t.Fatalf("admin token: got %d", w.Code)
	}
}
