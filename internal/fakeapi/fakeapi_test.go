package fakeapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func do(t *testing.T, h http.Handler, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s %s: %v (%q)", method, path, err, rec.Body.String())
	}
	return rec.Code, out
}

func login(t *testing.T, h http.Handler, user, pass string) string {
	t.Helper()
	code, body := do(t, h, http.MethodPost, "/api/login", "", map[string]string{"username": user, "password": pass})
	if code != http.StatusOK {
		t.Fatalf("login %s: status %d body %v", user, code, body)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("login %s: no token in %v", user, body)
	}
	return token
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	s := New(DefaultUsers())
	token := login(t, s.Handler(), "admin", "admin123")

	claims, err := s.Issuer().Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "1" || claims.Role != "admin" || claims.Username != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := New(DefaultUsers())
	code, body := do(t, s.Handler(), http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "nope"})
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if body["message"] != "Invalid username or password" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMissingTokenUsesMsgField(t *testing.T) {
	s := New(DefaultUsers())
	code, body := do(t, s.Handler(), http.MethodGet, "/api/me", "", nil)
	if code != http.StatusUnauthorized || body["msg"] != "Missing Authorization Header" {
		t.Fatalf("unexpected %d %v", code, body)
	}
}

func TestExpireSessionsRevokesTokens(t *testing.T) {
	s := New(DefaultUsers())
	h := s.Handler()
	token := login(t, h, "alice", "alice123")

	if code, _ := do(t, h, http.MethodGet, "/api/me", token, nil); code != http.StatusOK {
		t.Fatalf("expected 200 before expiry, got %d", code)
	}
	s.ExpireSessions()
	code, body := do(t, h, http.MethodGet, "/api/me", token, nil)
	if code != http.StatusUnauthorized || body["msg"] != "Token has expired" {
		t.Fatalf("unexpected %d %v", code, body)
	}

	fresh := login(t, h, "alice", "alice123")
	if code, _ := do(t, h, http.MethodGet, "/api/me", fresh, nil); code != http.StatusOK {
		t.Fatalf("expected 200 with fresh token, got %d", code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	s := New(DefaultUsers())
	h := s.Handler()

	user := login(t, h, "alice", "alice123")
	code, body := do(t, h, http.MethodGet, "/api/admin/users", user, nil)
	if code != http.StatusForbidden || body["error"] != "FORBIDDEN" {
		t.Fatalf("unexpected %d %v", code, body)
	}

	admin := login(t, h, "admin", "admin123")
	if code, _ := do(t, h, http.MethodGet, "/api/admin/users", admin, nil); code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", code)
	}
}

func TestLedgerCreateListDelete(t *testing.T) {
	s := New(DefaultUsers())
	h := s.Handler()
	token := login(t, h, "alice", "alice123")

	code, body := do(t, h, http.MethodPost, "/api/ledger", token, map[string]any{"project_name": "Bridge", "amount": 12.5})
	if code != http.StatusCreated || body["success"] != true {
		t.Fatalf("create: %d %v", code, body)
	}

	code, body = do(t, h, http.MethodGet, "/api/ledger", token, nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	data, _ := body["data"].(map[string]any)
	if data["total"] != float64(1) {
		t.Fatalf("expected 1 entry, got %v", data)
	}

	if code, _ := do(t, h, http.MethodDelete, "/api/ledger/1", token, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/ledger/1", token, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
}

func TestLedgerValidationAndQuota(t *testing.T) {
	s := New(DefaultUsers())
	h := s.Handler()
	token := login(t, h, "alice", "alice123")

	if code, _ := do(t, h, http.MethodPost, "/api/ledger", token, map[string]any{"amount": 1}); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}

	s.SetQuotaExceeded(true)
	code, body := do(t, h, http.MethodPost, "/api/ledger", token, map[string]any{"project_name": "x"})
	if code != http.StatusOK || body["success"] != false || body["message"] != "quota exceeded" {
		t.Fatalf("unexpected %d %v", code, body)
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	s := New(DefaultUsers())
	code, body := do(t, s.Handler(), http.MethodGet, "/api/nope", "", nil)
	if code != http.StatusNotFound || body["success"] != false {
		t.Fatalf("unexpected %d %v", code, body)
	}
}

func TestHoldAuthenticatedReleasesTogether(t *testing.T) {
	s := New(DefaultUsers())
	h := s.Handler()
	s.HoldAuthenticated(4)

	var wg sync.WaitGroup
	codes := make(chan int, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		if code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", code)
		}
	}
	if got := s.AuthenticatedHits(); got != 4 {
		t.Fatalf("expected 4 hits, got %d", got)
	}
}
