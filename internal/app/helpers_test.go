package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskboard/api/internal/config"
	"taskboard/api/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return New(testConfig(), ms), ms
}

// signup registers a user through the service and returns its session.
func signup(t *testing.T, svc *Service, name string) Session {
	t.Helper()
	result, err := svc.Signup(context.Background(), SignupInput{
		Name:     name,
		Email:    name + "@example.com",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("signup %s: %v", name, err)
	}
	session, err := svc.SessionFromToken(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("session for %s: %v", name, err)
	}
	return session
}

func requireDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %d %s, got %v", status, code, err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s (%s)", status, code, domainErr.Status, domainErr.Code, domainErr.Message)
	}
	return domainErr
}

type testClient struct {
	t       *testing.T
	handler http.Handler
}

func newTestClient(t *testing.T, svc *Service) testClient {
	return testClient{t: t, handler: NewHTTPServer(svc, "*").Handler()}
}

func (c testClient) do(method, path, token string, body any) (int, map[string]any) {
	c.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)

	var payload map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			c.t.Fatalf("parse response %s %s: %v body=%s", method, path, err, rr.Body.String())
		}
	}
	return rr.Code, payload
}

func (c testClient) signup(name string) (userID, token string) {
	c.t.Helper()
	status, payload := c.do(http.MethodPost, "/api/users/signup", "", map[string]string{
		"name":     name,
		"email":    name + "@example.com",
		"password": "secret1",
	})
	if status != http.StatusCreated {
		c.t.Fatalf("signup %s: status %d payload=%v", name, status, payload)
	}
	return payload["userId"].(string), payload["token"].(string)
}

func (c testClient) create(path, token, title, key string) map[string]any {
	c.t.Helper()
	status, payload := c.do(http.MethodPost, path, token, map[string]string{"title": title})
	if status != http.StatusCreated {
		c.t.Fatalf("POST %s: status %d payload=%v", path, status, payload)
	}
	entity, ok := payload[key].(map[string]any)
	if !ok {
		c.t.Fatalf("POST %s: missing %q in %v", path, key, payload)
	}
	return entity
}

func stringSlice(t *testing.T, value any) []string {
	t.Helper()
	raw, ok := value.([]any)
	if !ok {
		t.Fatalf("expected array, got %T (%v)", value, value)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			out = append(out, v["id"].(string))
		default:
			t.Fatalf("unexpected element %T", item)
		}
	}
	return out
}
