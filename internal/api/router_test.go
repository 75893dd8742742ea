package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/practicedesk/console/internal/api/handler"
	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/mirror"
	"github.com/practicedesk/console/internal/core/ports"
	"github.com/practicedesk/console/internal/core/service"
	"github.com/practicedesk/console/internal/infrastructure/memory"
)

type testServer struct {
	t      *testing.T
	remote *memory.Remote
	srv    *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	remote := memory.New()
	remote.Seed(domain.CollectionUsers, time.Now(), ports.Fields{
		"name": "Ana", "username": "ana", "password": "s3cret", "role": "staff",
	})

	store := mirror.NewStore(remote, zerolog.Nop())
	gate := service.NewSessionGate(remote, store, service.GateConfig{
		AdminUsername: "admin", AdminPassword: "admin",
	}, zerolog.Nop())
	store.SetAuthorizer(gate)
	if err := gate.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	e := NewRouter(Dependencies{
		Gate:        gate,
		Mirrors:     store,
		Gateway:     service.NewMutationGateway(remote, gate, store, zerolog.Nop()),
		Checks:      map[string]handler.Check{"remote": remote.Ping},
		Log:         zerolog.Nop(),
		JWTSecret:   "test-secret",
		FeeCurrency: "USD",
	})
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		srv.Close()
		_ = gate.Close(context.Background())
	})
	return &testServer{t: t, remote: remote, srv: srv}
}

func (s *testServer) do(method, path, token, body string) (int, map[string]any) {
	s.t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	if err != nil {
		s.t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	code, body := s.do(http.MethodPost, "/session/login", "", `{"username":"`+username+`","password":"`+password+`"}`)
	if code != http.StatusOK {
		s.t.Fatalf("login %s: expected 200, got %d %v", username, code, body)
	}
	return body["token"].(string)
}

func (s *testServer) waitForClients(token string, n int) []any {
	s.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, body := s.do(http.MethodGet, "/clients", token, "")
		items, _ := body["items"].([]any)
		if len(items) == n {
			return items
		}
		if time.Now().After(deadline) {
			s.t.Fatalf("timed out waiting for %d clients, have %d", n, len(items))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRouter_ClientLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.login("admin", "admin")

	code, _ := s.do(http.MethodPost, "/clients", token, `{"name":"Acme","ruc":"20100066605","monthly_fee":"120"}`)
	if code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d", code)
	}

	items := s.waitForClients(token, 1)
	client := items[0].(map[string]any)
	risk := client["risk"].(map[string]any)
	if risk["tier"].(float64) != 2 {
		t.Fatalf("expected tier 2, got %v", risk)
	}
	if client["fee_display"] != "$120.00" {
		t.Fatalf("unexpected fee display %v", client["fee_display"])
	}

	id := client["id"].(string)
	if code, _ := s.do(http.MethodPost, "/clients/"+id+"/declare", token, ""); code != http.StatusAccepted {
		t.Fatalf("declare: expected 202, got %d", code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		items := s.waitForClients(token, 1)
		if items[0].(map[string]any)["status"] == "declared" {
			risk := items[0].(map[string]any)["risk"].(map[string]any)
			if risk["tier"].(float64) != 0 || risk["label"] != domain.LabelDeclared {
				t.Fatalf("expected declared risk, got %v", risk)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("declaration never reached the mirror")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if code, _ := s.do(http.MethodDelete, "/clients/"+id, token, ""); code != http.StatusPreconditionRequired {
		t.Fatalf("unconfirmed delete: expected 428, got %d", code)
	}
	if code, _ := s.do(http.MethodDelete, "/clients/"+id+"?confirm=true", token, ""); code != http.StatusAccepted {
		t.Fatalf("confirmed delete: expected 202, got %d", code)
	}
	s.waitForClients(token, 0)
}

func TestRouter_LoginErrors(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(http.MethodPost, "/session/login", "", `{"username":"ana","password":"wrong"}`)
	if code != http.StatusUnauthorized || body["error"] != "access denied" {
		t.Fatalf("expected 401 access denied, got %d %v", code, body)
	}
	code, body2 := s.do(http.MethodPost, "/session/login", "", `{"username":"nobody","password":"wrong"}`)
	if code != http.StatusUnauthorized || body2["error"] != body["error"] {
		t.Fatalf("unknown user must look like a wrong secret, got %d %v", code, body2)
	}
}

func TestRouter_StaffRoutesAdministratorOnly(t *testing.T) {
	s := newTestServer(t)

	deadline := time.Now().Add(2 * time.Second)
	var staffToken string
	for staffToken == "" {
		code, body := s.do(http.MethodPost, "/session/login", "", `{"username":"ana","password":"s3cret"}`)
		if code == http.StatusOK {
			staffToken = body["token"].(string)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("staff login never succeeded: %d %v", code, body)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if code, _ := s.do(http.MethodGet, "/staff", staffToken, ""); code != http.StatusForbidden {
		t.Fatalf("staff role: expected 403, got %d", code)
	}

	adminToken := s.login("admin", "admin")
	code, body := s.do(http.MethodGet, "/staff", adminToken, "")
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("admin: expected one staff account, got %d %v", code, body)
	}
}

func TestRouter_LogoutEndsToken(t *testing.T) {
	s := newTestServer(t)
	token := s.login("admin", "admin")

	if code, _ := s.do(http.MethodPost, "/session/logout", token, ""); code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/clients", token, ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", code)
	}

	code, body := s.do(http.MethodGet, "/session", "", "")
	if code != http.StatusOK || body["state"] != string(domain.StateAppLoggedOut) {
		t.Fatalf("unexpected session status %d %v", code, body)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	if code, _ := s.do(http.MethodGet, "/health", "", ""); code != http.StatusOK {
		t.Fatalf("liveness: expected 200, got %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/health/ready", "", ""); code != http.StatusOK {
		t.Fatalf("readiness: expected 200, got %d", code)
	}

	resp, err := http.Get(s.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.StatusCode)
	}
}

func TestRouter_ChangesLongPoll(t *testing.T) {
	s := newTestServer(t)
	token := s.login("admin", "admin")
	s.waitForClients(token, 0)

	_, list := s.do(http.MethodGet, "/clients", token, "")
	seen := int(list["version"].(float64))

	result := make(chan map[string]any, 1)
	go func() {
		_, body := s.do(http.MethodGet, "/changes?scope=clients&since="+strconv.Itoa(seen), token, "")
		result <- body
	}()

	if code, _ := s.do(http.MethodPost, "/clients", token, `{"name":"Acme","ruc":"20100066605","monthly_fee":"1"}`); code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d", code)
	}

	select {
	case body := <-result:
		if body["changed"] != true || int(body["version"].(float64)) <= seen {
			t.Fatalf("expected a newer version than %d, got %v", seen, body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("long poll did not return after a write")
	}
}
