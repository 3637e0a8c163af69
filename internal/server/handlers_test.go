package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tablemates/backend/internal/auth"
	"github.com/tablemates/backend/internal/ledger"
	"github.com/tablemates/backend/internal/mail"
	"github.com/tablemates/backend/internal/notify"
	"github.com/tablemates/backend/internal/orders"
	"github.com/tablemates/backend/internal/otp"
	"github.com/tablemates/backend/internal/session"
	"github.com/tablemates/backend/internal/storage/sqlite"
)

type testServer struct {
	srv *Server
	// tokens by user name, filled by register
	tokens map[string]string
	ids    map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "tablemates-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.Default()
	hub := notify.NewHub(logger)
	jwtManager := auth.NewJWTManager("test-secret-key-32-characters-ok", time.Hour)

	svc := orders.NewService(orders.Config{
		Store:    store,
		Ledger:   ledger.New(store, logger),
		Codes:    otp.NewManager(otp.NewMemoryStore(), otp.DefaultTTL),
		Sessions: session.NewRegistry(),
		Events:   hub,
		Mailer:   mail.NewLogMailer(logger),
		Logger:   logger,
	})

	srv := New(Config{
		Orders:    svc,
		Auth:      auth.NewPasswordAuthenticator(store),
		JWT:       jwtManager,
		Hub:       hub,
		Logger:    logger,
		EchoCodes: true, // tests read codes from the response
	})

	return &testServer{srv: srv, tokens: make(map[string]string), ids: make(map[string]string)}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.srv.App().Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}

	var parsed map[string]any
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			t.Fatalf("Failed to parse response %q: %v", data, err)
		}
	}
	return resp, parsed
}

func (ts *testServer) register(t *testing.T, name string) {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    name + "@example.com",
		"name":     name,
		"password": "password123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %v", name, resp.StatusCode, body)
	}
	ts.tokens[name] = body["token"].(string)
	ts.ids[name] = body["user"].(map[string]any)["id"].(string)
}

func (ts *testServer) createOrder(t *testing.T, creator string, participants []string, totalCents int64) string {
	t.Helper()
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = ts.ids[p]
	}
	resp, body := ts.do(t, http.MethodPost, "/api/v1/orders", ts.tokens[creator], map[string]any{
		"participant_ids": ids,
		"items": []map[string]any{
			{"food_id": "f-1", "name": "Margherita", "unit_price_cents": totalCents, "quantity": 1},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order: status %d, body %v", resp.StatusCode, body)
	}
	return body["order_id"].(string)
}

func (ts *testServer) payViaAPI(t *testing.T, orderID, user string) map[string]any {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/otp", orderID), ts.tokens[user], map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("issue otp for %s: status %d, body %v", user, resp.StatusCode, body)
	}
	code := body["code"].(string)

	resp, body = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/pay", orderID), ts.tokens[user], map[string]any{"code": code})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pay for %s: status %d, body %v", user, resp.StatusCode, body)
	}
	return body
}

func TestServer_AuthFlow(t *testing.T) {
	ts := newTestServer(t)

	ts.register(t, "alice")

	t.Run("duplicate email rejected", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email": "alice@example.com", "name": "Alice Again", "password": "password123",
		})
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
		if body["error"] != "email_exists" {
			t.Errorf("error = %v, want email_exists", body["error"])
		}
	})

	t.Run("login round-trip", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email": "alice@example.com", "password": "password123",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body %v", resp.StatusCode, body)
		}
		if body["token"] == "" {
			t.Error("no token in login response")
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email": "alice@example.com", "password": "wrong-password",
		})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
		if body["error"] != "invalid_credentials" {
			t.Errorf("error = %v, want invalid_credentials", body["error"])
		}
	})

	t.Run("protected route without token", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/api/v1/orders", "", map[string]any{})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})
}

func TestServer_OrderFlow(t *testing.T) {
	ts := newTestServer(t)
	for _, name := range []string{"alice", "bob", "carol"} {
		ts.register(t, name)
	}

	orderID := ts.createOrder(t, "alice", []string{"alice", "bob", "carol"}, 3100)

	t.Run("shares sum exactly with remainder to creator", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodGet, "/api/v1/orders/"+orderID+"/ledger", ts.tokens["alice"], nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body %v", resp.StatusCode, body)
		}
		unpaid := body["unpaid"].([]any)
		if len(unpaid) != 3 {
			t.Fatalf("got %d unpaid, want 3", len(unpaid))
		}
		var sum float64
		for _, raw := range unpaid {
			sum += raw.(map[string]any)["amount_cents"].(float64)
		}
		if sum != 3100 {
			t.Errorf("shares sum to %v, want 3100", sum)
		}
	})

	t.Run("payments confirm the order exactly once", func(t *testing.T) {
		for _, user := range []string{"alice", "bob"} {
			body := ts.payViaAPI(t, orderID, user)
			if body["order_confirmed"] != false {
				t.Errorf("order confirmed early after %s paid", user)
			}
		}

		body := ts.payViaAPI(t, orderID, "carol")
		if body["order_confirmed"] != true {
			t.Error("order not confirmed after last payment")
		}

		resp, body := ts.do(t, http.MethodGet, "/api/v1/orders/"+orderID, ts.tokens["alice"], nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if body["status"] != "confirmed" {
			t.Errorf("status = %v, want confirmed", body["status"])
		}
	})

	t.Run("paying again maps to already_paid", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/pay", ts.tokens["alice"], map[string]any{"code": "123456"})
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
		if body["error"] != "already_paid" {
			t.Errorf("error = %v, want already_paid", body["error"])
		}
	})

	t.Run("delivery then session lifecycle", func(t *testing.T) {
		for i, user := range []string{"alice", "bob", "carol"} {
			resp, body := ts.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/delivered", ts.tokens[user], map[string]any{})
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("delivered for %s: status %d, body %v", user, resp.StatusCode, body)
			}
			wantAll := i == 2
			if body["all_delivered"] != wantAll {
				t.Errorf("all_delivered after %s = %v, want %v", user, body["all_delivered"], wantAll)
			}
		}

		resp, body := ts.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/session/join", ts.tokens["alice"], map[string]any{})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("join: status %d, body %v", resp.StatusCode, body)
		}
		if body["status"] != "active" {
			t.Errorf("session status = %v, want active", body["status"])
		}

		resp, body = ts.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/session/leave", ts.tokens["alice"], map[string]any{})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("leave: status %d, body %v", resp.StatusCode, body)
		}
		if body["status"] != "ended" {
			t.Errorf("session status = %v, want ended", body["status"])
		}
	})
}

func TestServer_ErrorCodes(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	ts.register(t, "bob")

	t.Run("invalid_order on empty input", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodPost, "/api/v1/orders", ts.tokens["alice"], map[string]any{
			"participant_ids": []string{},
			"items":           []map[string]any{},
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
		if body["error"] != "invalid_order" {
			t.Errorf("error = %v, want invalid_order", body["error"])
		}
	})

	t.Run("not_found for unknown order", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodGet, "/api/v1/orders/no-such-order", ts.tokens["alice"], nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
		if body["error"] != "not_found" {
			t.Errorf("error = %v, want not_found", body["error"])
		}
	})

	t.Run("no_active_challenge before issuing", func(t *testing.T) {
		orderID := ts.createOrder(t, "alice", []string{"alice", "bob"}, 2000)
		resp, body := ts.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/pay", ts.tokens["alice"], map[string]any{"code": "123456"})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
		if body["error"] != "no_active_challenge" {
			t.Errorf("error = %v, want no_active_challenge", body["error"])
		}
	})

	t.Run("only the creator can cancel the order", func(t *testing.T) {
		orderID := ts.createOrder(t, "alice", []string{"alice", "bob"}, 2000)
		resp, _ := ts.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", ts.tokens["bob"], map[string]any{})
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.StatusCode)
		}

		resp, body := ts.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", ts.tokens["alice"], map[string]any{})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("creator cancel: status %d, body %v", resp.StatusCode, body)
		}
	})

	t.Run("session join before delivery is not_found", func(t *testing.T) {
		orderID := ts.createOrder(t, "alice", []string{"alice", "bob"}, 2000)
		resp, body := ts.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/session/join", ts.tokens["alice"], map[string]any{})
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
		if body["error"] != "not_found" {
			t.Errorf("error = %v, want not_found", body["error"])
		}
	})
}
