package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"blastbot/internal/dispatch"
	"blastbot/internal/phone"
	"blastbot/internal/session"
	"blastbot/internal/transport"
	logx "blastbot/pkg/logx"
)

type fakeSession struct {
	unregistered bool
	sendErr      error

	lastAddr string
	lastText string
}

func (f *fakeSession) IsRegistered(ctx context.Context, addr string) (bool, error) {
	return !f.unregistered, nil
}

func (f *fakeSession) SendText(ctx context.Context, addr, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.lastAddr = addr
	f.lastText = text
	return nil
}

func (f *fakeSession) Close(ctx context.Context) error { return nil }

func startServer(t *testing.T, cfg Config, dial transport.DialFunc) *Server {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	reg := session.NewRegistry(dial, time.Second, logx.Nop())
	srv := New(cfg, reg, dispatch.NewEngine(logx.Nop()), phone.Default(), logx.Nop())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Stop(context.Background())
	})
	return srv
}

func postSend(t *testing.T, srv *Server, body string, header map[string]string) (int, sendResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://"+srv.Addr()+"/send", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestSendSuccess(t *testing.T) {
	t.Parallel()
	sess := &fakeSession{}
	srv := startServer(t, Config{}, func(ctx context.Context) (transport.Session, error) {
		return sess, nil
	})

	code, out := postSend(t, srv, `{"name":"Alice","phone":"081234567","message":"Hi {name}"}`, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%+v)", code, out)
	}
	if out.Status != "success" || out.Detail != "Message sent to Alice" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if sess.lastAddr != "6281234567@s.whatsapp.net" {
		t.Fatalf("addr = %q", sess.lastAddr)
	}
	if sess.lastText != "Hi Alice" {
		t.Fatalf("text = %q", sess.lastText)
	}
}

func TestSendDefaultsName(t *testing.T) {
	t.Parallel()
	sess := &fakeSession{}
	srv := startServer(t, Config{}, func(ctx context.Context) (transport.Session, error) {
		return sess, nil
	})

	code, out := postSend(t, srv, `{"phone":"0812","message":"Hello {name}"}`, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d (%+v)", code, out)
	}
	if out.Detail != "Message sent to Unknown" {
		t.Fatalf("detail = %q", out.Detail)
	}
	if sess.lastText != "Hello Unknown" {
		t.Fatalf("text = %q", sess.lastText)
	}
}

func TestSendMissingFields(t *testing.T) {
	t.Parallel()
	srv := startServer(t, Config{}, func(ctx context.Context) (transport.Session, error) {
		t.Error("session dialed for invalid request")
		return nil, errors.New("unreachable")
	})

	for _, body := range []string{
		`{"message":"hi"}`,
		`{"phone":"0812"}`,
		`{}`,
	} {
		code, out := postSend(t, srv, body, nil)
		if code != http.StatusBadRequest {
			t.Fatalf("status = %d for %s", code, body)
		}
		if out.Error != "phone and message are required" {
			t.Fatalf("error = %q", out.Error)
		}
	}
}

func TestSendDeliveryFailure(t *testing.T) {
	t.Parallel()
	srv := startServer(t, Config{}, func(ctx context.Context) (transport.Session, error) {
		return &fakeSession{unregistered: true}, nil
	})

	code, out := postSend(t, srv, `{"name":"Bob","phone":"0812","message":"hi"}`, nil)
	if code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", code)
	}
	if out.Status != "failed" || out.Detail != "Failed to send message to Bob" {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestSendSessionFault(t *testing.T) {
	t.Parallel()
	srv := startServer(t, Config{}, func(ctx context.Context) (transport.Session, error) {
		return nil, errors.New("pairing rejected")
	})

	code, out := postSend(t, srv, `{"phone":"0812","message":"hi"}`, nil)
	if code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", code)
	}
	if out.Error == "" {
		t.Fatal("expected error description")
	}
}

func TestSendTokenAuth(t *testing.T) {
	t.Parallel()
	sess := &fakeSession{}
	srv := startServer(t, Config{Token: "secret"}, func(ctx context.Context) (transport.Session, error) {
		return sess, nil
	})

	code, _ := postSend(t, srv, `{"phone":"0812","message":"hi"}`, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", code)
	}

	code, _ = postSend(t, srv, `{"phone":"0812","message":"hi"}`, map[string]string{"Authorization": "Bearer secret"})
	if code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", code)
	}
}

func TestSendRateLimited(t *testing.T) {
	t.Parallel()
	sess := &fakeSession{}
	srv := startServer(t, Config{RatePerSec: 1}, func(ctx context.Context) (transport.Session, error) {
		return sess, nil
	})

	code, _ := postSend(t, srv, `{"phone":"0812","message":"hi"}`, nil)
	if code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", code)
	}
	code, out := postSend(t, srv, `{"phone":"0812","message":"hi"}`, nil)
	if code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429 (%+v)", code, out)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := startServer(t, Config{}, func(ctx context.Context) (transport.Session, error) {
		return &fakeSession{}, nil
	})

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "ok" {
		t.Fatalf("body = %v", out)
	}
}
