package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bonosa/MarsLife/internal/catalog"
	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/bonosa/MarsLife/internal/payment"
	"go.uber.org/zap"
)

type fakePayments struct {
	createErr  error
	confirmErr error
	confirm    payment.Confirmation
}

func (f *fakePayments) CreateIntent(_ context.Context, packageID, _ string) (*payment.Created, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	pkg, ok := catalog.PackageByID(packageID)
	if !ok {
		return nil, payment.ErrUnknownPackage
	}
	return &payment.Created{ClientSecret: "pi_1_secret", Package: pkg}, nil
}

func (f *fakePayments) Confirm(context.Context, string, string) (*payment.Confirmation, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	c := f.confirm
	return &c, nil
}

func newTestRouter(t *testing.T, pay *fakePayments) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := ledger.OpenFileStore(filepath.Join(dir, "credits.json"), 100, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	static := filepath.Join(dir, "public")
	if err := os.MkdirAll(static, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>mars</html>"), 0o644)
	os.WriteFile(filepath.Join(static, "app.js"), []byte("console.log('mars')"), 0o644)

	h := NewHandler(ledger.NewService(store, 25, zap.NewNop()), pay, zap.NewNop())
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	return NewRouter(h, ws, static, zap.NewNop()), static
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreditPackages(t *testing.T) {
	r, _ := newTestRouter(t, &fakePayments{})
	rec := do(t, r, "GET", "/api/credit-packages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]catalog.Package
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got["pioneer"].Credits != 1200 || got["starter"].Price != 299 {
		t.Fatalf("packages = %+v", got)
	}
}

func TestTemplates(t *testing.T) {
	r, _ := newTestRouter(t, &fakePayments{})
	rec := do(t, r, "GET", "/api/templates", "")
	var got []catalog.Template
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || len(got) != 4 {
		t.Fatalf("templates = %s (%v)", rec.Body.String(), err)
	}
}

func TestBalance(t *testing.T) {
	r, _ := newTestRouter(t, &fakePayments{})
	rec := do(t, r, "GET", "/api/balance/u1", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"credits":100}` {
		t.Fatalf("balance = %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	tests := []struct {
		name     string
		pay      *fakePayments
		body     string
		wantCode int
		wantBody string
	}{
		{"ok", &fakePayments{}, `{"packageId":"starter","userId":"u1"}`, http.StatusOK, `"clientSecret":"pi_1_secret"`},
		{"unknown package", &fakePayments{}, `{"packageId":"nope","userId":"u1"}`, http.StatusBadRequest, `{"error":"Invalid package"}`},
		{"processor failure", &fakePayments{createErr: errors.New("boom")}, `{"packageId":"starter"}`, http.StatusInternalServerError, `"error":"Payment failed"`},
		{"bad json", &fakePayments{}, `{`, http.StatusBadRequest, `"error"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t, tt.pay)
			rec := do(t, r, "POST", "/api/create-payment-intent", tt.body)
			if rec.Code != tt.wantCode || !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("got %d %s, want %d containing %s", rec.Code, rec.Body.String(), tt.wantCode, tt.wantBody)
			}
		})
	}
}

func TestConfirmPayment(t *testing.T) {
	tests := []struct {
		name     string
		pay      *fakePayments
		wantCode int
		wantBody string
	}{
		{"ok", &fakePayments{confirm: payment.Confirmation{CreditsAdded: 50, NewBalance: 150}}, http.StatusOK, `{"success":true,"newBalance":150,"creditsAdded":50}`},
		{"replay", &fakePayments{confirm: payment.Confirmation{NewBalance: 150, Replayed: true}}, http.StatusOK, `{"success":true,"newBalance":150,"creditsAdded":0}`},
		{"incomplete", &fakePayments{confirmErr: payment.ErrPaymentIncomplete}, http.StatusBadRequest, `{"error":"Payment not completed"}`},
		{"failure", &fakePayments{confirmErr: errors.New("boom")}, http.StatusInternalServerError, `{"error":"Payment confirmation failed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t, tt.pay)
			rec := do(t, r, "POST", "/api/confirm-payment", `{"paymentIntentId":"pi_1","userId":"u1"}`)
			if rec.Code != tt.wantCode || strings.TrimSpace(rec.Body.String()) != tt.wantBody {
				t.Fatalf("got %d %s, want %d %s", rec.Code, rec.Body.String(), tt.wantCode, tt.wantBody)
			}
		})
	}
}

func TestStaticFallback(t *testing.T) {
	r, _ := newTestRouter(t, &fakePayments{})

	if rec := do(t, r, "GET", "/app.js", ""); !strings.Contains(rec.Body.String(), "console.log") {
		t.Errorf("app.js = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, r, "GET", "/designer/saved", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "mars</html>") {
		t.Errorf("fallback = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, r, "GET", "/../../etc/passwd", ""); strings.Contains(rec.Body.String(), "root:") {
		t.Error("path traversal served a file outside the static dir")
	}
}

func TestHealthMetricsAndWebSocketRoute(t *testing.T) {
	r, _ := newTestRouter(t, &fakePayments{})

	if rec := do(t, r, "GET", "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	do(t, r, "GET", "/api/templates", "")
	if rec := do(t, r, "GET", "/metrics", ""); !strings.Contains(rec.Body.String(), "marslife_http_requests_total") {
		t.Errorf("metrics missing request counter")
	}
	if rec := do(t, r, "GET", "/ws", ""); rec.Code != http.StatusTeapot {
		t.Errorf("/ws = %d, want routed to websocket handler", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, &fakePayments{})
	rec := do(t, r, "OPTIONS", "/api/confirm-payment", "")
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}
}
