package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/flexcard-bfa-go/internal/config"
	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/handler"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/archive"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/cache"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/client"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/events"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/memstore"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

type linePush struct {
	auth string
	body struct {
		To       string            `json:"to"`
		Messages []json.RawMessage `json:"messages"`
	}
}

// mockLine is a stand-in for the LINE Messaging API.
type mockLine struct {
	mu       sync.Mutex
	pushes   []linePush
	rejectTo string
}

func (m *mockLine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v2/bot/info":
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"displayName":"Card Bot","userId":"Ubot","basicId":"@cards"}`))
	case "/v2/bot/message/push":
		var p linePush
		p.auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&p.body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if p.body.To == m.rejectTo {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"The property, 'to', in the request body is invalid"}`))
			return
		}
		m.mu.Lock()
		m.pushes = append(m.pushes, p)
		m.mu.Unlock()
		w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

func (m *mockLine) sent() []linePush {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]linePush(nil), m.pushes...)
}

// TestLineFlow drives the router with the real LINE client against a mock
// LINE API.
func TestLineFlow(t *testing.T) {
	line := &mockLine{rejectTo: "Ubad"}
	lineServer := httptest.NewServer(line)
	defer lineServer.Close()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memstore.New()

	lineCfg, err := config.LoadLineConfig(filepath.Join(t.TempDir(), "line.yaml"), "env-channel-token", "env-channel-secret")
	if err != nil {
		t.Fatalf("line config: %v", err)
	}
	lineClient := client.NewLineClient(
		lineServer.Client(),
		lineServer.URL,
		lineCfg,
		resilience.NewCircuitBreaker("line-flow", logger),
		resilience.NewBulkhead(4),
		2*time.Second,
	)

	claims := cache.NewMemoryClaims(time.Minute)
	defer claims.Close()

	authSvc := service.NewAuthService(store, metrics, logger, service.WithBcryptCost(bcrypt.MinCost))
	if _, err := authSvc.CreateInitialAdmin(context.Background(), "admin", "admin@example.com", "admin-pass", "Admin"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	publisher := service.NewPublisherService(store, events.Nop{}, archive.Nop{}, metrics, "https://cards.example.com", logger)

	a := &api{
		store:   store,
		auth:    authSvc,
		metrics: metrics,
		router: handler.NewRouter(handler.Services{
			Auth:      authSvc,
			Customers: service.NewCustomerService(store, events.Nop{}, logger),
			Publisher: publisher,
			Display:   service.NewDisplayService(store, claims, time.Minute, metrics, logger),
			Messaging: service.NewMessagingService(store, lineClient, metrics, 4, logger),
			Import:    service.NewImportService(publisher, logger),
			Settings:  service.NewLineSettingsService(lineCfg, logger),
		}, handler.Options{}, metrics, logger),
	}
	token := a.login(t, "admin", "admin-pass")

	// --- Connection test ---
	var conn domain.ConnectionResult
	rec := a.do(t, http.MethodPost, "/line/test-connection", token, nil)
	decode(t, rec, &conn)
	if rec.Code != http.StatusOK || !conn.Success || conn.BotInfo.BasicID != "@cards" {
		t.Fatalf("unexpected connection result %d %+v", rec.Code, conn)
	}

	// --- Send a published card ---
	good := a.createCustomer(t, token, domain.CustomerInput{Name: "Ana Lima", ExternalUserID: "Ugood"})
	bad := a.createCustomer(t, token, domain.CustomerInput{Name: "Bo Chen", ExternalUserID: "Ubad"})
	a.publish(t, token, good.ID)

	rec = a.do(t, http.MethodPost, "/line/send-card/"+strconv.FormatInt(good.ID, 10), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("send: %d %s", rec.Code, rec.Body.String())
	}
	pushes := line.sent()
	if len(pushes) != 1 {
		t.Fatalf("expected 1 push, got %d", len(pushes))
	}
	p := pushes[0]
	if p.auth != "Bearer env-channel-token" || p.body.To != "Ugood" || len(p.body.Messages) != 1 {
		t.Errorf("unexpected push %+v", p)
	}

	// --- Upstream rejection surfaces as a gateway error ---
	rec = a.do(t, http.MethodPost, "/line/send-card/"+strconv.FormatInt(bad.ID, 10), token, nil)
	expectError(t, rec, http.StatusBadGateway, "gateway_error")
	var body errorBody
	decode(t, rec, &body)
	if body.UpstreamStatus != http.StatusBadRequest {
		t.Errorf("expected upstream_status 400, got %d", body.UpstreamStatus)
	}

	// --- Updated credentials apply to the next call ---
	rec = a.do(t, http.MethodPost, "/line/config", token, map[string]string{
		"access_token":   "file-channel-token",
		"channel_secret": "file-channel-secret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update config: %d %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, http.MethodPost, "/line/send-card-batch", token, map[string]any{"customer_ids": []int64{bad.ID, good.ID}})
	var batch domain.BatchResult
	decode(t, rec, &batch)
	if batch.Total != 2 || batch.SuccessCount != 1 || batch.ErrorCount != 1 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if batch.Results[0].CustomerID != bad.ID || batch.Results[0].Success {
		t.Errorf("expected first result to be the rejected customer, got %+v", batch.Results[0])
	}
	pushes = line.sent()
	if last := pushes[len(pushes)-1]; last.auth != "Bearer file-channel-token" {
		t.Errorf("expected updated token, got %q", last.auth)
	}

	if got := metrics.Snapshot()["line_external_errors"]; got != 2 {
		t.Errorf("expected 2 external errors, got %d", got)
	}
}
