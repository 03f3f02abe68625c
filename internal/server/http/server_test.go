package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/petrosa/realtime-strategies/internal/configstore"
	"github.com/petrosa/realtime-strategies/internal/depth"
	"github.com/petrosa/realtime-strategies/internal/observability"
	"github.com/petrosa/realtime-strategies/internal/schema"
)

func newTestHandler(t *testing.T) (http.Handler, *depth.Analyzer) {
	t.Helper()
	analyzer := depth.NewAnalyzer()
	configs := configstore.NewManager(nil, time.Minute, nil)
	stats := observability.NewEngineStats()
	health := Health{
		Ready:     func() bool { return true },
		Breakers:  func() map[string]string { return map[string]string{"publish": "closed"} },
		StartedAt: time.Now().Add(-time.Minute),
	}
	return NewHandler(configs, analyzer, stats, health), analyzer
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func seedAnalyzer(analyzer *depth.Analyzer) {
	analyzer.OnDepth(&schema.DepthUpdate{
		Symbol:        "BTCUSDT",
		EventTime:     time.Now().UnixMilli(),
		FirstUpdateID: 1,
		FinalUpdateID: 2,
		Bids:          []schema.PriceLevel{{Price: "50000.00", Quantity: "4.0"}},
		Asks:          []schema.PriceLevel{{Price: "50001.00", Quantity: "2.0"}},
	})
}

func TestListStrategies(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec, body := doRequest(t, handler, http.MethodGet, "/strategies", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if body["success"] != true {
		t.Fatalf("unexpected envelope %v", body)
	}
	data := body["data"].(map[string]any)
	strategies := data["strategies"].([]any)
	if len(strategies) != 5 {
		t.Fatalf("expected five strategies, got %d", len(strategies))
	}
}

func TestGetSchemaAndDefaults(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec, body := doRequest(t, handler, http.MethodGet, "/strategies/orderbook_skew/schema", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", rec.Code, body)
	}
	data := body["data"].(map[string]any)
	if data["strategy_id"] != "orderbook_skew" {
		t.Fatalf("unexpected payload %v", data)
	}
	if len(data["schema"].([]any)) == 0 {
		t.Fatal("schema must not be empty")
	}

	rec, body = doRequest(t, handler, http.MethodGet, "/strategies/orderbook_skew/defaults", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	defaults := body["data"].(map[string]any)["defaults"].(map[string]any)
	if defaults["buy_threshold"] != 1.2 {
		t.Fatalf("unexpected defaults %v", defaults)
	}
}

func TestGetResolvedConfig(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec, body := doRequest(t, handler, http.MethodGet, "/strategies/ticker_velocity/config/BTCUSDT", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["source"] != "default" || data["symbol"] != "BTCUSDT" {
		t.Fatalf("unexpected resolution %v", data)
	}
}

func TestUnknownStrategyIs404(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec, body := doRequest(t, handler, http.MethodGet, "/strategies/momentum_9000/config", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if body["success"] != false {
		t.Fatalf("unexpected envelope %v", body)
	}
}

func TestValidateOnlyWithoutStore(t *testing.T) {
	handler, _ := newTestHandler(t)
	payload := `{"parameters":{"buy_threshold":1.4},"changed_by":"tester","validate_only":true}`
	rec, body := doRequest(t, handler, http.MethodPost, "/strategies/orderbook_skew/config", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", rec.Code, body)
	}
}

func TestRejectedParameterSurfacesFields(t *testing.T) {
	handler, _ := newTestHandler(t)
	payload := `{"parameters":{"buy_threshold":"fast"},"changed_by":"tester"}`
	rec, body := doRequest(t, handler, http.MethodPost, "/strategies/orderbook_skew/config", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d: %v", rec.Code, body)
	}
	if _, ok := body["fields"]; !ok {
		t.Fatalf("per-field messages expected: %v", body)
	}
}

func TestWriteWithoutStoreIs503(t *testing.T) {
	handler, _ := newTestHandler(t)
	payload := `{"parameters":{"buy_threshold":1.4},"changed_by":"tester"}`
	rec, _ := doRequest(t, handler, http.MethodPost, "/strategies/orderbook_skew/config", payload)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestCacheRefresh(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec, body := doRequest(t, handler, http.MethodPost, "/strategies/cache/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if body["data"].(map[string]any)["status"] != "refreshed" {
		t.Fatalf("unexpected payload %v", body)
	}
	rec, _ = doRequest(t, handler, http.MethodGet, "/strategies/cache/refresh", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestDepthMetricsEndpoint(t *testing.T) {
	handler, analyzer := newTestHandler(t)

	rec, _ := doRequest(t, handler, http.MethodGet, "/metrics/depth/BTCUSDT", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any update, got %d", rec.Code)
	}

	seedAnalyzer(analyzer)
	rec, body := doRequest(t, handler, http.MethodGet, "/metrics/depth/btcusdt", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["symbol"] != "BTCUSDT" {
		t.Fatalf("unexpected metrics %v", data)
	}
}

func TestPressureHistoryTimeframes(t *testing.T) {
	handler, analyzer := newTestHandler(t)
	seedAnalyzer(analyzer)

	rec, body := doRequest(t, handler, http.MethodGet, "/metrics/pressure/BTCUSDT?timeframe=5m", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["timeframe"] != "5m0s" {
		t.Fatalf("unexpected timeframe %v", data)
	}
	if len(data["points"].([]any)) != 1 {
		t.Fatalf("expected one pressure point: %v", data)
	}

	rec, _ = doRequest(t, handler, http.MethodGet, "/metrics/pressure/BTCUSDT?timeframe=2h", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestSummaryAndAllMetrics(t *testing.T) {
	handler, analyzer := newTestHandler(t)
	seedAnalyzer(analyzer)

	rec, body := doRequest(t, handler, http.MethodGet, "/metrics/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if body["data"].(map[string]any)["trends"] == nil {
		t.Fatalf("missing trends: %v", body)
	}

	rec, body = doRequest(t, handler, http.MethodGet, "/metrics/all", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["depth"] == nil || data["engine"] == nil {
		t.Fatalf("missing sections: %v", data)
	}
}

func TestHealthEndpoints(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec, body := doRequest(t, handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["status"] != "ok" || data["breakers"] == nil {
		t.Fatalf("unexpected health payload %v", data)
	}

	rec, _ = doRequest(t, handler, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	rec, _ = doRequest(t, handler, http.MethodGet, "/live", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/strategies", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}
