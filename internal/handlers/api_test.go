package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"clv-dashboard/internal/charts"
	"clv-dashboard/internal/errors"
	"clv-dashboard/internal/models"
	"clv-dashboard/internal/predictor"
	"clv-dashboard/internal/services"
	"clv-dashboard/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testFeatures(id string, recency float64) models.CustomerFeatures {
	return models.CustomerFeatures{
		CustomerID: id,
		Country:    "United Kingdom",
		Values: map[string]float64{
			models.FeatureRecency:       recency,
			models.FeatureTenure:        365,
			models.FeatureFrequency:     4,
			models.FeatureTotalSpent:    250.5,
			models.FeatureTotalQuantity: 60,
			models.FeatureAvgUnitPrice:  2.1,
			models.FeatureAvgOrderValue: 62.63,
			models.FeatureAvgQuantity:   15,
		},
	}
}

// createTestCLV builds a service over three customers. Customer 12348 has two
// feature rows and no transactions.
func createTestCLV(registry *predictor.Registry) *services.CLV {
	rows := []models.CustomerFeatures{
		testFeatures("12347", 2),
		testFeatures("12346", 325),
		testFeatures("12348", 75),
		testFeatures("12348", 80),
	}
	txs := []models.Transaction{
		{
			CustomerID: "12347", Invoice: "537626", Description: "WHITE HANGING HEART T-LIGHT HOLDER",
			InvoiceDate: time.Date(2010, 12, 7, 14, 57, 0, 0, time.UTC), Quantity: 6, Price: 2.55, TotalPrice: 15.3,
		},
		{
			CustomerID: "12347", Invoice: "537626", Description: "ALARM CLOCK BAKELIKE RED",
			InvoiceDate: time.Date(2010, 12, 7, 14, 57, 0, 0, time.UTC), Quantity: 4, Price: 3.75, TotalPrice: 15,
		},
		{
			CustomerID: "12347", Invoice: "542237", Description: "WHITE HANGING HEART T-LIGHT HOLDER",
			InvoiceDate: time.Date(2011, 1, 26, 14, 30, 0, 0, time.UTC), Quantity: 12, Price: 2.55, TotalPrice: 30.6,
		},
		{
			CustomerID: "12346", Invoice: "541431", Description: "MEDIUM CERAMIC TOP STORAGE JAR",
			InvoiceDate: time.Date(2011, 1, 18, 10, 1, 0, 0, time.UTC), Quantity: 74215, Price: 1.04, TotalPrice: 77183.6,
		},
	}
	if registry == nil {
		registry = testRegistry()
	}
	return services.NewCLV(store.New(rows, txs), registry, testLogger())
}

// testRegistry scores 3m as 10*Frequency and 6m as 20*Frequency.
func testRegistry() *predictor.Registry {
	coef := func(w float64) []float64 {
		c := make([]float64, models.NumFeatures)
		c[2] = w
		return c
	}
	return predictor.NewRegistry(map[predictor.Horizon]predictor.Predictor{
		predictor.Horizon3M: &predictor.Linear{Coefficients: coef(10)},
		predictor.Horizon6M: &predictor.Linear{Coefficients: coef(20)},
	})
}

func newTestAPIHandlers(registry *predictor.Registry) *APIHandlers {
	return NewAPIHandlers(createTestCLV(registry), charts.NewBuilder("£"), testLogger())
}

func customerRequest(path, id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.SetPathValue("id", id)
	return req
}

func decodeSuccess(t *testing.T, w *httptest.ResponseRecorder, data any) {
	t.Helper()
	var response struct {
		Data    json.RawMessage `json:"data"`
		Success bool            `json:"success"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if !response.Success {
		t.Fatal("expected success=true in response")
	}
	if err := json.Unmarshal(response.Data, data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) errors.ErrorCode {
	t.Helper()
	var response errors.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if response.Success || response.Error == nil {
		t.Fatal("expected success=false with an error body")
	}
	return response.Error.Code
}

func TestNewAPIHandlers(t *testing.T) {
	clv := createTestCLV(nil)
	logger := testLogger()
	handlers := NewAPIHandlers(clv, charts.NewBuilder("£"), logger)

	if handlers == nil {
		t.Fatal("NewAPIHandlers() returned nil")
	}
	if handlers.clv != clv {
		t.Error("NewAPIHandlers() should set clv field")
	}
	if handlers.logger != logger {
		t.Error("NewAPIHandlers() should set logger field")
	}
}

func TestAPIHandlers_HandleCustomers(t *testing.T) {
	handlers := newTestAPIHandlers(nil)

	w := httptest.NewRecorder()
	handlers.HandleCustomers(w, httptest.NewRequest(http.MethodGet, "/api/customers", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type 'application/json', got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != cacheControl {
		t.Errorf("expected cache-control %q, got %q", cacheControl, cc)
	}

	var ids []string
	decodeSuccess(t, w, &ids)
	want := []string{"12346", "12347", "12348"}
	if len(ids) != len(want) {
		t.Fatalf("got ids %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestAPIHandlers_HandleCustomer(t *testing.T) {
	handlers := newTestAPIHandlers(nil)

	w := httptest.NewRecorder()
	handlers.HandleCustomer(w, customerRequest("/api/customers/12347", "12347"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var report struct {
		Customer     models.CustomerSummary  `json:"customer"`
		Prediction   models.PredictionResult `json:"prediction"`
		Transactions int                     `json:"transactions"`
		Products     []models.ProductTotal   `json:"products"`
		Charts       charts.Set              `json:"charts"`
	}
	decodeSuccess(t, w, &report)

	if report.Customer.CustomerID != "12347" || report.Customer.Recency != 2 {
		t.Errorf("unexpected customer %+v", report.Customer)
	}
	if report.Prediction.CLV3M != 40 || report.Prediction.CLV6M != 80 {
		t.Errorf("unexpected prediction %+v", report.Prediction)
	}
	if report.Transactions != 3 {
		t.Errorf("Transactions = %d, want 3", report.Transactions)
	}
	if len(report.Products) != 2 || report.Products[0].Description != "WHITE HANGING HEART T-LIGHT HOLDER" {
		t.Errorf("unexpected products %+v", report.Products)
	}
	if report.Charts.MonthlySpend == "" || report.Charts.InvoicesPerMonth == "" {
		t.Error("expected chart URLs in the response")
	}
}

func TestAPIHandlers_HandlePrediction(t *testing.T) {
	handlers := newTestAPIHandlers(nil)

	w := httptest.NewRecorder()
	handlers.HandlePrediction(w, customerRequest("/api/customers/12346.0/prediction", "12346.0"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var got models.PredictionResult
	decodeSuccess(t, w, &got)
	if got != (models.PredictionResult{CLV3M: 40, CLV6M: 80}) {
		t.Errorf("prediction = %+v", got)
	}
}

func TestAPIHandlers_Errors(t *testing.T) {
	partial := predictor.NewRegistry(map[predictor.Horizon]predictor.Predictor{
		predictor.Horizon3M: &predictor.Linear{Coefficients: make([]float64, models.NumFeatures)},
	})

	tests := []struct {
		name       string
		registry   *predictor.Registry
		id         string
		handler    func(*APIHandlers) http.HandlerFunc
		wantStatus int
		wantCode   errors.ErrorCode
	}{
		{
			name:       "unknown customer",
			id:         "99999",
			handler:    func(h *APIHandlers) http.HandlerFunc { return h.HandleCustomer },
			wantStatus: http.StatusNotFound,
			wantCode:   errors.CodeNotFound,
		},
		{
			name:       "duplicate feature rows",
			id:         "12348",
			handler:    func(h *APIHandlers) http.HandlerFunc { return h.HandlePrediction },
			wantStatus: http.StatusConflict,
			wantCode:   errors.CodeAmbiguousData,
		},
		{
			name:       "missing model",
			registry:   partial,
			id:         "12347",
			handler:    func(h *APIHandlers) http.HandlerFunc { return h.HandlePrediction },
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   errors.CodeModelUnavailable,
		},
		{
			name:       "series for unknown customer",
			id:         "nobody",
			handler:    func(h *APIHandlers) http.HandlerFunc { return h.HandleMonthlySpend },
			wantStatus: http.StatusNotFound,
			wantCode:   errors.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAPIHandlers(tt.registry)
			w := httptest.NewRecorder()
			tt.handler(h)(w, customerRequest("/api/customers/"+tt.id, tt.id))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if code := decodeErrorCode(t, w); code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, code)
			}
		})
	}
}

func TestAPIHandlers_Series(t *testing.T) {
	handlers := newTestAPIHandlers(nil)

	t.Run("products", func(t *testing.T) {
		w := httptest.NewRecorder()
		handlers.HandleProducts(w, customerRequest("/api/customers/12347/products", "12347"))
		var got []models.ProductTotal
		decodeSuccess(t, w, &got)
		if len(got) != 2 || got[0].Quantity != 18 || got[1].Description != "ALARM CLOCK BAKELIKE RED" {
			t.Errorf("unexpected products %+v", got)
		}
	})

	t.Run("top products", func(t *testing.T) {
		w := httptest.NewRecorder()
		handlers.HandleTopProducts(w, customerRequest("/api/customers/12347/top-products", "12347"))
		var got []models.ProductSpend
		decodeSuccess(t, w, &got)
		if len(got) != 2 || got[0].TotalPrice < got[1].TotalPrice {
			t.Errorf("unexpected top products %+v", got)
		}
	})

	t.Run("monthly spend", func(t *testing.T) {
		w := httptest.NewRecorder()
		handlers.HandleMonthlySpend(w, customerRequest("/api/customers/12347/monthly-spend", "12347"))
		var got []models.MonthlySpend
		decodeSuccess(t, w, &got)
		if len(got) != 2 || got[0].Month != "2010-12" || got[1].Month != "2011-01" {
			t.Errorf("unexpected monthly spend %+v", got)
		}
	})

	t.Run("price quantity", func(t *testing.T) {
		w := httptest.NewRecorder()
		handlers.HandlePriceQuantity(w, customerRequest("/api/customers/12347/price-quantity", "12347"))
		var got []models.PricePoint
		decodeSuccess(t, w, &got)
		if len(got) != 3 {
			t.Errorf("got %d price points, want 3", len(got))
		}
	})

	t.Run("monthly invoices", func(t *testing.T) {
		w := httptest.NewRecorder()
		handlers.HandleMonthlyInvoices(w, customerRequest("/api/customers/12347/monthly-invoices", "12347"))
		var got []models.MonthlyInvoiceCount
		decodeSuccess(t, w, &got)
		want := []models.MonthlyInvoiceCount{{Month: "2010-12", Invoices: 1}, {Month: "2011-01", Invoices: 1}}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("monthly invoices = %+v, want %+v", got, want)
		}
	})

	t.Run("no transactions", func(t *testing.T) {
		w := httptest.NewRecorder()
		handlers.HandleProducts(w, customerRequest("/api/customers/12346/products", "12346"))
		var got []models.ProductTotal
		decodeSuccess(t, w, &got)
		if len(got) != 1 {
			t.Errorf("got %d products, want 1", len(got))
		}
	})
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	handlers := newTestAPIHandlers(nil)

	w := httptest.NewRecorder()
	handlers.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var health map[string]string
	decodeSuccess(t, w, &health)
	if health["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %q", health["status"])
	}
	if _, err := time.Parse(time.RFC3339, health["timestamp"]); err != nil {
		t.Errorf("invalid timestamp %q: %v", health["timestamp"], err)
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	handlers := newTestAPIHandlers(nil)

	w := httptest.NewRecorder()
	handlers.HandleStats(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	var stats map[string]any
	decodeSuccess(t, w, &stats)
	status, ok := stats["models"].(map[string]any)
	if !ok {
		t.Fatalf("expected models in stats, got %v", stats)
	}
	if status["3m"] != true || status["6m"] != true {
		t.Errorf("unexpected model status %v", status)
	}
}
