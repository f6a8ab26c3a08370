package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"clv-dashboard/internal/errors"
	"clv-dashboard/internal/models"
	"clv-dashboard/internal/predictor"
	"clv-dashboard/internal/store"
)

// recordingPredictor returns a fixed value and remembers every input.
type recordingPredictor struct {
	mu     sync.Mutex
	value  float64
	inputs [][]float64
}

func (p *recordingPredictor) Predict(x []float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, slices.Clone(x))
	return p.value, nil
}

func featureRow(id string) models.CustomerFeatures {
	return models.CustomerFeatures{
		CustomerID: id,
		Country:    "United Kingdom",
		Values: map[string]float64{
			models.FeatureRecency:       1,
			models.FeatureTenure:        2,
			models.FeatureFrequency:     3,
			models.FeatureTotalSpent:    4,
			models.FeatureTotalQuantity: 5,
			models.FeatureAvgUnitPrice:  6,
			models.FeatureAvgOrderValue: 7,
			models.FeatureAvgQuantity:   8,
		},
	}
}

func newTestCLV(t *testing.T, rows []models.CustomerFeatures, txs []models.Transaction) (*CLV, *recordingPredictor, *recordingPredictor) {
	t.Helper()
	p3 := &recordingPredictor{value: 120.5}
	p6 := &recordingPredictor{value: -3.25}
	registry := predictor.NewRegistry(map[predictor.Horizon]predictor.Predictor{
		predictor.Horizon3M: p3,
		predictor.Horizon6M: p6,
	})
	return NewCLV(store.New(rows, txs), registry, nil), p3, p6
}

func TestFeatureVector_Order(t *testing.T) {
	row := featureRow("12346")

	got, err := FeatureVector(row)
	if err != nil {
		t.Fatalf("FeatureVector() error = %v", err)
	}
	want := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FeatureVector() mismatch (-want +got):\n%s", diff)
	}

	swapped := featureRow("12346")
	swapped.Values[models.FeatureRecency], swapped.Values[models.FeatureTenure] = 2, 1
	other, err := FeatureVector(swapped)
	if err != nil {
		t.Fatalf("FeatureVector() error = %v", err)
	}
	if slices.Equal(got, other) {
		t.Error("swapping two features should change the vector")
	}
}

func TestFeatureVector_MissingField(t *testing.T) {
	for _, name := range models.FeatureOrder {
		t.Run(name, func(t *testing.T) {
			row := featureRow("1")
			delete(row.Values, name)

			_, err := FeatureVector(row)
			if !errors.Is(err, errors.CodeSchemaMismatch) {
				t.Errorf("FeatureVector() error = %v, want SCHEMA_MISMATCH", err)
			}
		})
	}
}

func TestCLV_Lookup(t *testing.T) {
	rows := []models.CustomerFeatures{featureRow("1"), featureRow("2")}
	txs := []models.Transaction{
		{CustomerID: "1", Invoice: "A", Description: "Mug"},
		{CustomerID: "2", Invoice: "B", Description: "Lamp"},
		{CustomerID: "1", Invoice: "C", Description: "Bowl"},
	}
	clv, _, _ := newTestCLV(t, rows, txs)

	row, got, err := clv.Lookup("1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if row.CustomerID != "1" {
		t.Errorf("Lookup() row id = %q, want 1", row.CustomerID)
	}
	if len(got) != 2 {
		t.Fatalf("Lookup() returned %d transactions, want 2", len(got))
	}
	for _, tx := range got {
		if tx.CustomerID != "1" {
			t.Errorf("transaction for customer %q leaked into lookup", tx.CustomerID)
		}
	}
	if got[0].Invoice != "A" || got[1].Invoice != "C" {
		t.Errorf("transactions out of file order: %q, %q", got[0].Invoice, got[1].Invoice)
	}
}

func TestCLV_LookupErrors(t *testing.T) {
	rows := []models.CustomerFeatures{featureRow("1"), featureRow("7"), featureRow("7")}
	clv, _, _ := newTestCLV(t, rows, nil)

	tests := []struct {
		id   string
		code errors.ErrorCode
	}{
		{"404", errors.CodeNotFound},
		{"", errors.CodeNotFound},
		{"7", errors.CodeAmbiguousData},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("id=%q", tt.id), func(t *testing.T) {
			_, _, err := clv.Lookup(tt.id)
			if got := errors.CodeOf(err); err == nil || got != tt.code {
				t.Errorf("Lookup() error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestCLV_LookupReturnsCopy(t *testing.T) {
	txs := []models.Transaction{{CustomerID: "1", Description: "Mug"}}
	clv, _, _ := newTestCLV(t, []models.CustomerFeatures{featureRow("1")}, txs)

	_, first, _ := clv.Lookup("1")
	first[0].Description = "changed"

	_, second, _ := clv.Lookup("1")
	if second[0].Description != "Mug" {
		t.Error("mutating a lookup result should not affect the store")
	}
}

func TestCLV_Predict(t *testing.T) {
	clv, p3, p6 := newTestCLV(t, []models.CustomerFeatures{featureRow("1")}, nil)

	got, err := clv.Predict(featureRow("1"))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	want := models.PredictionResult{CLV3M: 120.5, CLV6M: -3.25}
	if got != want {
		t.Errorf("Predict() = %+v, want %+v", got, want)
	}

	wantX := [][]float64{{1, 2, 3, 4, 5, 6, 7, 8}}
	if diff := cmp.Diff(wantX, p3.inputs); diff != "" {
		t.Errorf("3m inputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantX, p6.inputs); diff != "" {
		t.Errorf("6m inputs mismatch (-want +got):\n%s", diff)
	}
}

func TestPredict_ModelUnavailable(t *testing.T) {
	registry := predictor.NewRegistry(map[predictor.Horizon]predictor.Predictor{
		predictor.Horizon3M: &recordingPredictor{value: 1},
	})

	_, err := Predict(featureRow("1"), registry)
	if !errors.Is(err, errors.CodeModelUnavailable) {
		t.Errorf("Predict() error = %v, want MODEL_UNAVAILABLE", err)
	}
}

func TestPredict_SchemaMismatchBeforeModels(t *testing.T) {
	p := &recordingPredictor{value: 1}
	registry := predictor.NewRegistry(map[predictor.Horizon]predictor.Predictor{
		predictor.Horizon3M: p,
		predictor.Horizon6M: p,
	})
	row := featureRow("1")
	delete(row.Values, models.FeatureAvgQuantity)

	_, err := Predict(row, registry)
	if !errors.Is(err, errors.CodeSchemaMismatch) {
		t.Fatalf("Predict() error = %v, want SCHEMA_MISMATCH", err)
	}
	if len(p.inputs) != 0 {
		t.Error("models should not be called when the vector cannot be built")
	}
}

func TestCLV_ReportWithoutTransactions(t *testing.T) {
	clv, _, _ := newTestCLV(t, []models.CustomerFeatures{featureRow("42")}, nil)

	report, err := clv.Report(context.Background(), "42")
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.Prediction.CLV3M != 120.5 {
		t.Errorf("CLV3M = %v, want 120.5", report.Prediction.CLV3M)
	}
	if report.Transactions != 0 {
		t.Errorf("Transactions = %d, want 0", report.Transactions)
	}
	if len(report.Products) != 0 || len(report.MonthlySpend) != 0 || len(report.PricePoints) != 0 ||
		len(report.MonthlyInvoices) != 0 || len(report.TopProducts) != 0 {
		t.Error("all series should be empty for a customer without transactions")
	}
	if report.Customer.Recency != 1 || report.Customer.Frequency != 3 || report.Customer.Country != "United Kingdom" {
		t.Errorf("unexpected summary %+v", report.Customer)
	}
}

func TestCLV_CustomerIDsSorted(t *testing.T) {
	rows := []models.CustomerFeatures{featureRow("18102"), featureRow("12346"), featureRow("9999")}
	clv, _, _ := newTestCLV(t, rows, nil)

	want := []string{"9999", "12346", "18102"}
	if diff := cmp.Diff(want, clv.CustomerIDs()); diff != "" {
		t.Errorf("CustomerIDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestCLV_ConcurrentReports(t *testing.T) {
	rows := []models.CustomerFeatures{featureRow("1"), featureRow("2")}
	txs := []models.Transaction{
		{CustomerID: "1", Invoice: "A", Description: "Mug", Quantity: 1, TotalPrice: 3},
		{CustomerID: "2", Invoice: "B", Description: "Lamp", Quantity: 2, TotalPrice: 9},
	}
	clv, _, _ := newTestCLV(t, rows, txs)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprint(i%2 + 1)
			if _, err := clv.Report(context.Background(), id); err != nil {
				t.Errorf("Report(%s) error = %v", id, err)
			}
		}()
	}
	wg.Wait()
}
