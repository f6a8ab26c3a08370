package services

import (
	"context"
	"fmt"
	"log/slog"

	"clv-dashboard/internal/errors"
	"clv-dashboard/internal/models"
	"clv-dashboard/internal/observability"
	"clv-dashboard/internal/predictor"
	"clv-dashboard/internal/store"
)

// CLV answers per-customer questions against the loaded store and models.
// It holds no per-request state.
type CLV struct {
	store    *store.Store
	registry *predictor.Registry
	logger   *slog.Logger
}

func NewCLV(st *store.Store, registry *predictor.Registry, logger *slog.Logger) *CLV {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLV{
		store:    st,
		registry: registry,
		logger:   logger,
	}
}

// CustomerIDs is the selectable key set, ascending.
func (c *CLV) CustomerIDs() []string {
	return c.store.CustomerIDs()
}

// Lookup returns the customer's single feature row and their transactions.
func (c *CLV) Lookup(customerID string) (models.CustomerFeatures, []models.Transaction, error) {
	rows := c.store.FeatureRows(customerID)
	switch len(rows) {
	case 0:
		return models.CustomerFeatures{}, nil, errors.NotFound(fmt.Sprintf("customer %q not found", customerID))
	case 1:
	default:
		return models.CustomerFeatures{}, nil, errors.AmbiguousData(
			fmt.Sprintf("customer %q has %d feature rows", customerID, len(rows)))
	}
	return rows[0], c.store.Transactions(customerID), nil
}

// Predict scores a feature row with both horizon models.
func (c *CLV) Predict(row models.CustomerFeatures) (models.PredictionResult, error) {
	return Predict(row, c.registry)
}

// Report builds everything the dashboard shows for one customer.
func (c *CLV) Report(ctx context.Context, customerID string) (*models.CustomerReport, error) {
	_, span := observability.StartSpan(ctx, "clv.report")
	defer span.Finish(c.logger)
	span.SetTag("customer_id", customerID)

	row, txs, err := c.Lookup(customerID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	prediction, err := c.Predict(row)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return &models.CustomerReport{
		Customer:        row.Summary(),
		Prediction:      prediction,
		Transactions:    len(txs),
		PurchaseSummary: Summarize(txs),
	}, nil
}

func (c *CLV) Stats() map[string]any {
	st := c.store.Stats()
	return map[string]any{
		"customers":               st.Customers,
		"feature_rows":            st.FeatureRows,
		"transactions":            st.Transactions,
		"skipped_transactions":    st.SkippedTransactions,
		"missing_feature_columns": st.MissingColumns,
		"loaded_at":               st.LoadedAt,
		"from_cache":              st.FromCache,
		"models":                  c.registry.Status(),
	}
}

// FeatureVector lays the row out in models.FeatureOrder.
func FeatureVector(row models.CustomerFeatures) ([]float64, error) {
	x := make([]float64, 0, models.NumFeatures)
	for _, name := range models.FeatureOrder {
		v, ok := row.Value(name)
		if !ok {
			return nil, errors.SchemaMismatch(
				fmt.Sprintf("customer %q has no %s feature", row.CustomerID, name))
		}
		x = append(x, v)
	}
	return x, nil
}

// Predict runs every horizon model on the same vector. Forecasts are passed
// through unmodified, negative values included.
func Predict(row models.CustomerFeatures, registry *predictor.Registry) (models.PredictionResult, error) {
	x, err := FeatureVector(row)
	if err != nil {
		return models.PredictionResult{}, err
	}

	forecasts := make(map[predictor.Horizon]float64, len(predictor.Horizons))
	for _, h := range predictor.Horizons {
		p, err := registry.Get(h)
		if err != nil {
			return models.PredictionResult{}, err
		}
		y, err := p.Predict(x)
		if err != nil {
			return models.PredictionResult{}, errors.SchemaMismatchWrap(err, fmt.Sprintf("%s model rejected feature vector", h))
		}
		forecasts[h] = y
	}

	return models.PredictionResult{
		CLV3M: forecasts[predictor.Horizon3M],
		CLV6M: forecasts[predictor.Horizon6M],
	}, nil
}
