package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"clv-dashboard/internal/charts"
	"clv-dashboard/internal/errors"
	"clv-dashboard/internal/models"
	"clv-dashboard/internal/observability"
	"clv-dashboard/internal/services"
)

const cacheControl = "private, max-age=60"

type APIHandlers struct {
	clv    *services.CLV
	charts *charts.Builder
	logger *slog.Logger
}

func NewAPIHandlers(clv *services.CLV, chartBuilder *charts.Builder, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		clv:    clv,
		charts: chartBuilder,
		logger: logger,
	}
}

type customerResponse struct {
	*models.CustomerReport
	Charts charts.Set `json:"charts"`
}

func (h *APIHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) writeData(w http.ResponseWriter, data any) {
	errors.WriteSuccessWithHeaders(w, data, map[string]string{
		"Cache-Control": cacheControl,
	})
}

// transactions resolves the {id} path value to the customer's records.
func (h *APIHandlers) transactions(r *http.Request) ([]models.Transaction, error) {
	_, txs, err := h.clv.Lookup(r.PathValue("id"))
	return txs, err
}

func (h *APIHandlers) HandleCustomers(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, h.clv.CustomerIDs())
}

func (h *APIHandlers) HandleCustomer(w http.ResponseWriter, r *http.Request) {
	report, err := h.clv.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	set, err := h.charts.Build(report.PurchaseSummary)
	if err != nil {
		h.writeError(w, r, errors.InternalWrap(err, "failed to build charts"))
		return
	}

	h.writeData(w, customerResponse{CustomerReport: report, Charts: set})
}

func (h *APIHandlers) HandlePrediction(w http.ResponseWriter, r *http.Request) {
	row, _, err := h.clv.Lookup(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	prediction, err := h.clv.Predict(row)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeData(w, prediction)
}

func (h *APIHandlers) HandleProducts(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, services.ProductTotals(txs))
}

func (h *APIHandlers) HandleTopProducts(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, services.TopProductSpend(txs, services.TopProductLimit))
}

func (h *APIHandlers) HandleMonthlySpend(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, services.MonthlySpend(txs))
}

func (h *APIHandlers) HandlePriceQuantity(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, services.PriceQuantityPairs(txs))
}

func (h *APIHandlers) HandleMonthlyInvoices(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, services.MonthlyInvoiceCounts(txs))
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.clv.Stats())
}
