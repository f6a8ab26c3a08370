package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"clv-dashboard/internal/charts"
	"clv-dashboard/internal/errors"
	"clv-dashboard/internal/models"
	"clv-dashboard/internal/observability"
	"clv-dashboard/internal/services"
)

const maxTableRows = 50

var fragmentFuncs = template.FuncMap{
	"money": func(symbol string, v float64) string {
		return symbol + formatFloat(v)
	},
	"fixed": formatFloat,
}

var predictionTemplate = template.Must(template.New("prediction").Funcs(fragmentFuncs).Parse(`<div id="prediction-content" class="metrics">
<div class="metric"><span class="metric-label">Predicted Spend in 3 Months</span><span class="metric-value">{{money .Currency .Report.Prediction.CLV3M}}</span></div>
<div class="metric"><span class="metric-label">Predicted Spend in 6 Months</span><span class="metric-value">{{money .Currency .Report.Prediction.CLV6M}}</span></div>
<div class="metric"><span class="metric-label">Customer Country</span><span class="metric-value">{{.Report.Customer.Country}}</span></div>
</div>`))

var summaryTemplate = template.Must(template.New("summary").Funcs(fragmentFuncs).Parse(`<div id="summary-content" class="metrics">
<div class="metric"><span class="metric-label">Recency (days)</span><span class="metric-value">{{.Report.Customer.Recency}}</span></div>
<div class="metric"><span class="metric-label">Frequency (orders)</span><span class="metric-value">{{.Report.Customer.Frequency}}</span></div>
<div class="metric"><span class="metric-label">Total Spent ({{.Currency}})</span><span class="metric-value">{{fixed .Report.Customer.TotalSpent}}</span></div>
<div class="metric"><span class="metric-label">Avg Order Value ({{.Currency}})</span><span class="metric-value">{{fixed .Report.Customer.AvgOrderValue}}</span></div>
</div>`))

var productTableTemplate = template.Must(template.New("productTable").Funcs(fragmentFuncs).Parse(`<div id="products-content">
<table class="modern-table">
<thead><tr><th>Description</th><th>Quantity</th><th>TotalPrice</th></tr></thead>
<tbody>
{{range .Products}}<tr>
<td>{{.Description}}</td>
<td>{{.Quantity}}</td>
<td><strong>{{fixed .TotalPrice}}</strong></td>
</tr>{{else}}<tr><td colspan="3">No purchases recorded</td></tr>{{end}}
</tbody>
</table>{{if .Truncated}}
<p class="table-note">Showing {{len .Products}} of {{.Total}} products</p>{{end}}
</div>`))

var chartsTemplate = template.Must(template.New("charts").Parse(`<div id="charts-content" class="chart-grid">
<img src="{{.MonthlySpend}}" alt="Monthly Spending">
<img src="{{.TopProducts}}" alt="Top Products">
<img src="{{.QuantityVsPrice}}" alt="Quantity vs Price">
<img src="{{.InvoicesPerMonth}}" alt="Invoices per Month">
</div>`))

var errorTemplate = template.Must(template.New("error").Parse(`<div id="customer-error" class="error-banner">{{if .}}{{.}}{{end}}</div>`))

// emptyPanels replace the previous customer's panels when a report fails.
var emptyPanels = []string{
	`<div id="prediction-content" class="metrics"></div>`,
	`<div id="summary-content" class="metrics"></div>`,
	`<div id="products-content"></div>`,
	`<div id="charts-content" class="chart-grid"></div>`,
}

type SSEHandlers struct {
	clv      *services.CLV
	charts   *charts.Builder
	currency string
	logger   *slog.Logger
}

func NewSSEHandlers(clv *services.CLV, chartBuilder *charts.Builder, currency string, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		clv:      clv,
		charts:   chartBuilder,
		currency: currency,
		logger:   logger,
	}
}

// customerSignals is the client state sent with every datastar request.
type customerSignals struct {
	CustomerID string `json:"customerId"`
}

type reportData struct {
	Report   *models.CustomerReport
	Currency string
}

type productTableData struct {
	Products  []models.ProductTotal
	Total     int
	Truncated bool
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder
	err := tmpl.Execute(&buf, data)
	return buf.String(), err
}

func (h *SSEHandlers) renderProductTable(products []models.ProductTotal) (string, error) {
	data := productTableData{Products: products, Total: len(products)}
	if len(products) > maxTableRows {
		data.Products = products[:maxTableRows]
		data.Truncated = true
	}
	return render(productTableTemplate, data)
}

// HandleCustomer streams the panels for the customer in the customerId
// signal, defaulting to the first id.
func (h *SSEHandlers) HandleCustomer(w http.ResponseWriter, r *http.Request) {
	var signals customerSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "invalid signals"), observability.GetRequestID(r.Context()))
		return
	}

	sse := datastar.NewSSE(w, r)

	if signals.CustomerID == "" {
		if ids := h.clv.CustomerIDs(); len(ids) > 0 {
			signals.CustomerID = ids[0]
		}
	}

	report, err := h.clv.Report(r.Context(), signals.CustomerID)
	if err != nil {
		h.patchError(r.Context(), sse, err)
		return
	}

	set, err := h.charts.Build(report.PurchaseSummary)
	if err != nil {
		h.patchError(r.Context(), sse, errors.InternalWrap(err, "failed to build charts"))
		return
	}

	fragments := make([]string, 0, 5)
	data := reportData{Report: report, Currency: h.currency}
	for _, tmpl := range []*template.Template{predictionTemplate, summaryTemplate} {
		html, err := render(tmpl, data)
		if err != nil {
			h.logger.Error("render fragment", "template", tmpl.Name(), "error", err)
			return
		}
		fragments = append(fragments, html)
	}

	table, err := h.renderProductTable(report.Products)
	if err != nil {
		h.logger.Error("render product table", "error", err)
		return
	}
	chartHTML, err := render(chartsTemplate, set)
	if err != nil {
		h.logger.Error("render charts", "error", err)
		return
	}
	cleared, _ := render(errorTemplate, "")
	fragments = append(fragments, table, chartHTML, cleared)

	for _, html := range fragments {
		if err := sse.PatchElements(html); err != nil {
			h.logger.Warn("patch elements", "error", err)
			return
		}
	}

	allSignals, err := json.Marshal(map[string]any{
		"customerId":      report.Customer.CustomerID,
		"monthlySpend":    report.MonthlySpend,
		"topProducts":     report.TopProducts,
		"pricePoints":     report.PricePoints,
		"monthlyInvoices": report.MonthlyInvoices,
	})
	if err != nil {
		h.logger.Error("marshal customer signals", "error", err)
		return
	}
	if err := sse.PatchSignals(allSignals); err != nil {
		h.logger.Warn("patch signals", "error", err)
	}
}

func (h *SSEHandlers) patchError(ctx context.Context, sse *datastar.ServerSentEventGenerator, err error) {
	code := errors.CodeOf(err)
	level := slog.LevelError
	if code == errors.CodeNotFound {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "customer report failed",
		"error_code", code,
		"error", err,
		"request_id", observability.GetRequestID(ctx),
	)

	html, renderErr := render(errorTemplate, string(code)+": "+publicMessage(err))
	if renderErr != nil {
		h.logger.Error("render error fragment", "error", renderErr)
		return
	}
	for _, fragment := range append([]string{html}, emptyPanels...) {
		if patchErr := sse.PatchElements(fragment); patchErr != nil {
			h.logger.Warn("patch error fragment", "error", patchErr)
			return
		}
	}
}

// publicMessage hides causes of non-application errors from the page.
func publicMessage(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "An unexpected error occurred"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
