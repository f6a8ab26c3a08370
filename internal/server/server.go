package server

import (
	"log/slog"
	"net/http"

	"clv-dashboard/internal/charts"
	"clv-dashboard/internal/handlers"
	"clv-dashboard/internal/services"
)

type Server struct {
	clv         *services.CLV
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

type Options struct {
	CurrencySymbol string
}

func NewServer(clv *services.CLV, logger *slog.Logger, templateHandlers *TemplateHandlers, opts Options) *Server {
	chartBuilder := charts.NewBuilder(opts.CurrencySymbol)
	s := &Server{
		clv:         clv,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(clv, chartBuilder, logger),
		sseHandlers: handlers.NewSSEHandlers(clv, chartBuilder, opts.CurrencySymbol, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints
	s.mux.HandleFunc("GET /api/customers", s.apiHandlers.HandleCustomers)
	s.mux.HandleFunc("GET /api/customers/{id}", s.apiHandlers.HandleCustomer)
	s.mux.HandleFunc("GET /api/customers/{id}/prediction", s.apiHandlers.HandlePrediction)
	s.mux.HandleFunc("GET /api/customers/{id}/products", s.apiHandlers.HandleProducts)
	s.mux.HandleFunc("GET /api/customers/{id}/top-products", s.apiHandlers.HandleTopProducts)
	s.mux.HandleFunc("GET /api/customers/{id}/monthly-spend", s.apiHandlers.HandleMonthlySpend)
	s.mux.HandleFunc("GET /api/customers/{id}/price-quantity", s.apiHandlers.HandlePriceQuantity)
	s.mux.HandleFunc("GET /api/customers/{id}/monthly-invoices", s.apiHandlers.HandleMonthlyInvoices)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/customer", s.sseHandlers.HandleCustomer)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
