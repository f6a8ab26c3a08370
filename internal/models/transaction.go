package models

import "time"

// MonthLayout is the year-month truncation used as a grouping key.
const MonthLayout = "2006-01"

type Transaction struct {
	CustomerID  string
	Invoice     string
	InvoiceDate time.Time
	Description string
	Quantity    int
	Price       float64
	TotalPrice  float64
}

// Month returns the year-month key of the invoice date.
func (t Transaction) Month() string {
	return t.InvoiceDate.Format(MonthLayout)
}

type ProductTotal struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	TotalPrice  float64 `json:"total_price"`
}

type ProductSpend struct {
	Description string  `json:"description"`
	TotalPrice  float64 `json:"total_price"`
}

type MonthlySpend struct {
	Month string  `json:"month"`
	Spend float64 `json:"spend"`
}

type PricePoint struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type MonthlyInvoiceCount struct {
	Month    string `json:"month"`
	Invoices int    `json:"invoices"`
}

// PurchaseSummary groups the chart-ready series derived from one customer's
// transactions.
type PurchaseSummary struct {
	Products        []ProductTotal        `json:"products"`
	MonthlySpend    []MonthlySpend        `json:"monthly_spend"`
	PricePoints     []PricePoint          `json:"price_quantity"`
	MonthlyInvoices []MonthlyInvoiceCount `json:"monthly_invoices"`
	TopProducts     []ProductSpend        `json:"top_products"`
}
