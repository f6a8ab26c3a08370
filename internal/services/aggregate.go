package services

import (
	"slices"

	"clv-dashboard/internal/models"
)

// TopProductLimit caps the ranked product spend view.
const TopProductLimit = 10

// Summarize derives every chart series from one customer's transactions.
func Summarize(txs []models.Transaction) models.PurchaseSummary {
	return models.PurchaseSummary{
		Products:        ProductTotals(txs),
		MonthlySpend:    MonthlySpend(txs),
		PricePoints:     PriceQuantityPairs(txs),
		MonthlyInvoices: MonthlyInvoiceCounts(txs),
		TopProducts:     TopProductSpend(txs, TopProductLimit),
	}
}

// ProductTotals sums quantity and spend per product, largest spend first.
// Products with equal spend keep the order they were first seen in.
func ProductTotals(txs []models.Transaction) []models.ProductTotal {
	index := make(map[string]int)
	result := make([]models.ProductTotal, 0)

	for _, tx := range txs {
		i, ok := index[tx.Description]
		if !ok {
			i = len(result)
			index[tx.Description] = i
			result = append(result, models.ProductTotal{Description: tx.Description})
		}
		result[i].Quantity += tx.Quantity
		result[i].TotalPrice += tx.TotalPrice
	}

	slices.SortStableFunc(result, func(a, b models.ProductTotal) int {
		return compareDesc(a.TotalPrice, b.TotalPrice)
	})
	return result
}

// TopProductSpend sums spend per product and keeps the n largest, largest
// first. Ties keep encounter order.
func TopProductSpend(txs []models.Transaction, n int) []models.ProductSpend {
	index := make(map[string]int)
	result := make([]models.ProductSpend, 0)

	for _, tx := range txs {
		i, ok := index[tx.Description]
		if !ok {
			i = len(result)
			index[tx.Description] = i
			result = append(result, models.ProductSpend{Description: tx.Description})
		}
		result[i].TotalPrice += tx.TotalPrice
	}

	slices.SortStableFunc(result, func(a, b models.ProductSpend) int {
		return compareDesc(a.TotalPrice, b.TotalPrice)
	})
	if n >= 0 && len(result) > n {
		result = result[:n]
	}
	return result
}

// MonthlySpend sums spend per invoice month in calendar order.
func MonthlySpend(txs []models.Transaction) []models.MonthlySpend {
	groups := make(map[string]float64)
	for _, tx := range txs {
		groups[tx.Month()] += tx.TotalPrice
	}

	result := make([]models.MonthlySpend, 0, len(groups))
	for _, month := range sortedMonths(groups) {
		result = append(result, models.MonthlySpend{Month: month, Spend: groups[month]})
	}
	return result
}

// PriceQuantityPairs returns one point per transaction, unaggregated.
func PriceQuantityPairs(txs []models.Transaction) []models.PricePoint {
	result := make([]models.PricePoint, 0, len(txs))
	for _, tx := range txs {
		result = append(result, models.PricePoint{Price: tx.Price, Quantity: tx.Quantity})
	}
	return result
}

// MonthlyInvoiceCounts counts distinct invoices per month in calendar order.
// Several line items on one invoice count once.
func MonthlyInvoiceCounts(txs []models.Transaction) []models.MonthlyInvoiceCount {
	groups := make(map[string]map[string]struct{})
	for _, tx := range txs {
		month := tx.Month()
		if groups[month] == nil {
			groups[month] = make(map[string]struct{})
		}
		groups[month][tx.Invoice] = struct{}{}
	}

	result := make([]models.MonthlyInvoiceCount, 0, len(groups))
	for _, month := range sortedMonths(groups) {
		result = append(result, models.MonthlyInvoiceCount{Month: month, Invoices: len(groups[month])})
	}
	return result
}

// sortedMonths returns the keys in ascending order. "YYYY-MM" keys sort
// chronologically as strings.
func sortedMonths[V any](groups map[string]V) []string {
	months := make([]string, 0, len(groups))
	for month := range groups {
		months = append(months, month)
	}
	slices.Sort(months)
	return months
}

func compareDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
