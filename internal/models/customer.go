package models

const (
	FeatureRecency       = "Recency"
	FeatureTenure        = "Tenure"
	FeatureFrequency     = "Frequency"
	FeatureTotalSpent    = "TotalSpent"
	FeatureTotalQuantity = "TotalQuantity"
	FeatureAvgUnitPrice  = "AvgUnitPrice"
	FeatureAvgOrderValue = "AvgOrderValue"
	FeatureAvgQuantity   = "AvgQuantity"
)

// FeatureOrder is the column order the CLV models were trained on. The CSV
// loader, vector assembly and artefact validation all read it from here.
var FeatureOrder = [...]string{
	FeatureRecency,
	FeatureTenure,
	FeatureFrequency,
	FeatureTotalSpent,
	FeatureTotalQuantity,
	FeatureAvgUnitPrice,
	FeatureAvgOrderValue,
	FeatureAvgQuantity,
}

// NumFeatures is the length of a model input vector.
const NumFeatures = len(FeatureOrder)

// CustomerFeatures is one row of the feature table. Values is keyed by the
// names in FeatureOrder; a blank cell in the source leaves its key absent.
type CustomerFeatures struct {
	CustomerID string
	Country    string
	Values     map[string]float64
}

func (c CustomerFeatures) Value(name string) (float64, bool) {
	v, ok := c.Values[name]
	return v, ok
}

// Summary projects the row for display. Absent values read as zero.
func (c CustomerFeatures) Summary() CustomerSummary {
	return CustomerSummary{
		CustomerID:    c.CustomerID,
		Country:       c.Country,
		Recency:       int(c.Values[FeatureRecency]),
		Tenure:        c.Values[FeatureTenure],
		Frequency:     int(c.Values[FeatureFrequency]),
		TotalSpent:    c.Values[FeatureTotalSpent],
		TotalQuantity: c.Values[FeatureTotalQuantity],
		AvgUnitPrice:  c.Values[FeatureAvgUnitPrice],
		AvgOrderValue: c.Values[FeatureAvgOrderValue],
		AvgQuantity:   c.Values[FeatureAvgQuantity],
	}
}

type CustomerSummary struct {
	CustomerID    string  `json:"customer_id"`
	Country       string  `json:"country"`
	Recency       int     `json:"recency_days"`
	Tenure        float64 `json:"tenure"`
	Frequency     int     `json:"frequency"`
	TotalSpent    float64 `json:"total_spent"`
	TotalQuantity float64 `json:"total_quantity"`
	AvgUnitPrice  float64 `json:"avg_unit_price"`
	AvgOrderValue float64 `json:"avg_order_value"`
	AvgQuantity   float64 `json:"avg_quantity"`
}

type PredictionResult struct {
	CLV3M float64 `json:"clv_3m"`
	CLV6M float64 `json:"clv_6m"`
}

// CustomerReport is everything the dashboard shows for one selection.
type CustomerReport struct {
	Customer     CustomerSummary  `json:"customer"`
	Prediction   PredictionResult `json:"prediction"`
	Transactions int              `json:"transactions"`
	PurchaseSummary
}
