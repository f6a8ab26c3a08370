// Package charts turns purchase series into QuickChart image URLs.
package charts

import (
	"encoding/json"
	"fmt"

	quickchartgo "github.com/henomis/quickchart-go"

	"clv-dashboard/internal/models"
)

type ChartConfig struct {
	Type    string       `json:"type"`
	Data    ChartData    `json:"data"`
	Options ChartOptions `json:"options"`
}

type ChartData struct {
	Labels   []any     `json:"labels,omitempty"`
	DataSets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label           string  `json:"label"`
	Data            []any   `json:"data"`
	Fill            bool    `json:"fill"`
	BorderColor     string  `json:"borderColor,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	PointRadius     float64 `json:"pointRadius,omitempty"`
}

type ChartOptions struct {
	Title  Title  `json:"title"`
	Legend Legend `json:"legend"`
	Scales Scales `json:"scales"`
}

type Title struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
}

type Legend struct {
	Display bool `json:"display"`
}

type Scales struct {
	XAxes []Axis `json:"xAxes"`
	YAxes []Axis `json:"yAxes"`
}

type Axis struct {
	ScaleLabel ScaleLabel `json:"scaleLabel"`
	GridLines  GridLines  `json:"gridLines"`
}

type ScaleLabel struct {
	Display     bool   `json:"display"`
	LabelString string `json:"labelString"`
}

type GridLines struct {
	Display    bool  `json:"display"`
	BorderDash []int `json:"borderDash,omitempty"`
}

type point struct {
	X float64 `json:"x"`
	Y int     `json:"y"`
}

// Set holds one image URL per dashboard chart.
type Set struct {
	MonthlySpend     string `json:"monthly_spend"`
	TopProducts      string `json:"top_products"`
	QuantityVsPrice  string `json:"quantity_vs_price"`
	InvoicesPerMonth string `json:"invoices_per_month"`
}

// MaxURLLength is the longest GET URL handed to an <img src>. Larger charts
// are stored server side through QuickChart's create endpoint.
const MaxURLLength = 8000

// Builder renders configs with a currency symbol in the axis labels.
type Builder struct {
	currency string
	shorten  func(config string) (string, error)
}

func NewBuilder(currencySymbol string) *Builder {
	return &Builder{currency: currencySymbol, shorten: shortURL}
}

// Build renders all four charts for a purchase summary.
func (b *Builder) Build(summary models.PurchaseSummary) (Set, error) {
	var set Set
	var err error

	if set.MonthlySpend, err = b.render(b.MonthlySpend(summary.MonthlySpend)); err != nil {
		return Set{}, fmt.Errorf("monthly spend chart: %w", err)
	}
	if set.TopProducts, err = b.render(b.TopProducts(summary.TopProducts)); err != nil {
		return Set{}, fmt.Errorf("top products chart: %w", err)
	}
	if set.QuantityVsPrice, err = b.render(b.QuantityVsPrice(summary.PricePoints)); err != nil {
		return Set{}, fmt.Errorf("quantity vs price chart: %w", err)
	}
	if set.InvoicesPerMonth, err = b.render(b.InvoicesPerMonth(summary.MonthlyInvoices)); err != nil {
		return Set{}, fmt.Errorf("invoices per month chart: %w", err)
	}
	return set, nil
}

func (b *Builder) MonthlySpend(series []models.MonthlySpend) ChartConfig {
	labels := make([]any, 0, len(series))
	data := make([]any, 0, len(series))
	for _, m := range series {
		labels = append(labels, m.Month)
		data = append(data, m.Spend)
	}
	return ChartConfig{
		Type: "line",
		Data: ChartData{
			Labels: labels,
			DataSets: []Dataset{{
				Label:       "Spend",
				Data:        data,
				BorderColor: "purple",
				PointRadius: 3,
			}},
		},
		Options: options("Monthly Spending", "Month", b.label("Spend"), true),
	}
}

// TopProducts draws a horizontal bar chart with the largest spend on top.
func (b *Builder) TopProducts(series []models.ProductSpend) ChartConfig {
	labels := make([]any, 0, len(series))
	data := make([]any, 0, len(series))
	for _, p := range series {
		labels = append(labels, p.Description)
		data = append(data, p.TotalPrice)
	}
	return ChartConfig{
		Type: "horizontalBar",
		Data: ChartData{
			Labels: labels,
			DataSets: []Dataset{{
				Label:           "Spend",
				Data:            data,
				BackgroundColor: "darkgreen",
			}},
		},
		Options: options("Top Products", b.label("Spend"), "Product", false),
	}
}

func (b *Builder) QuantityVsPrice(series []models.PricePoint) ChartConfig {
	data := make([]any, 0, len(series))
	for _, p := range series {
		data = append(data, point{X: p.Price, Y: p.Quantity})
	}
	return ChartConfig{
		Type: "scatter",
		Data: ChartData{
			DataSets: []Dataset{{
				Label:           "Line items",
				Data:            data,
				BackgroundColor: "rgba(255, 99, 71, 0.5)",
				PointRadius:     4,
			}},
		},
		Options: options("Quantity vs Price", b.label("Unit Price"), "Quantity", true),
	}
}

func (b *Builder) InvoicesPerMonth(series []models.MonthlyInvoiceCount) ChartConfig {
	labels := make([]any, 0, len(series))
	data := make([]any, 0, len(series))
	for _, m := range series {
		labels = append(labels, m.Month)
		data = append(data, m.Invoices)
	}
	return ChartConfig{
		Type: "bar",
		Data: ChartData{
			Labels: labels,
			DataSets: []Dataset{{
				Label:           "Invoices",
				Data:            data,
				BackgroundColor: "steelblue",
			}},
		},
		Options: options("Invoices per Month", "Month", "Invoices", false),
	}
}

func (b *Builder) label(name string) string {
	if b.currency == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, b.currency)
}

func options(title, xLabel, yLabel string, grid bool) ChartOptions {
	var dash []int
	if grid {
		dash = []int{4, 4}
	}
	return ChartOptions{
		Title:  Title{Display: true, Text: title},
		Legend: Legend{Display: false},
		Scales: Scales{
			XAxes: []Axis{{
				ScaleLabel: ScaleLabel{Display: true, LabelString: xLabel},
				GridLines:  GridLines{Display: grid, BorderDash: dash},
			}},
			YAxes: []Axis{{
				ScaleLabel: ScaleLabel{Display: true, LabelString: yLabel},
				GridLines:  GridLines{Display: grid, BorderDash: dash},
			}},
		},
	}
}

// render returns the GET URL for small charts and a short URL otherwise.
func (b *Builder) render(config ChartConfig) (string, error) {
	bytes, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("marshal chart config: %w", err)
	}
	url, err := getURL(string(bytes))
	if err != nil {
		return "", err
	}
	if len(url) <= MaxURLLength {
		return url, nil
	}
	short, err := b.shorten(string(bytes))
	if err != nil {
		return "", fmt.Errorf("quickchart short url (%d byte config): %w", len(bytes), err)
	}
	return short, nil
}

// getURL builds a QuickChart GET URL. No request is made.
func getURL(config string) (string, error) {
	qc := quickchartgo.New()
	qc.Config = config
	url, err := qc.GetUrl()
	if err != nil {
		return "", fmt.Errorf("quickchart url: %w", err)
	}
	return url, nil
}

// shortURL posts the config to QuickChart and returns the stored chart's URL.
func shortURL(config string) (string, error) {
	qc := quickchartgo.New()
	qc.Config = config
	return qc.GetShortUrl()
}
