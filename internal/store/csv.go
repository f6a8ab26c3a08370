package store

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"clv-dashboard/internal/errors"
	"clv-dashboard/internal/models"
)

const (
	batchSize  = 10000
	maxWorkers = 10
)

const (
	colCustomerID  = "Customer ID"
	colCountry     = "Country"
	colInvoice     = "Invoice"
	colInvoiceDate = "InvoiceDate"
	colDescription = "Description"
	colQuantity    = "Quantity"
	colPrice       = "Price"
	colTotalPrice  = "TotalPrice"
)

var transactionColumns = []string{
	colCustomerID, colInvoice, colInvoiceDate, colDescription, colQuantity, colPrice, colTotalPrice,
}

var invoiceDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04",
	"2006-01-02",
}

// FeatureLoad is the outcome of reading the feature table. MissingColumns
// names FeatureOrder columns the header lacks; rows read from such a file
// cannot be scored.
type FeatureLoad struct {
	Rows           []models.CustomerFeatures
	MissingColumns []string
}

// TransactionLoad is the outcome of reading the transaction table.
type TransactionLoad struct {
	Records []models.Transaction
	Skipped int
}

// header maps column names to their index in a record.
type header map[string]int

func readHeader(r *csv.Reader) (header, error) {
	names, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := make(header, len(names))
	for i, name := range names {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h, nil
}

func (h header) field(record []string, name string) (string, bool) {
	idx, ok := h[name]
	if !ok || idx >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[idx]), true
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return cr
}

// LoadFeaturesFile reads the per-customer feature table.
func LoadFeaturesFile(ctx context.Context, filename string) (*FeatureLoad, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()
	return ReadFeatures(ctx, file)
}

// ReadFeatures parses a feature table. Columns are bound by header name using
// models.FeatureOrder. A blank feature cell leaves that feature absent; a cell
// that is not a number fails the read.
func ReadFeatures(ctx context.Context, r io.Reader) (*FeatureLoad, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	if _, ok := h[colCustomerID]; !ok {
		return nil, errors.SchemaMismatch(fmt.Sprintf("feature table has no %q column", colCustomerID))
	}

	result := &FeatureLoad{MissingColumns: missingFeatureColumns(h)}
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row, err := parseFeatureRow(h, record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		result.Rows = append(result.Rows, row)
	}

	if len(result.Rows) == 0 {
		return nil, fmt.Errorf("no feature rows found")
	}
	return result, nil
}

func parseFeatureRow(h header, record []string) (models.CustomerFeatures, error) {
	rawID, _ := h.field(record, colCustomerID)
	id := NormalizeCustomerID(rawID)
	if id == "" {
		return models.CustomerFeatures{}, fmt.Errorf("blank customer id")
	}

	country, _ := h.field(record, colCountry)
	row := models.CustomerFeatures{
		CustomerID: id,
		Country:    country,
		Values:     make(map[string]float64, models.NumFeatures),
	}

	for _, name := range models.FeatureOrder {
		raw, ok := h.field(record, name)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.CustomerFeatures{}, fmt.Errorf("%s: %w", name, err)
		}
		row.Values[name] = v
	}
	return row, nil
}

// missingFeatureColumns lists the FeatureOrder columns absent from a header.
func missingFeatureColumns(h header) []string {
	var missing []string
	for _, name := range models.FeatureOrder {
		if _, ok := h[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// LoadTransactionsFile reads the raw transaction table.
func LoadTransactionsFile(ctx context.Context, filename string) (*TransactionLoad, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()
	return ReadTransactions(ctx, file)
}

// ReadTransactions parses a transaction table. Rows that cannot be parsed are
// excluded and counted in Skipped. File order is preserved.
func ReadTransactions(ctx context.Context, r io.Reader) (*TransactionLoad, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	for _, name := range transactionColumns {
		if _, ok := h[name]; !ok {
			return nil, errors.SchemaMismatch(fmt.Sprintf("transaction table has no %q column", name))
		}
	}

	result := &TransactionLoad{}
	batch := make([][]string, 0, batchSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken line is excluded like any other bad row.
			var parseErr *csv.ParseError
			if stderrors.As(err, &parseErr) {
				result.Skipped++
				continue
			}
			return nil, fmt.Errorf("read record: %w", err)
		}

		batch = append(batch, record)
		if len(batch) >= batchSize {
			if err := processBatch(ctx, h, batch, result); err != nil {
				return nil, err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := processBatch(ctx, h, batch, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// processBatch parses records concurrently. Each worker writes to its own slot
// so the appended records keep file order.
func processBatch(ctx context.Context, h header, batch [][]string, result *TransactionLoad) error {
	type parsed struct {
		tx    models.Transaction
		valid bool
	}
	slots := make([]parsed, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	chunk := (len(batch) + maxWorkers - 1) / maxWorkers
	for start := 0; start < len(batch); start += chunk {
		end := min(start+chunk, len(batch))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				tx, err := parseTransaction(h, batch[i])
				if err != nil {
					continue
				}
				slots[i] = parsed{tx: tx, valid: true}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, p := range slots {
		if !p.valid {
			result.Skipped++
			continue
		}
		result.Records = append(result.Records, p.tx)
	}
	return nil
}

func parseTransaction(h header, record []string) (models.Transaction, error) {
	rawID, _ := h.field(record, colCustomerID)
	id := NormalizeCustomerID(rawID)
	if id == "" {
		return models.Transaction{}, fmt.Errorf("blank customer id")
	}

	invoice, _ := h.field(record, colInvoice)
	description, _ := h.field(record, colDescription)

	rawDate, _ := h.field(record, colInvoiceDate)
	date, err := parseInvoiceDate(rawDate)
	if err != nil {
		return models.Transaction{}, err
	}

	rawQty, _ := h.field(record, colQuantity)
	quantity, err := parseQuantity(rawQty)
	if err != nil {
		return models.Transaction{}, err
	}

	rawPrice, _ := h.field(record, colPrice)
	price, err := strconv.ParseFloat(rawPrice, 64)
	if err != nil {
		return models.Transaction{}, err
	}

	rawTotal, _ := h.field(record, colTotalPrice)
	total, err := strconv.ParseFloat(rawTotal, 64)
	if err != nil {
		return models.Transaction{}, err
	}

	return models.Transaction{
		CustomerID:  id,
		Invoice:     invoice,
		InvoiceDate: date,
		Description: description,
		Quantity:    quantity,
		Price:       price,
		TotalPrice:  total,
	}, nil
}

func parseInvoiceDate(raw string) (time.Time, error) {
	for _, layout := range invoiceDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised invoice date %q", raw)
}

func parseQuantity(raw string) (int, error) {
	if q, err := strconv.Atoi(raw); err == nil {
		return q, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("quantity %q is not a whole number", raw)
	}
	return int(f), nil
}

// NormalizeCustomerID trims the id and rewrites integral floats such as
// "12346.0" as "12346".
func NormalizeCustomerID(raw string) string {
	id := strings.TrimSpace(raw)
	if !strings.Contains(id, ".") {
		return id
	}
	f, err := strconv.ParseFloat(id, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return id
	}
	return strconv.FormatInt(int64(f), 10)
}
