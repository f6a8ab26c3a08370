package store

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"clv-dashboard/internal/config"
	"clv-dashboard/internal/models"
)

// Store holds the feature and transaction tables. It is built once and never
// written afterwards, so it is safe for concurrent readers.
type Store struct {
	features     map[string][]models.CustomerFeatures
	transactions map[string][]models.Transaction
	ids          []string
	stats        Stats
}

type Stats struct {
	Customers           int       `json:"customers"`
	FeatureRows         int       `json:"feature_rows"`
	Transactions        int       `json:"transactions"`
	SkippedTransactions int       `json:"skipped_transactions"`
	MissingColumns      []string  `json:"missing_feature_columns,omitempty"`
	LoadedAt            time.Time `json:"loaded_at"`
	FromCache           bool      `json:"from_cache"`
}

// New indexes already parsed rows. Transactions keep their relative order
// within each customer.
func New(features []models.CustomerFeatures, transactions []models.Transaction) *Store {
	s := &Store{
		features:     make(map[string][]models.CustomerFeatures),
		transactions: make(map[string][]models.Transaction),
	}

	for _, row := range features {
		if _, seen := s.features[row.CustomerID]; !seen {
			s.ids = append(s.ids, row.CustomerID)
		}
		s.features[row.CustomerID] = append(s.features[row.CustomerID], row)
	}
	for _, tx := range transactions {
		s.transactions[tx.CustomerID] = append(s.transactions[tx.CustomerID], tx)
	}
	slices.SortFunc(s.ids, CompareCustomerIDs)

	s.stats = Stats{
		Customers:    len(s.ids),
		FeatureRows:  len(features),
		Transactions: len(transactions),
		LoadedAt:     time.Now(),
	}
	return s
}

// Load reads both tables, using the gob snapshot in cfg.CacheDir when it is
// newer than the source files.
func Load(ctx context.Context, cfg config.DataConfig, logger *slog.Logger) (*Store, error) {
	if cfg.CacheDir != "" {
		if snap, err := loadFromCache(cfg); err == nil {
			s := snap.restore()
			logger.Info("loaded data from cache",
				"customers", s.stats.Customers,
				"transactions", s.stats.Transactions,
			)
			return s, nil
		}
	}

	start := time.Now()
	logger.Info("processing data files",
		"features", cfg.FeaturesFile,
		"transactions", cfg.TransactionsFile,
	)

	var (
		features *FeatureLoad
		txs      *TransactionLoad
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		features, err = LoadFeaturesFile(gctx, cfg.FeaturesFile)
		if err != nil {
			return fmt.Errorf("load features %s: %w", cfg.FeaturesFile, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		txs, err = LoadTransactionsFile(gctx, cfg.TransactionsFile)
		if err != nil {
			return fmt.Errorf("load transactions %s: %w", cfg.TransactionsFile, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(features.MissingColumns) > 0 {
		logger.Warn("feature table is missing model columns, predictions will fail",
			"columns", features.MissingColumns,
		)
	}
	if txs.Skipped > 0 {
		logger.Warn("excluded malformed transaction rows", "skipped", txs.Skipped)
	}

	s := New(features.Rows, txs.Records)
	s.stats.SkippedTransactions = txs.Skipped
	s.stats.MissingColumns = features.MissingColumns

	if cfg.CacheDir != "" {
		if err := saveToCache(cfg, s); err != nil {
			logger.Warn("failed to save cache", "error", err)
		}
	}

	duration := time.Since(start)
	logger.Info("data processing complete",
		"customers", s.stats.Customers,
		"transactions", s.stats.Transactions,
		"duration", duration,
		"rate", fmt.Sprintf("%.0f records/sec", float64(s.stats.Transactions)/duration.Seconds()),
	)
	return s, nil
}

// CustomerIDs returns the feature table key set in ascending order.
func (s *Store) CustomerIDs() []string {
	return slices.Clone(s.ids)
}

// FeatureRows returns every feature row stored under id.
func (s *Store) FeatureRows(id string) []models.CustomerFeatures {
	return s.features[NormalizeCustomerID(id)]
}

// Transactions returns a copy of id's transactions in file order.
func (s *Store) Transactions(id string) []models.Transaction {
	return slices.Clone(s.transactions[NormalizeCustomerID(id)])
}

func (s *Store) Stats() Stats {
	return s.stats
}

// CompareCustomerIDs orders numeric ids numerically and everything else
// lexically, numeric ids first.
func CompareCustomerIDs(a, b string) int {
	na, errA := strconv.ParseFloat(a, 64)
	nb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}
