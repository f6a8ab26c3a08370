package store

import (
	"encoding/gob"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"clv-dashboard/internal/config"
	"clv-dashboard/internal/models"
)

const cacheVersion = "v1"

type snapshot struct {
	Version             string
	Features            []models.CustomerFeatures
	Transactions        []models.Transaction
	SkippedTransactions int
	MissingColumns      []string
	CreatedAt           time.Time
}

func (snap *snapshot) restore() *Store {
	s := New(snap.Features, snap.Transactions)
	s.stats.SkippedTransactions = snap.SkippedTransactions
	s.stats.MissingColumns = snap.MissingColumns
	s.stats.FromCache = true
	return s
}

func cacheFilename(cfg config.DataConfig) string {
	key := strings.NewReplacer("/", "_", "\\", "_", ":", "_").
		Replace(cfg.FeaturesFile + "+" + cfg.TransactionsFile)
	return filepath.Join(cfg.CacheDir, fmt.Sprintf("%s_%s.gob", key, cacheVersion))
}

func saveToCache(cfg config.DataConfig, s *Store) error {
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return err
	}

	snap := snapshot{
		Version:             cacheVersion,
		SkippedTransactions: s.stats.SkippedTransactions,
		MissingColumns:      s.stats.MissingColumns,
		CreatedAt:           time.Now(),
	}
	for _, id := range s.ids {
		snap.Features = append(snap.Features, s.features[id]...)
	}
	for _, id := range slices.Sorted(maps.Keys(s.transactions)) {
		snap.Transactions = append(snap.Transactions, s.transactions[id]...)
	}

	file, err := os.Create(cacheFilename(cfg))
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(&snap)
}

// loadFromCache returns the snapshot only if it postdates both source files.
func loadFromCache(cfg config.DataConfig) (*snapshot, error) {
	file, err := os.Open(cacheFilename(cfg))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var snap snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, err
	}
	if snap.Version != cacheVersion {
		return nil, fmt.Errorf("cache version %q, want %q", snap.Version, cacheVersion)
	}

	for _, src := range []string{cfg.FeaturesFile, cfg.TransactionsFile} {
		info, err := os.Stat(src)
		if err != nil {
			return nil, err
		}
		if !info.ModTime().Before(snap.CreatedAt) {
			return nil, fmt.Errorf("%s changed since cache was written", src)
		}
	}
	return &snap, nil
}
