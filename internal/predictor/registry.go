package predictor

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"clv-dashboard/internal/config"
	"clv-dashboard/internal/errors"
)

// Horizon names the forecast window a predictor targets.
type Horizon string

const (
	Horizon3M Horizon = "3m"
	Horizon6M Horizon = "6m"
)

// Horizons lists every horizon the dashboard forecasts.
var Horizons = []Horizon{Horizon3M, Horizon6M}

// Registry holds one predictor per horizon. Like the data store it is filled
// once at startup and only read afterwards.
type Registry struct {
	predictors map[Horizon]Predictor
	failures   map[Horizon]error
}

func NewRegistry(predictors map[Horizon]Predictor) *Registry {
	r := &Registry{
		predictors: make(map[Horizon]Predictor, len(predictors)),
		failures:   make(map[Horizon]error),
	}
	for h, p := range predictors {
		if p != nil {
			r.predictors[h] = p
		}
	}
	return r
}

// LoadRegistry loads both horizon models concurrently. A model that fails to
// load is left out of the registry and its error is returned joined with any
// others; the registry is usable either way.
func LoadRegistry(ctx context.Context, cfg config.ModelConfig, logger *slog.Logger) (*Registry, error) {
	files := map[Horizon]string{
		Horizon3M: cfg.ThreeMonthFile,
		Horizon6M: cfg.SixMonthFile,
	}

	r := NewRegistry(nil)
	var mu sync.Mutex

	var g errgroup.Group
	for h, filename := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := LoadFile(filename)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.failures[h] = fmt.Errorf("load %s model from %s: %w", h, filename, err)
				return nil
			}
			r.predictors[h] = p
			logger.Info("model loaded", "horizon", h, "file", filename)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var errs []error
	for _, h := range Horizons {
		if err := r.failures[h]; err != nil {
			errs = append(errs, err)
		}
	}
	return r, stderrors.Join(errs...)
}

// Get returns the predictor for h or a ModelUnavailable error.
func (r *Registry) Get(h Horizon) (Predictor, error) {
	if p, ok := r.predictors[h]; ok {
		return p, nil
	}
	if cause, ok := r.failures[h]; ok {
		return nil, errors.ModelUnavailableWrap(cause, fmt.Sprintf("%s model failed to load", h))
	}
	return nil, errors.ModelUnavailable(fmt.Sprintf("no %s model registered", h))
}

// Status reports, per horizon, whether a model is ready.
func (r *Registry) Status() map[Horizon]bool {
	status := make(map[Horizon]bool, len(Horizons))
	for _, h := range Horizons {
		_, ok := r.predictors[h]
		status[h] = ok
	}
	return status
}
