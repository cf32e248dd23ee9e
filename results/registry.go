package results

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-escrow-pipeline/core"
)

// Calculator is one request type's payout and results logic.
type Calculator interface {
	CalculatePayouts(ctx context.Context, in Input) ([]core.Payout, error)
	SaveResults(ctx context.Context, in Input) (core.FinalResults, error)
}

type Registry struct {
	mu          sync.RWMutex
	calculators map[string]Calculator
}

func NewRegistry() *Registry {
	return &Registry{calculators: map[string]Calculator{}}
}

// NewDefaultRegistry registers the fortune calculator and the CVAT calculator
// for every image annotation request type.
func NewDefaultRegistry(storage core.StorageService) (*Registry, error) {
	registry := NewRegistry()
	if err := registry.Register(RequestTypeFortune, NewFortuneCalculator(storage)); err != nil {
		return nil, err
	}
	cvat := NewCVATCalculator(storage)
	for _, requestType := range []string{
		RequestTypeImageBoxes,
		RequestTypeImagePoints,
		RequestTypeImagePolygons,
		RequestTypeImageBoxesFromPoints,
		RequestTypeImageSkeletonsFromBoxes,
	} {
		if err := registry.Register(requestType, cvat); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *Registry) Register(requestType string, calculator Calculator) error {
	if r == nil {
		return fmt.Errorf("results: registry is nil")
	}
	key := strings.ToLower(strings.TrimSpace(requestType))
	if key == "" {
		return fmt.Errorf("results: request type is required")
	}
	if calculator == nil {
		return fmt.Errorf("results: calculator for %q is nil", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calculators[key]; exists {
		return fmt.Errorf("results: calculator already registered for %q", key)
	}
	r.calculators[key] = calculator
	return nil
}

// Resolve reports an unsupported request type as an invariant violation; no
// retry can make it supported.
func (r *Registry) Resolve(requestType string) (Calculator, error) {
	if r == nil {
		return nil, fmt.Errorf("results: registry is nil")
	}
	key := strings.ToLower(strings.TrimSpace(requestType))
	r.mu.RLock()
	calculator, ok := r.calculators[key]
	r.mu.RUnlock()
	if !ok {
		return nil, core.InvariantError(
			fmt.Sprintf("results: unsupported request type %q", key),
			map[string]any{"request_type": key},
		)
	}
	return calculator, nil
}

func (r *Registry) RequestTypes() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.calculators))
	for key := range r.calculators {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
