package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-escrow-pipeline/results"
)

// CalculatorPack contributes payout calculators keyed by manifest request
// type.
type CalculatorPack struct {
	Name        string
	Calculators map[string]results.Calculator
}

type CommandQueryBundleFactory func(facade *Facade) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	calculatorPacks map[string]CalculatorPack
	bundles         map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		calculatorPacks: map[string]CalculatorPack{},
		bundles:         map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterCalculatorPack(pack CalculatorPack) error {
	if h == nil {
		return fmt.Errorf("pipeline: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("pipeline: calculator pack name is required")
	}
	if len(pack.Calculators) == 0 {
		return fmt.Errorf("pipeline: calculator pack %q has no calculators", name)
	}

	normalized := CalculatorPack{
		Name:        name,
		Calculators: make(map[string]results.Calculator, len(pack.Calculators)),
	}
	for requestType, calculator := range pack.Calculators {
		if calculator == nil {
			return fmt.Errorf("pipeline: calculator pack %q has nil calculator for %q", name, requestType)
		}
		normalized.Calculators[requestType] = calculator
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.calculatorPacks[name]; exists {
		return fmt.Errorf("pipeline: calculator pack %q already registered", name)
	}
	h.calculatorPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("pipeline: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("pipeline: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("pipeline: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("pipeline: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyCalculatorPacks registers every pack into registry in pack name order.
// A request type already served by the registry is an error.
func (h *ExtensionHooks) ApplyCalculatorPacks(registry *results.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("pipeline: results registry is required")
	}

	for _, pack := range h.CalculatorPacks() {
		requestTypes := make([]string, 0, len(pack.Calculators))
		for requestType := range pack.Calculators {
			requestTypes = append(requestTypes, requestType)
		}
		sort.Strings(requestTypes)
		for _, requestType := range requestTypes {
			if err := registry.Register(requestType, pack.Calculators[requestType]); err != nil {
				return fmt.Errorf("pipeline: calculator pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(facade *Facade) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if facade == nil {
		return nil, fmt.Errorf("pipeline: facade is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](facade)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) CalculatorPacks() []CalculatorPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.calculatorPacks))
	for name := range h.calculatorPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]CalculatorPack, 0, len(names))
	for _, name := range names {
		pack := h.calculatorPacks[name]
		calculators := make(map[string]results.Calculator, len(pack.Calculators))
		for requestType, calculator := range pack.Calculators {
			calculators[requestType] = calculator
		}
		out = append(out, CalculatorPack{Name: pack.Name, Calculators: calculators})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
