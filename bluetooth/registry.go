package bluetooth

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Factory builds an unopened Device of one module variant
type Factory func() Device

// Global variant registry
var (
	registryMu sync.RWMutex
	variants   = make(map[string]Factory)
)

// Register makes a module variant available by name. Variant packages call
// it from init, so importing the package is enough to enable it.
func Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("bluetooth: variant name is required")
	}
	if factory == nil {
		return errors.New("bluetooth: variant factory is nil")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := variants[name]; exists {
		return fmt.Errorf("bluetooth: variant %q already registered", name)
	}
	variants[name] = factory
	return nil
}

// New creates a Device of the named variant
func New(name string) (Device, error) {
	registryMu.RLock()
	factory, ok := variants[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return factory(), nil
}

// Variants returns the registered variant names in sorted order
func Variants() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
