package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/evanofslack/ddns-sync/internal/config"
)

// Factory constructs a provider from its configured spec. Provider
// packages register themselves in their init().
type Factory func(name string, spec config.ProviderSpec, exec *Exec) (Provider, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("provider: %q already registered", kind))
	}
	factories[kind] = f
}

// New looks up the spec's type in the registry and constructs the
// provider. Construction performs all template and rule compilation, so
// configuration errors surface here, before the first update attempt.
func New(name string, spec config.ProviderSpec, exec *Exec) (Provider, error) {
	mu.Lock()
	f, ok := factories[spec.Type]
	kinds := registered()
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported provider type %q (registered: %v)", spec.Type, kinds)
	}
	return f(name, spec, exec)
}

func registered() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
