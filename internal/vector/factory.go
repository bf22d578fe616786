package vector

import (
	"fmt"
	"sort"
	"time"
)

// DefaultBackend is used when no backend is configured.
const DefaultBackend = "chroma"

// DialConfig holds everything needed to reach any supported backend.
type DialConfig struct {
	Backend string // "chroma", "qdrant"
	Host    string
	Port    int
	Timeout time.Duration // Per-call timeout (0 = none)

	// Embedder computes embeddings locally. Optional for chroma, required for qdrant.
	Embedder Embedder
}

// DialerConstructor builds a Dialer from config.
type DialerConstructor func(cfg DialConfig) (Dialer, error)

// Factory creates Dialers by backend name.
type Factory struct {
	constructors map[string]DialerConstructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		constructors: make(map[string]DialerConstructor),
	}
}

// Register adds a backend constructor under the given name.
func (f *Factory) Register(name string, ctor DialerConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Dialer for cfg.Backend, falling back to DefaultBackend.
func (f *Factory) Create(cfg DialConfig) (Dialer, error) {
	name := cfg.Backend
	if name == "" {
		name = DefaultBackend
	}
	ctor, ok := f.constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown vector backend %q (registered: %v)", name, f.Names())
	}
	return ctor(cfg)
}

// Names returns the registered backend names in sorted order.
func (f *Factory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
