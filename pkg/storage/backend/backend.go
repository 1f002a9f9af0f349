// Package backend provides storage backend implementations.
// All backends implement types.BackendStorage interface.
package backend

import (
	"fmt"
	"sync"

	"github.com/LeeDigitalWorks/zapshare/pkg/types"
)

// Registry holds registered backend factories
var (
	registryMu sync.RWMutex
	registry   = make(map[types.StorageType]Factory)
)

// Factory creates a BackendStorage from config
type Factory func(cfg types.BackendConfig) (types.BackendStorage, error)

// Register adds a factory for a storage type
func Register(t types.StorageType, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = f
}

// New creates a BackendStorage from config
func New(cfg types.BackendConfig) (types.BackendStorage, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
	return f(cfg)
}
