package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// AdapterInfo describes a registered executor implementation.
type AdapterInfo struct {
	Type        string `json:"type"`         // "mssql"
	DisplayName string `json:"display_name"` // "Microsoft SQL Server"
	Description string `json:"description"`
}

// ExecutorFactoryFunc opens an executor from a generic config map.
type ExecutorFactoryFunc func(ctx context.Context, config map[string]any, logger *zap.Logger) (Executor, error)

// AdapterRegistration contains info + factory for creating executors.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory ExecutorFactoryFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for an adapter type.
// Returns nil if type is not registered.
func GetFactory(adapterType string) ExecutorFactoryFunc {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[adapterType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(adapterType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[adapterType]
	return ok
}
