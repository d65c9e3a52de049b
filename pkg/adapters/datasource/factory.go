package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ExecutorFactory creates executors from the registry.
type ExecutorFactory interface {
	// NewExecutor opens an executor for the given adapter type.
	NewExecutor(ctx context.Context, adapterType string, config map[string]any) (Executor, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewExecutorFactory returns a factory that uses the global registry.
func NewExecutorFactory(logger *zap.Logger) ExecutorFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registryFactory{logger: logger}
}

func (f *registryFactory) NewExecutor(ctx context.Context, adapterType string, config map[string]any) (Executor, error) {
	factory := GetFactory(adapterType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported adapter type: %s (not compiled in)", adapterType)
	}
	return factory(ctx, config, f.logger.With(zap.String("adapter", adapterType)))
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements ExecutorFactory at compile time.
var _ ExecutorFactory = (*registryFactory)(nil)
