package board

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/edaniels/golog"
)

// A Constructor creates a board of a specific model.
type Constructor func(ctx context.Context, cfg Config, logger golog.Logger) (Board, error)

var (
	registryMu    sync.RWMutex
	boardRegistry = map[string]Constructor{}
)

// RegisterBoard registers a board model. It panics if the model is already registered.
func RegisterBoard(model string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := boardRegistry[model]; old {
		panic(fmt.Errorf("board model [%s] already registered", model))
	}
	boardRegistry[model] = c
}

// RegisteredModels returns the names of every registered board model.
func RegisteredModels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := make([]string, 0, len(boardRegistry))
	for m := range boardRegistry {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// NewBoard constructs the board model named in cfg.
func NewBoard(ctx context.Context, cfg Config, logger golog.Logger) (Board, error) {
	registryMu.RLock()
	c, have := boardRegistry[cfg.Model]
	registryMu.RUnlock()
	if !have {
		return nil, fmt.Errorf("unknown board model: %v", cfg.Model)
	}
	return c(ctx, cfg, logger)
}
