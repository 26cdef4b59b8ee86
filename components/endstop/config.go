package endstop

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// DefaultDebounce is the settle time applied when a config leaves debounce_ms unset.
const DefaultDebounce = 50 * time.Millisecond

// Config names the board interrupts wired to the travel limits and the driver fault line.
type Config struct {
	TopLimit    string `json:"top_limit"`
	BottomLimit string `json:"bottom_limit"`
	Fault       string `json:"fault"`
	// DebounceMs of 0 selects DefaultDebounce; a negative value applies every edge immediately.
	DebounceMs int `json:"debounce_ms,omitempty"`
	// TopLimitDirection is the travel direction (1 or -1) stopped by the top limit. The bottom limit
	// stops the opposite one. 0 selects -1, the direction line driven low.
	TopLimitDirection int `json:"top_limit_direction,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.TopLimit == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "top_limit")
	}
	if cfg.BottomLimit == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "bottom_limit")
	}
	if cfg.Fault == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "fault")
	}
	switch cfg.TopLimitDirection {
	case -1, 0, 1:
	default:
		return errors.Errorf("%s.top_limit_direction: must be 1 or -1, got %d", path, cfg.TopLimitDirection)
	}
	return nil
}

// TopLimitGates returns the direction, 1 or -1, that the top limit stops.
func (cfg *Config) TopLimitGates() int {
	if cfg.TopLimitDirection == 0 {
		return -1
	}
	return cfg.TopLimitDirection
}

func (cfg *Config) debounce() time.Duration {
	switch {
	case cfg.DebounceMs == 0:
		return DefaultDebounce
	case cfg.DebounceMs < 0:
		return 0
	default:
		return time.Duration(cfg.DebounceMs) * time.Millisecond
	}
}
