package board

import (
	"fmt"

	"go.viam.com/utils"
)

// A Config describes the board driving the axis and the sense lines it watches.
type Config struct {
	Model             string                   `json:"model"` // example: "genericlinux"
	GPIOChipDev       string                   `json:"gpio_chip_dev,omitempty"`
	DigitalInterrupts []DigitalInterruptConfig `json:"digital_interrupts,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) error {
	if config.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	for idx, conf := range config.DigitalInterrupts {
		if err := conf.Validate(fmt.Sprintf("%s.%s.%d", path, "digital_interrupts", idx)); err != nil {
			return err
		}
	}
	return nil
}

// DigitalInterruptConfig describes the configuration of digital interrupt for a board.
type DigitalInterruptConfig struct {
	Name string `json:"name"`
	Pin  string `json:"pin"`
}

// Validate ensures all parts of the config are valid.
func (config *DigitalInterruptConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.Pin == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pin")
	}
	return nil
}
