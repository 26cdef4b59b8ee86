package gpiostepper

import (
	"go.viam.com/utils"

	"github.com/nanoalchemist/movement/components/endstop"
)

// PinConfig defines the mapping of where the driver is wired.
type PinConfig struct {
	Step          string `json:"step"`
	Direction     string `json:"dir"`
	EnablePinHigh string `json:"en_high,omitempty"`
	EnablePinLow  string `json:"en_low,omitempty"`
}

// AxisConfig is the mechanical profile of the axis.
type AxisConfig struct {
	MillimetersPerRevolution float64 `json:"mm_per_revolution"`
	MotorAngle               float64 `json:"motor_angle"`
	Microsteps               int     `json:"microsteps"`
}

// DefaultAxisConfig is a 1.8 degree motor at 1/8 microstepping on a 2 mm lead screw.
func DefaultAxisConfig() AxisConfig {
	return AxisConfig{
		MillimetersPerRevolution: 2,
		MotorAngle:               1.8,
		Microsteps:               int(Eighth),
	}
}

// AttrConfig describes the configuration of the axis drive.
type AttrConfig struct {
	Pins     PinConfig      `json:"pins"`
	Axis     AxisConfig     `json:"axis"`
	Endstops endstop.Config `json:"endstops"`
}

// DefaultAttrConfig returns the stock wiring of the printer's shield, BCM numbered.
func DefaultAttrConfig() AttrConfig {
	return AttrConfig{
		Pins: PinConfig{
			Step:         "25",
			Direction:    "23",
			EnablePinLow: "22",
		},
		Axis: DefaultAxisConfig(),
		Endstops: endstop.Config{
			TopLimit:    "top_limit",
			BottomLimit: "bottom_limit",
			Fault:       "fault",
		},
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *AttrConfig) Validate(path string) error {
	if cfg.Pins.Step == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pins.step")
	}
	if cfg.Pins.Direction == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pins.dir")
	}
	return cfg.Endstops.Validate(path + ".endstops")
}
