// Package config defines the movementd configuration file.
package config

import (
	"github.com/pkg/errors"

	"github.com/nanoalchemist/movement/components/board"
	"github.com/nanoalchemist/movement/components/board/genericlinux"
	"github.com/nanoalchemist/movement/components/motor/gpiostepper"
	"github.com/nanoalchemist/movement/logging"
	"github.com/nanoalchemist/movement/serial"
	"github.com/nanoalchemist/movement/web"
)

// A Config describes the configuration of the movement daemon.
type Config struct {
	ConfigFilePath string `json:"-"`

	Board             board.Config           `json:"board"`
	Motor             gpiostepper.AttrConfig `json:"motor"`
	Web               web.Config             `json:"web"`
	Serial            *serial.Config         `json:"serial,omitempty"`
	Log               logging.Config         `json:"log"`
	NotificationQueue int                    `json:"notification_queue,omitempty"`
}

// DefaultDigitalInterrupts are the sense lines of the stock wiring, BCM numbered.
func DefaultDigitalInterrupts() []board.DigitalInterruptConfig {
	return []board.DigitalInterruptConfig{
		{Name: "top_limit", Pin: "18"},
		{Name: "bottom_limit", Pin: "24"},
		{Name: "fault", Pin: "6"},
	}
}

// Default returns the stock wiring on the linux gpio character device.
func Default() Config {
	return Config{
		Board: board.Config{Model: genericlinux.ModelName},
		Motor: gpiostepper.DefaultAttrConfig(),
		Web:   web.Config{Listen: web.DefaultListen},
	}
}

// Ensure fills in defaults that cannot be prefilled before decoding and validates every section.
func (c *Config) Ensure() error {
	if len(c.Board.DigitalInterrupts) == 0 {
		c.Board.DigitalInterrupts = DefaultDigitalInterrupts()
	}
	if c.NotificationQueue < 0 {
		return errors.New("notification_queue must not be negative")
	}
	if err := c.Board.Validate("board"); err != nil {
		return err
	}
	if err := c.Motor.Validate("motor"); err != nil {
		return err
	}
	if err := c.checkEndstopLines(); err != nil {
		return err
	}
	if err := c.Web.Validate("web"); err != nil {
		return err
	}
	if c.Serial != nil {
		if err := c.Serial.Validate("serial"); err != nil {
			return err
		}
	}
	return c.Log.Validate("log")
}

func (c *Config) checkEndstopLines() error {
	known := map[string]bool{}
	for _, di := range c.Board.DigitalInterrupts {
		known[di.Name] = true
	}
	stops := c.Motor.Endstops
	for field, name := range map[string]string{
		"top_limit":    stops.TopLimit,
		"bottom_limit": stops.BottomLimit,
		"fault":        stops.Fault,
	} {
		if !known[name] {
			return errors.Errorf("motor.endstops.%s: no digital interrupt named %q on the board", field, name)
		}
	}
	return nil
}
