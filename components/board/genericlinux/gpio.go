//go:build linux

package genericlinux

import (
	"context"
	"sync"

	"github.com/mkch/gpio"
	"go.viam.com/utils"
)

const consumerName = "movement"

type gpioPin struct {
	devicePath string
	offset     uint32

	mu   sync.Mutex
	line *gpio.Line
}

// openLine requests the line as an output the first time it is used. pin.mu must be held.
func (pin *gpioPin) openLine() error {
	if pin.line != nil {
		return nil
	}

	chip, err := gpio.OpenChip(pin.devicePath)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(chip.Close)

	// starts low
	line, err := chip.OpenLine(pin.offset, 0, gpio.Output, consumerName)
	if err != nil {
		return err
	}
	pin.line = line
	return nil
}

// Set sets the pin to either low or high.
func (pin *gpioPin) Set(ctx context.Context, isHigh bool, extra map[string]interface{}) error {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if err := pin.openLine(); err != nil {
		return err
	}

	var value byte
	if isHigh {
		value = 1
	}
	return pin.line.SetValue(value)
}

// Get reads back the level of the line.
func (pin *gpioPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if err := pin.openLine(); err != nil {
		return false, err
	}

	value, err := pin.line.Value()
	if err != nil {
		return false, err
	}

	return value != 0, nil
}

func (pin *gpioPin) Close() error {
	// The line stays open for as long as the board does so it holds its level between moves.
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if pin.line == nil {
		return nil
	}

	err := pin.line.Close()
	pin.line = nil
	return err
}
