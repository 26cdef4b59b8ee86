//go:build linux

// Package genericlinux implements a Linux board whose lines are driven through the GPIO character
// device, indirectly by way of mkch's gpio package.
package genericlinux

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/nanoalchemist/movement/components/board"
)

func init() {
	board.RegisterBoard(ModelName, func(ctx context.Context, cfg board.Config, logger golog.Logger) (board.Board, error) {
		return NewBoard(ctx, cfg, logger)
	})
}

// Board owns every line it has opened on a single gpio chip.
type Board struct {
	chipDev string

	mu         sync.Mutex
	gpios      map[string]*gpioPin
	interrupts map[string]*digitalInterrupt

	logger                  golog.Logger
	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewBoard opens every configured interrupt line. Output lines are opened on first use.
func NewBoard(ctx context.Context, conf board.Config, logger golog.Logger) (*Board, error) {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	b := &Board{
		chipDev:    chipDevOrDefault(conf.GPIOChipDev),
		gpios:      map[string]*gpioPin{},
		interrupts: map[string]*digitalInterrupt{},
		logger:     logger,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}

	for _, c := range conf.DigitalInterrupts {
		di, err := b.createDigitalInterrupt(c)
		if err != nil {
			return nil, multierr.Combine(
				errors.Wrapf(err, "opening digital interrupt %s on pin %s", c.Name, c.Pin),
				b.Close(ctx))
		}
		b.interrupts[c.Name] = di
	}
	return b, nil
}

// GPIOPinByName returns the output line for the given pin number.
func (b *Board) GPIOPinByName(pinName string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pin, ok := b.gpios[pinName]; ok {
		return pin, nil
	}
	offset, err := lineOffset(pinName)
	if err != nil {
		return nil, err
	}
	for _, di := range b.interrupts {
		if di.offset == offset {
			return nil, errors.Errorf("pin %s is already in use by digital interrupt %s", pinName, di.Name())
		}
	}
	pin := &gpioPin{devicePath: b.chipDev, offset: offset}
	b.gpios[pinName] = pin
	return pin, nil
}

// DigitalInterruptByName returns the interrupt by the given name if it exists.
func (b *Board) DigitalInterruptByName(name string) (board.DigitalInterrupt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	di, ok := b.interrupts[name]
	if !ok {
		return nil, board.NewPinNotFoundError("DigitalInterrupt", name)
	}
	return di, nil
}

// StreamTicks delivers the edges of the given interrupts to ch until ctx is done.
func (b *Board) StreamTicks(ctx context.Context, interrupts []board.DigitalInterrupt, ch chan board.Tick) error {
	return board.AddCallbacks(ctx, interrupts, ch)
}

// Close stops the edge readers and closes every open line.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	b.cancelFunc()
	b.mu.Unlock()
	b.activeBackgroundWorkers.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for _, pin := range b.gpios {
		err = multierr.Combine(err, pin.Close())
	}
	for _, interrupt := range b.interrupts {
		err = multierr.Combine(err, interrupt.Close())
	}
	return err
}
