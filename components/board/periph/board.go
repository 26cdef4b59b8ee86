// Package periph implements a board on top of periph.io, for hosts where the gpio character
// device is unavailable or a sysfs driver is preferred.
package periph

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/nanoalchemist/movement/components/board"
)

// ModelName is the board model served by this package.
const ModelName = "periph"

// edgePollTimeout bounds how long an edge reader blocks before checking for shutdown.
const edgePollTimeout = 100 * time.Millisecond

func init() {
	board.RegisterBoard(ModelName, func(ctx context.Context, cfg board.Config, logger golog.Logger) (board.Board, error) {
		return NewBoard(ctx, cfg, logger)
	})
}

// Board resolves pins through the periph registry.
type Board struct {
	byName func(name string) gpio.PinIO

	mu         sync.Mutex
	gpios      map[string]*gpioPin
	interrupts map[string]*digitalInterrupt

	logger                  golog.Logger
	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewBoard initializes the periph host drivers and configures every interrupt line as an input.
func NewBoard(ctx context.Context, conf board.Config, logger golog.Logger) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "error initializing host")
	}
	return newBoard(ctx, conf, gpioreg.ByName, logger)
}

func newBoard(
	ctx context.Context,
	conf board.Config,
	byName func(name string) gpio.PinIO,
	logger golog.Logger,
) (*Board, error) {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	b := &Board{
		byName:     byName,
		gpios:      map[string]*gpioPin{},
		interrupts: map[string]*digitalInterrupt{},
		logger:     logger,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
	for _, c := range conf.DigitalInterrupts {
		pin, err := b.lookup(c.Pin)
		if err != nil {
			return nil, multierr.Combine(err, b.Close(ctx))
		}
		if err := pin.In(gpio.PullNoChange, gpio.BothEdges); err != nil {
			return nil, multierr.Combine(
				errors.Wrapf(err, "configuring digital interrupt %s on pin %s", c.Name, c.Pin),
				b.Close(ctx))
		}
		di := &digitalInterrupt{
			BasicDigitalInterrupt: board.NewBasicDigitalInterrupt(c.Name),
			pin:                   pin,
		}
		b.interrupts[c.Name] = di
		b.activeBackgroundWorkers.Add(1)
		utils.ManagedGo(func() { di.monitor(b.cancelCtx) }, b.activeBackgroundWorkers.Done)
	}
	return b, nil
}

func (b *Board) lookup(pinName string) (gpio.PinIO, error) {
	pin := b.byName(pinName)
	if pin == nil {
		return nil, errors.Errorf("no global pin found for %q", pinName)
	}
	return pin, nil
}

// GPIOPinByName returns the output pin registered under the given name.
func (b *Board) GPIOPinByName(pinName string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gp, ok := b.gpios[pinName]; ok {
		return gp, nil
	}
	pin, err := b.lookup(pinName)
	if err != nil {
		return nil, err
	}
	gp := &gpioPin{pin: pin}
	b.gpios[pinName] = gp
	return gp, nil
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

// Close stops the edge readers and halts every pin the board touched.
func (b *Board) Close(ctx context.Context) error {
	b.cancelFunc()
	b.activeBackgroundWorkers.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for _, gp := range b.gpios {
		err = multierr.Combine(err, gp.pin.Halt())
	}
	for _, di := range b.interrupts {
		err = multierr.Combine(err, di.pin.Halt())
	}
	return err
}

type gpioPin struct {
	pin gpio.PinIO
}

func (gp *gpioPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	l := gpio.Low
	if high {
		l = gpio.High
	}
	return gp.pin.Out(l)
}

func (gp *gpioPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	return gp.pin.Read() == gpio.High, nil
}

type digitalInterrupt struct {
	*board.BasicDigitalInterrupt
	pin gpio.PinIO
}

// monitor waits for edges in short slices so shutdown is noticed promptly.
func (di *digitalInterrupt) monitor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !di.pin.WaitForEdge(edgePollTimeout) {
			continue
		}
		high := di.pin.Read() == gpio.High
		utils.UncheckedError(di.Tick(ctx, high, uint64(time.Now().UnixNano())))
	}
}

func (di *digitalInterrupt) Level(ctx context.Context, extra map[string]interface{}) (bool, error) {
	return di.pin.Read() == gpio.High, nil
}
