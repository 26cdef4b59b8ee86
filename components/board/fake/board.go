// Package fake implements a fake board.
package fake

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/nanoalchemist/movement/components/board"
)

// ModelName is the model a fake board registers under.
const ModelName = "fake"

func init() {
	board.RegisterBoard(ModelName, func(ctx context.Context, cfg board.Config, logger golog.Logger) (board.Board, error) {
		return NewBoard(ctx, cfg, logger)
	})
}

// NewBoard returns a new fake board with one interrupt per configured sense line.
func NewBoard(ctx context.Context, conf board.Config, logger golog.Logger) (*Board, error) {
	b := &Board{
		Digitals: map[string]*DigitalInterrupt{},
		GPIOPins: map[string]*GPIOPin{},
		logger:   logger,
	}
	for _, c := range conf.DigitalInterrupts {
		b.Digitals[c.Name] = NewDigitalInterrupt(c)
	}
	return b, nil
}

// A Board records what was written to its pins and lets tests drive its interrupts.
type Board struct {
	mu         sync.RWMutex
	Digitals   map[string]*DigitalInterrupt
	GPIOPins   map[string]*GPIOPin
	logger     golog.Logger
	CloseCount int
}

// DigitalInterruptByName returns the interrupt by the given name if it exists.
func (b *Board) DigitalInterruptByName(name string) (board.DigitalInterrupt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.Digitals[name]
	if !ok {
		return nil, board.NewPinNotFoundError("DigitalInterrupt", name)
	}
	return d, nil
}

// GPIOPinByName returns the GPIO pin by the given name, creating it on first use.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	return b.Pin(name), nil
}

// Pin returns the concrete fake pin so tests can inspect it.
func (b *Board) Pin(name string) *GPIOPin {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.GPIOPins[name]
	if !ok {
		p = &GPIOPin{}
		b.GPIOPins[name] = p
	}
	return p
}

// Interrupt returns the concrete fake interrupt, or nil.
func (b *Board) Interrupt(name string) *DigitalInterrupt {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.Digitals[name]
}

// StreamTicks subscribes ch to ticks injected through the interrupts.
func (b *Board) StreamTicks(ctx context.Context, interrupts []board.DigitalInterrupt, ch chan board.Tick) error {
	b.mu.RLock()
	for _, di := range interrupts {
		if _, ok := b.Digitals[di.Name()]; !ok {
			b.mu.RUnlock()
			return errors.Errorf("could not find digital interrupt: %s", di.Name())
		}
	}
	b.mu.RUnlock()
	return board.AddCallbacks(ctx, interrupts, ch)
}

// Close counts the call.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCount++
	return nil
}

// A GPIOPin reads back the same set values and counts level changes.
type GPIOPin struct {
	mu       sync.Mutex
	high     bool
	sets     int
	toggles  int
	failWith error
	hook     func(high bool)
}

// Set sets the pin to either low or high.
func (gp *GPIOPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	gp.mu.Lock()
	if gp.failWith != nil {
		err := gp.failWith
		gp.mu.Unlock()
		return err
	}
	if gp.high != high {
		gp.toggles++
	}
	gp.sets++
	gp.high = high
	hook := gp.hook
	gp.mu.Unlock()

	if hook != nil {
		hook(high)
	}
	return nil
}

// Get gets the high/low state of the pin.
func (gp *GPIOPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.high, nil
}

// Sets returns how many times Set succeeded.
func (gp *GPIOPin) Sets() int {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.sets
}

// Toggles returns how many Set calls changed the level.
func (gp *GPIOPin) Toggles() int {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.toggles
}

// Reset clears the counters without touching the level.
func (gp *GPIOPin) Reset() {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.sets = 0
	gp.toggles = 0
}

// SetHook installs a function run after every successful Set, outside the pin lock.
func (gp *GPIOPin) SetHook(hook func(high bool)) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.hook = hook
}

// FailWith makes every following Set return err. A nil err restores normal behavior.
func (gp *GPIOPin) FailWith(err error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.failWith = err
}

// DigitalInterrupt is a fake sense line. Its level is whatever the last Tick said.
type DigitalInterrupt struct {
	*board.BasicDigitalInterrupt

	mu    sync.Mutex
	conf  board.DigitalInterruptConfig
	level bool
}

// NewDigitalInterrupt returns a new fake digital interrupt that starts low.
func NewDigitalInterrupt(conf board.DigitalInterruptConfig) *DigitalInterrupt {
	return &DigitalInterrupt{
		BasicDigitalInterrupt: board.NewBasicDigitalInterrupt(conf.Name),
		conf:                  conf,
	}
}

// Level returns the last level set or ticked.
func (s *DigitalInterrupt) Level(ctx context.Context, extra map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, nil
}

// SetLevel changes the level without producing an edge.
func (s *DigitalInterrupt) SetLevel(high bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = high
}

// Tick records the new level and delivers the edge to every subscriber.
func (s *DigitalInterrupt) Tick(ctx context.Context, high bool, nanoseconds uint64) error {
	s.SetLevel(high)
	return s.BasicDigitalInterrupt.Tick(ctx, high, nanoseconds)
}
