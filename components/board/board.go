// Package board defines the GPIO surface the axis hardware is driven through.
package board

import (
	"context"
	"sync"

	"go.viam.com/utils"
)

// A Board exposes the output lines and sense lines of a single-board computer.
type Board interface {
	// GPIOPinByName returns the output pin with the given name, opening it if needed.
	GPIOPinByName(name string) (GPIOPin, error)

	// DigitalInterruptByName returns the configured sense line with the given name.
	DigitalInterruptByName(name string) (DigitalInterrupt, error)

	// StreamTicks delivers every edge seen on the given interrupts to ch until ctx is done.
	StreamTicks(ctx context.Context, interrupts []DigitalInterrupt, ch chan Tick) error

	// Close releases every line the board has opened.
	Close(ctx context.Context) error
}

// A GPIOPin represents an individual GPIO pin on a board.
type GPIOPin interface {
	// Set sets the pin to either low or high.
	Set(ctx context.Context, high bool, extra map[string]interface{}) error

	// Get gets the high/low state of the pin.
	Get(ctx context.Context, extra map[string]interface{}) (bool, error)
}

// A DigitalInterrupt is a sense line that reports its edges.
type DigitalInterrupt interface {
	Name() string

	// Level reads the current state of the line directly, without waiting for an edge.
	Level(ctx context.Context, extra map[string]interface{}) (bool, error)
}

// Tick represents a signal received by an interrupt pin.
type Tick struct {
	Name             string
	High             bool
	TimestampNanosec uint64
}

// A callbackHolder is implemented by every interrupt that can fan its ticks out to channels.
type callbackHolder interface {
	AddCallback(c chan Tick)
	RemoveCallback(c chan Tick)
}

// BasicDigitalInterrupt keeps the set of channels interested in one sense line. Board
// implementations embed it and call Tick from whatever goroutine observes the hardware.
type BasicDigitalInterrupt struct {
	name string

	mu        sync.RWMutex
	callbacks []*subscriber
}

type subscriber struct {
	ch      chan Tick
	removed chan struct{}
}

// NewBasicDigitalInterrupt returns an interrupt with no subscribers.
func NewBasicDigitalInterrupt(name string) *BasicDigitalInterrupt {
	return &BasicDigitalInterrupt{name: name}
}

// Name returns the configured name of the interrupt.
func (i *BasicDigitalInterrupt) Name() string {
	return i.name
}

// Tick is to be called either manually if the interrupt is a proxy to some real
// hardware interrupt or for tests.
// nanoseconds is from an arbitrary point in time, but always increasing and always needs
// to be accurate.
// A send to a subscriber waits until it is read, the subscriber is removed, or ctx is done.
func (i *BasicDigitalInterrupt) Tick(ctx context.Context, high bool, nanoseconds uint64) error {
	i.mu.RLock()
	subs := append([]*subscriber(nil), i.callbacks...)
	i.mu.RUnlock()

	tick := Tick{Name: i.name, High: high, TimestampNanosec: nanoseconds}
	for _, s := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.removed:
		case s.ch <- tick:
		}
	}
	return nil
}

// AddCallback adds a listener for interrupts.
func (i *BasicDigitalInterrupt) AddCallback(c chan Tick) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.callbacks = append(i.callbacks, &subscriber{ch: c, removed: make(chan struct{})})
}

// RemoveCallback removes a listener for interrupts. A Tick blocked on it gives up.
func (i *BasicDigitalInterrupt) RemoveCallback(c chan Tick) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, s := range i.callbacks {
		if s.ch == c {
			close(s.removed)
			i.callbacks[id] = i.callbacks[len(i.callbacks)-1]
			i.callbacks = i.callbacks[:len(i.callbacks)-1]
			break
		}
	}
}

// AddCallbacks subscribes ch to every interrupt and unsubscribes it once ctx is done. Boards
// whose interrupts embed BasicDigitalInterrupt implement StreamTicks with it.
func AddCallbacks(ctx context.Context, interrupts []DigitalInterrupt, ch chan Tick) error {
	holders := make([]callbackHolder, 0, len(interrupts))
	for _, i := range interrupts {
		h, ok := i.(callbackHolder)
		if !ok {
			return NewUnsupportedInterruptError(i.Name())
		}
		holders = append(holders, h)
	}
	for _, h := range holders {
		h.AddCallback(ch)
	}
	utils.PanicCapturingGo(func() {
		<-ctx.Done()
		for _, h := range holders {
			h.RemoveCallback(ch)
		}
	})
	return nil
}
