// Package endstop watches the travel limit switches and the stepper driver fault line and turns
// their edges into travel permissions.
package endstop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/utils"

	"github.com/nanoalchemist/movement/components/board"
)

// Permissions is updated whenever a sense line settles on a new level.
type Permissions interface {
	SetCanMoveClockwise(allowed bool)
	SetCanMoveCounterClockwise(allowed bool)
}

// TopLimitStatus is published when the top limit line settles.
func TopLimitStatus(blocked bool) string {
	return fmt.Sprintf("Top Limit:%t", blocked)
}

// BottomLimitStatus is published when the bottom limit line settles.
func BottomLimitStatus(blocked bool) string {
	return fmt.Sprintf("Bottom Limit:%t", blocked)
}

// FaultStatus is published when the fault line settles.
func FaultStatus(falling bool) string {
	return fmt.Sprintf("Fault Detect:%t", falling)
}

// A Monitor applies debounced limit and fault edges to a Permissions.
type Monitor struct {
	cfg    Config
	perms  Permissions
	status func(string)
	logger golog.Logger

	top, bottom, fault board.DigitalInterrupt
	settle             time.Duration
	debouncers         map[string]func(func())

	closed                  atomic.Bool
	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewMonitor opens the three sense lines, seeds perms from the current limit levels, and starts
// following their edges. status may be nil.
func NewMonitor(
	ctx context.Context,
	b board.Board,
	cfg Config,
	perms Permissions,
	status func(string),
	logger golog.Logger,
) (*Monitor, error) {
	if status == nil {
		status = func(string) {}
	}
	m := &Monitor{
		cfg:        cfg,
		perms:      perms,
		status:     status,
		logger:     logger,
		settle:     cfg.debounce(),
		debouncers: map[string]func(func()){},
	}

	var err error
	if m.top, err = b.DigitalInterruptByName(cfg.TopLimit); err != nil {
		return nil, errors.Wrap(err, "top limit")
	}
	if m.bottom, err = b.DigitalInterruptByName(cfg.BottomLimit); err != nil {
		return nil, errors.Wrap(err, "bottom limit")
	}
	if m.fault, err = b.DigitalInterruptByName(cfg.Fault); err != nil {
		return nil, errors.Wrap(err, "fault")
	}

	topHigh, err := m.top.Level(ctx, nil)
	if err != nil {
		return nil, err
	}
	bottomHigh, err := m.bottom.Level(ctx, nil)
	if err != nil {
		return nil, err
	}
	perms.SetCanMoveClockwise(topHigh)
	perms.SetCanMoveCounterClockwise(bottomHigh)
	logger.Debugw("initial limit levels", "top_limit", topHigh, "bottom_limit", bottomHigh)

	if m.settle > 0 {
		for _, di := range []board.DigitalInterrupt{m.top, m.bottom, m.fault} {
			m.debouncers[di.Name()] = debounce.New(m.settle)
		}
	}

	m.cancelCtx, m.cancelFunc = context.WithCancel(context.Background())
	ticks := make(chan board.Tick, 16)
	if err := b.StreamTicks(m.cancelCtx, []board.DigitalInterrupt{m.top, m.bottom, m.fault}, ticks); err != nil {
		m.cancelFunc()
		return nil, err
	}

	m.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		for {
			select {
			case <-m.cancelCtx.Done():
				return
			case tick := <-ticks:
				m.handleTick(tick)
			}
		}
	}, m.activeBackgroundWorkers.Done)
	return m, nil
}

func (m *Monitor) handleTick(tick board.Tick) {
	m.logger.Debugw("edge", "line", tick.Name, "high", tick.High)
	debounced, ok := m.debouncers[tick.Name]
	if !ok {
		m.apply(tick)
		return
	}
	debounced(func() { m.apply(tick) })
}

// apply runs once a line has been quiet for the settle time. The fault line overrides both limits.
func (m *Monitor) apply(tick board.Tick) {
	if m.closed.Load() {
		return
	}
	switch tick.Name {
	case m.fault.Name():
		m.perms.SetCanMoveClockwise(tick.High)
		m.perms.SetCanMoveCounterClockwise(tick.High)
		m.publish(FaultStatus(!tick.High))
	case m.top.Name():
		m.perms.SetCanMoveClockwise(tick.High)
		m.publish(TopLimitStatus(!tick.High))
	case m.bottom.Name():
		m.perms.SetCanMoveCounterClockwise(tick.High)
		m.publish(BottomLimitStatus(!tick.High))
	default:
		m.logger.Debugw("edge from unknown line", "line", tick.Name)
	}
}

func (m *Monitor) publish(msg string) {
	m.logger.Infow("sense line settled", "status", msg)
	m.status(msg)
}

// Close stops following edges. Pending debounced edges are dropped.
func (m *Monitor) Close() error {
	m.closed.Store(true)
	m.cancelFunc()
	m.activeBackgroundWorkers.Wait()
	return nil
}
