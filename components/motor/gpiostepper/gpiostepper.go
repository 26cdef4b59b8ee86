// Package gpiostepper drives the vat axis stepper through a step/direction driver wired to GPIO
// lines, bounded by the limit switches and the driver fault line.
package gpiostepper

import (
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/nanoalchemist/movement/components/board"
	"github.com/nanoalchemist/movement/components/endstop"
)

const (
	homeApproachMm = 500
	homeBackoffMm  = 10
)

// Direction is the rotation sense of the shaft.
type Direction int

// Clockwise is the direction line driven high.
const (
	CounterClockwise Direction = -1
	Clockwise        Direction = 1
)

// DirectionFromInt treats any negative value as CounterClockwise.
func DirectionFromInt(n int) Direction {
	if n < 0 {
		return CounterClockwise
	}
	return Clockwise
}

func (d Direction) String() string {
	if d == CounterClockwise {
		return "counterclockwise"
	}
	return "clockwise"
}

// Outcome says how a Move or MoveToHome call ended.
type Outcome int

// Every way a move can end.
const (
	// OutcomeCompleted means every pulse was emitted.
	OutcomeCompleted Outcome = iota
	// OutcomeHalted means a permission was withdrawn mid-move, or the step line failed.
	OutcomeHalted
	// OutcomeBlocked means the direction was forbidden before the first pulse.
	OutcomeBlocked
	// OutcomeBusy means another traversal was in flight and the request was dropped.
	OutcomeBusy
	// OutcomeIgnored means the controller is uninitialized or the request could not produce motion.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeHalted:
		return "halted"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeBusy:
		return "busy"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the motion state.
type Status struct {
	Initialized             bool       `json:"initialized"`
	IsMoving                bool       `json:"is_moving"`
	Direction               int        `json:"direction"`
	CanMoveClockwise        bool       `json:"can_move_clockwise"`
	CanMoveCounterClockwise bool       `json:"can_move_counter_clockwise"`
	Axis                    AxisConfig `json:"axis"`
	StepsPerRevolution      float64    `json:"steps_per_revolution"`
}

// A Controller owns the step, direction and enable lines and the one traversal allowed at a time.
type Controller struct {
	stepPin, dirPin             board.GPIOPin
	enablePinHigh, enablePinLow board.GPIOPin
	monitor                     *endstop.Monitor
	clock                       clock.Clock
	logger                      golog.Logger
	initialized                 bool
	// topLimitDir is the direction stopped by the top limit; the bottom limit stops the other one.
	topLimitDir Direction

	mu       sync.Mutex
	motor    StepperMotor
	mmPerRev float64

	direction atomic.Int64
	pinHigh   atomic.Bool
	isMoving  atomic.Bool
	// canMoveClockwise follows the top limit, canMoveCounterClockwise the bottom limit.
	canMoveClockwise        atomic.Bool
	canMoveCounterClockwise atomic.Bool
}

// NewController opens the driver lines and the endstop monitor. It never fails: when the hardware
// cannot be opened the error is logged and every motion call on the result is a no-op.
func NewController(
	ctx context.Context,
	b board.Board,
	cfg AttrConfig,
	notify func(string),
	logger golog.Logger,
) *Controller {
	return newController(ctx, b, cfg, notify, clock.New(), logger)
}

func newController(
	ctx context.Context,
	b board.Board,
	cfg AttrConfig,
	notify func(string),
	clk clock.Clock,
	logger golog.Logger,
) *Controller {
	c := &Controller{
		clock:       clk,
		logger:      logger,
		topLimitDir: DirectionFromInt(cfg.Endstops.TopLimitGates()),
	}
	c.Configure(cfg.Axis)

	if err := c.init(ctx, b, cfg, notify); err != nil {
		logger.Errorw("axis hardware unavailable, motion disabled", "error", err)
		return c
	}
	c.initialized = true
	return c
}

func (c *Controller) init(ctx context.Context, b board.Board, cfg AttrConfig, notify func(string)) error {
	var err error
	if c.stepPin, err = b.GPIOPinByName(cfg.Pins.Step); err != nil {
		return errors.Wrap(err, "step pin")
	}
	if c.dirPin, err = b.GPIOPinByName(cfg.Pins.Direction); err != nil {
		return errors.Wrap(err, "direction pin")
	}
	// only set enable pins if they exist
	if cfg.Pins.EnablePinHigh != "" {
		if c.enablePinHigh, err = b.GPIOPinByName(cfg.Pins.EnablePinHigh); err != nil {
			return errors.Wrap(err, "enable pin")
		}
	}
	if cfg.Pins.EnablePinLow != "" {
		if c.enablePinLow, err = b.GPIOPinByName(cfg.Pins.EnablePinLow); err != nil {
			return errors.Wrap(err, "enable pin")
		}
	}

	if err := c.stepPin.Set(ctx, false, nil); err != nil {
		return err
	}
	if err := c.enable(ctx, true); err != nil {
		return err
	}
	if err := c.dirPin.Set(ctx, false, nil); err != nil {
		return err
	}
	dirHigh, err := c.dirPin.Get(ctx, nil)
	if err != nil {
		return err
	}
	if dirHigh {
		c.direction.Store(int64(Clockwise))
	} else {
		c.direction.Store(int64(CounterClockwise))
	}

	c.monitor, err = endstop.NewMonitor(ctx, b, cfg.Endstops, c, notify, c.logger.Named("endstop"))
	return err
}

// SetCanMoveClockwise is called by the endstop monitor.
func (c *Controller) SetCanMoveClockwise(allowed bool) {
	c.canMoveClockwise.Store(allowed)
}

// SetCanMoveCounterClockwise is called by the endstop monitor.
func (c *Controller) SetCanMoveCounterClockwise(allowed bool) {
	c.canMoveCounterClockwise.Store(allowed)
}

// Configure replaces the axis profile. A move already in flight keeps the profile it started with.
func (c *Controller) Configure(cfg AxisConfig) {
	microsteps := MicrostepsFromInt(cfg.Microsteps)
	if int(microsteps) != cfg.Microsteps {
		c.logger.Debugw("unsupported microstepping, using full steps", "microsteps", cfg.Microsteps)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.motor = StepperMotor{StepAngle: cfg.MotorAngle, Microsteps: microsteps}
	c.mmPerRev = cfg.MillimetersPerRevolution
	c.logger.Infow("axis configured",
		"mm_per_revolution", c.mmPerRev,
		"motor_angle", c.motor.StepAngle,
		"microsteps", c.motor.Microsteps.String(),
		"steps_per_revolution", c.motor.StepsPerRevolution())
}

// AxisConfig returns the current axis profile.
func (c *Controller) AxisConfig() AxisConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return AxisConfig{
		MillimetersPerRevolution: c.mmPerRev,
		MotorAngle:               c.motor.StepAngle,
		Microsteps:               int(c.motor.Microsteps),
	}
}

// StepsPerRevolution of the current profile.
func (c *Controller) StepsPerRevolution() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.motor.StepsPerRevolution()
}

// IsMoving returns if a traversal is in flight.
func (c *Controller) IsMoving() bool {
	return c.isMoving.Load()
}

// Status returns a snapshot of the motion state.
func (c *Controller) Status() Status {
	return Status{
		Initialized:             c.initialized,
		IsMoving:                c.isMoving.Load(),
		Direction:               int(c.direction.Load()),
		CanMoveClockwise:        c.canMoveClockwise.Load(),
		CanMoveCounterClockwise: c.canMoveCounterClockwise.Load(),
		Axis:                    c.AxisConfig(),
		StepsPerRevolution:      c.StepsPerRevolution(),
	}
}

// Move runs one constant-speed traversal of lengthMm at speed mm/s. It returns once the traversal
// ends and is dropped with OutcomeBusy when one is already in flight.
func (c *Controller) Move(ctx context.Context, lengthMm, speed float64, dir Direction) (Outcome, error) {
	if !c.isMoving.CompareAndSwap(false, true) {
		c.logger.Debugw("move dropped, axis busy", "length", lengthMm, "direction", dir.String())
		return OutcomeBusy, nil
	}
	defer c.isMoving.Store(false)

	if !c.initialized || speed <= 0 {
		return OutcomeIgnored, nil
	}
	return c.move(ctx, lengthMm, speed, dir)
}

// MoveToHome claims the axis once for a coarse approach in dir, a short back-off the other way
// and a fine re-approach. It returns the outcome of the last leg that ran.
func (c *Controller) MoveToHome(ctx context.Context, speed float64, dir Direction) (Outcome, error) {
	if !c.isMoving.CompareAndSwap(false, true) {
		c.logger.Debug("homing dropped, axis busy")
		return OutcomeBusy, nil
	}
	defer c.isMoving.Store(false)

	if !c.initialized || speed <= 0 {
		return OutcomeIgnored, nil
	}

	dir = DirectionFromInt(int(dir))
	legs := []struct {
		length float64
		dir    Direction
	}{
		{homeApproachMm, dir},
		{homeBackoffMm, -dir},
		{homeBackoffMm, dir},
	}
	var outcome Outcome
	for i, leg := range legs {
		var err error
		outcome, err = c.move(ctx, leg.length, speed, leg.dir)
		c.logger.Debugw("homing leg done", "leg", i, "direction", leg.dir.String(), "outcome", outcome.String())
		if err != nil {
			return outcome, errors.Wrapf(err, "homing leg %d", i)
		}
	}
	return outcome, nil
}

// move assumes the axis has been claimed.
func (c *Controller) move(ctx context.Context, lengthMm, speed float64, dir Direction) (Outcome, error) {
	c.mu.Lock()
	stepsPerRev := c.motor.StepsPerRevolution()
	mmPerRev := c.mmPerRev
	c.mu.Unlock()

	if err := c.setDirection(ctx, DirectionFromInt(int(dir))); err != nil {
		return OutcomeHalted, errors.Wrap(err, "setting direction")
	}
	if !c.canMove() {
		c.logger.Infow("move blocked", "direction", c.currentDirection().String())
		return OutcomeBlocked, nil
	}

	mmPerStep := mmPerRev / stepsPerRev
	pulses := math.Round(2 * lengthMm / mmPerStep)
	revPerSec := speed / mmPerRev
	stepsPerMs := revPerSec * stepsPerRev / 1000
	if !positiveFinite(mmPerStep) || !positiveFinite(stepsPerMs) || math.IsNaN(pulses) || math.IsInf(pulses, 0) ||
		pulses > math.MaxInt64 {
		c.logger.Warnw("degenerate kinematics, not moving",
			"mm_per_revolution", mmPerRev, "steps_per_revolution", stepsPerRev, "speed", speed)
		return OutcomeIgnored, nil
	}

	interval := time.Duration(float64(time.Millisecond) / stepsPerMs)
	if interval < MinPulseDuration {
		c.logger.Warnf("pulse interval %v is below the motor minimum of %v", interval, MinPulseDuration)
	}

	c.logger.Debugw("moving",
		"length", lengthMm, "speed", speed, "direction", dir.String(), "pulses", int64(pulses), "interval", interval)
	return c.pulse(ctx, int64(pulses), interval)
}

// pulse toggles the step line every interval until pulses run out or a permission is withdrawn.
// It never sleeps.
func (c *Controller) pulse(ctx context.Context, pulses int64, interval time.Duration) (Outcome, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	start := c.clock.Now()
	var lastToggle time.Duration
	for pulses > 0 {
		if c.clock.Since(start)-interval <= lastToggle {
			continue
		}
		if !c.canMove() {
			c.logger.Infow("move halted", "direction", c.currentDirection().String(), "pulses_left", pulses)
			return OutcomeHalted, nil
		}
		if err := c.toggleStep(ctx); err != nil {
			return OutcomeHalted, errors.Wrap(err, "toggling step line")
		}
		pulses--
		lastToggle = c.clock.Since(start)
	}
	return OutcomeCompleted, nil
}

func (c *Controller) toggleStep(ctx context.Context) error {
	next := !c.pinHigh.Load()
	if err := c.stepPin.Set(ctx, next, nil); err != nil {
		return err
	}
	c.pinHigh.Store(next)
	return nil
}

func (c *Controller) setDirection(ctx context.Context, dir Direction) error {
	if dir == c.currentDirection() {
		return nil
	}
	if err := c.dirPin.Set(ctx, dir == Clockwise, nil); err != nil {
		return err
	}
	c.direction.Store(int64(dir))
	return nil
}

func (c *Controller) currentDirection() Direction {
	return Direction(c.direction.Load())
}

func (c *Controller) canMove() bool {
	if c.currentDirection() == c.topLimitDir {
		return c.canMoveClockwise.Load()
	}
	return c.canMoveCounterClockwise.Load()
}

func (c *Controller) enable(ctx context.Context, on bool) error {
	if c.enablePinHigh != nil {
		return c.enablePinHigh.Set(ctx, on, nil)
	}

	if c.enablePinLow != nil {
		return c.enablePinLow.Set(ctx, !on, nil)
	}

	return nil
}

// Close stops the endstop monitor and releases the driver. The board itself is left open.
func (c *Controller) Close(ctx context.Context) error {
	if !c.initialized {
		return nil
	}
	return multierr.Combine(c.monitor.Close(), c.enable(ctx, false))
}

func positiveFinite(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
