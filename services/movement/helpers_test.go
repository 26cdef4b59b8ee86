package movement

import (
	"context"
	"sync"

	"github.com/nanoalchemist/movement/components/motor/gpiostepper"
)

type testPeer struct {
	id   string
	role string

	mu     sync.Mutex
	full   bool
	record []interface{}
}

func newTestPeer(id, role string) *testPeer {
	return &testPeer{id: id, role: role}
}

func (p *testPeer) ID() string   { return p.id }
func (p *testPeer) Role() string { return p.role }

func (p *testPeer) Send(msg interface{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	p.record = append(p.record, msg)
	return true
}

func (p *testPeer) received() []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]interface{}(nil), p.record...)
}

// methods returns the Method of every Notification received, skipping other records.
func (p *testPeer) methods() []string {
	var out []string
	for _, msg := range p.received() {
		if n, ok := msg.(Notification); ok {
			out = append(out, n.Method)
		}
	}
	return out
}

type moveCall struct {
	home   bool
	length float64
	speed  float64
	dir    gpiostepper.Direction
}

type fakeAxis struct {
	mu      sync.Mutex
	cfg     gpiostepper.AxisConfig
	moves   []moveCall
	moveErr error
	onMove  func()
}

func newFakeAxis() *fakeAxis {
	return &fakeAxis{cfg: gpiostepper.DefaultAxisConfig()}
}

func (a *fakeAxis) Configure(cfg gpiostepper.AxisConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
}

func (a *fakeAxis) AxisConfig() gpiostepper.AxisConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *fakeAxis) record(call moveCall) (gpiostepper.Outcome, error) {
	a.mu.Lock()
	a.moves = append(a.moves, call)
	err, hook := a.moveErr, a.onMove
	a.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return gpiostepper.OutcomeHalted, err
	}
	return gpiostepper.OutcomeCompleted, nil
}

func (a *fakeAxis) Move(ctx context.Context, lengthMm, speed float64, dir gpiostepper.Direction) (gpiostepper.Outcome, error) {
	return a.record(moveCall{length: lengthMm, speed: speed, dir: dir})
}

func (a *fakeAxis) MoveToHome(ctx context.Context, speed float64, dir gpiostepper.Direction) (gpiostepper.Outcome, error) {
	return a.record(moveCall{home: true, speed: speed, dir: dir})
}

func (a *fakeAxis) Status() gpiostepper.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return gpiostepper.Status{
		Initialized:      true,
		Direction:        int(gpiostepper.Clockwise),
		CanMoveClockwise: true,
		Axis:             a.cfg,
	}
}

func (a *fakeAxis) calls() []moveCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]moveCall(nil), a.moves...)
}
