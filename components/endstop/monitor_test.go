package endstop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/nanoalchemist/movement/components/board"
	"github.com/nanoalchemist/movement/components/board/fake"
)

type recordingPermissions struct {
	mu       sync.Mutex
	cw, ccw  bool
	statuses []string
}

func (p *recordingPermissions) SetCanMoveClockwise(allowed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cw = allowed
}

func (p *recordingPermissions) SetCanMoveCounterClockwise(allowed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ccw = allowed
}

func (p *recordingPermissions) status(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, msg)
}

func (p *recordingPermissions) snapshot() (bool, bool, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cw, p.ccw, append([]string(nil), p.statuses...)
}

var testConfig = Config{TopLimit: "top_limit", BottomLimit: "bottom_limit", Fault: "fault"}

func setup(t *testing.T, cfg Config, topHigh, bottomHigh bool) (*fake.Board, *Monitor, *recordingPermissions) {
	t.Helper()
	logger := golog.NewTestLogger(t)
	b, err := fake.NewBoard(context.Background(), board.Config{
		Model: fake.ModelName,
		DigitalInterrupts: []board.DigitalInterruptConfig{
			{Name: "top_limit", Pin: "18"},
			{Name: "bottom_limit", Pin: "24"},
			{Name: "fault", Pin: "6"},
		},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	b.Interrupt("top_limit").SetLevel(topHigh)
	b.Interrupt("bottom_limit").SetLevel(bottomHigh)

	perms := &recordingPermissions{}
	m, err := NewMonitor(context.Background(), b, cfg, perms, perms.status, logger)
	test.That(t, err, test.ShouldBeNil)
	return b, m, perms
}

func TestInitialLevels(t *testing.T) {
	_, m, perms := setup(t, testConfig, true, false)
	defer m.Close()

	cw, ccw, statuses := perms.snapshot()
	test.That(t, cw, test.ShouldBeTrue)
	test.That(t, ccw, test.ShouldBeFalse)
	test.That(t, statuses, test.ShouldBeEmpty)
}

func TestEdgesWithoutDebounce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig
	cfg.DebounceMs = -1
	b, m, perms := setup(t, cfg, true, true)
	defer m.Close()

	t.Run("top limit", func(t *testing.T) {
		test.That(t, b.Interrupt("top_limit").Tick(ctx, false, uint64(time.Now().UnixNano())), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			cw, ccw, statuses := perms.snapshot()
			test.That(tb, cw, test.ShouldBeFalse)
			test.That(tb, ccw, test.ShouldBeTrue)
			test.That(tb, statuses, test.ShouldContain, "Top Limit:true")
		})
	})

	t.Run("bottom limit", func(t *testing.T) {
		test.That(t, b.Interrupt("bottom_limit").Tick(ctx, false, uint64(time.Now().UnixNano())), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			_, ccw, statuses := perms.snapshot()
			test.That(tb, ccw, test.ShouldBeFalse)
			test.That(tb, statuses, test.ShouldContain, "Bottom Limit:true")
		})
	})

	t.Run("fault rising releases both", func(t *testing.T) {
		test.That(t, b.Interrupt("fault").Tick(ctx, true, uint64(time.Now().UnixNano())), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			cw, ccw, statuses := perms.snapshot()
			test.That(tb, cw, test.ShouldBeTrue)
			test.That(tb, ccw, test.ShouldBeTrue)
			test.That(tb, statuses, test.ShouldContain, "Fault Detect:false")
		})
	})

	t.Run("fault falling forbids both", func(t *testing.T) {
		test.That(t, b.Interrupt("fault").Tick(ctx, false, uint64(time.Now().UnixNano())), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			cw, ccw, statuses := perms.snapshot()
			test.That(tb, cw, test.ShouldBeFalse)
			test.That(tb, ccw, test.ShouldBeFalse)
			test.That(tb, statuses[len(statuses)-1], test.ShouldEqual, "Fault Detect:true")
		})
	})
}

// Issue many edges within the settle time and confirm that only the last one is applied.
// Note: This is a time-sensitive test and is prone to flakiness.
func TestDebounce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig
	cfg.DebounceMs = 20
	b, m, perms := setup(t, cfg, true, true)
	defer m.Close()

	// this loop must complete within the debounce time
	for i := 0; i < 20; i++ {
		test.That(t, b.Interrupt("top_limit").Tick(ctx, true, uint64(time.Now().UnixNano())), test.ShouldBeNil)
		test.That(t, b.Interrupt("top_limit").Tick(ctx, false, uint64(time.Now().UnixNano())), test.ShouldBeNil)
	}

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		cw, _, statuses := perms.snapshot()
		test.That(tb, cw, test.ShouldBeFalse)
		test.That(tb, statuses, test.ShouldResemble, []string{"Top Limit:true"})
	})

	time.Sleep(50 * time.Millisecond)
	_, _, statuses := perms.snapshot()
	test.That(t, len(statuses), test.ShouldEqual, 1)
}

func TestClosedMonitorIgnoresEdges(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig
	cfg.DebounceMs = 10
	b, m, perms := setup(t, cfg, true, true)

	test.That(t, b.Interrupt("bottom_limit").Tick(ctx, false, uint64(time.Now().UnixNano())), test.ShouldBeNil)
	test.That(t, m.Close(), test.ShouldBeNil)

	time.Sleep(40 * time.Millisecond)
	_, ccw, statuses := perms.snapshot()
	test.That(t, ccw, test.ShouldBeTrue)
	test.That(t, statuses, test.ShouldBeEmpty)
}

func TestMissingLine(t *testing.T) {
	logger := golog.NewTestLogger(t)
	b, err := fake.NewBoard(context.Background(), board.Config{
		Model:             fake.ModelName,
		DigitalInterrupts: []board.DigitalInterruptConfig{{Name: "top_limit", Pin: "18"}},
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = NewMonitor(context.Background(), b, testConfig, &recordingPermissions{}, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bottom limit")
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"top_limit" is required`)

	cfg.TopLimit = "top"
	err = cfg.Validate("path")
	test.That(t, err.Error(), test.ShouldContainSubstring, `"bottom_limit" is required`)

	cfg.BottomLimit = "bottom"
	err = cfg.Validate("path")
	test.That(t, err.Error(), test.ShouldContainSubstring, `"fault" is required`)

	cfg.Fault = "fault"
	test.That(t, cfg.Validate("path"), test.ShouldBeNil)

	test.That(t, cfg.debounce(), test.ShouldEqual, DefaultDebounce)
	cfg.DebounceMs = -1
	test.That(t, cfg.debounce(), test.ShouldEqual, time.Duration(0))
	cfg.DebounceMs = 5
	test.That(t, cfg.debounce(), test.ShouldEqual, 5*time.Millisecond)

	test.That(t, cfg.TopLimitGates(), test.ShouldEqual, -1)
	cfg.TopLimitDirection = 1
	test.That(t, cfg.Validate("path"), test.ShouldBeNil)
	test.That(t, cfg.TopLimitGates(), test.ShouldEqual, 1)
	cfg.TopLimitDirection = 2
	err = cfg.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "path.top_limit_direction")
}
