package board_test

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/nanoalchemist/movement/components/board"
)

type noStreamInterrupt struct{}

func (noStreamInterrupt) Name() string { return "plain" }

func (noStreamInterrupt) Level(ctx context.Context, extra map[string]interface{}) (bool, error) {
	return false, nil
}

func TestBasicDigitalInterrupt(t *testing.T) {
	ctx := context.Background()
	i := board.NewBasicDigitalInterrupt("top_limit")
	test.That(t, i.Name(), test.ShouldEqual, "top_limit")

	// no listeners is fine
	test.That(t, i.Tick(ctx, true, 1), test.ShouldBeNil)

	c := make(chan board.Tick)
	i.AddCallback(c)

	go func() { i.Tick(ctx, true, 2) }()
	v := <-c
	test.That(t, v.Name, test.ShouldEqual, "top_limit")
	test.That(t, v.High, test.ShouldBeTrue)
	test.That(t, v.TimestampNanosec, test.ShouldEqual, uint64(2))

	go func() { i.Tick(ctx, false, 3) }()
	v = <-c
	test.That(t, v.High, test.ShouldBeFalse)

	i.RemoveCallback(c)
	test.That(t, i.Tick(ctx, true, 4), test.ShouldBeNil)
}

func TestTickRespectsContext(t *testing.T) {
	i := board.NewBasicDigitalInterrupt("fault")
	i.AddCallback(make(chan board.Tick))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := i.Tick(ctx, true, 1)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestTickGivesUpOnRemovedListener(t *testing.T) {
	i := board.NewBasicDigitalInterrupt("top_limit")
	ch := make(chan board.Tick, 1)
	i.AddCallback(ch)
	test.That(t, i.Tick(context.Background(), true, 1), test.ShouldBeNil)

	// nobody reads ch any more and it is full
	errs := make(chan error, 1)
	go func() { errs <- i.Tick(context.Background(), false, 2) }()
	time.Sleep(10 * time.Millisecond)

	i.RemoveCallback(ch)
	test.That(t, <-errs, test.ShouldBeNil)
	test.That(t, i.Tick(context.Background(), true, 3), test.ShouldBeNil)
	test.That(t, len(ch), test.ShouldEqual, 1)
}

func TestAddCallbacks(t *testing.T) {
	top := board.NewBasicDigitalInterrupt("top_limit")
	bottom := board.NewBasicDigitalInterrupt("bottom_limit")

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan board.Tick, 2)
	err := board.AddCallbacks(ctx, []board.DigitalInterrupt{top, bottom}, ch)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, top.Tick(context.Background(), false, 10), test.ShouldBeNil)
	test.That(t, bottom.Tick(context.Background(), true, 11), test.ShouldBeNil)
	test.That(t, (<-ch).Name, test.ShouldEqual, "top_limit")
	test.That(t, (<-ch).Name, test.ShouldEqual, "bottom_limit")

	cancel()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		// once unsubscribed, ticks no longer land in the channel
		for len(ch) > 0 {
			<-ch
		}
		test.That(tb, top.Tick(context.Background(), true, 12), test.ShouldBeNil)
		test.That(tb, len(ch), test.ShouldEqual, 0)
	})
}

func TestAddCallbacksUnsupported(t *testing.T) {
	err := board.AddCallbacks(context.Background(), []board.DigitalInterrupt{noStreamInterrupt{}}, make(chan board.Tick))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "plain")
}

func TestConfigValidate(t *testing.T) {
	conf := board.Config{}
	err := conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"model" is required`)

	conf.Model = "fake"
	test.That(t, conf.Validate("path"), test.ShouldBeNil)

	conf.DigitalInterrupts = []board.DigitalInterruptConfig{{}}
	err = conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "path.digital_interrupts.0")

	conf.DigitalInterrupts = []board.DigitalInterruptConfig{{Name: "fault"}}
	err = conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"pin" is required`)

	conf.DigitalInterrupts = []board.DigitalInterruptConfig{{Name: "fault", Pin: "6"}}
	test.That(t, conf.Validate("path"), test.ShouldBeNil)
}

func TestRegistry(t *testing.T) {
	logger := golog.NewTestLogger(t)
	_, err := board.NewBoard(context.Background(), board.Config{Model: "no-such-model"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown board model")

	board.RegisterBoard("registry-test", func(ctx context.Context, cfg board.Config, logger golog.Logger) (board.Board, error) {
		return nil, nil
	})
	test.That(t, board.RegisteredModels(), test.ShouldContain, "registry-test")
	test.That(t, func() {
		board.RegisterBoard("registry-test", nil)
	}, test.ShouldPanic)
}
