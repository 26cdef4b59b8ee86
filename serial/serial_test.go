package serial

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/nanoalchemist/movement/components/motor/gpiostepper"
	"github.com/nanoalchemist/movement/services/movement"
)

type idleAxis struct{}

func (idleAxis) Configure(gpiostepper.AxisConfig) {}

func (idleAxis) AxisConfig() gpiostepper.AxisConfig { return gpiostepper.DefaultAxisConfig() }

func (idleAxis) Move(context.Context, float64, float64, gpiostepper.Direction) (gpiostepper.Outcome, error) {
	return gpiostepper.OutcomeIgnored, nil
}

func (idleAxis) MoveToHome(context.Context, float64, gpiostepper.Direction) (gpiostepper.Outcome, error) {
	return gpiostepper.OutcomeIgnored, nil
}

func (idleAxis) Status() gpiostepper.Status { return gpiostepper.Status{} }

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate("serial")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"device" is required`)

	cfg = Config{Device: "/dev/ttyUSB0", Role: "robot"}
	test.That(t, cfg.Validate("serial"), test.ShouldNotBeNil)

	cfg = Config{Device: "/dev/ttyUSB0", Baud: 9600, Role: movement.RoleDisplay}
	test.That(t, cfg.Validate("serial"), test.ShouldBeNil)
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(Config{Device: "/dev/does-not-exist"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "opening serial port")
}

func TestTransport(t *testing.T) {
	logger := golog.NewTestLogger(t)
	hub := movement.NewHub(0, logger)
	defer hub.Close()
	svc := movement.NewService(idleAxis{}, hub, logger)

	server, client := net.Pipe()
	defer client.Close()
	var opened Config
	prevOpen := Open
	Open = func(cfg Config) (io.ReadWriteCloser, error) {
		opened = cfg
		return server, nil
	}
	defer func() { Open = prevOpen }()

	tr := NewTransport(Config{Device: "/dev/ttyAMA0"}, svc, logger)
	test.That(t, tr.Start(context.Background()), test.ShouldBeNil)
	test.That(t, opened.Device, test.ShouldEqual, "/dev/ttyAMA0")
	test.That(t, opened.Role, test.ShouldEqual, movement.RoleOperator)

	_, err := client.Write([]byte(`{"method":"move"}` + "\n"))
	test.That(t, err, test.ShouldBeNil)
	lines := bufio.NewScanner(client)
	test.That(t, lines.Scan(), test.ShouldBeTrue)
	var rec map[string]interface{}
	test.That(t, json.Unmarshal(lines.Bytes(), &rec), test.ShouldBeNil)
	test.That(t, rec["Method"], test.ShouldEqual, movement.OnConnectionRequestReceived)
	test.That(t, hub.Peers(), test.ShouldEqual, 1)

	test.That(t, tr.Close(), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, hub.Peers(), test.ShouldEqual, 0)
	})
	test.That(t, tr.Close(), test.ShouldBeNil)
}
