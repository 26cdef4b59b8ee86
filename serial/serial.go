// Package serial carries the movement protocol over a serial line, one JSON message per line.
package serial

import (
	"context"
	"io"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"go.viam.com/utils"

	"github.com/nanoalchemist/movement/services/movement"
)

// DefaultBaud is used when the config leaves the baud rate out.
const DefaultBaud = 115200

// Config describes the serial device.
type Config struct {
	Device string `json:"device"`
	Baud   int    `json:"baud,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) error {
	if config.Device == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "device")
	}
	if config.Baud < 0 {
		return errors.Errorf("%s: baud must not be negative", path)
	}
	if config.Role != "" && config.Role != movement.RoleOperator && config.Role != movement.RoleDisplay {
		return errors.Errorf("%s: unknown role %q", path, config.Role)
	}
	return nil
}

// Open attempts to open the serial device. It's a variable in case you need to override it during
// tests.
var Open = func(cfg Config) (io.ReadWriteCloser, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{Name: cfg.Device, Baud: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial port %s", cfg.Device)
	}
	return port, nil
}

// A Transport serves one peer on a serial device.
type Transport struct {
	cfg    Config
	svc    *movement.Service
	logger golog.Logger

	mu                      sync.Mutex
	port                    io.ReadWriteCloser
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewTransport returns a transport for cfg. Nothing is opened until Start.
func NewTransport(cfg Config, svc *movement.Service, logger golog.Logger) *Transport {
	if cfg.Role == "" {
		cfg.Role = movement.RoleOperator
	}
	return &Transport{cfg: cfg, svc: svc, logger: logger}
}

// Start opens the device and serves it in the background.
func (t *Transport) Start(ctx context.Context) error {
	port, err := Open(t.cfg)
	if err != nil {
		return err
	}
	cancelCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.port = port
	t.cancel = cancel
	t.mu.Unlock()

	t.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		if err := t.svc.ServeStream(cancelCtx, port, t.cfg.Role); err != nil && cancelCtx.Err() == nil {
			t.logger.Warnw("serial stream ended", "device", t.cfg.Device, "error", err)
		}
	}, t.activeBackgroundWorkers.Done)
	t.logger.Infow("serving serial", "device", t.cfg.Device, "role", t.cfg.Role)
	return nil
}

// Close closes the device, which ends the stream, and waits for it.
func (t *Transport) Close() error {
	t.mu.Lock()
	port, cancel := t.port, t.cancel
	t.port = nil
	t.mu.Unlock()
	if port == nil {
		return nil
	}

	cancel()
	err := port.Close()
	t.activeBackgroundWorkers.Wait()
	return errors.Wrap(err, "closing serial port")
}
