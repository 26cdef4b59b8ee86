// Package main runs the vat axis daemon.
package main

import (
	"context"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/nanoalchemist/movement/components/board"
	"github.com/nanoalchemist/movement/components/board/fake"
	// registers all boards.
	_ "github.com/nanoalchemist/movement/components/board/register"
	"github.com/nanoalchemist/movement/components/motor/gpiostepper"
	"github.com/nanoalchemist/movement/config"
	"github.com/nanoalchemist/movement/logging"
	"github.com/nanoalchemist/movement/serial"
	"github.com/nanoalchemist/movement/services/movement"
	"github.com/nanoalchemist/movement/web"
)

const shutdownTimeout = 5 * time.Second

var logger = golog.NewDevelopmentLogger("movementd")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"config,usage=json config file"`
	Debug      bool   `flag:"debug,usage=log at debug level"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg, err := readConfig(argsParsed.ConfigFile)
	if err != nil {
		return err
	}

	processLogger, closeLogger, err := logging.NewLogger("movementd", cfg.Log, argsParsed.Debug)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeLogger())
	}()
	return runServer(ctx, cfg, processLogger)
}

func readConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Read(path)
	}
	cfg := config.Default()
	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// openBoard never fails; without hardware the axis comes up uninitialized on an empty fake board.
func openBoard(ctx context.Context, cfg board.Config, logger golog.Logger) board.Board {
	b, err := board.NewBoard(ctx, cfg, logger)
	if err == nil {
		return b
	}
	logger.Errorw("board unavailable, motion disabled", "model", cfg.Model, "error", err)
	empty, err := fake.NewBoard(ctx, board.Config{Model: fake.ModelName}, logger)
	if err != nil {
		logger.Fatalw("fake board", "error", err)
	}
	return empty
}

func runServer(ctx context.Context, cfg *config.Config, logger golog.Logger) (err error) {
	b := openBoard(ctx, cfg.Board, logger.Named("board"))
	hub := movement.NewHub(cfg.NotificationQueue, logger.Named("hub"))
	ctrl := gpiostepper.NewController(ctx, b, cfg.Motor, hub.Publish, logger.Named("gpiostepper"))
	svc := movement.NewService(ctrl, hub, logger.Named("movement"))

	server := web.NewServer(cfg.Web, svc, logger.Named("web"))
	if err := server.Start(ctx); err != nil {
		return multierr.Combine(err, svc.Close(ctx), ctrl.Close(ctx), b.Close(ctx))
	}

	var transport *serial.Transport
	if cfg.Serial != nil {
		transport = serial.NewTransport(*cfg.Serial, svc, logger.Named("serial"))
		if err := transport.Start(ctx); err != nil {
			logger.Errorw("serial transport unavailable", "device", cfg.Serial.Device, "error", err)
			transport = nil
		}
	}

	logger.Infow("ready", "listen", server.Addr(), "initialized", ctrl.Status().Initialized)
	utils.ContextMainReadyFunc(ctx)()
	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// the service refuses new requests and queues OnMovementCanceled before the transports flush
	// their peers and close
	err = multierr.Combine(err, svc.Close(closeCtx), server.Close(closeCtx))
	if transport != nil {
		err = multierr.Combine(err, transport.Close())
	}
	return multierr.Combine(err, ctrl.Close(closeCtx), b.Close(closeCtx))
}
