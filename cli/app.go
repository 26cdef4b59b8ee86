// Package cli contains the movementctl operator commands.
package cli

import (
	"io"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	flagAddr      = "addr"
	flagRole      = "role"
	flagTimeout   = "timeout"
	flagLinger    = "linger"
	flagLength    = "length"
	flagSpeed     = "speed"
	flagDirection = "direction"
	flagMmPerRev  = "mm-per-revolution"
	flagAngle     = "motor-angle"
	flagMicrostep = "microsteps"

	defaultAddr = "ws://localhost:8024/ws"
)

func directionFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    flagDirection,
		Aliases: []string{"d"},
		Usage:   "1 for clockwise, -1 for counterclockwise",
	}
}

// NewApp returns the movementctl command writing to out and errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "movementctl",
		Usage:           "drive the vat axis of a movementd daemon",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagAddr,
				Aliases: []string{"a"},
				Value:   defaultAddr,
				EnvVars: []string{"MOVEMENT_ADDR"},
				Usage:   "websocket `URL` of the daemon",
			},
			&cli.StringFlag{
				Name:  flagRole,
				Value: "operator",
				Usage: "peer role to connect as",
			},
			&cli.DurationFlag{
				Name:  flagTimeout,
				Value: 5 * time.Second,
				Usage: "how long to wait for the daemon to acknowledge",
			},
			&cli.DurationFlag{
				Name:  flagLinger,
				Value: 500 * time.Millisecond,
				Usage: "how long to keep printing notifications after the acknowledgement",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "configure",
				Usage: "change the axis kinematics; omitted values are kept",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: flagMmPerRev, Usage: "millimeters of travel per revolution"},
					&cli.Float64Flag{Name: flagAngle, Usage: "full step angle in degrees"},
					&cli.IntFlag{Name: flagMicrostep, Usage: "microsteps per full step (1, 2, 4, 8 or 16)"},
				},
				Action: ConfigureAction,
			},
			{
				Name:  "move",
				Usage: "move the vat",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: flagLength, Aliases: []string{"l"}, Usage: "distance in millimeters"},
					&cli.Float64Flag{Name: flagSpeed, Aliases: []string{"s"}, Usage: "speed in millimeters per second"},
					directionFlag(),
				},
				Action: MoveAction,
			},
			{
				Name:  "home",
				Usage: "run the homing sequence",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: flagSpeed, Aliases: []string{"s"}, Usage: "speed in millimeters per second"},
					directionFlag(),
				},
				Action: HomeAction,
			},
			{
				Name:   "status",
				Usage:  "print the axis state",
				Action: StatusAction,
			},
			{
				Name:      "send-file",
				Usage:     "hand a sliced print archive to the display",
				ArgsUsage: "<file>",
				Action:    SendFileAction,
			},
			{
				Name:   "start-print",
				Usage:  "tell the display to start printing",
				Action: StartPrintAction,
			},
			{
				Name:   "listen",
				Usage:  "print every notification until interrupted",
				Action: ListenAction,
			},
		},
	}
}
