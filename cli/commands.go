package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/nanoalchemist/movement/services/movement"
)

func withClient(c *cli.Context, fn func(cl *wsClient) error) (err error) {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, cl.Close())
	}()
	return fn(cl)
}

// setFloats copies the flags the user actually set into msg under their request keys.
func setFloats(c *cli.Context, msg map[string]interface{}, keys map[string]string) {
	for flag, key := range keys {
		if c.IsSet(flag) {
			msg[key] = c.Float64(flag)
		}
	}
}

// ConfigureAction sends the kinematics the user set.
func ConfigureAction(c *cli.Context) error {
	msg := map[string]interface{}{"method": movement.MethodConfigure}
	setFloats(c, msg, map[string]string{
		flagMmPerRev: "mm_per_revolution",
		flagAngle:    "motor_angle",
	})
	if c.IsSet(flagMicrostep) {
		msg["microsteps"] = c.Int(flagMicrostep)
	}
	if len(msg) == 1 {
		return errors.New("nothing to configure; set at least one of --mm-per-revolution, --motor-angle, --microsteps")
	}
	return withClient(c, func(cl *wsClient) error { return cl.request(msg, nil) })
}

// MoveAction moves the vat. Omitted values take the daemon's defaults.
func MoveAction(c *cli.Context) error {
	msg := map[string]interface{}{"method": movement.MethodMove}
	setFloats(c, msg, map[string]string{flagLength: "length", flagSpeed: "speed"})
	if c.IsSet(flagDirection) {
		msg["direction"] = c.Int(flagDirection)
	}
	return withClient(c, func(cl *wsClient) error { return cl.request(msg, nil) })
}

// HomeAction runs the homing sequence.
func HomeAction(c *cli.Context) error {
	msg := map[string]interface{}{"method": movement.MethodMoveToHome}
	setFloats(c, msg, map[string]string{flagSpeed: "speed"})
	if c.IsSet(flagDirection) {
		msg["direction"] = c.Int(flagDirection)
	}
	return withClient(c, func(cl *wsClient) error { return cl.request(msg, nil) })
}

// StatusAction prints the axis state as indented json.
func StatusAction(c *cli.Context) error {
	return withClient(c, func(cl *wsClient) error {
		return cl.request(map[string]interface{}{"method": movement.MethodStatus}, func(rec record) bool {
			if rec.Method != movement.StatusMethod {
				return false
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, rec.Status, "", "  "); err != nil {
				fmt.Fprintln(cl.out, string(rec.Status))
				return true
			}
			fmt.Fprintln(cl.out, pretty.String())
			return true
		})
	})
}

// SendFileAction uploads a print archive to the display, base64 encoded.
func SendFileAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("send-file takes exactly one file")
	}
	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	msg := map[string]interface{}{
		"method": movement.MethodSendFile,
		"file":   base64.StdEncoding.EncodeToString(data),
	}
	return withClient(c, func(cl *wsClient) error { return cl.request(msg, nil) })
}

// StartPrintAction tells the display to start.
func StartPrintAction(c *cli.Context) error {
	msg := map[string]interface{}{"method": movement.MethodStartPrint}
	return withClient(c, func(cl *wsClient) error { return cl.request(msg, nil) })
}

// ListenAction prints notifications until interrupted.
func ListenAction(c *cli.Context) error {
	return withClient(c, func(cl *wsClient) error { return cl.listen(c.Context) })
}
