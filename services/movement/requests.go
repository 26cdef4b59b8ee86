package movement

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/nanoalchemist/movement/components/motor/gpiostepper"
)

// Methods understood by the service.
const (
	MethodConfigure  = "configure"
	MethodMove       = "move"
	MethodMoveToHome = "move_to_home"
	MethodSendFile   = "send_file"
	MethodStartPrint = "start_print"
	MethodStatus     = "status"
)

// Display commands forwarded to the display peer.
const (
	displayLoadFile   = "load_file"
	displayStartPrint = "start_print"
)

const (
	defaultMoveLength    = 10.0
	defaultMoveSpeed     = 5.0
	defaultLegacyLength  = 1.0
	defaultLegacySpeed   = 1.0
	defaultMoveDirection = int(gpiostepper.Clockwise)
)

// Keys whose presence turns a message without a method into an implicit move.
var legacyKeys = []string{"mms", "home", "distance", "direction", "length", "speed"}

type configureRequest struct {
	MillimetersPerRevolution *float64 `mapstructure:"mm_per_revolution"`
	MotorAngle               *float64 `mapstructure:"motor_angle"`
	Microsteps               *int     `mapstructure:"microsteps"`
}

// apply overlays the fields present in the request on cur.
func (r configureRequest) apply(cur gpiostepper.AxisConfig) gpiostepper.AxisConfig {
	if r.MillimetersPerRevolution != nil {
		cur.MillimetersPerRevolution = *r.MillimetersPerRevolution
	}
	if r.MotorAngle != nil {
		cur.MotorAngle = *r.MotorAngle
	}
	if r.Microsteps != nil {
		cur.Microsteps = *r.Microsteps
	}
	return cur
}

type moveRequest struct {
	Length    *float64 `mapstructure:"length"`
	Speed     *float64 `mapstructure:"speed"`
	Direction *int     `mapstructure:"direction"`
}

func (r moveRequest) values() (length, speed float64, dir gpiostepper.Direction) {
	return floatOr(r.Length, defaultMoveLength),
		floatOr(r.Speed, defaultMoveSpeed),
		gpiostepper.DirectionFromInt(intOr(r.Direction, defaultMoveDirection))
}

// legacyRequest is the method-less shape older clients and the display send. distance and mms win
// over their aliases length and speed.
type legacyRequest struct {
	Distance  *float64    `mapstructure:"distance"`
	Length    *float64    `mapstructure:"length"`
	Mms       *float64    `mapstructure:"mms"`
	Speed     *float64    `mapstructure:"speed"`
	Direction *int        `mapstructure:"direction"`
	Home      interface{} `mapstructure:"home"`
}

func (r legacyRequest) values() (length, speed float64, dir gpiostepper.Direction) {
	length = defaultLegacyLength
	switch {
	case r.Distance != nil:
		length = *r.Distance
	case r.Length != nil:
		length = *r.Length
	}
	speed = defaultLegacySpeed
	switch {
	case r.Mms != nil:
		speed = *r.Mms
	case r.Speed != nil:
		speed = *r.Speed
	}
	return length, speed, gpiostepper.DirectionFromInt(intOr(r.Direction, defaultMoveDirection))
}

type sendFileRequest struct {
	File string `mapstructure:"file"`
}

func decodeRequest(msg map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(msg); err != nil {
		return errors.Wrap(err, "decoding request")
	}
	return nil
}

// methodOf returns the trimmed method name and whether the message carried one at all.
func methodOf(msg map[string]interface{}) (string, bool) {
	raw, ok := msg["method"]
	if !ok || raw == nil {
		return "", false
	}
	return strings.TrimSpace(cast.ToString(raw)), true
}

func isLegacy(msg map[string]interface{}) bool {
	for _, k := range legacyKeys {
		if _, ok := msg[k]; ok {
			return true
		}
	}
	return false
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
