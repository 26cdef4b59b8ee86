package gpiostepper

import (
	"fmt"
	"time"
)

// Microsteps is the microstepping factor the driver is strapped for.
type Microsteps int

// The microstepping factors a stepper driver can be strapped for.
const (
	Full      Microsteps = 1
	Half      Microsteps = 2
	Fourth    Microsteps = 4
	Eighth    Microsteps = 8
	Sixteenth Microsteps = 16
)

// MinPulseDuration is the shortest time the driver needs between two step line transitions.
const MinPulseDuration = 400 * time.Microsecond

// MicrostepsFromInt maps a configured factor to Microsteps. Anything unrecognized is Full.
func MicrostepsFromInt(n int) Microsteps {
	switch m := Microsteps(n); m {
	case Full, Half, Fourth, Eighth, Sixteenth:
		return m
	default:
		return Full
	}
}

func (m Microsteps) factor() float64 {
	switch m {
	case Half, Fourth, Eighth, Sixteenth:
		return float64(m)
	default:
		return 1
	}
}

func (m Microsteps) String() string {
	switch m {
	case Full:
		return "full"
	case Half:
		return "1/2"
	case Fourth:
		return "1/4"
	case Eighth:
		return "1/8"
	case Sixteenth:
		return "1/16"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// StepsPerRevolution returns how many step pulses turn the shaft once.
func StepsPerRevolution(stepAngle float64, microsteps Microsteps) float64 {
	return 360 / stepAngle * microsteps.factor()
}

// StepperMotor describes the motor hanging off the driver.
type StepperMotor struct {
	StepAngle  float64 // degrees per full step
	Microsteps Microsteps
}

// StepsPerRevolution is derived on every call so it always reflects the current fields.
func (m StepperMotor) StepsPerRevolution() float64 {
	return StepsPerRevolution(m.StepAngle, m.Microsteps)
}
