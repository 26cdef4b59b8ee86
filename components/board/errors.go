package board

import "github.com/pkg/errors"

// NewUnsupportedInterruptError is returned when an interrupt cannot stream its ticks.
func NewUnsupportedInterruptError(name string) error {
	return errors.Errorf("digital interrupt (%s) does not support streaming ticks", name)
}

// NewPinNotFoundError is returned when a board has no line by the given name.
func NewPinNotFoundError(kind, name string) error {
	return errors.Errorf("can't find %s (%s)", kind, name)
}
