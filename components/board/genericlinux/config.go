package genericlinux

import (
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// ModelName is the board model served by this package.
const ModelName = "genericlinux"

// DefaultChipDev is the character device used when the board config names none. On a Raspberry
// Pi its line offsets are the BCM pin numbers.
const DefaultChipDev = "/dev/gpiochip0"

// lineOffset turns a configured pin name into a line offset on the chip.
func lineOffset(pin string) (uint32, error) {
	offset, err := cast.ToUint32E(pin)
	if err != nil {
		return 0, errors.Wrapf(err, "bad gpio pin (%s)", pin)
	}
	return offset, nil
}

func chipDevOrDefault(dev string) string {
	if dev == "" {
		return DefaultChipDev
	}
	return dev
}
