package genericlinux

import (
	"testing"

	"go.viam.com/test"
)

func TestLineOffset(t *testing.T) {
	offset, err := lineOffset("25")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, offset, test.ShouldEqual, uint32(25))

	offset, err = lineOffset("0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, offset, test.ShouldEqual, uint32(0))

	_, err = lineOffset("GPIO25")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bad gpio pin (GPIO25)")

	_, err = lineOffset("-3")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = lineOffset("")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestChipDevOrDefault(t *testing.T) {
	test.That(t, chipDevOrDefault(""), test.ShouldEqual, DefaultChipDev)
	test.That(t, chipDevOrDefault("/dev/gpiochip4"), test.ShouldEqual, "/dev/gpiochip4")
}
