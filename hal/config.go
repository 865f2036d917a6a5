package hal

import (
	"fmt"
	"time"
)

const (
	DEFAULT_BUS_NUMBER   int           = 1
	DEFAULT_ADDRESS      uint16        = 0x3C
	DEFAULT_SETTLE_DELAY time.Duration = 10 * time.Millisecond

	// wakeRegister is written with wakeValue by Init to kick the controller
	// out of its power-on state.
	wakeRegister byte = 0xFF
	wakeValue    byte = 0xFF
)

type (
	// Pins holds logical (BCM) GPIO numbers for the HAT.
	Pins struct {
		Reset       int
		DataCommand int
		Busy        int
		ChipSelect  int
	}

	Config struct {
		BusNumber   int
		Addr        uint16
		Pins        Pins
		SettleDelay time.Duration
	}
)

var (
	DefaultPins = Pins{
		Reset:       24,
		DataCommand: 25,
		Busy:        17,
		ChipSelect:  8,
	}

	DefaultConfig = Config{
		BusNumber:   DEFAULT_BUS_NUMBER,
		Addr:        DEFAULT_ADDRESS,
		Pins:        DefaultPins,
		SettleDelay: DEFAULT_SETTLE_DELAY,
	}
)

// Validate checks the pin assignment for negative or shared pin numbers.
func (p Pins) Validate() error {
	named := []struct {
		name string
		num  int
	}{
		{"reset", p.Reset},
		{"data-command", p.DataCommand},
		{"busy", p.Busy},
		{"chip-select", p.ChipSelect},
	}

	seen := make(map[int]string, len(named))
	for _, pin := range named {
		if pin.num < 0 {
			return &ConfigurationError{Field: pin.name + " pin", Value: pin.num, Reason: "must not be negative"}
		}
		if other, ok := seen[pin.num]; ok {
			return &ConfigurationError{
				Field:  pin.name + " pin",
				Value:  pin.num,
				Reason: fmt.Sprintf("already assigned to the %s pin", other),
			}
		}
		seen[pin.num] = pin.name
	}
	return nil
}

func (c Config) Validate() error {
	if c.BusNumber < 0 {
		return &ConfigurationError{Field: "bus number", Value: c.BusNumber, Reason: "must not be negative"}
	}
	// 0x00-0x07 and 0x78-0x7F are reserved I²C addresses.
	if c.Addr < 0x08 || c.Addr > 0x77 {
		return &ConfigurationError{Field: "address", Value: fmt.Sprintf("%#02x", c.Addr), Reason: "not a valid 7-bit device address"}
	}
	if c.SettleDelay < 0 {
		return &ConfigurationError{Field: "settle delay", Value: c.SettleDelay, Reason: "must not be negative"}
	}
	return c.Pins.Validate()
}

// DevicePath returns the i2c-dev character device for the configured bus.
func (c Config) DevicePath() string {
	return fmt.Sprintf("/dev/i2c-%d", c.BusNumber)
}
