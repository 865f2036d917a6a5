package hal

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// OpenBus opens the numbered I²C bus through the periph.io registry.
func OpenBus(busNumber int) (i2c.BusCloser, error) {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	name := fmt.Sprintf("/dev/i2c-%d", busNumber)
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c bus %s: %w", name, err)
	}
	return b, nil
}
