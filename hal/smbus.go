package hal

import (
	"fmt"

	"github.com/d2r2/go-i2c"
	"github.com/d2r2/go-logger"
	periphi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// SMBus is a bus handle bound to a single device address, backed by the
// kernel i2c-dev interface through go-i2c. It implements i2c.BusCloser so
// the Layer and the display driver can share it like a periph bus.
type SMBus struct {
	dev  *i2c.I2C
	bus  int
	addr uint16
}

// OpenSMBus opens /dev/i2c-<busNumber> and binds it to addr.
func OpenSMBus(busNumber int, addr uint16) (*SMBus, error) {
	// go-i2c logs every transfer at debug level.
	_ = logger.ChangePackageLogLevel("i2c", logger.WarnLevel)

	dev, err := i2c.NewI2C(uint8(addr), busNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c bus %d: %w", busNumber, err)
	}
	return &SMBus{dev: dev, bus: busNumber, addr: addr}, nil
}

func (s *SMBus) String() string {
	return fmt.Sprintf("smbus-%d", s.bus)
}

// Tx implements i2c.Bus. Only the address given to OpenSMBus is reachable.
func (s *SMBus) Tx(addr uint16, w, r []byte) error {
	if addr != s.addr {
		return fmt.Errorf("%s: bound to address %#02x, cannot reach %#02x", s, s.addr, addr)
	}
	if len(w) != 0 {
		if _, err := s.dev.WriteBytes(w); err != nil {
			return err
		}
	}
	if len(r) != 0 {
		if _, err := s.dev.ReadBytes(r); err != nil {
			return err
		}
	}
	return nil
}

// SetSpeed implements i2c.Bus. The bus clock is owned by the kernel driver.
func (s *SMBus) SetSpeed(f physic.Frequency) error {
	return fmt.Errorf("%s: cannot set bus speed to %s", s, f)
}

func (s *SMBus) Close() error {
	return s.dev.Close()
}

var _ periphi2c.BusCloser = &SMBus{}
