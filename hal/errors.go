package hal

import (
	"errors"
	"fmt"
)

// ErrBusClosed is returned (wrapped in a BusError) for transactions issued
// after Shutdown.
var ErrBusClosed = errors.New("i2c bus is closed")

type (
	// BusError reports a failed I²C transaction. Err is whatever the bus
	// implementation returned.
	BusError struct {
		Addr  uint16
		Reg   byte
		Value byte
		Err   error
	}

	// InvalidStateError reports an operation invoked out of lifecycle order.
	InvalidStateError struct {
		Op    string
		State State
	}

	// ConfigurationError reports a malformed pin or bus setting.
	ConfigurationError struct {
		Field  string
		Value  any
		Reason string
	}
)

func (e *BusError) Error() string {
	return fmt.Sprintf("i2c write to %#02x register %#02x failed: %v", e.Addr, e.Reg, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: invalid in state %s", e.Op, e.State)
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}
