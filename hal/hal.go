// Package hal binds the I²C bus and GPIO pins that drive an SSD1306 OLED HAT.
//
// A Layer owns one opened bus handle for its whole lifetime and walks
// through three states: Uninitialized until Init succeeds, Ready until
// Shutdown, and Closed afterwards. Every operation checks the state first, so
// out-of-order calls return an error instead of touching the hardware.
//
// The Layer performs no locking. Callers sharing one Layer between
// goroutines must serialize access themselves.
package hal

import (
	"errors"
	"fmt"
	"time"

	"github.com/d2r2/go-logger"
	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/host/v3"
)

var lg = logger.NewPackageLogger("hal", logger.InfoLevel)

const (
	Uninitialized State = iota
	Ready
	Closed

	resetPulse = 100 * time.Millisecond
)

type (
	State int

	Layer struct {
		bus      i2c.BusCloser
		cfg      Config
		clock    clockwork.Clock
		hostInit func() error
		lookup   func(int) gpio.PinIO
		state    State
		rst      gpio.PinIO
		dc       gpio.PinIO
	}

	Option func(*Layer)
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// WithClock replaces the clock used for delays.
func WithClock(c clockwork.Clock) Option {
	return func(l *Layer) {
		l.clock = c
	}
}

// WithHostInit replaces the function that loads the host GPIO drivers.
func WithHostInit(f func() error) Option {
	return func(l *Layer) {
		l.hostInit = f
	}
}

// WithPinLookup replaces the function used to resolve BCM pin numbers.
func WithPinLookup(f func(int) gpio.PinIO) Option {
	return func(l *Layer) {
		l.lookup = f
	}
}

func hostInit() error {
	_, err := host.Init()
	return err
}

// PinByNumber resolves a BCM pin number through the periph GPIO registry.
func PinByNumber(n int) gpio.PinIO {
	return gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
}

// New wraps an already opened bus. No I/O happens until Init.
func New(bus i2c.BusCloser, cfg Config, opts ...Option) (*Layer, error) {
	if bus == nil {
		return nil, &ConfigurationError{Field: "bus", Value: nil, Reason: "a bus handle is required"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Layer{
		bus:      bus,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		hostInit: hostInit,
		lookup:   PinByNumber,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Layer) State() State {
	return l.state
}

func (l *Layer) Pins() Pins {
	return l.cfg.Pins
}

func (l *Layer) Addr() uint16 {
	return l.cfg.Addr
}

// Bus returns the shared bus handle so that a display driver can talk to
// the controller over the same connection.
func (l *Layer) Bus() i2c.Bus {
	return l.bus
}

// DelayMs blocks the caller for t milliseconds.
func (l *Layer) DelayMs(t uint) {
	l.clock.Sleep(time.Duration(t) * time.Millisecond)
}

// WriteRegister writes value to register reg of the device and then waits
// for the controller to latch it.
func (l *Layer) WriteRegister(reg, value byte) error {
	switch l.state {
	case Uninitialized:
		return &InvalidStateError{Op: "write register", State: l.state}
	case Closed:
		return &BusError{Addr: l.cfg.Addr, Reg: reg, Value: value, Err: ErrBusClosed}
	}
	return l.writeRegister(reg, value)
}

func (l *Layer) writeRegister(reg, value byte) error {
	lg.Debugf("write %#02x to register %#02x on %s", value, reg, l.bus)
	if err := l.bus.Tx(l.cfg.Addr, []byte{reg, value}, nil); err != nil {
		return &BusError{Addr: l.cfg.Addr, Reg: reg, Value: value, Err: err}
	}
	l.clock.Sleep(l.cfg.SettleDelay)
	return nil
}

// Init loads the host GPIO drivers, configures the reset pin as an output
// and sends the wake sequence to the controller. It may be called again
// while Ready; the wake sequence is re-sent every time.
func (l *Layer) Init() error {
	if l.state == Closed {
		return &InvalidStateError{Op: "init", State: l.state}
	}
	lg.Info("module init")

	if err := l.hostInit(); err != nil {
		return fmt.Errorf("failed to initialize gpio: %w", err)
	}

	rst, err := l.pin("reset", l.cfg.Pins.Reset)
	if err != nil {
		return err
	}
	dc, err := l.pin("data-command", l.cfg.Pins.DataCommand)
	if err != nil {
		return err
	}
	if err := rst.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to configure reset pin %s: %w", rst, err)
	}
	l.rst = rst
	l.dc = dc

	if err := l.writeRegister(wakeRegister, wakeValue); err != nil {
		return err
	}
	l.state = Ready
	return nil
}

func (l *Layer) pin(name string, num int) (gpio.PinIO, error) {
	p := l.lookup(num)
	if p == nil {
		return nil, &ConfigurationError{Field: name + " pin", Value: num, Reason: "no such gpio"}
	}
	return p, nil
}

// Reset pulses the reset pin to restart the controller.
func (l *Layer) Reset() error {
	if l.state != Ready {
		return &InvalidStateError{Op: "reset", State: l.state}
	}
	for _, level := range []gpio.Level{gpio.High, gpio.Low, gpio.High} {
		if err := l.rst.Out(level); err != nil {
			return fmt.Errorf("failed to drive reset pin %s: %w", l.rst, err)
		}
		l.clock.Sleep(resetPulse)
	}
	return nil
}

// Shutdown closes the bus and drives the reset and data-command pins low.
// The Layer cannot be used again afterwards.
func (l *Layer) Shutdown() error {
	if l.state != Ready {
		return &InvalidStateError{Op: "shutdown", State: l.state}
	}
	lg.Info("module exit")
	l.state = Closed

	var errs []error
	if err := l.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close i2c bus: %w", err))
	}
	if err := l.rst.Out(gpio.Low); err != nil {
		errs = append(errs, fmt.Errorf("failed to drive reset pin low: %w", err))
	}
	if err := l.dc.Out(gpio.Low); err != nil {
		errs = append(errs, fmt.Errorf("failed to drive data-command pin low: %w", err))
	}
	return errors.Join(errs...)
}
