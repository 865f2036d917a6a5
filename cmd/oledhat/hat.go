package main

import (
	"fmt"
	"log"

	"github.com/larsks/oledhat/display"
	"github.com/larsks/oledhat/display/fakedriver"
	"github.com/larsks/oledhat/hal"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
)

// hat ties together the pieces opened for one run.
type hat struct {
	layer  *hal.Layer
	screen *display.Display
	panel  *display.SSD1306
	fake   *fakedriver.FakeSSD1306
}

func openBus(cfg hal.Config) (i2c.BusCloser, error) {
	switch options.Backend {
	case "periph":
		return hal.OpenBus(cfg.BusNumber)
	case "smbus":
		b, err := hal.OpenSMBus(cfg.BusNumber, cfg.Addr)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown backend %q (want periph or smbus)", options.Backend)
}

func openHat(cfg hal.Config) (*hat, error) {
	if options.DryRun {
		fake := fakedriver.NewFakeSSD1306()
		fake.SetWaitMode(true)
		return &hat{
			screen: display.NewDisplay(cfg.Pins, fake),
			fake:   fake,
		}, nil
	}

	bus, err := openBus(cfg)
	if err != nil {
		return nil, err
	}

	layer, err := hal.New(bus, cfg)
	if err != nil {
		bus.Close() //nolint:errcheck
		return nil, err
	}
	if err := layer.Init(); err != nil {
		bus.Close() //nolint:errcheck
		return nil, err
	}

	opts := ssd1306.DefaultOpts
	opts.H = options.Height
	panel := display.NewSSD1306(layer.Bus(), &opts).WithResetter(layer)

	return &hat{
		layer:  layer,
		screen: display.NewDisplay(layer.Pins(), panel),
		panel:  panel,
	}, nil
}

func (h *hat) Close() error {
	if h.fake != nil {
		return h.fake.Close()
	}
	if h.panel != nil && options.Off {
		if err := h.panel.Halt(); err != nil {
			log.Printf("failed to turn display off: %v", err)
		}
	}
	return h.layer.Shutdown()
}

// writeRegister sends a raw register write when running on hardware.
func (h *hat) writeRegister(reg, value byte) error {
	if h.layer == nil {
		log.Printf("dry run: skipping write of %#02x to register %#02x", value, reg)
		return nil
	}
	return h.layer.WriteRegister(reg, value)
}
