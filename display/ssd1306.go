package display

import (
	"fmt"
	"image"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

type (
	// Resetter restarts the controller through its reset line.
	Resetter interface {
		Reset() error
	}

	// SSD1306 is a Delegate backed by the periph.io SSD1306 driver.
	SSD1306 struct {
		bus      i2c.Bus
		opts     ssd1306.Opts
		resetter Resetter
		dev      *ssd1306.Dev
	}
)

func NewSSD1306(bus i2c.Bus, opts *ssd1306.Opts) *SSD1306 {
	if opts == nil {
		opts = &ssd1306.DefaultOpts
	}
	return &SSD1306{
		bus:  bus,
		opts: *opts,
	}
}

// WithResetter makes Init pulse the reset line before talking to the
// controller.
func (d *SSD1306) WithResetter(r Resetter) *SSD1306 {
	d.resetter = r
	return d
}

func (d *SSD1306) Width() int {
	return d.opts.W
}

func (d *SSD1306) Height() int {
	return d.opts.H
}

func (d *SSD1306) bounds() image.Rectangle {
	return image.Rect(0, 0, d.opts.W, d.opts.H)
}

func (d *SSD1306) Init() error {
	if d.resetter != nil {
		if err := d.resetter.Reset(); err != nil {
			return fmt.Errorf("failed to reset controller: %w", err)
		}
	}

	dev, err := ssd1306.NewI2C(d.bus, &d.opts)
	if err != nil {
		return fmt.Errorf("failed to initialize ssd1306: %w", err)
	}
	d.dev = dev
	return nil
}

func (d *SSD1306) Clear() error {
	if d.dev == nil {
		return fmt.Errorf("driver has not been initialized")
	}
	return d.dev.Draw(d.dev.Bounds(), image1bit.NewVerticalLSB(d.dev.Bounds()), image.Point{})
}

func (d *SSD1306) GetBuffer(img image.Image) (*image1bit.VerticalLSB, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to convert")
	}
	return ToMonochrome(d.bounds(), img), nil
}

func (d *SSD1306) ShowImage(buf *image1bit.VerticalLSB) error {
	if d.dev == nil {
		return fmt.Errorf("driver has not been initialized")
	}
	return d.dev.Draw(d.dev.Bounds(), buf, image.Point{})
}

// Halt turns the panel off. The next ShowImage turns it back on.
func (d *SSD1306) Halt() error {
	if d.dev == nil {
		return nil
	}
	return d.dev.Halt()
}
