// Package display forwards drawing requests for an OLED HAT to a display
// controller driver.
package display

import (
	"fmt"
	"image"

	"github.com/larsks/oledhat/hal"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

type (
	// Delegate is the controller driver that does the real work.
	// GetBuffer converts an image into the controller's pixel format and
	// ShowImage pushes such a buffer to the panel.
	Delegate interface {
		Width() int
		Height() int
		Init() error
		Clear() error
		GetBuffer(img image.Image) (*image1bit.VerticalLSB, error)
		ShowImage(buf *image1bit.VerticalLSB) error
	}

	Display struct {
		resetPin int
		dcPin    int
		busyPin  int
		csPin    int
		width    int
		height   int
		driver   Delegate
	}
)

// NewDisplay captures the pin numbers and the delegate's geometry. The
// geometry is not refreshed if the delegate changes later.
func NewDisplay(pins hal.Pins, driver Delegate) *Display {
	return &Display{
		resetPin: pins.Reset,
		dcPin:    pins.DataCommand,
		busyPin:  pins.Busy,
		csPin:    pins.ChipSelect,
		width:    driver.Width(),
		height:   driver.Height(),
		driver:   driver,
	}
}

func (d *Display) Width() int {
	return d.width
}

func (d *Display) Height() int {
	return d.height
}

func (d *Display) Bounds() image.Rectangle {
	return image.Rect(0, 0, d.width, d.height)
}

func (d *Display) Pins() hal.Pins {
	return hal.Pins{
		Reset:       d.resetPin,
		DataCommand: d.dcPin,
		Busy:        d.busyPin,
		ChipSelect:  d.csPin,
	}
}

func (d *Display) Init() error {
	if err := d.driver.Init(); err != nil {
		return fmt.Errorf("failed to initialize device: %w", err)
	}
	return nil
}

func (d *Display) Clear() error {
	if err := d.driver.Clear(); err != nil {
		return fmt.Errorf("failed to clear display: %w", err)
	}
	return nil
}

// Display converts img with the delegate and shows the result.
func (d *Display) Display(img image.Image) error {
	buf, err := d.driver.GetBuffer(img)
	if err != nil {
		return fmt.Errorf("failed to convert image: %w", err)
	}
	if err := d.driver.ShowImage(buf); err != nil {
		return fmt.Errorf("failed to draw on display: %w", err)
	}
	return nil
}
