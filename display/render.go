package display

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/golang/freetype/truetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

const (
	// Pixels brighter than this are turned on.
	DEFAULT_THRESHOLD uint8 = 128
)

// DefaultFont is used by RenderLines when no face is given.
var DefaultFont font.Face = basicfont.Face7x13

// ToMonochrome maps img onto a 1-bit buffer covering bounds. Pixels outside
// img are left off.
func ToMonochrome(bounds image.Rectangle, img image.Image) *image1bit.VerticalLSB {
	if mono, ok := img.(*image1bit.VerticalLSB); ok && mono.Bounds() == bounds {
		return mono
	}

	displayImg := image1bit.NewVerticalLSB(bounds)
	imgBounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			srcX := imgBounds.Min.X + x - bounds.Min.X
			srcY := imgBounds.Min.Y + y - bounds.Min.Y
			if srcX < imgBounds.Max.X && srcY < imgBounds.Max.Y {
				gray := color.GrayModel.Convert(img.At(srcX, srcY)).(color.Gray)
				if gray.Y > DEFAULT_THRESHOLD {
					displayImg.Set(x, y, image1bit.On)
				}
			}
		}
	}
	return displayImg
}

// RenderLines draws one line of text per row of the font, top to bottom.
// Lines that do not fit are dropped.
func RenderLines(bounds image.Rectangle, face font.Face, lines []string) *image1bit.VerticalLSB {
	if face == nil {
		face = DefaultFont
	}
	img := image1bit.NewVerticalLSB(bounds)
	screen := font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: face,
	}

	lineHeight := face.Metrics().Height.Ceil()
	descent := face.Metrics().Descent.Round()
	for i, textLine := range lines {
		baseline := bounds.Min.Y + lineHeight*(1+i) - descent
		if baseline > bounds.Max.Y {
			break
		}
		screen.Dot = fixed.P(bounds.Min.X, baseline)
		screen.DrawString(textLine)
	}
	return img
}

// LoadImage decodes a png, jpeg, gif or bmp file.
func LoadImage(filename string) (image.Image, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// LoadFont parses a TrueType font file into a face of the given point size.
func LoadFont(filename string, size float64) (font.Face, error) {
	fontData, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}

	tf, err := truetype.Parse(fontData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return truetype.NewFace(tf, &truetype.Options{
		Size: size,
		DPI:  72,
	}), nil
}
