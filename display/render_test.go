package display

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

func countOn(img *image1bit.VerticalLSB, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestToMonochrome(t *testing.T) {
	bounds := image.Rect(0, 0, 128, 64)

	tests := []struct {
		name   string
		img    image.Image
		wantOn int
	}{
		{
			name:   "white image",
			img:    &image.Uniform{color.White},
			wantOn: 128 * 64,
		},
		{
			name:   "black image",
			img:    image.NewGray(bounds),
			wantOn: 0,
		},
		{
			name:   "threshold is exclusive",
			img:    &image.Uniform{color.Gray{Y: DEFAULT_THRESHOLD}},
			wantOn: 0,
		},
		{
			name: "smaller image is clipped",
			img: func() image.Image {
				img := image.NewGray(image.Rect(0, 0, 10, 10))
				for i := range img.Pix {
					img.Pix[i] = 0xFF
				}
				return img
			}(),
			wantOn: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToMonochrome(bounds, tt.img)

			if got.Bounds() != bounds {
				t.Errorf("Expected bounds %v, got %v", bounds, got.Bounds())
			}
			if n := countOn(got, bounds); n != tt.wantOn {
				t.Errorf("Expected %d pixels on, got %d", tt.wantOn, n)
			}
		})
	}
}

func TestToMonochrome_OffsetSource(t *testing.T) {
	src := image.NewGray(image.Rect(5, 5, 15, 15))
	src.SetGray(5, 5, color.Gray{Y: 0xFF})

	got := ToMonochrome(image.Rect(0, 0, 128, 64), src)

	if got.BitAt(0, 0) != image1bit.On {
		t.Error("Expected the source origin to map to the display origin")
	}
}

func TestToMonochrome_Passthrough(t *testing.T) {
	bounds := image.Rect(0, 0, 128, 64)
	img := image1bit.NewVerticalLSB(bounds)

	if got := ToMonochrome(bounds, img); got != img {
		t.Error("Expected a buffer of matching bounds to be reused")
	}
	if got := ToMonochrome(image.Rect(0, 0, 128, 32), img); got == img {
		t.Error("Expected a buffer of different bounds to be converted")
	}
}

func TestRenderLines(t *testing.T) {
	bounds := image.Rect(0, 0, 128, 64)
	lineHeight := basicfont.Face7x13.Metrics().Height.Ceil()

	img := RenderLines(bounds, nil, []string{"Hello", "", "World"})

	if n := countOn(img, image.Rect(0, 0, 128, lineHeight)); n == 0 {
		t.Error("Expected first line to be drawn")
	}
	if n := countOn(img, image.Rect(0, lineHeight, 128, 2*lineHeight)); n != 0 {
		t.Errorf("Expected empty second line, got %d pixels on", n)
	}
	if n := countOn(img, image.Rect(0, 2*lineHeight, 128, 3*lineHeight)); n == 0 {
		t.Error("Expected third line to be drawn")
	}
}

func TestRenderLines_Overflow(t *testing.T) {
	bounds := image.Rect(0, 0, 128, 32)
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "XXXXXXXXXXXXXXXXXXXXXXXX"
	}

	img := RenderLines(bounds, basicfont.Face7x13, lines)

	if img.Bounds() != bounds {
		t.Errorf("Expected bounds %v, got %v", bounds, img.Bounds())
	}
	if countOn(img, bounds) == 0 {
		t.Error("Expected visible lines to be drawn")
	}
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.png")

	src := image.NewGray(image.Rect(0, 0, 4, 4))
	src.SetGray(1, 1, color.Gray{Y: 0xFF})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, src); err != nil {
		t.Fatal(err)
	}
	f.Close() //nolint:errcheck

	img, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage() failed: %v", err)
	}
	if img.Bounds() != src.Bounds() {
		t.Errorf("Expected bounds %v, got %v", src.Bounds(), img.Bounds())
	}

	_, err = LoadImage(filepath.Join(dir, "missing.png"))
	assertError(t, err, "failed to open image file")

	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = LoadImage(bad)
	assertError(t, err, "failed to decode image")
}

func TestLoadFont(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goregular.ttf")
	if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}

	face, err := LoadFont(path, 10)
	if err != nil {
		t.Fatalf("LoadFont() failed: %v", err)
	}
	if face.Metrics().Height.Ceil() <= 0 {
		t.Error("Expected a positive line height")
	}

	_, err = LoadFont(filepath.Join(dir, "missing.ttf"), 10)
	assertError(t, err, "failed to read font file")

	bad := filepath.Join(dir, "bad.ttf")
	if err := os.WriteFile(bad, []byte("not a font"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = LoadFont(bad, 10)
	assertError(t, err, "failed to parse font")
}
