package main

import (
	"bufio"
	"fmt"
	"image"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/d2r2/go-logger"
	"github.com/larsks/oledhat/display"
	"github.com/larsks/oledhat/hal"
	"github.com/spf13/pflag"
	"golang.org/x/image/font"
)

type (
	Options struct {
		Bus           int
		Backend       string
		Address       uint16
		ResetPin      int
		DCPin         int
		BusyPin       int
		CSPin         int
		Height        int
		Clear         bool
		Off           bool
		DryRun        bool
		Font          string
		FontSize      float64
		Image         bool
		ImageInterval time.Duration
		Loop          bool
		Duration      time.Duration
		Wait          bool
		Verbose       bool
	}
)

var (
	options Options
)

func init() {
	pflag.IntVarP(&options.Bus, "bus", "b", hal.DEFAULT_BUS_NUMBER, "i2c bus number")
	pflag.StringVar(&options.Backend, "backend", "periph", "i2c backend (periph or smbus)")
	pflag.Uint16Var(&options.Address, "address", hal.DEFAULT_ADDRESS, "i2c address of the display controller")
	pflag.IntVar(&options.ResetPin, "reset-pin", hal.DefaultPins.Reset, "BCM number of the reset pin")
	pflag.IntVar(&options.DCPin, "dc-pin", hal.DefaultPins.DataCommand, "BCM number of the data/command pin")
	pflag.IntVar(&options.BusyPin, "busy-pin", hal.DefaultPins.Busy, "BCM number of the busy pin")
	pflag.IntVar(&options.CSPin, "cs-pin", hal.DefaultPins.ChipSelect, "BCM number of the chip select pin")
	pflag.IntVar(&options.Height, "height", 64, "panel height in pixels (32 or 64)")
	pflag.BoolVarP(&options.Clear, "clear", "k", false, "clear the display")
	pflag.BoolVar(&options.Off, "off", false, "turn the panel off before exiting")
	pflag.BoolVarP(&options.DryRun, "dry-run", "n", false, "run without actual hardware")
	pflag.StringVarP(&options.Font, "font", "f", "", "path to truetype font file")
	pflag.Float64VarP(&options.FontSize, "font-size", "s", 13.0, "font size in points (ignored if --font not provided)")
	pflag.BoolVarP(&options.Image, "image", "i", false, "interpret non-option arguments as image filenames")
	pflag.DurationVar(&options.ImageInterval, "image-interval", 30*time.Millisecond, "interval between images")
	pflag.BoolVar(&options.Loop, "loop", false, "loop through images continuously")
	pflag.BoolVar(&options.Wait, "wait", false, "pause and require ctrl-c to exit")
	pflag.DurationVar(&options.Duration, "duration", 0, "maximum duration to run loop (0 for unlimited)")
	pflag.BoolVarP(&options.Verbose, "verbose", "v", false, "log every register write")
}

func config() hal.Config {
	cfg := hal.DefaultConfig
	cfg.BusNumber = options.Bus
	cfg.Addr = options.Address
	cfg.Pins = hal.Pins{
		Reset:       options.ResetPin,
		DataCommand: options.DCPin,
		Busy:        options.BusyPin,
		ChipSelect:  options.CSPin,
	}
	return cfg
}

// parseRegisterWrite parses the value of an @write=REG:VALUE command.
func parseRegisterWrite(arg string) (byte, byte, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("@write requires a value: @write=register:value")
	}
	reg, err := strconv.ParseUint(parts[0], 0, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid register '%s': %v", parts[0], err)
	}
	value, err := strconv.ParseUint(parts[1], 0, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value '%s': %v", parts[1], err)
	}
	return byte(reg), byte(value), nil
}

func processCommand(command string, h *hat) (bool, error) {
	if !strings.HasPrefix(command, "@") {
		return false, nil
	}

	parts := strings.SplitN(command[1:], "=", 2)
	skip := false

	switch parts[0] {
	case "clear":
		if err := h.screen.Clear(); err != nil {
			return false, err
		}
	case "interval":
		skip = true
		if len(parts) != 2 {
			return false, fmt.Errorf("@interval requires a value: @interval=duration")
		}
		interval, err := time.ParseDuration(parts[1])
		if err != nil {
			return false, fmt.Errorf("invalid interval duration '%s': %v", parts[1], err)
		}
		options.ImageInterval = interval
		log.Printf("Updated image interval to %v", options.ImageInterval)
	case "pause":
		skip = true
		if len(parts) != 2 {
			return false, fmt.Errorf("@pause requires a value: @pause=duration")
		}
		pauseDuration, err := time.ParseDuration(parts[1])
		if err != nil {
			return false, fmt.Errorf("invalid pause duration '%s': %v", parts[1], err)
		}
		log.Printf("Pausing for %v", pauseDuration)
		time.Sleep(pauseDuration)
	case "write":
		skip = true
		if len(parts) != 2 {
			return false, fmt.Errorf("@write requires a value: @write=register:value")
		}
		reg, value, err := parseRegisterWrite(parts[1])
		if err != nil {
			return false, err
		}
		if err := h.writeRegister(reg, value); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unknown command: %s", command)
	}
	return skip, nil
}

func validate(args []string) error {
	if options.Image && len(args) == 0 {
		return fmt.Errorf("--image requires at least one image filename as argument")
	}

	var err error
	pflag.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "loop", "image-interval":
			if !options.Image {
				err = fmt.Errorf("--%s can only be used with --image", f.Name)
			}
		case "font-size", "font":
			if options.Image {
				err = fmt.Errorf("--font and --font-size cannot be used with --image")
			}
		case "wait":
			if !options.DryRun {
				err = fmt.Errorf("--wait can only be used with --dry-run")
			}
		}
	})
	return err
}

func readLines(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	var lines []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading stdin: %w", err)
	}
	return lines, nil
}

func showImages(h *hat, args []string) error {
	var startTime time.Time
	if options.Loop && options.Duration > 0 {
		startTime = time.Now()
	}

	for {
		for _, imagePath := range args {
			if strings.HasPrefix(imagePath, "@") {
				skip, err := processCommand(imagePath, h)
				if err != nil {
					return fmt.Errorf("failed to process command '%s': %w", imagePath, err)
				}
				if skip {
					continue
				}
			} else {
				img, err := display.LoadImage(imagePath)
				if err != nil {
					return err
				}
				if err := h.screen.Display(img); err != nil {
					return fmt.Errorf("failed to display image %s: %w", imagePath, err)
				}
			}

			if len(args) > 1 {
				time.Sleep(options.ImageInterval)
			}

			if options.Loop && options.Duration > 0 && time.Since(startTime) >= options.Duration {
				return nil
			}
		}
		if !options.Loop {
			return nil
		}
	}
}

func showText(h *hat, lines []string) error {
	var face font.Face
	if options.Font != "" {
		f, err := display.LoadFont(options.Font, options.FontSize)
		if err != nil {
			return err
		}
		face = f
	}

	bounds := image.Rect(0, 0, h.screen.Width(), h.screen.Height())
	return h.screen.Display(display.RenderLines(bounds, face, lines))
}

func run() error {
	args := pflag.Args()
	if err := validate(args); err != nil {
		return err
	}

	// Read stdin before touching the hardware.
	var lines []string
	if !options.Image {
		var err error
		if lines, err = readLines(args); err != nil {
			return err
		}
	}

	cfg := config()
	if err := cfg.Validate(); err != nil {
		return err
	}

	h, err := openHat(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			log.Printf("shutdown failed: %v", err)
		}
	}()

	if err := h.screen.Init(); err != nil {
		return err
	}

	if options.Clear {
		if err := h.screen.Clear(); err != nil {
			return err
		}
	}

	if h.fake != nil && h.fake.IsWaitMode() {
		log.Println("Waiting for start button click in browser...")
		h.fake.WaitForStart()
		log.Println("Start button clicked, beginning rendering...")
	}

	if options.Image {
		err = showImages(h, args)
	} else {
		err = showText(h, lines)
	}
	if err != nil {
		return err
	}

	if options.DryRun && options.Wait {
		log.Printf("paused; press CTRL-C to exit")
		syscall.Pause() //nolint:errcheck
	}
	return nil
}

var finalizeLogger = logger.FinalizeLogger

// realMain returns the exit status. The logger is flushed on every path.
func realMain() int {
	if options.Verbose {
		_ = logger.ChangePackageLogLevel("hal", logger.DebugLevel)
	}

	err := run()
	finalizeLogger()
	if err != nil {
		log.Print(err)
		return 1
	}
	return 0
}

func main() {
	pflag.Parse()
	os.Exit(realMain())
}
