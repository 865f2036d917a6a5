// Package fakedriver simulates an SSD1306 panel in a web browser so that
// the display stack can run without hardware.
package fakedriver

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	"image/color"
	"image/png"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/d2r2/go-logger"
	"github.com/larsks/oledhat/display"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

//go:embed display.html
var displayTemplate embed.FS

var lg = logger.NewPackageLogger("fakedriver", logger.InfoLevel)

var (
	pixelOn  = color.RGBA{255, 255, 255, 255}
	pixelOff = color.RGBA{0, 0, 0, 255}
)

type FakeSSD1306 struct {
	bounds        image.Rectangle
	mutex         sync.Mutex
	buffer        *image.RGBA
	server        *http.Server
	listener      net.Listener
	listenAddress string
	port          uint
	clients       map[chan string]struct{}
	waitMode      bool
	startChan     chan bool
	started       bool
}

func getEnvWithDefault(name, defval string) string {
	val := os.Getenv(name)
	if val == "" {
		return defval
	}
	return val
}

func NewFakeSSD1306() *FakeSSD1306 {
	listenAddress := getEnvWithDefault("OLEDHAT_SIM_LISTEN_ADDRESS", "127.0.0.1")
	portStr := getEnvWithDefault("OLEDHAT_SIM_PORT", "8080")

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		port = 8080
		lg.Warnf("invalid port %s: using default port %d", portStr, port)
	}

	return &FakeSSD1306{
		bounds:        image.Rect(0, 0, 128, 64),
		listenAddress: listenAddress,
		port:          uint(port),
		clients:       make(map[chan string]struct{}),
		startChan:     make(chan bool, 1),
	}
}

func (f *FakeSSD1306) WithPort(port uint) *FakeSSD1306 {
	f.port = port
	return f
}

func (f *FakeSSD1306) WithListenAddress(addr string) *FakeSSD1306 {
	f.listenAddress = addr
	return f
}

func (d *FakeSSD1306) SetWaitMode(waitMode bool) {
	d.waitMode = waitMode
}

func (d *FakeSSD1306) IsWaitMode() bool {
	return d.waitMode
}

// WaitForStart blocks until the start button is pressed in the browser.
// It returns immediately unless wait mode is set.
func (d *FakeSSD1306) WaitForStart() {
	d.mutex.Lock()
	wait := d.waitMode && !d.started
	d.mutex.Unlock()
	if !wait {
		return
	}

	<-d.startChan
	d.mutex.Lock()
	d.started = true
	d.mutex.Unlock()
	d.notifyStatus()
}

// Addr returns the address the simulator is listening on, or an empty
// string before Init.
func (d *FakeSSD1306) Addr() string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

func (d *FakeSSD1306) Width() int {
	return d.bounds.Dx()
}

func (d *FakeSSD1306) Height() int {
	return d.bounds.Dy()
}

// Init blanks the frame and starts the HTTP server.
func (d *FakeSSD1306) Init() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.buffer = image.NewRGBA(d.bounds)
	d.fill(pixelOff)

	if d.server != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", d.handleDisplay)
	mux.HandleFunc("/events", d.handleSSE)
	mux.HandleFunc("/start", d.handleStart)

	listener, err := net.Listen("tcp", net.JoinHostPort(d.listenAddress, strconv.FormatUint(uint64(d.port), 10)))
	if err != nil {
		return fmt.Errorf("failed to start display simulator: %w", err)
	}
	srv := &http.Server{Handler: mux}
	d.listener = listener
	d.server = srv

	// Close may clear d.server before this goroutine runs.
	go func() {
		lg.Infof("SSD1306 display simulator running at http://%s", listener.Addr())
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			lg.Errorf("HTTP server error: %v", err)
		}
	}()

	return nil
}

func (d *FakeSSD1306) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.server == nil {
		return nil
	}

	// Streams notice the shutdown through their request context.
	d.clients = make(map[chan string]struct{})
	err := d.server.Close()
	d.server = nil
	d.listener = nil
	return err
}

func (d *FakeSSD1306) fill(c color.RGBA) {
	for y := d.bounds.Min.Y; y < d.bounds.Max.Y; y++ {
		for x := d.bounds.Min.X; x < d.bounds.Max.X; x++ {
			d.buffer.SetRGBA(x, y, c)
		}
	}
}

func (d *FakeSSD1306) Clear() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.buffer == nil {
		return fmt.Errorf("display not initialized")
	}
	d.fill(pixelOff)
	d.notifyClients()
	return nil
}

func (d *FakeSSD1306) GetBuffer(img image.Image) (*image1bit.VerticalLSB, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to convert")
	}
	return display.ToMonochrome(d.bounds, img), nil
}

func (d *FakeSSD1306) ShowImage(buf *image1bit.VerticalLSB) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.buffer == nil {
		return fmt.Errorf("display not initialized")
	}

	src := buf.Bounds()
	for y := d.bounds.Min.Y; y < d.bounds.Max.Y; y++ {
		for x := d.bounds.Min.X; x < d.bounds.Max.X; x++ {
			if !(image.Point{x, y}).In(src) {
				continue
			}
			if buf.BitAt(x, y) == image1bit.On {
				d.buffer.SetRGBA(x, y, pixelOn)
			} else {
				d.buffer.SetRGBA(x, y, pixelOff)
			}
		}
	}

	d.notifyClients()
	return nil
}

// Snapshot returns a copy of the simulated panel.
func (d *FakeSSD1306) Snapshot() *image.RGBA {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.buffer == nil {
		return nil
	}
	snap := image.NewRGBA(d.buffer.Bounds())
	copy(snap.Pix, d.buffer.Pix)
	return snap
}

func (d *FakeSSD1306) encodeFrame() (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, d.buffer); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (d *FakeSSD1306) status() string {
	if d.started {
		return "started"
	}
	return "waiting"
}

// broadcast must be called with the mutex held. Slow clients miss the
// message rather than blocking the display.
func (d *FakeSSD1306) broadcast(msg string) {
	for client := range d.clients {
		select {
		case client <- msg:
		default:
		}
	}
}

func (d *FakeSSD1306) notifyClients() {
	b64, err := d.encodeFrame()
	if err != nil {
		return
	}
	d.broadcast("image:" + b64)
}

func (d *FakeSSD1306) notifyStatus() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.broadcast("status:" + d.status())
}

func (d *FakeSSD1306) handleDisplay(w http.ResponseWriter, r *http.Request) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.buffer == nil {
		http.Error(w, "display not initialized", http.StatusServiceUnavailable)
		return
	}

	b64, err := d.encodeFrame()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	tmpl, err := template.ParseFS(displayTemplate, "display.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		ImageData string
		Width     int
		Height    int
	}{
		ImageData: b64,
		Width:     d.bounds.Dx(),
		Height:    d.bounds.Dy(),
	}

	w.Header().Set("Content-Type", "text/html")
	if err := tmpl.Execute(w, data); err != nil {
		lg.Errorf("failed to render template: %v", err)
	}
}

func (d *FakeSSD1306) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan := make(chan string, 10)

	d.mutex.Lock()
	d.clients[clientChan] = struct{}{}
	clientChan <- "status:" + d.status()
	if d.buffer != nil {
		if b64, err := d.encodeFrame(); err == nil {
			clientChan <- "image:" + b64
		}
	}
	d.mutex.Unlock()

	defer func() {
		d.mutex.Lock()
		delete(d.clients, clientChan)
		d.mutex.Unlock()
	}()

	for {
		select {
		case data := <-clientChan:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (d *FakeSSD1306) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.started {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("Already started")) //nolint:errcheck
		return
	}

	select {
	case d.startChan <- true:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Started")) //nolint:errcheck
	default:
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("Start signal already sent")) //nolint:errcheck
	}
}

var _ display.Delegate = &FakeSSD1306{}
