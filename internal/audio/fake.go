package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"voicebubble/internal/ports"
)

// FakeCapture plays scripted PCM frames through every device it opens. It
// counts opens and closes so callers can assert that no device leaks.
type FakeCapture struct {
	frames   [][]byte
	interval time.Duration
	openErr  error

	mu      sync.Mutex
	devices []*FakeDevice
}

// NewFakeCapture feeds frames in order, one per interval, then idles until
// stopped. A zero interval feeds them back to back.
func NewFakeCapture(frames [][]byte, interval time.Duration) *FakeCapture {
	return &FakeCapture{frames: frames, interval: interval}
}

// NewSilentCapture delivers up to limit of silence in real time, one buffer
// per frame period. It stands in for a microphone when none is available.
func NewSilentCapture(cfg ports.AudioConfig, limit time.Duration) *FakeCapture {
	cfg = withDefaults(cfg)
	period := time.Duration(cfg.FramesPerBuffer) * time.Second / time.Duration(cfg.SampleRate)
	count := int(limit / period)
	if count < 1 {
		count = 1
	}
	silence := make([]byte, cfg.FramesPerBuffer*cfg.Channels*2)
	frames := make([][]byte, count)
	for i := range frames {
		frames[i] = silence
	}
	return NewFakeCapture(frames, period)
}

// FailOpen makes subsequent opens return err.
func (f *FakeCapture) FailOpen(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

func (f *FakeCapture) Open(ctx context.Context, _ ports.AudioConfig) (ports.CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	d := &FakeDevice{frames: f.frames, interval: f.interval, stop: make(chan struct{}), fed: make(chan struct{})}
	f.devices = append(f.devices, d)
	return d, nil
}

func (f *FakeCapture) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices)
}

func (f *FakeCapture) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, d := range f.devices {
		total += d.CloseCalls()
	}
	return total
}

func (f *FakeCapture) Device(i int) *FakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.devices) {
		return nil
	}
	return f.devices[i]
}

// FakeDevice is one opened fake microphone.
type FakeDevice struct {
	frames   [][]byte
	interval time.Duration

	mu         sync.Mutex
	cb         ports.FrameCallback
	started    bool
	stopped    bool
	closeCalls int
	stop       chan struct{}
	fed        chan struct{}
	loopDone   chan struct{}
}

func (d *FakeDevice) SetCallback(cb ports.FrameCallback) {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
}

func (d *FakeDevice) ClearCallback() {
	d.mu.Lock()
	d.cb = nil
	d.mu.Unlock()
}

func (d *FakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("fake device already started")
	}
	d.started = true
	d.loopDone = make(chan struct{})
	go d.feed()
	return nil
}

func (d *FakeDevice) feed() {
	defer close(d.loopDone)
	defer close(d.fed)

	for _, frame := range d.frames {
		if d.interval > 0 {
			select {
			case <-d.stop:
				return
			case <-time.After(d.interval):
			}
		}
		d.mu.Lock()
		cb := d.cb
		d.mu.Unlock()
		if cb != nil {
			cb(frame)
		}
	}
}

// Fed is closed once every scripted frame was delivered or the device stopped.
func (d *FakeDevice) Fed() <-chan struct{} {
	return d.fed
}

func (d *FakeDevice) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.stop)
	done := d.loopDone
	d.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

func (d *FakeDevice) CloseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls
}

// CallbackInstalled reports whether a frame callback is still registered.
func (d *FakeDevice) CallbackInstalled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cb != nil
}
