//go:build linux

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"

	"voicebubble/internal/ports"
)

// NativeCapture records through the PulseAudio server.
type NativeCapture struct{}

func NewNativeCapture() *NativeCapture {
	return &NativeCapture{}
}

func (n *NativeCapture) Open(ctx context.Context, cfg ports.AudioConfig) (ports.CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = withDefaults(cfg)

	client, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseDevice{client: client, cfg: cfg}, nil
}

type pulseDevice struct {
	client   *pulse.Client
	cfg      ports.AudioConfig
	callback atomic.Pointer[ports.FrameCallback]

	mu        sync.Mutex
	stream    *pulse.RecordStream
	closeOnce sync.Once
}

func (d *pulseDevice) SetCallback(cb ports.FrameCallback) {
	d.callback.Store(&cb)
}

func (d *pulseDevice) ClearCallback() {
	d.callback.Store(nil)
}

func (d *pulseDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return nil
	}

	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		cb := d.callback.Load()
		if cb == nil || len(buf) == 0 {
			return len(buf), nil
		}
		data := make([]byte, len(buf)*2)
		for i, s := range buf {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
		}
		(*cb)(data)
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordSampleRate(d.cfg.SampleRate),
		pulse.RecordLatency(float64(d.cfg.FramesPerBuffer) / float64(d.cfg.SampleRate)),
	}
	if d.cfg.Channels == 1 {
		opts = append(opts, pulse.RecordMono)
	} else {
		opts = append(opts, pulse.RecordStereo)
	}
	if d.cfg.InputDevice != "" && d.cfg.InputDevice != "default" {
		source, err := d.client.SourceByID(d.cfg.InputDevice)
		if err != nil {
			return fmt.Errorf("pulse source %q: %w", d.cfg.InputDevice, err)
		}
		opts = append(opts, pulse.RecordSource(source))
	}

	stream, err := d.client.NewRecord(writer, opts...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}
	stream.Start()
	d.stream = stream
	return nil
}

func (d *pulseDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	d.stream.Stop()
	return nil
}

func (d *pulseDevice) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		if d.stream != nil {
			d.stream.Close()
			d.stream = nil
		}
		d.mu.Unlock()
		d.client.Close()
	})
	return nil
}
