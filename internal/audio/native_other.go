//go:build !linux

package audio

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"voicebubble/internal/ports"
)

// NativeCapture records through miniaudio.
type NativeCapture struct{}

func NewNativeCapture() *NativeCapture {
	return &NativeCapture{}
}

func (n *NativeCapture) Open(ctx context.Context, cfg ports.AudioConfig) (ports.CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = withDefaults(cfg)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)

	if cfg.InputDevice != "" && cfg.InputDevice != "default" {
		idBytes, err := hex.DecodeString(cfg.InputDevice)
		if err != nil {
			_ = mctx.Uninit()
			mctx.Free()
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	d := &malgoDevice{ctx: mctx}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, _ uint32) {
			if cb := d.callback.Load(); cb != nil {
				(*cb)(data)
			}
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("malgo device: %w", err)
	}
	d.device = dev
	return d, nil
}

type malgoDevice struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	callback atomic.Pointer[ports.FrameCallback]

	closeOnce sync.Once
}

func (d *malgoDevice) SetCallback(cb ports.FrameCallback) {
	d.callback.Store(&cb)
}

func (d *malgoDevice) ClearCallback() {
	d.callback.Store(nil)
}

func (d *malgoDevice) Start() error {
	return d.device.Start()
}

func (d *malgoDevice) Stop() error {
	if !d.device.IsStarted() {
		return nil
	}
	return d.device.Stop()
}

func (d *malgoDevice) Close() error {
	d.closeOnce.Do(func() {
		d.device.Uninit()
		_ = d.ctx.Uninit()
		d.ctx.Free()
	})
	return nil
}
