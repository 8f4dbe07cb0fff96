package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"voicebubble/internal/ports"
)

// FFMPEGCapture reads microphone PCM from an ffmpeg subprocess.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

// Open launches ffmpeg and returns once the process survived its warm-up.
func (c *FFMPEGCapture) Open(ctx context.Context, cfg ports.AudioConfig) (ports.CaptureDevice, error) {
	cfg = withDefaults(cfg)
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimOutput(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegDevice{
		stdout:     stdout,
		stderr:     &stderr,
		process:    cmd.Process,
		waitErr:    waitErr,
		frameBytes: cfg.FramesPerBuffer * cfg.Channels * 2,
		readDone:   make(chan struct{}),
	}, nil
}

type ffmpegDevice struct {
	stdout     io.ReadCloser
	stderr     *bytes.Buffer
	process    *os.Process
	waitErr    <-chan error
	frameBytes int

	callback  atomic.Pointer[ports.FrameCallback]
	startOnce sync.Once
	started   atomic.Bool
	readDone  chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (d *ffmpegDevice) SetCallback(cb ports.FrameCallback) {
	d.callback.Store(&cb)
}

func (d *ffmpegDevice) ClearCallback() {
	d.callback.Store(nil)
}

func (d *ffmpegDevice) Start() error {
	d.startOnce.Do(func() {
		d.started.Store(true)
		go d.readLoop()
	})
	return nil
}

func (d *ffmpegDevice) readLoop() {
	defer close(d.readDone)

	buf := make([]byte, d.frameBytes)
	for {
		n, err := io.ReadFull(d.stdout, buf)
		if n > 0 {
			if cb := d.callback.Load(); cb != nil {
				(*cb)(buf[:n-n%2])
			}
		}
		if err != nil {
			return
		}
	}
}

// Stop interrupts ffmpeg, escalating to kill if it lingers.
func (d *ffmpegDevice) Stop() error {
	d.stopOnce.Do(func() {
		if d.process != nil {
			_ = d.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-d.waitErr:
			if ok {
				d.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if d.process != nil {
				_ = d.process.Kill()
			}
			err, ok := <-d.waitErr
			if ok {
				d.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := d.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if d.stopErr == nil {
				d.stopErr = closeErr
			}
		}
		if d.started.Load() {
			<-d.readDone
		}

		if d.stopErr != nil && d.stderr != nil && d.stderr.Len() > 0 {
			d.stopErr = fmt.Errorf("%w: %s", d.stopErr, trimOutput(d.stderr.String()))
		}
	})
	return d.stopErr
}

func (d *ffmpegDevice) Close() error {
	return d.Stop()
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
