package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"voicebubble/internal/ports"
)

const frameQueueDepth = 256

// Sink owns a live capture device and mirrors every delivered frame to the
// recognizer stream and the artifact writer from a single pump goroutine.
type Sink struct {
	device ports.CaptureDevice
	stream ports.RecognitionStream
	writer ports.ArtifactWriter
	log    zerolog.Logger

	mu      sync.Mutex
	frames  chan []byte
	closed  bool
	dropped int

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// OpenSink opens the microphone and starts delivering frames. writer may be
// nil when no recording is kept.
func OpenSink(
	ctx context.Context,
	capture ports.AudioCapture,
	cfg ports.AudioConfig,
	stream ports.RecognitionStream,
	writer ports.ArtifactWriter,
	log zerolog.Logger,
) (*Sink, error) {
	device, err := capture.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device: %w", err)
	}

	s := &Sink{
		device: device,
		stream: stream,
		writer: writer,
		log:    log.With().Str("component", "capture").Logger(),
		frames: make(chan []byte, frameQueueDepth),
		done:   make(chan struct{}),
	}
	go s.pump()

	device.SetCallback(s.deliver)
	if err := device.Start(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}
	return s, nil
}

func (s *Sink) deliver(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	frame := append([]byte(nil), pcm...)
	select {
	case s.frames <- frame:
	default:
		s.dropped++
	}
}

func (s *Sink) pump() {
	defer close(s.done)

	streaming := s.stream != nil
	for frame := range s.frames {
		if streaming {
			if err := s.stream.SendAudio(frame); err != nil {
				s.log.Warn().Err(err).Msg("recognizer stopped accepting audio")
				streaming = false
			}
		}
		if s.writer != nil {
			if err := s.writer.WriteFrame(frame); err != nil {
				s.log.Warn().Err(err).Str("path", s.writer.Path()).Msg("failed to write audio frame")
			}
		}
	}
}

// Close stops capture. It removes the frame callback first, drains frames
// already queued, and is safe to call more than once.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.device.ClearCallback()
		stopErr := s.device.Stop()

		s.mu.Lock()
		s.closed = true
		close(s.frames)
		dropped := s.dropped
		s.mu.Unlock()

		<-s.done
		closeErr := s.device.Close()
		if dropped > 0 {
			s.log.Warn().Int("dropped_frames", dropped).Msg("capture queue overflowed")
		}
		s.closeErr = errors.Join(stopErr, closeErr)
	})
	return s.closeErr
}
