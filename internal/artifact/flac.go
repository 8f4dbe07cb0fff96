package artifact

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"voicebubble/internal/domain"
)

const (
	BlockSize     = 4096
	BitsPerSample = 16
)

var ErrWriterClosed = errors.New("artifact writer is closed")

type flacWriter struct {
	mu sync.Mutex

	file       *os.File
	enc        *flac.Encoder
	sampleRate int
	channels   int

	pending []int16 // interleaved samples waiting for a full block
	samples uint64  // per channel
	closed  bool
	result  domain.AudioArtifact
}

func newFlacWriter(file *os.File, sampleRate int, channels int) (*flacWriter, error) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if channels <= 0 {
		channels = 1
	}
	if channels > 2 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}

	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     uint8(channels),
		BitsPerSample: BitsPerSample,
	}
	enc, err := flac.NewEncoder(file, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	return &flacWriter{
		file:       file,
		enc:        enc,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

func (w *flacWriter) Path() string {
	return w.file.Name()
}

// WriteFrame appends one buffer of little-endian 16-bit PCM. Complete blocks
// are encoded immediately; the remainder waits for the next frame or Close.
func (w *flacWriter) WriteFrame(pcm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if len(pcm)%(2*w.channels) != 0 {
		return fmt.Errorf("pcm frame of %d bytes is not aligned to %d channel(s)", len(pcm), w.channels)
	}

	for i := 0; i+1 < len(pcm); i += 2 {
		w.pending = append(w.pending, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}

	blockSamples := BlockSize * w.channels
	for len(w.pending) >= blockSamples {
		if err := w.encodeBlock(w.pending[:blockSamples]); err != nil {
			w.pending = w.pending[blockSamples:]
			return err
		}
		w.pending = w.pending[blockSamples:]
	}
	return nil
}

// Close flushes the trailing partial block and finalizes the stream header.
// Calling it again returns the same artifact.
func (w *flacWriter) Close() (domain.AudioArtifact, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.result, nil
	}
	w.closed = true

	var flushErr error
	if len(w.pending) > 0 {
		flushErr = w.encodeBlock(w.pending)
		w.pending = nil
	}

	closeErr := w.enc.Close()
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) && closeErr == nil {
		closeErr = err
	}

	w.result = domain.AudioArtifact{
		Path:       w.file.Name(),
		SampleRate: w.sampleRate,
		Channels:   w.channels,
		Samples:    w.samples,
		Duration:   time.Duration(w.samples) * time.Second / time.Duration(w.sampleRate),
	}
	if err := errors.Join(flushErr, closeErr); err != nil {
		return w.result, fmt.Errorf("finalizing flac artifact: %w", err)
	}
	return w.result, nil
}

func (w *flacWriter) encodeBlock(interleaved []int16) error {
	n := len(interleaved) / w.channels
	subframes := make([]*frame.Subframe, w.channels)
	for ch := range subframes {
		samples := make([]int32, n)
		for i := 0; i < n; i++ {
			samples[i] = int32(interleaved[i*w.channels+ch])
		}
		subframes[ch] = &frame.Subframe{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  n,
		}
	}

	channels := frame.ChannelsMono
	if w.channels == 2 {
		channels = frame.ChannelsLR
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(n),
			SampleRate:    uint32(w.sampleRate),
			Channels:      channels,
			BitsPerSample: BitsPerSample,
		},
		Subframes: subframes,
	}
	if err := w.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	w.samples += uint64(n)
	return nil
}
