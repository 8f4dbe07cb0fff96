package ports

import (
	"context"

	"voicebubble/internal/domain"
)

// Authorizer answers the two independent capture prerequisites. Either check
// may block while the platform prompts the user.
type Authorizer interface {
	AuthorizeRecognition(ctx context.Context) (bool, error)
	AuthorizeMicrophone(ctx context.Context) (bool, error)
}

// PermissionChecker resolves both authorizations and returns a typed error
// naming the first one that is missing.
type PermissionChecker interface {
	Check(ctx context.Context) error
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	InputFormat     string
	InputDevice     string
}

// FrameCallback receives little-endian signed 16-bit PCM.
type FrameCallback func(pcm []byte)

// CaptureDevice is an opened microphone that delivers frames to a callback.
type CaptureDevice interface {
	SetCallback(cb FrameCallback)
	ClearCallback()
	Start() error
	Stop() error
	Close() error
}

// AudioCapture opens microphone capture devices.
type AudioCapture interface {
	Open(ctx context.Context, cfg AudioConfig) (CaptureDevice, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// RecognitionStream is one live recognizer session. Events is closed when the
// backend is done; Wait then reports the terminal error, if any.
type RecognitionStream interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// Recognizer starts streaming recognition sessions.
type Recognizer interface {
	Name() string
	Available() bool
	StartStreaming(ctx context.Context, cfg StreamingConfig) (RecognitionStream, error)
}

// ArtifactWriter appends encoded audio to one recording file.
type ArtifactWriter interface {
	Path() string
	WriteFrame(pcm []byte) error
	Close() (domain.AudioArtifact, error)
}

// ArtifactStore hands out unique recording locations.
type ArtifactStore interface {
	Create(cfg AudioConfig) (ArtifactWriter, error)
	Discard(path string) error
}

// EventSink is the UI subscriber. Calls arrive from a single goroutine in the
// order the session produced them.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	TranscriptUpdated(update domain.TranscriptUpdate)
	MessageCommitted(text string, artifact *domain.AudioArtifact)
}
