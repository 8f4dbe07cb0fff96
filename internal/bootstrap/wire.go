package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"

	"voicebubble/internal/artifact"
	"voicebubble/internal/audio"
	"voicebubble/internal/chat"
	"voicebubble/internal/config"
	"voicebubble/internal/domain"
	"voicebubble/internal/gesture"
	"voicebubble/internal/logging"
	"voicebubble/internal/permission"
	"voicebubble/internal/ports"
	"voicebubble/internal/providers/deepgram"
	"voicebubble/internal/providers/googlespeech"
	"voicebubble/internal/providers/scripted"
	"voicebubble/internal/usecase"
)

// GestureListener is optionally implemented by the listener passed to Build
// to follow the button state.
type GestureListener interface {
	GestureChanged(state gesture.State)
}

// fakeCaptureLimit bounds how long one offline recording can run.
const fakeCaptureLimit = time.Minute

// Services is the assembled runtime graph.
type Services struct {
	Session  *usecase.RecognitionSession
	Gesture  *gesture.PressHoldController
	Messages *chat.Log
	Logger   *logging.Logger
	Config   config.Config

	// RecordingsDir is where committed recordings are kept.
	RecordingsDir string
}

// Build loads configuration and wires all dependencies for the current
// runtime. listener may be nil.
func Build(listener chat.Listener) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	logger, err := logging.New(cfg.Storage.LogDir, cfg.IsDevelopment())
	if err != nil {
		return Services{}, err
	}

	injector := newInjector(cfg, logger.Logger, listener)
	controller, err := do.Invoke[*gesture.PressHoldController](injector)
	if err != nil {
		_ = logger.Close()
		return Services{}, fmt.Errorf("failed to assemble services: %w", err)
	}

	logger.Info().
		Str("recognizer", cfg.Recognizer).
		Str("capture", cfg.Audio.Capture).
		Str("locale", cfg.Locale).
		Str("recordings", cfg.Storage.RecordingsDir).
		Msg("services ready")

	return Services{
		Session:       do.MustInvoke[*usecase.RecognitionSession](injector),
		Gesture:       controller,
		Messages:      do.MustInvoke[*chat.Log](injector),
		Logger:        logger,
		Config:        cfg,
		RecordingsDir: do.MustInvoke[*artifact.Store](injector).Dir(),
	}, nil
}

// Close stops the gesture worker, ends any recording and closes the log.
func (s Services) Close() error {
	if s.Gesture != nil {
		s.Gesture.Close()
	}
	if s.Session != nil {
		s.Session.Close()
	}
	return s.Logger.Close()
}

func newInjector(cfg config.Config, log zerolog.Logger, listener chat.Listener) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, log)

	do.Provide(injector, func(i do.Injector) (*chat.Log, error) {
		return chat.NewLog(), nil
	})
	do.Provide(injector, func(i do.Injector) (ports.EventSink, error) {
		return chat.NewFeed(do.MustInvoke[*chat.Log](i), listener, do.MustInvoke[zerolog.Logger](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (ports.PermissionChecker, error) {
		c := do.MustInvoke[config.Config](i)
		provider := permission.StaticProvider{
			Recognition: c.Permission.AllowRecognition,
			Microphone:  c.Permission.AllowMicrophone,
		}
		return permission.NewGate(provider, c.Permission.RecheckDenied, do.MustInvoke[zerolog.Logger](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (ports.AudioCapture, error) {
		c := do.MustInvoke[config.Config](i)
		switch c.Audio.Capture {
		case config.CaptureFFMPEG:
			return audio.NewFFMPEGCapture(c.Audio.RecorderCommand), nil
		case config.CaptureFake:
			return audio.NewSilentCapture(ports.AudioConfig{
				SampleRate:      c.Audio.SampleRate,
				Channels:        c.Audio.Channels,
				FramesPerBuffer: c.Audio.FramesPerBuffer,
			}, fakeCaptureLimit), nil
		}
		return audio.NewNativeCapture(), nil
	})
	do.Provide(injector, func(i do.Injector) (*artifact.Store, error) {
		c := do.MustInvoke[config.Config](i)
		return artifact.NewStore(c.Storage.RecordingsDir, do.MustInvoke[zerolog.Logger](i))
	})
	do.Provide(injector, func(i do.Injector) (ports.ArtifactStore, error) {
		return do.Invoke[*artifact.Store](i)
	})
	do.Provide(injector, func(i do.Injector) (ports.Recognizer, error) {
		c := do.MustInvoke[config.Config](i)
		return newRecognizer(c, do.MustInvoke[zerolog.Logger](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*usecase.RecognitionSession, error) {
		c := do.MustInvoke[config.Config](i)
		artifacts, err := do.Invoke[ports.ArtifactStore](i)
		if err != nil {
			return nil, err
		}
		return usecase.NewRecognitionSession(
			do.MustInvoke[ports.PermissionChecker](i),
			do.MustInvoke[ports.AudioCapture](i),
			do.MustInvoke[ports.Recognizer](i),
			artifacts,
			do.MustInvoke[ports.EventSink](i),
			do.MustInvoke[zerolog.Logger](i),
			usecase.Config{
				Audio: ports.AudioConfig{
					SampleRate:      c.Audio.SampleRate,
					Channels:        c.Audio.Channels,
					FramesPerBuffer: c.Audio.FramesPerBuffer,
					InputFormat:     c.Audio.InputFormat,
					InputDevice:     c.Audio.InputDevice,
				},
				Streaming: ports.StreamingConfig{
					SampleRate:     c.Audio.SampleRate,
					Channels:       c.Audio.Channels,
					Encoding:       "linear16",
					Language:       c.Locale,
					InterimResults: true,
				},
				CommitGrace: c.Session.CommitGrace,
			},
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*gesture.PressHoldController, error) {
		session, err := do.Invoke[*usecase.RecognitionSession](i)
		if err != nil {
			return nil, err
		}
		var observer func(gesture.State)
		if gl, ok := listener.(GestureListener); ok {
			observer = gl.GestureChanged
		}
		c := do.MustInvoke[config.Config](i)
		return gesture.NewPressHoldController(session, c.Gesture.LongPress, observer, do.MustInvoke[zerolog.Logger](i)), nil
	})

	return injector
}

// newRecognizer never fails: a backend that cannot be constructed is replaced
// by one that reports itself unavailable, which the session shows to the user.
func newRecognizer(cfg config.Config, log zerolog.Logger) ports.Recognizer {
	var (
		recognizer ports.Recognizer
		err        error
	)
	switch cfg.Recognizer {
	case config.RecognizerGoogle:
		recognizer, err = googleRecognizer(cfg)
	case config.RecognizerScripted:
		r := scripted.New(cfg.Scripted.Results...)
		r.FramesPerResult = 8
		recognizer = r
	default:
		recognizer, err = deepgramRecognizer(cfg)
	}
	if err != nil {
		log.Error().Err(err).Str("recognizer", cfg.Recognizer).Msg("recognizer could not be initialized")
		return unavailableRecognizer{name: cfg.Recognizer, err: err}
	}
	return recognizer
}

func deepgramRecognizer(cfg config.Config) (ports.Recognizer, error) {
	return deepgram.NewProvider(deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Locale,
		SmartFormat: cfg.Deepgram.SmartFormat,
	})
}

func googleRecognizer(cfg config.Config) (ports.Recognizer, error) {
	return googlespeech.NewProvider(googlespeech.Config{
		ProjectID:       cfg.Google.ProjectID,
		CredentialsJSON: cfg.Google.CredentialsJSON,
		Location:        cfg.Google.Location,
		Model:           cfg.Google.Model,
		Language:        cfg.Locale,
	})
}

type unavailableRecognizer struct {
	name string
	err  error
}

func (u unavailableRecognizer) Name() string    { return u.name }
func (u unavailableRecognizer) Available() bool { return false }

func (u unavailableRecognizer) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.RecognitionStream, error) {
	return nil, errors.Join(domain.ErrRecognizerUnavailable, u.err)
}
