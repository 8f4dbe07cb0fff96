package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voicebubble/internal/audio"
	"voicebubble/internal/domain"
	"voicebubble/internal/ports"
)

var (
	ErrSessionAborted = errors.New("recording session ended before capture started")
	ErrSessionClosed  = errors.New("recognition session is closed")
)

// Config controls capture and commit behavior.
type Config struct {
	Audio     ports.AudioConfig
	Streaming ports.StreamingConfig
	// CommitGrace is how long Commit waits for the recognizer's final result
	// after capture stops. Zero commits the transcript as it stands.
	CommitGrace time.Duration
}

// RecognitionSession runs press-and-hold recording cycles: authorization,
// capture mirrored to the recognizer and a recording file, and the commit or
// discard of the result. At most one cycle holds the microphone at a time.
type RecognitionSession struct {
	gate       ports.PermissionChecker
	capture    ports.AudioCapture
	recognizer ports.Recognizer
	artifacts  ports.ArtifactStore
	log        zerolog.Logger
	cfg        Config
	initErr    error

	pub        *publisher
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	current *activeSession
	pending *activeSession
}

// NewRecognitionSession wires the collaborators. A nil or unavailable
// recognizer is reported right away and again on every Begin; the session
// stays usable otherwise.
func NewRecognitionSession(
	gate ports.PermissionChecker,
	capture ports.AudioCapture,
	recognizer ports.Recognizer,
	artifacts ports.ArtifactStore,
	events ports.EventSink,
	log zerolog.Logger,
	cfg Config,
) *RecognitionSession {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = audio.DefaultSampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = audio.DefaultChannels
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		cfg.Audio.FramesPerBuffer = audio.DefaultFramesPerBuffer
	}
	if cfg.Streaming.SampleRate <= 0 {
		cfg.Streaming.SampleRate = cfg.Audio.SampleRate
	}
	if cfg.Streaming.Channels <= 0 {
		cfg.Streaming.Channels = cfg.Audio.Channels
	}

	log = log.With().Str("component", "session").Logger()
	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &RecognitionSession{
		gate:       gate,
		capture:    capture,
		recognizer: recognizer,
		artifacts:  artifacts,
		log:        log,
		cfg:        cfg,
		pub:        newPublisher(events, artifacts, log),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	if recognizer == nil || !recognizer.Available() {
		s.initErr = domain.ErrRecognizerUnavailable
		log.Error().Str("locale", cfg.Streaming.Language).Msg("speech recognizer is unavailable")
		s.pub.report(s.initErr)
	}
	return s
}

// Begin tears down any previous cycle, then authorizes and starts capture.
// It returns once capture is running or the attempt failed; failures are
// also shown in the transcript. ctx bounds only the start-up.
func (s *RecognitionSession) Begin(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.nextID++
	active := newActiveSession(s.baseCtx, s.nextID)
	previous, pending := s.current, s.pending
	s.current, s.pending = active, nil
	s.pub.open(active.id)
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, active.cancel)
	defer stop()

	restarted := false
	if previous != nil {
		s.pub.discard(previous.id)
		s.reset(previous)
		restarted = true
	}
	if pending != nil {
		<-pending.released
	}

	if s.initErr != nil {
		return s.abandon(ctx, active, s.initErr, domain.SessionReasonStartFailed)
	}

	s.pub.setState(active.id, domain.SessionStateAuthorizing, domain.SessionReasonAuthorizing)
	if err := ctx.Err(); err != nil {
		return s.abandon(ctx, active, err, domain.SessionReasonStartFailed)
	}
	if err := s.gate.Check(active.ctx); err != nil {
		return s.abandon(ctx, active, err, domain.SessionReasonAuthorizationDeny)
	}
	if err := s.start(active, restarted); err != nil {
		return s.abandon(ctx, active, err, domain.SessionReasonStartFailed)
	}
	return nil
}

func (s *RecognitionSession) start(active *activeSession, restarted bool) error {
	if active.isTorn() {
		return ErrSessionAborted
	}

	var writer ports.ArtifactWriter
	if s.artifacts != nil {
		w, err := s.artifacts.Create(s.cfg.Audio)
		if err != nil {
			s.log.Warn().Err(err).Msg("recording file unavailable, capturing without it")
		} else {
			writer = w
		}
	}

	stream, err := s.recognizer.StartStreaming(active.ctx, s.cfg.Streaming)
	if err != nil {
		s.dropWriter(writer)
		return s.backendError(err)
	}

	sink, err := audio.OpenSink(active.ctx, s.capture, s.cfg.Audio, stream, writer, s.log)
	if err != nil {
		_ = stream.Close()
		s.dropWriter(writer)
		return &domain.BackendError{Backend: "audio capture", Err: err}
	}

	reason := domain.SessionReasonCaptureStarted
	if restarted {
		reason = domain.SessionReasonCaptureRestarted
	}
	attached := active.attach(sink, stream, writer, func() {
		s.pub.setState(active.id, domain.SessionStateCapturing, reason)
	})
	if !attached {
		_ = sink.Close()
		_ = stream.Close()
		s.dropWriter(writer)
		return ErrSessionAborted
	}

	s.log.Info().Uint64("session", active.id).Str("recognizer", s.recognizer.Name()).Msg("capture started")
	go s.consume(active, stream)
	return nil
}

// abandon ends a cycle that never reached capture.
func (s *RecognitionSession) abandon(ctx context.Context, active *activeSession, err error, reason domain.SessionStateReason) error {
	s.mu.Lock()
	if s.current == active {
		s.current = nil
	}
	s.mu.Unlock()

	if !active.claim() {
		<-active.released
		return ErrSessionAborted
	}
	defer close(active.released)
	s.teardown(active)

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		s.pub.discard(active.id)
		s.pub.setState(active.id, domain.SessionStateIdle, domain.SessionReasonDiscarded)
		return err
	}

	s.log.Warn().Err(err).Uint64("session", active.id).Str("reason", string(reason)).Msg("session could not start")
	s.pub.fail(active.id, err)
	s.pub.setState(active.id, domain.SessionStateFailed, reason)
	s.pub.retire(active.id)
	s.pub.setState(active.id, domain.SessionStateIdle, domain.SessionReasonReady)
	return err
}

// Commit ends the cycle and hands a non-empty transcript to the subscriber
// together with the recording. It returns immediately.
func (s *RecognitionSession) Commit() {
	active := s.detach()
	if active == nil {
		s.pub.dismiss()
		return
	}
	go func() {
		defer close(active.ended)
		if s.cfg.CommitGrace > 0 {
			s.drain(active, s.cfg.CommitGrace)
		}
		s.reset(active)
		s.pub.commit(active.id)
	}()
}

// Cancel ends the cycle and discards its transcript and recording. It
// returns immediately; results still in flight are dropped.
func (s *RecognitionSession) Cancel() {
	active := s.detach()
	if active == nil {
		s.pub.dismiss()
		return
	}
	s.pub.discard(active.id)
	s.pub.setState(active.id, domain.SessionStateCancelled, domain.SessionReasonDiscarded)
	go func() {
		defer close(active.ended)
		s.reset(active)
		s.pub.setState(active.id, domain.SessionStateIdle, domain.SessionReasonReady)
	}()
}

// Reset synchronously discards the current cycle, if any.
func (s *RecognitionSession) Reset() {
	active := s.detach()
	if active == nil {
		return
	}
	defer close(active.ended)
	s.pub.discard(active.id)
	s.reset(active)
	s.pub.setState(active.id, domain.SessionStateIdle, domain.SessionReasonDiscarded)
}

// Status returns the state and transcript as last published.
func (s *RecognitionSession) Status() domain.Status {
	return s.pub.status()
}

// Close discards the current cycle, waits for a pending commit and stops
// publishing.
func (s *RecognitionSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Reset()

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if pending != nil {
		<-pending.ended
	}

	s.baseCancel()
	s.pub.close()
}

func (s *RecognitionSession) detach() *activeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.current
	if active == nil {
		return nil
	}
	s.current = nil
	s.pending = active
	return active
}

// consume forwards recognizer results in order. When the backend ends the
// stream on its own the session is torn down from a separate goroutine,
// since teardown waits for this one.
func (s *RecognitionSession) consume(active *activeSession, stream ports.RecognitionStream) {
	defer close(active.consumerDone)

	for event := range stream.Events() {
		if event.Text == "" {
			continue
		}
		s.pub.text(active.id, event.Text)
	}
	err := stream.Wait()
	if active.isTorn() {
		return
	}
	go s.finish(active, err)
}

// finish handles backend-driven completion. The transcript stays published
// so a later Commit can still deliver it.
func (s *RecognitionSession) finish(active *activeSession, err error) {
	if !active.claim() {
		return
	}
	defer close(active.released)

	if err != nil {
		err = s.backendError(err)
		s.log.Warn().Err(err).Uint64("session", active.id).Msg("recognizer failed")
		s.pub.fail(active.id, err)
		s.pub.setState(active.id, domain.SessionStateFailed, domain.SessionReasonBackendFailed)
	} else {
		s.pub.setState(active.id, domain.SessionStateFinalizing, domain.SessionReasonBackendFinished)
	}
	s.teardown(active)
	s.pub.setState(active.id, domain.SessionStateIdle, domain.SessionReasonReady)
}

func (s *RecognitionSession) backendError(err error) error {
	var recognizerErr *domain.RecognizerError
	if errors.As(err, &recognizerErr) {
		return err
	}
	name := ""
	if s.recognizer != nil {
		name = s.recognizer.Name()
	}
	return &domain.BackendError{Backend: name, Err: err}
}
