package usecase

import (
	"time"

	"voicebubble/internal/ports"
)

// reset releases the session's handles. Concurrent and repeated calls are
// safe: the first caller tears down, the others wait for it and report false.
func (s *RecognitionSession) reset(active *activeSession) bool {
	if !active.claim() {
		<-active.released
		return false
	}
	defer close(active.released)
	s.teardown(active)
	return true
}

// teardown must only run for the caller that won claim. Capture stops first
// so no frame reaches the recognizer or the file afterwards.
func (s *RecognitionSession) teardown(active *activeSession) {
	active.cancel()
	h := active.take()

	if h.sink != nil {
		if err := h.sink.Close(); err != nil {
			s.log.Warn().Err(err).Uint64("session", active.id).Msg("failed to stop audio capture cleanly")
		}
	}
	if h.stream != nil {
		if err := h.stream.Close(); err != nil {
			s.log.Debug().Err(err).Uint64("session", active.id).Msg("recognizer stream close")
		}
	}
	if h.consuming {
		<-active.consumerDone
	}
	if h.writer != nil {
		artifact, err := h.writer.Close()
		if err != nil {
			s.log.Warn().Err(err).Str("path", h.writer.Path()).Msg("failed to finish recording")
			s.discardPath(h.writer.Path())
			return
		}
		s.pub.stash(active.id, artifact)
	}
}

// drain stops capture and gives the recognizer up to grace to deliver its
// last results before the session is torn down.
func (s *RecognitionSession) drain(active *activeSession, grace time.Duration) {
	if active.isTorn() {
		return
	}
	h := active.handles()
	if h.stream == nil {
		return
	}
	if h.sink != nil {
		_ = h.sink.Close()
	}
	_ = h.stream.CloseSend()
	if !h.consuming {
		return
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-active.consumerDone:
	case <-timer.C:
		s.log.Debug().Uint64("session", active.id).Dur("grace", grace).Msg("commit grace elapsed before final result")
	}
}

func (s *RecognitionSession) dropWriter(writer ports.ArtifactWriter) {
	if writer == nil {
		return
	}
	_, _ = writer.Close()
	s.discardPath(writer.Path())
}

func (s *RecognitionSession) discardPath(path string) {
	if s.artifacts == nil {
		return
	}
	if err := s.artifacts.Discard(path); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("failed to discard recording")
	}
}
