package scripted

import (
	"context"
	"io"
	"sync"

	"voicebubble/internal/domain"
	"voicebubble/internal/ports"
)

const Name = "scripted"

// Recognizer replays a fixed list of results. Every FramesPerResult audio
// chunks release the next result; the last one is final and ends the stream.
// CloseSend releases everything still pending.
type Recognizer struct {
	Results         []string
	FramesPerResult int
	// FailWith ends every stream with this error instead of a final result.
	FailWith error
	// StartErr makes StartStreaming fail.
	StartErr    error
	Unavailable bool

	mu      sync.Mutex
	streams []*Stream
}

func New(results ...string) *Recognizer {
	return &Recognizer{Results: results, FramesPerResult: 1}
}

func (r *Recognizer) Name() string { return Name }

func (r *Recognizer) Available() bool { return !r.Unavailable }

func (r *Recognizer) StartStreaming(ctx context.Context, _ ports.StreamingConfig) (ports.RecognitionStream, error) {
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	perResult := r.FramesPerResult
	if perResult <= 0 {
		perResult = 1
	}
	s := &Stream{
		results:   append([]string(nil), r.Results...),
		perResult: perResult,
		failWith:  r.FailWith,
		events:    make(chan domain.TranscriptEvent, len(r.Results)+1),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.streams = append(r.streams, s)
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Streams returns every stream started so far, oldest first.
func (r *Recognizer) Streams() []*Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Stream(nil), r.streams...)
}

// Stream is one scripted recognition session.
type Stream struct {
	results   []string
	perResult int
	failWith  error

	mu         sync.Mutex
	frames     int
	next       int
	sendClosed bool
	closed     bool
	closeCalls int
	finished   bool
	err        error

	events chan domain.TranscriptEvent
	done   chan struct{}
}

func (s *Stream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed || s.closed || s.finished {
		return io.ErrClosedPipe
	}
	if len(chunk) == 0 {
		return nil
	}
	s.frames++
	if s.frames%s.perResult == 0 {
		s.releaseLocked()
	}
	return nil
}

func (s *Stream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed || s.closed {
		return nil
	}
	s.sendClosed = true
	for !s.finished {
		s.releaseLocked()
	}
	return nil
}

func (s *Stream) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *Stream) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the stream; results not yet released are never delivered.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	s.closed = true
	s.finishLocked(nil)
	return nil
}

// Frames reports how many audio chunks were received.
func (s *Stream) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// CloseCalls reports how many times Close was called.
func (s *Stream) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

func (s *Stream) releaseLocked() {
	if s.finished {
		return
	}
	if s.next >= len(s.results) {
		s.finishLocked(s.failWith)
		return
	}
	text := s.results[s.next]
	s.next++
	last := s.next == len(s.results)
	if last && s.failWith == nil {
		s.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: text}
		s.finishLocked(nil)
		return
	}
	s.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: text}
	if last {
		s.finishLocked(s.failWith)
	}
}

func (s *Stream) finishLocked(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	close(s.events)
	close(s.done)
}
