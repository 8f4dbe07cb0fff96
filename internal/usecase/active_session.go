package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"voicebubble/internal/audio"
	"voicebubble/internal/ports"
)

// activeSession holds the handles of one press-hold cycle. Handles are
// attached once capture is running and released by exactly one teardown.
type activeSession struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc

	torn     atomic.Bool
	released chan struct{}
	ended    chan struct{}

	mu           sync.Mutex
	sink         *audio.Sink
	stream       ports.RecognitionStream
	writer       ports.ArtifactWriter
	consuming    bool
	consumerDone chan struct{}
}

func newActiveSession(parent context.Context, id uint64) *activeSession {
	ctx, cancel := context.WithCancel(parent)
	return &activeSession{
		id:           id,
		ctx:          ctx,
		cancel:       cancel,
		released:     make(chan struct{}),
		ended:        make(chan struct{}),
		consumerDone: make(chan struct{}),
	}
}

// claim reports whether the caller won the right to tear the session down.
// The winner must close released when done.
func (s *activeSession) claim() bool {
	return s.torn.CompareAndSwap(false, true)
}

func (s *activeSession) isTorn() bool {
	return s.torn.Load()
}

// attach installs the running handles. It fails if teardown already started,
// in which case the caller still owns them. onAttached runs under the lock so
// nothing the session publishes after it can overtake it.
func (s *activeSession) attach(sink *audio.Sink, stream ports.RecognitionStream, writer ports.ArtifactWriter, onAttached func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTorn() {
		return false
	}
	s.sink = sink
	s.stream = stream
	s.writer = writer
	s.consuming = true
	onAttached()
	return true
}

type sessionHandles struct {
	sink      *audio.Sink
	stream    ports.RecognitionStream
	writer    ports.ArtifactWriter
	consuming bool
}

func (s *activeSession) handles() sessionHandles {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sessionHandles{sink: s.sink, stream: s.stream, writer: s.writer, consuming: s.consuming}
}

// take hands the handles to the teardown and forgets them.
func (s *activeSession) take() sessionHandles {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := sessionHandles{sink: s.sink, stream: s.stream, writer: s.writer, consuming: s.consuming}
	s.sink, s.stream, s.writer = nil, nil, nil
	return h
}
