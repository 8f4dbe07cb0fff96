package usecase

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voicebubble/internal/artifact"
	"voicebubble/internal/audio"
	"voicebubble/internal/domain"
	"voicebubble/internal/permission"
	"voicebubble/internal/ports"
	"voicebubble/internal/providers/scripted"
)

type stateEvent struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type committedMessage struct {
	text     string
	artifact *domain.AudioArtifact
}

type fakeEventSink struct {
	mu       sync.Mutex
	states   []stateEvent
	updates  []domain.TranscriptUpdate
	messages []committedMessage
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) TranscriptUpdated(update domain.TranscriptUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
}

func (f *fakeEventSink) MessageCommitted(text string, artifact *domain.AudioArtifact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, committedMessage{text: text, artifact: artifact})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotUpdates() []domain.TranscriptUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TranscriptUpdate, len(f.updates))
	copy(out, f.updates)
	return out
}

func (f *fakeEventSink) snapshotMessages() []committedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]committedMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *fakeEventSink) sawState(state domain.SessionState, reason domain.SessionStateReason) bool {
	for _, got := range f.snapshotStates() {
		if got.state == state && (reason == "" || got.reason == reason) {
			return true
		}
	}
	return false
}

func (f *fakeEventSink) sawText(text string) bool {
	for _, got := range f.snapshotUpdates() {
		if got.Text == text {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	session    *RecognitionSession
	capture    *audio.FakeCapture
	recognizer *scripted.Recognizer
	events     *fakeEventSink
	dir        string
}

type harnessOptions struct {
	frames     int
	gate       ports.PermissionChecker
	recognizer *scripted.Recognizer
	cfg        Config
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	dir := t.TempDir()
	store, err := artifact.NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	frames := make([][]byte, opts.frames)
	for i := range frames {
		frames[i] = make([]byte, 2048)
	}
	capture := audio.NewFakeCapture(frames, 0)

	gate := opts.gate
	if gate == nil {
		gate = permission.NewGate(permission.StaticProvider{Recognition: true, Microphone: true}, false, zerolog.Nop())
	}
	recognizer := opts.recognizer
	if recognizer == nil {
		recognizer = scripted.New("你", "你好", "你好世界")
	}
	events := &fakeEventSink{}

	session := NewRecognitionSession(gate, capture, recognizer, store, events, zerolog.Nop(), opts.cfg)
	t.Cleanup(session.Close)

	return &harness{session: session, capture: capture, recognizer: recognizer, events: events, dir: dir}
}

func (h *harness) recordings(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

// blockingGate holds authorization until the context ends.
type blockingGate struct {
	entered chan struct{}
	once    sync.Once
}

func newBlockingGate() *blockingGate {
	return &blockingGate{entered: make(chan struct{})}
}

func (g *blockingGate) Check(ctx context.Context) error {
	g.once.Do(func() { close(g.entered) })
	<-ctx.Done()
	return ctx.Err()
}
