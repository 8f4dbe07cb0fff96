package googlespeech

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"voicebubble/internal/domain"
	"voicebubble/internal/ports"
)

func TestNewProviderRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(Config{Language: "zh-CN"})
	if !errors.Is(err, domain.ErrRecognizerUnavailable) {
		t.Fatalf("expected recognizer unavailable, got %v", err)
	}
}

func TestNewProviderDefaults(t *testing.T) {
	t.Parallel()

	provider, err := NewProvider(Config{ProjectID: " demo ", Language: "zh_CN"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if provider.cfg.Location != "global" || provider.cfg.Model != "long" {
		t.Fatalf("unexpected defaults: %+v", provider.cfg)
	}
	if got := recognizerPath(provider.cfg); got != "projects/demo/locations/global/recognizers/_" {
		t.Fatalf("unexpected recognizer path %q", got)
	}
	if provider.Name() != Name || !provider.Available() {
		t.Fatalf("unexpected identity")
	}
}

func TestNewProviderRejectsUnknownLanguage(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(Config{ProjectID: "demo", Language: "klingon"})
	if !errors.Is(err, domain.ErrRecognizerUnavailable) {
		t.Fatalf("expected recognizer unavailable, got %v", err)
	}
}

func TestLanguageCode(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":      "cmn-Hans-CN",
		"zh_CN": "cmn-Hans-CN",
		"zh-TW": "cmn-Hant-TW",
		"en_us": "en-US",
		"ja-JP": "ja-JP",
	}
	for in, want := range cases {
		got, ok := languageCode(in)
		if !ok || got != want {
			t.Fatalf("languageCode(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
}

func TestConfigRequestCarriesAudioFormat(t *testing.T) {
	t.Parallel()

	req := configRequest(
		Config{ProjectID: "demo", Location: "global", Model: "long"},
		ports.StreamingConfig{SampleRate: 16000, Channels: 2, InterimResults: true},
		"cmn-Hans-CN",
	)
	streaming := req.GetStreamingConfig()
	decoding := streaming.GetConfig().GetExplicitDecodingConfig()
	if decoding.GetSampleRateHertz() != 16000 || decoding.GetAudioChannelCount() != 2 {
		t.Fatalf("unexpected decoding config: %+v", decoding)
	}
	if decoding.GetEncoding() != speechpb.ExplicitDecodingConfig_LINEAR16 {
		t.Fatalf("unexpected encoding %v", decoding.GetEncoding())
	}
	if !streaming.GetStreamingFeatures().GetInterimResults() {
		t.Fatalf("expected interim results")
	}
	if got := streaming.GetConfig().GetLanguageCodes(); len(got) != 1 || got[0] != "cmn-Hans-CN" {
		t.Fatalf("unexpected language codes %v", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if err := classify(status.Error(codes.Unavailable, "down")); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
	if err := classify(status.Error(codes.PermissionDenied, "nope")); !errors.Is(err, domain.ErrNotAuthorizedToRecognize) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	plain := errors.New("boom")
	if err := classify(plain); err != plain {
		t.Fatalf("expected passthrough, got %v", err)
	}
}

func TestSessionAccumulatesAndFinalizesOnEOF(t *testing.T) {
	t.Parallel()

	stream := newFakeStream(
		response(result("你", false)),
		response(result("你好", true)),
		response(result("世界", false)),
	)
	session := newStreamingSession(stream, func() error { return nil })

	if err := session.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	if err := session.CloseSend(); err != nil {
		t.Fatalf("close send: %v", err)
	}
	if err := session.SendAudio([]byte{3, 4}); err == nil {
		t.Fatalf("expected send after close to fail")
	}

	var events []domain.TranscriptEvent
	for event := range session.Events() {
		events = append(events, event)
	}
	if err := session.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	texts := make([]string, 0, len(events))
	for _, event := range events {
		texts = append(texts, event.Text)
	}
	if got := strings.Join(texts, "|"); got != "你|你好|你好世界|你好世界" {
		t.Fatalf("unexpected events %q", got)
	}
	if events[len(events)-1].Kind != domain.TranscriptKindFinal {
		t.Fatalf("expected final last event, got %+v", events[len(events)-1])
	}
	if stream.sentAudio() != 1 {
		t.Fatalf("expected one audio request, got %d", stream.sentAudio())
	}
}

func TestSessionReportsBackendFailure(t *testing.T) {
	t.Parallel()

	stream := newFakeStream(response(result("你", false)))
	stream.failWith = status.Error(codes.Unavailable, "gone")
	session := newStreamingSession(stream, func() error { return nil })
	_ = session.CloseSend()

	for range session.Events() {
	}
	if err := session.Wait(); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
}

func TestSessionCloseDropsPendingResults(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	closed := 0
	session := newStreamingSession(stream, func() error {
		closed++
		stream.release()
		return nil
	})

	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected one close, got %d", closed)
	}
	for event := range session.Events() {
		t.Fatalf("unexpected event after close: %+v", event)
	}
}

func response(results ...*speechpb.StreamingRecognitionResult) *speechpb.StreamingRecognizeResponse {
	return &speechpb.StreamingRecognizeResponse{Results: results}
}

func result(text string, final bool) *speechpb.StreamingRecognitionResult {
	return &speechpb.StreamingRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text}},
		IsFinal:      final,
	}
}

// fakeStream replays scripted responses, then blocks until CloseSend before
// returning io.EOF (or failWith).
type fakeStream struct {
	grpc.ClientStream

	mu        sync.Mutex
	responses []*speechpb.StreamingRecognizeResponse
	audio     int
	failWith  error
	halfDone  chan struct{}
	once      sync.Once
	aborted   chan struct{}
	abortOnce sync.Once
}

func newFakeStream(responses ...*speechpb.StreamingRecognizeResponse) *fakeStream {
	return &fakeStream{
		responses: responses,
		halfDone:  make(chan struct{}),
		aborted:   make(chan struct{}),
	}
}

func (f *fakeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(req.GetAudio()) > 0 {
		f.audio++
	}
	return nil
}

func (f *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	f.mu.Lock()
	if len(f.responses) > 0 {
		next := f.responses[0]
		f.responses = f.responses[1:]
		f.mu.Unlock()
		return next, nil
	}
	f.mu.Unlock()

	select {
	case <-f.halfDone:
	case <-f.aborted:
		return nil, status.Error(codes.Canceled, "context canceled")
	}
	if f.failWith != nil {
		return nil, f.failWith
	}
	return nil, io.EOF
}

func (f *fakeStream) CloseSend() error {
	f.once.Do(func() { close(f.halfDone) })
	return nil
}

func (f *fakeStream) release() {
	f.abortOnce.Do(func() { close(f.aborted) })
}

func (f *fakeStream) sentAudio() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audio
}
