package googlespeech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"voicebubble/internal/domain"
	"voicebubble/internal/ports"
)

const (
	Name                  = "google"
	speechAPIEndpointPort = 443
)

// Config controls Cloud Speech-to-Text v2 settings.
type Config struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
	Language        string
}

// Provider implements ports.Recognizer over Cloud Speech-to-Text v2.
type Provider struct {
	cfg Config
}

// NewProvider fails with domain.ErrRecognizerUnavailable when no project is
// configured or the locale has no Cloud Speech equivalent.
func NewProvider(cfg Config) (*Provider, error) {
	cfg.ProjectID = strings.TrimSpace(cfg.ProjectID)
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("%w: GOOGLE_CLOUD_PROJECT_ID is not configured", domain.ErrRecognizerUnavailable)
	}
	if strings.TrimSpace(cfg.Location) == "" {
		cfg.Location = "global"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "long"
	}
	if _, ok := languageCode(cfg.Language); !ok {
		return nil, fmt.Errorf("%w: unsupported language %q", domain.ErrRecognizerUnavailable, cfg.Language)
	}
	return &Provider{cfg: cfg}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Available() bool { return true }

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.RecognitionStream, error) {
	language := cfg.Language
	if language == "" {
		language = p.cfg.Language
	}
	code, ok := languageCode(language)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported language %q", domain.ErrRecognizerUnavailable, language)
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(p.cfg.CredentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: detect credentials: %v", domain.ErrNotAuthorizedToRecognize, err)
	}

	opts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if p.cfg.Location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", p.cfg.Location, speechAPIEndpointPort)))
	}

	streamCtx, cancel := context.WithCancel(ctx)
	client, err := speech.NewClient(streamCtx, opts...)
	if err != nil {
		cancel()
		return nil, classify(err)
	}
	stream, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		_ = client.Close()
		return nil, classify(err)
	}

	if err := stream.Send(configRequest(p.cfg, cfg, code)); err != nil {
		cancel()
		_ = stream.CloseSend()
		_ = client.Close()
		return nil, classify(err)
	}

	return newStreamingSession(stream, func() error {
		cancel()
		return client.Close()
	}), nil
}

func configRequest(providerCfg Config, streamCfg ports.StreamingConfig, language string) *speechpb.StreamingRecognizeRequest {
	sampleRate := streamCfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	channels := streamCfg.Channels
	if channels <= 0 {
		channels = 1
	}
	return &speechpb.StreamingRecognizeRequest{
		Recognizer: recognizerPath(providerCfg),
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Model:         providerCfg.Model,
					LanguageCodes: []string{language},
					DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
						ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
							Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
							SampleRateHertz:   int32(sampleRate),
							AudioChannelCount: int32(channels),
						},
					},
					Features: &speechpb.RecognitionFeatures{EnableAutomaticPunctuation: true},
				},
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: streamCfg.InterimResults},
			},
		},
	}
}

func recognizerPath(cfg Config) string {
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/_", cfg.ProjectID, cfg.Location)
}

// languageCode maps a POSIX-ish locale onto the BCP-47 code Cloud Speech v2
// expects.
func languageCode(locale string) (string, bool) {
	normalized := strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	switch strings.ToLower(normalized) {
	case "":
		return "cmn-Hans-CN", true
	case "zh-cn", "zh-hans", "zh-hans-cn", "cmn-hans-cn":
		return "cmn-Hans-CN", true
	case "zh-tw", "zh-hant", "zh-hant-tw", "cmn-hant-tw":
		return "cmn-Hant-TW", true
	case "zh-hk", "yue-hant-hk":
		return "yue-Hant-HK", true
	}
	parts := strings.Split(normalized, "-")
	if len(parts) != 2 || len(parts[0]) < 2 || len(parts[0]) > 3 || len(parts[1]) != 2 {
		return "", false
	}
	return strings.ToLower(parts[0]) + "-" + strings.ToUpper(parts[1]), true
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
			return fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, st.Message())
		case codes.PermissionDenied, codes.Unauthenticated:
			return fmt.Errorf("%w: %s", domain.ErrNotAuthorizedToRecognize, st.Message())
		}
	}
	return err
}

type streamingSession struct {
	stream  speechpb.Speech_StreamingRecognizeClient
	closeFn func() error

	events chan domain.TranscriptEvent
	done   chan struct{}
	stop   chan struct{}

	sendMu     sync.Mutex
	sendClosed bool

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	closeErr      error

	committed []string
	latest    string
}

func newStreamingSession(stream speechpb.Speech_StreamingRecognizeClient, closeFn func() error) *streamingSession {
	s := &streamingSession{
		stream:  stream,
		closeFn: closeFn,
		events:  make(chan domain.TranscriptEvent, 64),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	go s.receiveLoop()
	return s
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return io.ErrClosedPipe
	}
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: chunk},
	}
	if err := s.stream.Send(req); err != nil {
		return classify(err)
	}
	return nil
}

func (s *streamingSession) CloseSend() error {
	var err error
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		s.sendMu.Unlock()
		err = s.stream.CloseSend()
	})
	return err
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		_ = s.CloseSend()
		s.closeErr = s.closeFn()
	})
	<-s.done
	return s.closeErr
}

func (s *streamingSession) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *streamingSession) receiveLoop() {
	defer func() {
		close(s.events)
		close(s.done)
	}()

	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if s.stopped() {
				return
			}
			if errors.Is(err, io.EOF) {
				if text := s.utterance(); text != "" {
					s.emit(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: text})
				}
				return
			}
			if status.Code(err) == codes.Canceled {
				return
			}
			s.errMu.Lock()
			s.err = classify(err)
			s.errMu.Unlock()
			return
		}

		changed := false
		interim := make([]string, 0, len(resp.GetResults()))
		for _, result := range resp.GetResults() {
			if len(result.GetAlternatives()) == 0 {
				continue
			}
			text := strings.TrimSpace(result.GetAlternatives()[0].GetTranscript())
			if text == "" {
				continue
			}
			changed = true
			if result.GetIsFinal() {
				s.committed = append(s.committed, text)
			} else {
				interim = append(interim, text)
			}
		}
		if !changed {
			continue
		}
		s.latest = strings.Join(interim, "")
		s.emit(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: s.utterance()})
	}
}

func (s *streamingSession) utterance() string {
	return strings.Join(s.committed, "") + s.latest
}

func (s *streamingSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.stop:
	}
}
