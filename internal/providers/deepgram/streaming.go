package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"voicebubble/internal/domain"
	"voicebubble/internal/ports"
)

const Name = "deepgram"

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

// Provider implements ports.Recognizer for Deepgram.
type Provider struct {
	cfg Config
}

// NewProvider fails with domain.ErrRecognizerUnavailable when the provider
// cannot serve any session, e.g. because no API key is configured.
func NewProvider(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not configured", domain.ErrRecognizerUnavailable)
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Provider{cfg: cfg}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Available() bool { return true }

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.RecognitionStream, error) {
	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to Deepgram websocket: %v", domain.ErrBackendUnavailable, err)
	}

	session := newStreamingSession(conn)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()
	return session, nil
}

type streamingSession struct {
	conn *websocket.Conn

	events chan domain.TranscriptEvent
	audio  chan []byte
	done     chan struct{}
	stop     chan struct{}
	readDone chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool

	// committed holds finalized segments; the newest interim text is appended
	// to it so every event carries the whole utterance so far.
	committed []string
	latest    string
}

func newStreamingSession(conn *websocket.Conn) *streamingSession {
	s := &streamingSession{
		conn:     conn,
		events:   make(chan domain.TranscriptEvent, 64),
		audio:    make(chan []byte, 32),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
		readDone: make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()
	return s
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.stop:
		return errors.New("session closed")
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// CloseSend tells Deepgram no more audio follows; it flushes pending results
// and then closes the socket, which ends Events.
func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close abandons the session without waiting for pending results.
func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		_ = s.conn.Close()
		_ = s.CloseSend()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if s.stopped() {
					return
				}
				if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
					s.setErr(fmt.Errorf("failed to close stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				if !s.stopped() {
					s.setErr(fmt.Errorf("failed to send audio: %w", err))
				}
				_ = s.conn.Close()
				return
			}
		case <-s.readDone:
			return
		}
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if s.stopped() {
				return
			}
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			if s.waitErr() == nil && s.utterance() != "" {
				s.emit(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: s.utterance()})
			}
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}
		if response.IsFinal || response.SpeechFinal {
			s.committed = append(s.committed, transcript)
			s.latest = ""
		} else {
			s.latest = transcript
		}
		s.emit(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: s.utterance()})
	}
}

func (s *streamingSession) utterance() string {
	parts := append([]string(nil), s.committed...)
	if s.latest != "" {
		parts = append(parts, s.latest)
	}
	return joinSegments(parts)
}

func (s *streamingSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.stop:
	}
}

// joinSegments glues segments with a space except between CJK characters,
// which Deepgram already spaces itself when needed.
func joinSegments(parts []string) string {
	var b strings.Builder
	for _, part := range parts {
		if b.Len() > 0 && needsSpace(b.String(), part) {
			b.WriteByte(' ')
		}
		b.WriteString(part)
	}
	return b.String()
}

func needsSpace(left string, right string) bool {
	l := []rune(left)
	r := []rune(right)
	if len(l) == 0 || len(r) == 0 {
		return false
	}
	return l[len(l)-1] < 0x2E80 || r[0] < 0x2E80
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 44100
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}
	language := streamCfg.Language
	if language == "" {
		language = providerCfg.Language
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", fmt.Sprintf("%d", streamCfg.SampleRate))
	query.Set("channels", fmt.Sprintf("%d", streamCfg.Channels))
	query.Set("interim_results", fmt.Sprintf("%t", streamCfg.InterimResults))
	query.Set("smart_format", fmt.Sprintf("%t", providerCfg.SmartFormat))
	if language != "" {
		query.Set("language", language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
