package permission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"voicebubble/internal/domain"
)

func TestGateGrantsBoth(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{recognition: true, microphone: true}
	gate := NewGate(provider, false, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if err := gate.Check(context.Background()); err != nil {
			t.Fatalf("check failed: %v", err)
		}
	}
	if provider.recognitionCalls() != 1 || provider.microphoneCalls() != 1 {
		t.Fatalf("expected grants to be cached, got %d/%d queries", provider.recognitionCalls(), provider.microphoneCalls())
	}
}

func TestGateRecognitionDenied(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{recognition: false, microphone: true}
	gate := NewGate(provider, false, zerolog.Nop())

	err := gate.Check(context.Background())
	if !errors.Is(err, domain.ErrNotAuthorizedToRecognize) {
		t.Fatalf("expected ErrNotAuthorizedToRecognize, got %v", err)
	}
	if provider.microphoneCalls() != 0 {
		t.Fatalf("microphone must not be queried after recognition denial")
	}
}

func TestGateMicrophoneDenied(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{recognition: true, microphone: false}
	gate := NewGate(provider, false, zerolog.Nop())

	err := gate.Check(context.Background())
	if !errors.Is(err, domain.ErrNotPermittedToRecord) {
		t.Fatalf("expected ErrNotPermittedToRecord, got %v", err)
	}

	_ = gate.Check(context.Background())
	if provider.microphoneCalls() != 1 {
		t.Fatalf("expected cached denial, got %d queries", provider.microphoneCalls())
	}
}

func TestGateRecheckDenied(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{recognition: true, microphone: false}
	gate := NewGate(provider, true, zerolog.Nop())

	if err := gate.Check(context.Background()); !errors.Is(err, domain.ErrNotPermittedToRecord) {
		t.Fatalf("expected denial, got %v", err)
	}

	provider.setMicrophone(true)
	if err := gate.Check(context.Background()); err != nil {
		t.Fatalf("expected grant after recheck, got %v", err)
	}
	if provider.microphoneCalls() != 2 {
		t.Fatalf("expected denial to be re-queried, got %d queries", provider.microphoneCalls())
	}
}

func TestGateProviderError(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{err: errors.New("prompt dismissed")}
	gate := NewGate(provider, false, zerolog.Nop())

	err := gate.Check(context.Background())
	if err == nil || errors.Is(err, domain.ErrNotAuthorizedToRecognize) {
		t.Fatalf("expected provider error, got %v", err)
	}

	provider.mu.Lock()
	provider.err = nil
	provider.recognition = true
	provider.microphone = true
	provider.mu.Unlock()

	if err := gate.Check(context.Background()); err != nil {
		t.Fatalf("errors must not be cached, got %v", err)
	}
}

func TestGateConcurrentChecksShareOneQuery(t *testing.T) {
	t.Parallel()

	provider := newBlockingProvider()
	gate := NewGate(provider, false, zerolog.Nop())

	const callers = 8
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { errs <- gate.Check(context.Background()) }()
	}

	<-provider.entered
	close(provider.release)
	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("caller %d: check failed: %v", i, err)
		}
	}
	if got := provider.recognitionCalls(); got != 1 {
		t.Fatalf("expected one shared recognition query, got %d", got)
	}
}

func TestGateJoinerSurvivesFirstCallerCancel(t *testing.T) {
	t.Parallel()

	provider := newBlockingProvider()
	gate := NewGate(provider, false, zerolog.Nop())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- gate.Check(firstCtx) }()
	<-provider.entered

	secondErr := make(chan error, 1)
	go func() { secondErr <- gate.Check(context.Background()) }()

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller to see its own cancellation, got %v", err)
	}

	close(provider.release)
	if err := <-secondErr; err != nil {
		t.Fatalf("expected second caller to be granted, got %v", err)
	}
	if got := provider.recognitionCalls(); got != 1 {
		t.Fatalf("expected one recognition query, got %d", got)
	}
}

func TestStaticProviderHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (StaticProvider{Recognition: true}).AuthorizeRecognition(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

type countingProvider struct {
	mu          sync.Mutex
	recognition bool
	microphone  bool
	err         error
	recCalls    int
	micCalls    int
}

func (p *countingProvider) AuthorizeRecognition(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recCalls++
	return p.recognition, p.err
}

func (p *countingProvider) AuthorizeMicrophone(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.micCalls++
	return p.microphone, p.err
}

func (p *countingProvider) setMicrophone(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.microphone = granted
}

func (p *countingProvider) recognitionCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recCalls
}

func (p *countingProvider) microphoneCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.micCalls
}

// blockingProvider grants both capabilities once release is closed.
type blockingProvider struct {
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	recCalls int
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{entered: make(chan struct{}), release: make(chan struct{})}
}

func (p *blockingProvider) AuthorizeRecognition(_ context.Context) (bool, error) {
	p.mu.Lock()
	p.recCalls++
	first := p.recCalls == 1
	p.mu.Unlock()
	if first {
		close(p.entered)
	}
	<-p.release
	return true, nil
}

func (p *blockingProvider) AuthorizeMicrophone(_ context.Context) (bool, error) {
	return true, nil
}

func (p *blockingProvider) recognitionCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recCalls
}
