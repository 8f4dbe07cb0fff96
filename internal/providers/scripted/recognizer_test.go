package scripted

import (
	"context"
	"errors"
	"testing"

	"voicebubble/internal/domain"
	"voicebubble/internal/ports"
)

func collect(t *testing.T, stream ports.RecognitionStream) []domain.TranscriptEvent {
	t.Helper()
	var out []domain.TranscriptEvent
	for event := range stream.Events() {
		out = append(out, event)
	}
	return out
}

func TestStreamReleasesOneResultPerFrame(t *testing.T) {
	t.Parallel()

	recognizer := New("你", "你好", "你好世界")
	stream, err := recognizer.StartStreaming(context.Background(), ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = stream.SendAudio([]byte{0, 0})
	}

	events := collect(t, stream)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %+v", events)
	}
	if events[0].Kind != domain.TranscriptKindPartial || events[2].Kind != domain.TranscriptKindFinal {
		t.Fatalf("unexpected kinds: %+v", events)
	}
	if events[2].Text != "你好世界" {
		t.Fatalf("unexpected final %q", events[2].Text)
	}
	if err := stream.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := recognizer.Streams()[0].Frames(); got != 3 {
		t.Fatalf("expected frames after the final to be refused, got %d", got)
	}
}

func TestCloseSendFlushesPendingResults(t *testing.T) {
	t.Parallel()

	recognizer := New("a", "ab")
	recognizer.FramesPerResult = 100
	stream, _ := recognizer.StartStreaming(context.Background(), ports.StreamingConfig{})
	_ = stream.CloseSend()

	events := collect(t, stream)
	if len(events) != 2 || events[1].Kind != domain.TranscriptKindFinal {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestFailWithEndsStreamWithError(t *testing.T) {
	t.Parallel()

	recognizer := New("a")
	recognizer.FailWith = errors.New("boom")
	stream, _ := recognizer.StartStreaming(context.Background(), ports.StreamingConfig{})
	_ = stream.SendAudio([]byte{1})

	events := collect(t, stream)
	if len(events) != 1 || events[0].Kind != domain.TranscriptKindPartial {
		t.Fatalf("unexpected events: %+v", events)
	}
	if err := stream.Wait(); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestCloseDropsPendingResults(t *testing.T) {
	t.Parallel()

	recognizer := New("a", "ab")
	stream, _ := recognizer.StartStreaming(context.Background(), ports.StreamingConfig{})
	_ = stream.Close()
	_ = stream.Close()

	if events := collect(t, stream); len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
	if err := stream.SendAudio([]byte{1}); err == nil {
		t.Fatalf("expected send after close to fail")
	}
	if recognizer.Streams()[0].CloseCalls() != 2 {
		t.Fatalf("expected close calls to be counted")
	}
}

func TestContextCancelClosesStream(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	recognizer := New("a")
	stream, _ := recognizer.StartStreaming(ctx, ports.StreamingConfig{})
	cancel()

	if err := stream.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestAvailabilityAndStartError(t *testing.T) {
	t.Parallel()

	recognizer := New()
	recognizer.Unavailable = true
	if recognizer.Available() {
		t.Fatalf("expected unavailable")
	}
	recognizer.StartErr = errors.New("nope")
	if _, err := recognizer.StartStreaming(context.Background(), ports.StreamingConfig{}); err == nil {
		t.Fatalf("expected start error")
	}
}
