package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"voicebubble/internal/domain"
)

// Log is the append-only message list, ordered by commit time.
type Log struct {
	mu       sync.RWMutex
	messages []domain.Message
	now      func() time.Time
}

func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append adds a committed message and returns it with its id.
func (l *Log) Append(text string, artifact *domain.AudioArtifact) domain.Message {
	msg := domain.Message{
		ID:   uuid.NewString(),
		Text: text,
	}
	if artifact != nil {
		copied := *artifact
		msg.Audio = &copied
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	msg.CommittedAt = l.now()
	l.messages = append(l.messages, msg)
	return msg
}

// List returns a copy of the messages, oldest first.
func (l *Log) List() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
