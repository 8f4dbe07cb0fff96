package chat

import (
	"github.com/rs/zerolog"

	"voicebubble/internal/domain"
	"voicebubble/internal/ports"
)

// Listener is the view layer behind a Feed.
type Listener interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	TranscriptUpdated(update domain.TranscriptUpdate)
	MessageAppended(msg domain.Message)
}

// Feed subscribes the message list to a recognition session: committed
// results become messages, everything is passed on to the listener.
type Feed struct {
	log      *Log
	listener Listener
	logger   zerolog.Logger
}

var _ ports.EventSink = (*Feed)(nil)

// NewFeed accepts a nil listener.
func NewFeed(log *Log, listener Listener, logger zerolog.Logger) *Feed {
	return &Feed{log: log, listener: listener, logger: logger.With().Str("component", "chat").Logger()}
}

func (f *Feed) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if f.listener != nil {
		f.listener.SessionStateChanged(state, reason)
	}
}

func (f *Feed) TranscriptUpdated(update domain.TranscriptUpdate) {
	if f.listener != nil {
		f.listener.TranscriptUpdated(update)
	}
}

func (f *Feed) MessageCommitted(text string, artifact *domain.AudioArtifact) {
	msg := f.log.Append(text, artifact)
	event := f.logger.Info().Str("id", msg.ID).Int("runes", len([]rune(text)))
	if msg.Audio != nil {
		event = event.Str("audio", msg.Audio.Path).Dur("duration", msg.Audio.Duration)
	}
	event.Msg("message committed")
	if f.listener != nil {
		f.listener.MessageAppended(msg)
	}
}
