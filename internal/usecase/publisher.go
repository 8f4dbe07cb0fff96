package usecase

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"voicebubble/internal/domain"
	"voicebubble/internal/ports"
)

const publisherQueueDepth = 256

// sessionView is what one session has published so far.
type sessionView struct {
	transcript domain.TranscriptUpdate
	artifact   *domain.AudioArtifact
}

// publisher is the single goroutine that owns the published transcript and
// artifacts and makes every EventSink call. Producers enqueue operations; a
// result for a session that was committed or discarded finds no view and is
// dropped.
type publisher struct {
	events    ports.EventSink
	artifacts ports.ArtifactStore
	log       zerolog.Logger

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by run.
	state   domain.SessionState
	shown   uint64
	display domain.TranscriptUpdate
	views   map[uint64]*sessionView
}

func newPublisher(events ports.EventSink, artifacts ports.ArtifactStore, log zerolog.Logger) *publisher {
	p := &publisher{
		events:    events,
		artifacts: artifacts,
		log:       log,
		ops:       make(chan func(), publisherQueueDepth),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		state:     domain.SessionStateIdle,
		views:     make(map[uint64]*sessionView),
	}
	go p.run()
	return p
}

func (p *publisher) run() {
	defer close(p.done)
	for {
		select {
		case op := <-p.ops:
			op()
		case <-p.quit:
			for {
				select {
				case op := <-p.ops:
					op()
				default:
					return
				}
			}
		}
	}
}

func (p *publisher) do(op func()) {
	select {
	case p.ops <- op:
	case <-p.done:
	}
}

// close runs what is queued and stops the goroutine.
func (p *publisher) close() {
	p.closeOnce.Do(func() { close(p.quit) })
	<-p.done
}

// open starts a session view and makes it the one shown.
func (p *publisher) open(id uint64) {
	p.do(func() {
		p.views[id] = &sessionView{}
		p.shown = id
		p.show(domain.TranscriptUpdate{})
	})
}

// text replaces the session's transcript.
func (p *publisher) text(id uint64, text string) {
	p.do(func() {
		view := p.views[id]
		if view == nil {
			return
		}
		view.transcript = domain.TranscriptUpdate{Text: text}
		if p.shown == id {
			p.show(view.transcript)
		}
	})
}

func (p *publisher) fail(id uint64, err error) {
	p.do(func() {
		view := p.views[id]
		if view == nil {
			return
		}
		view.transcript = domain.ErrorTranscript(err)
		if p.shown == id {
			p.show(view.transcript)
		}
	})
}

// report shows an error that belongs to no session.
func (p *publisher) report(err error) {
	p.do(func() {
		p.show(domain.ErrorTranscript(err))
	})
}

// stash keeps the finished recording until the session is committed or
// discarded.
func (p *publisher) stash(id uint64, artifact domain.AudioArtifact) {
	p.do(func() {
		view := p.views[id]
		if view == nil {
			p.discardArtifact(&artifact)
			return
		}
		p.discardArtifact(view.artifact)
		view.artifact = &artifact
	})
}

// commit hands a non-empty, non-error transcript and its recording to the
// subscriber. Anything else is dropped along with the recording.
func (p *publisher) commit(id uint64) {
	p.do(func() {
		view := p.views[id]
		if view == nil {
			return
		}
		delete(p.views, id)

		reason := domain.SessionReasonCommitted
		if view.transcript.Error || strings.TrimSpace(view.transcript.Text) == "" {
			p.discardArtifact(view.artifact)
			reason = domain.SessionReasonNoTranscript
		} else {
			p.events.MessageCommitted(view.transcript.Text, view.artifact)
		}

		if p.shown == id {
			p.show(domain.TranscriptUpdate{})
			p.applyState(domain.SessionStateIdle, reason)
		}
	})
}

// discard drops the session's transcript and recording.
func (p *publisher) discard(id uint64) {
	p.do(func() {
		view := p.views[id]
		if view == nil {
			return
		}
		delete(p.views, id)
		p.discardArtifact(view.artifact)
		if p.shown == id {
			p.show(domain.TranscriptUpdate{})
		}
	})
}

// retire forgets the session but leaves whatever it shows on screen.
func (p *publisher) retire(id uint64) {
	p.do(func() {
		view := p.views[id]
		if view == nil {
			return
		}
		delete(p.views, id)
		p.discardArtifact(view.artifact)
	})
}

// dismiss clears what a finished session left on screen, such as the error of
// a cycle that never started. A live session's transcript is kept.
func (p *publisher) dismiss() {
	p.do(func() {
		if p.views[p.shown] != nil {
			return
		}
		p.show(domain.TranscriptUpdate{})
	})
}

// setState is ignored unless the session is the one shown.
func (p *publisher) setState(id uint64, state domain.SessionState, reason domain.SessionStateReason) {
	p.do(func() {
		if p.shown != id {
			return
		}
		p.applyState(state, reason)
	})
}

func (p *publisher) status() domain.Status {
	reply := make(chan domain.Status, 1)
	p.do(func() {
		status := domain.Status{State: p.state, Active: p.state != domain.SessionStateIdle}
		if p.display.Error {
			status.Message = p.display.Text
		} else {
			status.Transcript = p.display.Text
		}
		reply <- status
	})
	select {
	case status := <-reply:
		return status
	case <-p.done:
		return domain.Status{State: domain.SessionStateIdle}
	}
}

func (p *publisher) show(update domain.TranscriptUpdate) {
	if update == p.display {
		return
	}
	p.display = update
	p.events.TranscriptUpdated(update)
}

func (p *publisher) applyState(state domain.SessionState, reason domain.SessionStateReason) {
	p.state = state
	p.log.Debug().Str("state", string(state)).Str("reason", string(reason)).Msg("session state changed")
	p.events.SessionStateChanged(state, reason)
}

func (p *publisher) discardArtifact(artifact *domain.AudioArtifact) {
	if artifact == nil || p.artifacts == nil {
		return
	}
	if err := p.artifacts.Discard(artifact.Path); err != nil {
		p.log.Warn().Err(err).Str("path", artifact.Path).Msg("failed to discard recording")
	}
}
