package gesture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultLongPress = 500 * time.Millisecond

// Button labels.
const (
	HintIdle      = "按住说话"
	HintListening = "松手发送，上移取消"
	HintCancel    = "松手取消"
)

// Session is the part of the recognition session the gesture drives.
type Session interface {
	Begin(ctx context.Context) error
	Commit()
	Cancel()
}

// State is what the button shows.
type State struct {
	Listening       bool    `json:"listening"`
	CancelRequested bool    `json:"cancelRequested"`
	Offset          float64 `json:"offset"`
	Hint            string  `json:"hint"`
}

type phase int

const (
	phaseIdle phase = iota
	phasePressed
	phaseListening
)

// PressHoldController turns press, drag and release into session begin,
// commit and cancel. Session calls run in order on one worker goroutine so a
// release can never overtake the begin it ends.
type PressHoldController struct {
	session   Session
	threshold time.Duration
	observer  func(State)
	log       zerolog.Logger

	mu              sync.Mutex
	phase           phase
	press           uint64
	timer           *time.Timer
	offset          float64
	cancelRequested bool
	beginCancel     context.CancelFunc

	actions   chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewPressHoldController starts the worker. observer, if set, receives every
// visual state change and must not call back into the controller.
func NewPressHoldController(session Session, threshold time.Duration, observer func(State), log zerolog.Logger) *PressHoldController {
	if threshold <= 0 {
		threshold = DefaultLongPress
	}
	c := &PressHoldController{
		session:   session,
		threshold: threshold,
		observer:  observer,
		log:       log.With().Str("component", "gesture").Logger(),
		actions:   make(chan func(), 16),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *PressHoldController) run() {
	defer close(c.done)
	for {
		select {
		case action := <-c.actions:
			action()
		case <-c.quit:
			return
		}
	}
}

func (c *PressHoldController) enqueue(action func()) {
	select {
	case c.actions <- action:
	case <-c.quit:
	}
}

// PointerDown arms the long-press timer.
func (c *PressHoldController) PointerDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != phaseIdle {
		return
	}
	c.phase = phasePressed
	c.press++
	press := c.press
	c.timer = time.AfterFunc(c.threshold, func() { c.longPressFired(press) })
}

func (c *PressHoldController) longPressFired(press uint64) {
	c.mu.Lock()
	if c.press != press || c.phase != phasePressed {
		c.mu.Unlock()
		return
	}
	state := c.startListeningLocked()
	c.mu.Unlock()
	c.notify(state)
}

// LongPress starts listening right away, for hosts that recognize the long
// press themselves.
func (c *PressHoldController) LongPress() {
	c.mu.Lock()
	if c.phase == phaseListening {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.press++
	state := c.startListeningLocked()
	c.mu.Unlock()
	c.notify(state)
}

func (c *PressHoldController) startListeningLocked() State {
	c.phase = phaseListening
	c.timer = nil
	ctx, cancel := context.WithCancel(context.Background())
	c.beginCancel = cancel
	c.enqueue(func() {
		if err := c.session.Begin(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn().Err(err).Msg("recording did not start")
		}
	})
	return c.stateLocked()
}

// PointerMove tracks the vertical offset from the press origin. Anything
// above the origin requests cancellation.
func (c *PressHoldController) PointerMove(y float64) {
	c.mu.Lock()
	if c.phase == phaseIdle {
		c.mu.Unlock()
		return
	}
	c.offset = y
	c.cancelRequested = y < 0
	state := c.stateLocked()
	listening := c.phase == phaseListening
	c.mu.Unlock()
	if listening {
		c.notify(state)
	}
}

// PointerUp ends the gesture. A release before the long press fired never
// reaches the session.
func (c *PressHoldController) PointerUp() {
	c.mu.Lock()
	switch c.phase {
	case phaseIdle:
		c.mu.Unlock()
		return
	case phasePressed:
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.press++
		c.phase = phaseIdle
		c.offset = 0
		c.cancelRequested = false
		c.mu.Unlock()
		return
	}

	cancelled := c.cancelRequested
	beginCancel := c.beginCancel
	c.beginCancel = nil
	c.phase = phaseIdle
	c.offset = 0
	c.cancelRequested = false
	state := c.stateLocked()
	c.mu.Unlock()

	// A begin still waiting on authorization is abandoned.
	if beginCancel != nil {
		beginCancel()
	}
	if cancelled {
		c.enqueue(c.session.Cancel)
	} else {
		c.enqueue(c.session.Commit)
	}
	c.notify(state)
}

// State returns the current visual state.
func (c *PressHoldController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Hint returns the button label for the current state.
func (c *PressHoldController) Hint() string {
	return c.State().Hint
}

// Close stops the worker after the queued session calls ran.
func (c *PressHoldController) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.timer != nil {
			c.timer.Stop()
		}
		if c.beginCancel != nil {
			c.beginCancel()
		}
		c.mu.Unlock()

		flushed := make(chan struct{})
		c.enqueue(func() { close(flushed) })
		<-flushed
		close(c.quit)
		<-c.done
	})
}

func (c *PressHoldController) stateLocked() State {
	state := State{
		Listening:       c.phase == phaseListening,
		CancelRequested: c.phase == phaseListening && c.cancelRequested,
		Offset:          c.offset,
		Hint:            HintIdle,
	}
	if state.Listening {
		state.Hint = HintListening
		if state.CancelRequested {
			state.Hint = HintCancel
		}
	}
	return state
}

func (c *PressHoldController) notify(state State) {
	if c.observer != nil {
		c.observer(state)
	}
}
