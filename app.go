package main

import (
	"context"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicebubble/internal/bootstrap"
	"voicebubble/internal/domain"
	"voicebubble/internal/gesture"
)

const (
	eventSession    = "voicebubble:session"
	eventTranscript = "voicebubble:transcript"
	eventMessage    = "voicebubble:message"
	eventGesture    = "voicebubble:gesture"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	ready    bool
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionStateChanged(domain.SessionStateFailed, domain.SessionReasonStartFailed)
		return
	}
	a.services = services
	a.ready = true
	a.GestureChanged(services.Gesture.State())
}

func (a *App) shutdown(context.Context) {
	if !a.ready {
		return
	}
	_ = a.services.Close()
}

// PointerDown starts the long-press timer on the talk button.
func (a *App) PointerDown() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Gesture.PointerDown()
	return nil
}

// PointerMove reports the pointer position relative to the button's top edge.
func (a *App) PointerMove(y float64) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Gesture.PointerMove(y)
	return nil
}

// PointerUp ends the gesture, committing or cancelling the recording.
func (a *App) PointerUp() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Gesture.PointerUp()
	return nil
}

// LongPress starts recording for hosts that detect the long press themselves.
func (a *App) LongPress() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Gesture.LongPress()
	return nil
}

// GetMessages returns the committed chat bubbles, oldest first.
func (a *App) GetMessages() []domain.Message {
	if !a.ready {
		return []domain.Message{}
	}
	return a.services.Messages.List()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if !a.ready {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateFailed, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle}
	}
	return a.services.Session.Status()
}

// GetGestureState returns the talk button state.
func (a *App) GetGestureState() gesture.State {
	if !a.ready {
		return gesture.State{Hint: gesture.HintIdle}
	}
	return a.services.Gesture.State()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if !a.ready {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"recognizer":       cfg.Recognizer,
		"locale":           cfg.Locale,
		"capture":          cfg.Audio.Capture,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"recordings":       a.services.RecordingsDir,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if !a.ready {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.emit(eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// TranscriptUpdated emits the live transcript area contents.
func (a *App) TranscriptUpdated(update domain.TranscriptUpdate) {
	a.emit(eventTranscript, update)
}

// MessageAppended emits a newly committed chat bubble.
func (a *App) MessageAppended(message domain.Message) {
	a.emit(eventMessage, message)
}

// GestureChanged emits the talk button state and hint.
func (a *App) GestureChanged(state gesture.State) {
	a.emit(eventGesture, state)
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return gesture.HintIdle
	case domain.SessionReasonAuthorizing:
		return "正在请求权限"
	case domain.SessionReasonCaptureStarted:
		return "正在录音"
	case domain.SessionReasonCaptureRestarted:
		return "重新录音，上一段已丢弃"
	case domain.SessionReasonBackendFinished:
		return "识别已结束"
	case domain.SessionReasonBackendFailed:
		return "识别失败"
	case domain.SessionReasonCommitted:
		return "已发送"
	case domain.SessionReasonNoTranscript:
		return "未识别到内容"
	case domain.SessionReasonDiscarded:
		return "已取消"
	case domain.SessionReasonAuthorizationDeny:
		return "未获得授权"
	case domain.SessionReasonStartFailed:
		return "无法开始录音"
	default:
		return ""
	}
}
