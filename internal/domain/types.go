package domain

import "time"

// SessionState models the press-and-hold recording lifecycle.
type SessionState string

const (
	SessionStateIdle        SessionState = "idle"
	SessionStateAuthorizing SessionState = "authorizing"
	SessionStateCapturing   SessionState = "capturing"
	SessionStateFinalizing  SessionState = "finalizing"
	SessionStateCancelled   SessionState = "cancelled"
	SessionStateFailed      SessionState = "failed"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady             SessionStateReason = "ready"
	SessionReasonAuthorizing       SessionStateReason = "authorizing"
	SessionReasonCaptureStarted    SessionStateReason = "capture_started"
	SessionReasonCaptureRestarted  SessionStateReason = "capture_restarted"
	SessionReasonBackendFinished   SessionStateReason = "backend_finished"
	SessionReasonBackendFailed     SessionStateReason = "backend_failed"
	SessionReasonCommitted         SessionStateReason = "committed"
	SessionReasonNoTranscript      SessionStateReason = "no_transcript"
	SessionReasonDiscarded         SessionStateReason = "discarded"
	SessionReasonAuthorizationDeny SessionStateReason = "authorization_denied"
	SessionReasonStartFailed       SessionStateReason = "start_failed"
)

// TranscriptKind identifies whether a stream event is interim or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents one recognition result from a backend.
type TranscriptEvent struct {
	Kind TranscriptKind `json:"kind"`
	Text string         `json:"text"`
}

// TranscriptUpdate is what the UI subscriber sees in the transcript area.
// Error updates carry text already wrapped in the << >> marker.
type TranscriptUpdate struct {
	Text  string `json:"text"`
	Error bool   `json:"error"`
}

// AudioArtifact is a finished recording on disk.
type AudioArtifact struct {
	Path       string        `json:"path"`
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
	Samples    uint64        `json:"samples"`
	Duration   time.Duration `json:"duration"`
}

// Message is one committed chat bubble.
type Message struct {
	ID          string         `json:"id"`
	Text        string         `json:"text"`
	Audio       *AudioArtifact `json:"audio,omitempty"`
	CommittedAt time.Time      `json:"committedAt"`
}

// Status summarizes the current runtime status.
type Status struct {
	State      SessionState `json:"state"`
	Active     bool         `json:"active"`
	Transcript string       `json:"transcript,omitempty"`
	Message    string       `json:"message,omitempty"`
}
