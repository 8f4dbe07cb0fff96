package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the recognition error taxonomy.
type ErrorCode string

const (
	ErrorCodeRecognizerUnavailable    ErrorCode = "recognizer_unavailable"
	ErrorCodeNotAuthorizedToRecognize ErrorCode = "not_authorized_to_recognize"
	ErrorCodeNotPermittedToRecord     ErrorCode = "not_permitted_to_record"
	ErrorCodeBackendUnavailable       ErrorCode = "backend_unavailable"
	ErrorCodeBackend                  ErrorCode = "backend"
)

var (
	ErrRecognizerUnavailable    = &RecognizerError{Code: ErrorCodeRecognizerUnavailable}
	ErrNotAuthorizedToRecognize = &RecognizerError{Code: ErrorCodeNotAuthorizedToRecognize}
	ErrNotPermittedToRecord     = &RecognizerError{Code: ErrorCodeNotPermittedToRecord}
	ErrBackendUnavailable       = &RecognizerError{Code: ErrorCodeBackendUnavailable}
)

// RecognizerError is one of the fixed, user-presentable failure kinds.
type RecognizerError struct {
	Code ErrorCode
}

func (e *RecognizerError) Error() string {
	return string(e.Code)
}

// Is matches on code so wrapped copies compare equal to the sentinels.
func (e *RecognizerError) Is(target error) bool {
	var other *RecognizerError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// BackendError wraps any other failure reported by a recognition backend.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("recognition backend error: %v", e.Err)
	}
	return fmt.Sprintf("%s backend error: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Code classifies err into the error taxonomy.
func Code(err error) ErrorCode {
	var recognizerErr *RecognizerError
	if errors.As(err, &recognizerErr) {
		return recognizerErr.Code
	}
	return ErrorCodeBackend
}

// UserMessage renders err the way it is shown in the transcript area.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch Code(err) {
	case ErrorCodeRecognizerUnavailable:
		return "无法初始化语音识别器"
	case ErrorCodeNotAuthorizedToRecognize:
		return "未授权语音识别"
	case ErrorCodeNotPermittedToRecord:
		return "未授权录音"
	case ErrorCodeBackendUnavailable:
		return "语音识别器不可用"
	}
	var backendErr *BackendError
	if errors.As(err, &backendErr) && backendErr.Err != nil {
		return backendErr.Err.Error()
	}
	return err.Error()
}

// ErrorTranscript wraps a user message in the marker that separates errors
// from genuine transcripts.
func ErrorTranscript(err error) TranscriptUpdate {
	return TranscriptUpdate{Text: "<< " + UserMessage(err) + " >>", Error: true}
}
