package validation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOMRTimeout is returned when the recognizer exceeds its time budget.
	ErrOMRTimeout = errors.New("omr timed out")
	// ErrUnsupportedFile rejects uploads whose extension no strategy accepts.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrUnreadableImage means the upload (or its rendered page) is not a
	// decodable image. It describes the input, not the server.
	ErrUnreadableImage = errors.New("unreadable image")
)

// OMRExecutionError reports a recognizer run that did not complete normally.
type OMRExecutionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *OMRExecutionError) Error() string {
	msg := fmt.Sprintf("omr failed (exit %d)", e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + truncate(s, 512)
	}
	return msg
}

func (e *OMRExecutionError) Unwrap() error { return e.Err }

// ConfigurationError means a required setting is missing. It is a server
// fault, never a verdict about the upload.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing configuration: " + strings.Join(e.Missing, ", ")
}
