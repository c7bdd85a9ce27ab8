package pipeline

import (
	"log/slog"
	"slices"
)

type ErrorType string

const (
	ErrorTypeConfig     ErrorType = "config_error"
	ErrorTypeFileIO     ErrorType = "file_io_error"
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeTransform  ErrorType = "transform_error"
	ErrorTypeUpload     ErrorType = "upload_error"
)

// Error is a failed stage of a run. Attrs name what the stage was working on, such as
// an input path or a dataset.
type Error struct {
	Type    ErrorType
	Stage   string
	Message string
	Cause   error
	Attrs   []slog.Attr
}

func NewError(errType ErrorType, stage, message string, cause error) *Error {
	return &Error{Type: errType, Stage: stage, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Stage + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext returns a copy of e with one more attribute. e itself is unchanged.
func (e *Error) WithContext(key string, value any) *Error {
	out := *e
	out.Attrs = append(slices.Clip(e.Attrs), slog.Any(key, value))
	return &out
}

// LogAttrs returns the error as slog attributes: type, stage and message first, then
// the stage attributes, then the cause.
func (e *Error) LogAttrs() []any {
	attrs := make([]any, 0, len(e.Attrs)+4)
	attrs = append(attrs,
		slog.String("error_type", string(e.Type)),
		slog.String("stage", e.Stage),
		slog.String("error", e.Message),
	)
	for _, a := range e.Attrs {
		attrs = append(attrs, a)
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}
	return attrs
}
