package logging

import (
	"errors"
	"strings"
)

// StageError records which step of a request failed, such as
// "pipeline.enhance" or "service.rate".
type StageError struct {
	Stage     string
	RequestID string
	Err       error
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Stage)
	if e.RequestID != "" {
		b.WriteString(" [")
		b.WriteString(e.RequestID)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }

// WrapStage tags err with stage. Errors already tagged keep their innermost
// stage, and a nil err stays nil.
func WrapStage(stage, requestID string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, RequestID: requestID, Err: err}
}

// StageOf reports the stage err was tagged with, or "" if it was never tagged.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
