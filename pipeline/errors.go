package pipeline

import (
	"fmt"
	"time"
)

// Error is pipeline's wrapped-error type, grounded on
// context/conversation.go's ConversationError.
type Error struct {
	PipelineID string
	Operation  string
	Message    string
	Err        error
	Timestamp  time.Time
}

func newError(pipelineID, operation, message string, err error) *Error {
	return &Error{PipelineID: pipelineID, Operation: operation, Message: message, Err: err, Timestamp: time.Now()}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline[%s].%s: %s: %v", e.PipelineID, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("pipeline[%s].%s: %s", e.PipelineID, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }
