// Package pkgerrors defines the behavioral error taxonomy of §7: each
// kind maps to an HTTP status at the API boundary and to a specific
// streamed chunk type inside a flow. Individual packages construct
// *Error values rather than exporting their own ad-hoc error structs,
// so the server and flow engine can classify any error uniformly.
package pkgerrors

import "fmt"

// Kind is the taxonomy tag.
type Kind string

const (
	KindConfig          Kind = "config"           // invalid/missing agent/flow/tool/MCP record
	KindRouting         Kind = "routing"          // selected agent/tool not found
	KindDependency      Kind = "dependency"        // LLM/embedding/MCP call failed or timed out
	KindExecution       Kind = "execution"         // tool raised or returned a soft failure
	KindPlannerRetryable Kind = "planner_retryable" // recoverable failure inside a planned sub-node
	KindDataShape       Kind = "data_shape"        // LLM produced unparseable JSON where JSON was required
	KindConsistency     Kind = "consistency"       // snapshot corrupt/missing; treated as "no snapshot"
)

// Error is a typed, wrapped error carrying the component/operation it
// originated from, matching context/conversation.go's ConversationError
// shape generalized across packages.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Component, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a taxonomy error.
func New(kind Kind, component, operation, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Message: message, Err: err}
}

// HTTPStatus maps a Kind to the status code the §7 taxonomy specifies.
func HTTPStatus(err error) int {
	var pe *Error
	if !asError(err, &pe) {
		return 500
	}
	switch pe.Kind {
	case KindConfig:
		return 400
	case KindRouting:
		return 404
	case KindDependency, KindExecution, KindPlannerRetryable, KindDataShape, KindConsistency:
		return 500
	default:
		return 500
	}
}

func asError(err error, target **Error) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
