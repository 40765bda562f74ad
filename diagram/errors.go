package diagram

import "errors"

// errors.go provides all custom error values for the diagram package
//
// error type checking:
//   an error can be checked if it is any of these using errors.Is(err, ErrType)
//
// None of these terminate a session or the process. All of them except
// ErrStaleBoundsReply surface to the originating client as a serverStatus
// action with severity error; a stale bounds reply is silently discarded.

var (
	ErrUnknownActionKind = errors.New("unknown action kind")
	ErrUnknownSession    = errors.New("unknown session")
	ErrUnknownRequestId  = errors.New("unknown request id")

	ErrStaleBoundsReply = errors.New("stale bounds reply")

	ErrOperationNotPermitted   = errors.New("operation not permitted")
	ErrInvalidElementReference = errors.New("invalid element reference")
)

// machine-readable codes carried on serverStatus actions
const (
	CodeUnknownActionKind       = "unknownActionKind"
	CodeUnknownSession          = "unknownSession"
	CodeUnknownRequestId        = "unknownRequestId"
	CodeOperationNotPermitted   = "operationNotPermitted"
	CodeInvalidElementReference = "invalidElementReference"
	CodeSaveFailed              = "saveFailed"
)

func statusCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownActionKind):
		return CodeUnknownActionKind
	case errors.Is(err, ErrUnknownSession):
		return CodeUnknownSession
	case errors.Is(err, ErrUnknownRequestId):
		return CodeUnknownRequestId
	case errors.Is(err, ErrOperationNotPermitted):
		return CodeOperationNotPermitted
	case errors.Is(err, ErrInvalidElementReference):
		return CodeInvalidElementReference
	default:
		return ""
	}
}
