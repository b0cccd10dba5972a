package store

import (
	stderrors "errors"
	"fmt"
)

// Kind enumerates the closed error taxonomy of the store. Every public
// operation reports failures through exactly these kinds; native errors of
// the relational engine, the JSON codec, and integer parsing are folded in,
// deliberately trading their detail for a uniform surface.
type Kind int

const (
	DatabaseError Kind = iota + 1
	NotFound
	JsonError
	EnvVarError
	IntError
	MessageExists
)

func (k Kind) String() string {
	switch k {
	case DatabaseError:
		return "DatabaseError"
	case NotFound:
		return "NotFound"
	case JsonError:
		return "JsonError"
	case EnvVarError:
		return "EnvVarError"
	case IntError:
		return "IntError"
	case MessageExists:
		return "MessageExists"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a failure of a store operation, classified by Kind.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ErrorKind extracts the Kind of |err|, or zero if it is not a store Error.
func ErrorKind(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsNotFound is true if |err| is a NotFound store Error.
func IsNotFound(err error) bool { return ErrorKind(err) == NotFound }

// IsMessageExists is true if |err| is a MessageExists store Error.
func IsMessageExists(err error) bool { return ErrorKind(err) == MessageExists }

func databaseErr(err error) *Error {
	return newError(DatabaseError, "%v", err)
}

func jsonErr(err error) *Error {
	return newError(JsonError, "data store json error: %v", err)
}

func intErr(err error) *Error {
	return newError(IntError, "data store int error: %v", err)
}

func envVarErr(name string) *Error {
	return newError(EnvVarError, "data store env var error: %s is not set", name)
}
