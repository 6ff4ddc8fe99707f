// Package merr extends the standard errors package with the call-site frame
// at which an error was created and context annotations, along with a Kind
// classification
// used by the command dispatcher to decide how to respond to a failure.
//
// As with the standard library, errors.Is and errors.As should be used for
// equality checking; Error implements Unwrap so both work against the
// wrapped error.
package merr

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/redikit/redikit/mctx"
)

// Kind classifies an Error so callers (in particular the dispatcher) can
// decide whether to reply with a RESP error and keep the connection alive,
// or tear the connection down.
type Kind int

const (
	// KindUnknown is the zero Kind, used for errors which didn't originate
	// from this package's constructors.
	KindUnknown Kind = iota
	// KindArity indicates a command was called with the wrong number of
	// arguments.
	KindArity
	// KindProtocol indicates malformed RESP was received from a client; the
	// connection should be closed.
	KindProtocol
	// KindSemantic indicates a command was well-formed but its arguments or
	// the current state don't allow it to succeed (e.g. INCR on a
	// non-numeric string).
	KindSemantic
	// KindUnsupported indicates the command name wasn't recognized, or isn't
	// usable given the connection's current mode (e.g. most commands while
	// subscribed).
	KindUnsupported
	// KindReplication indicates a step of the replica handshake failed.
	// Fatal on startup.
	KindReplication
	// KindIO indicates a socket error occurred mid-request or mid-reply; the
	// connection should be dropped and all per-connection state unwound.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindArity:
		return "ArityError"
	case KindProtocol:
		return "ProtocolError"
	case KindSemantic:
		return "SemanticError"
	case KindUnsupported:
		return "UnsupportedCommand"
	case KindReplication:
		return "ReplicationFailure"
	case KindIO:
		return "IoFailure"
	default:
		return "Error"
	}
}

// Error wraps an error with a Kind, a stacktrace frame, and any context
// annotations present on the Context it was created with.
type Error struct {
	Err   error
	Kind  Kind
	Ctx   context.Context
	frame runtime.Frame
}

// Error implements the error interface.
func (e Error) Error() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(e.Err.Error()))

	for k, v := range mctx.Get(e.Ctx) {
		fmt.Fprintf(&sb, " [%s=%s]", k, v)
	}
	return sb.String()
}

// Unwrap implements the interface errors.Unwrap expects.
func (e Error) Unwrap() error {
	return e.Err
}

func frame(skip int) runtime.Frame {
	pc := make([]uintptr, 1)
	n := runtime.Callers(skip+2, pc)
	if n == 0 {
		return runtime.Frame{}
	}
	f, _ := runtime.CallersFrames(pc[:n]).Next()
	return f
}

// Loc renders the file:line at which this Error was constructed, e.g.
// "store/store.go:42".
func (e Error) Loc() string {
	if e.frame.File == "" {
		return ""
	}
	dir := filepath.Base(filepath.Dir(e.frame.File))
	return fmt.Sprintf("%s/%s:%d", dir, filepath.Base(e.frame.File), e.frame.Line)
}

// Wrap annotates err with ctx and a Kind, capturing the call site. Wrapping
// nil returns nil. If err is already a merr.Error its Kind is preserved
// unless overridden by a non-zero kind.
func Wrap(ctx context.Context, kind Kind, err error) error {
	if err == nil {
		return nil
	}

	var existing Error
	if errors.As(err, &existing) {
		if kind == KindUnknown {
			kind = existing.Kind
		}
		return Error{Err: existing.Err, Kind: kind, Ctx: ctx, frame: existing.frame}
	}

	return Error{Err: err, Kind: kind, Ctx: ctx, frame: frame(1)}
}

// New constructs a new Error of the given Kind from a message string.
func New(ctx context.Context, kind Kind, msg string) error {
	return Error{Err: errors.New(msg), Kind: kind, Ctx: ctx, frame: frame(1)}
}

// KindOf returns the Kind of err if it (or something it wraps) is a
// merr.Error, or KindUnknown otherwise.
func KindOf(err error) Kind {
	var e Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
