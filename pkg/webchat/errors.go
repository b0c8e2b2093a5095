package webchat

import (
	"github.com/pkg/errors"
)

// Kind classifies gateway failures independently of the transport.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindSessionNotFound
	KindSessionEnded
	KindUpstreamInference
	// KindCanceled means the caller went away before the work finished.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSessionNotFound:
		return "session_not_found"
	case KindSessionEnded:
		return "session_ended"
	case KindUpstreamInference:
		return "upstream_inference"
	case KindCanceled:
		return "canceled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a classified gateway error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Msg == "" {
			return e.Err.Error()
		}
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func ValidationError(msg string) error { return newError(KindValidation, msg, nil) }

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindInternal
}
