package der

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a decode failure.
type Kind int

const (
	// KindTruncatedInput indicates a declared length runs past the end of the buffer.
	KindTruncatedInput Kind = iota + 1
	// KindMalformedEncoding indicates invalid tag, length, or value syntax.
	KindMalformedEncoding
	// KindUnsupportedEncoding indicates valid BER that this decoder does not accept,
	// such as indefinite lengths or constructed strings.
	KindUnsupportedEncoding
	// KindUnexpectedTag indicates a grammar mismatch at a required position.
	KindUnexpectedTag
	// KindInvalidTimeFormat indicates a UTCTime or GeneralizedTime that does not
	// match the fixed-width DER profile.
	KindInvalidTimeFormat
	// KindUnknownAlgorithm indicates an unrecognized OID where an algorithm is required.
	KindUnknownAlgorithm
	// KindInvalidValue indicates a well-formed encoding whose value breaks a
	// structural rule of the enclosing format.
	KindInvalidValue
)

var kindNames = map[Kind]string{
	KindTruncatedInput:      "truncated input",
	KindMalformedEncoding:   "malformed encoding",
	KindUnsupportedEncoding: "unsupported encoding",
	KindUnexpectedTag:       "unexpected tag",
	KindInvalidTimeFormat:   "invalid time format",
	KindUnknownAlgorithm:    "unknown algorithm",
	KindInvalidValue:        "invalid value",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the error type returned by every decoder in this module. Field is
// a dotted path naming the grammar position that failed.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same Kind, so errors.Is(err, ErrTruncatedInput)
// works regardless of field or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is. They carry no field or message.
var (
	ErrTruncatedInput      = &Error{Kind: KindTruncatedInput}
	ErrMalformedEncoding   = &Error{Kind: KindMalformedEncoding}
	ErrUnsupportedEncoding = &Error{Kind: KindUnsupportedEncoding}
	ErrUnexpectedTag       = &Error{Kind: KindUnexpectedTag}
	ErrInvalidTimeFormat   = &Error{Kind: KindInvalidTimeFormat}
	ErrUnknownAlgorithm    = &Error{Kind: KindUnknownAlgorithm}
	ErrInvalidValue        = &Error{Kind: KindInvalidValue}
)

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithField prefixes the field path of err. Errors that are not *Error are
// wrapped as malformed encodings so every decoder failure keeps a Kind.
func WithField(err error, field string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if !errors.As(err, &de) {
		return &Error{Kind: KindMalformedEncoding, Field: field, Cause: err}
	}
	out := *de
	if out.Field == "" {
		out.Field = field
	} else {
		out.Field = field + "." + out.Field
	}
	return &out
}

// KindOf returns the Kind carried by err, or 0 when err is not a decode error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
