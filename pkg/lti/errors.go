// pkg/lti/errors.go
package lti

import "errors"

// Kind classifies a failure independently of its message text.
type Kind string

const (
	KindConfiguration     Kind = "ConfigurationError"
	KindLogin             Kind = "LoginError"
	KindNoStateFound      Kind = "NoStateFoundError"
	KindTokenFormat       Kind = "TokenFormatError"
	KindRegistration      Kind = "RegistrationError"
	KindPublicKey         Kind = "PublicKeyError"
	KindMessageValidation Kind = "MessageValidationError"
	KindKeyMaterial       Kind = "KeyMaterialError"
)

// Error is returned by every operation in this package that can fail a
// login or launch. Kind is stable for programmatic handling; Message is the
// human readable reason.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind-only sentinels such as ErrRegistration.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind-only sentinels for errors.Is.
var (
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrLogin             = &Error{Kind: KindLogin}
	ErrNoStateFound      = &Error{Kind: KindNoStateFound}
	ErrTokenFormat       = &Error{Kind: KindTokenFormat}
	ErrRegistration      = &Error{Kind: KindRegistration}
	ErrPublicKey         = &Error{Kind: KindPublicKey}
	ErrMessageValidation = &Error{Kind: KindMessageValidation}
	ErrKeyMaterial       = &Error{Kind: KindKeyMaterial}
)

var (
	// ErrNotFound is returned by stores when a lookup has no result.
	ErrNotFound = errors.New("lti: not found")
	// ErrInvalidSignature is wrapped by every token verification failure.
	ErrInvalidSignature = errors.New("lti: invalid signature")
)

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
