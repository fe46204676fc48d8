package codec

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a rejected command.
type ErrorKind int

const (
	MalformedColor ErrorKind = iota + 1
	MalformedMode
	MalformedLength
	MalformedBrightness
	UnknownCommand
)

// Sentinels matched by errors.Is against a *ParseError of the same kind.
var (
	ErrMalformedColor      = errors.New("malformed color")
	ErrMalformedMode       = errors.New("malformed mode")
	ErrMalformedLength     = errors.New("malformed length")
	ErrMalformedBrightness = errors.New("malformed brightness")
	ErrUnknownCommand      = errors.New("unknown command")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case MalformedColor:
		return ErrMalformedColor
	case MalformedMode:
		return ErrMalformedMode
	case MalformedLength:
		return ErrMalformedLength
	case MalformedBrightness:
		return ErrMalformedBrightness
	case UnknownCommand:
		return ErrUnknownCommand
	}
	return nil
}

func (k ErrorKind) String() string {
	if err := k.sentinel(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseError is returned by Parse for any rejected input.
type ParseError struct {
	Kind  ErrorKind
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: %s %q: %v", e.Kind, e.Input, e.Err)
	}
	return fmt.Sprintf("codec: %s %q", e.Kind, e.Input)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedColor) and friends work.
func (e *ParseError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func fail(kind ErrorKind, input string, cause error) error {
	return &ParseError{Kind: kind, Input: input, Err: cause}
}
