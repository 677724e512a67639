package health

import (
	"errors"
	"fmt"
)

// Error classes. Every failure of a run wraps exactly one of these.
var (
	ErrConfig           = errors.New("config error")
	ErrSourceResolution = errors.New("source resolution error")
	ErrFormat           = errors.New("format error")
	ErrSinkConnectivity = errors.New("sink connectivity error")
	ErrSinkWrite        = errors.New("sink write error")
)

// FormatError reports a recognized record that could not be converted
type FormatError struct {
	Line  int
	Attr  string
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("format error: line %d: %s %q", e.Line, e.Attr, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is reports FormatError as ErrFormat
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}
