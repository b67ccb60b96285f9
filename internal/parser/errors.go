package parser

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DecodeError.
type ErrorKind int

const (
	// ManifestMalformed means the manifest bytes are not a valid manifest.
	ManifestMalformed ErrorKind = iota + 1
	// ChartMalformed means a chart file is not a valid chart.
	ChartMalformed
	// UnknownCode means an enum-coded field holds a value outside its table.
	UnknownCode
)

func (k ErrorKind) String() string {
	switch k {
	case ManifestMalformed:
		return "manifest malformed"
	case ChartMalformed:
		return "chart malformed"
	case UnknownCode:
		return "unknown code"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels for errors.Is. Only Kind is compared.
var (
	ErrManifestMalformed = &DecodeError{Kind: ManifestMalformed}
	ErrChartMalformed    = &DecodeError{Kind: ChartMalformed}
	ErrUnknownCode       = &DecodeError{Kind: UnknownCode}
)

// DecodeError is returned by every decoding function in this package.
// A ChartMalformed or ManifestMalformed error may wrap an UnknownCode error.
type DecodeError struct {
	Kind ErrorKind

	// File is the chart file name for ChartMalformed.
	File string

	// Field and Value identify the offending code for UnknownCode.
	Field string
	Value int64

	// Index is the position of the offending record in its array, or -1.
	Index int

	Err error
}

func (e *DecodeError) Error() string {
	var msg string
	switch e.Kind {
	case UnknownCode:
		msg = fmt.Sprintf("unknown code %d for field %s", e.Value, e.Field)
	case ChartMalformed:
		msg = fmt.Sprintf("chart %q malformed", e.File)
	default:
		msg = e.Kind.String()
	}
	if e.Index >= 0 && e.Kind == UnknownCode {
		msg = fmt.Sprintf("%s (record %d)", msg, e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches any DecodeError of the same Kind.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

// AsUnknownCode finds the innermost UnknownCode error in err's chain.
func AsUnknownCode(err error) (*DecodeError, bool) {
	var found *DecodeError
	for err != nil {
		if de, ok := err.(*DecodeError); ok && de.Kind == UnknownCode {
			found = de
		}
		err = errors.Unwrap(err)
	}
	return found, found != nil
}

func unknownCode(field string, value int64, index int) *DecodeError {
	return &DecodeError{Kind: UnknownCode, Field: field, Value: value, Index: index}
}

func manifestError(err error) *DecodeError {
	return &DecodeError{Kind: ManifestMalformed, Index: -1, Err: err}
}

func chartError(name string, err error) *DecodeError {
	return &DecodeError{Kind: ChartMalformed, File: name, Index: -1, Err: err}
}
