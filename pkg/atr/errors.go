package atr

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyResponse         = errors.New("empty ATR, card did not answer reset")
	ErrUnsupportedConvention = errors.New("unsupported convention")
	ErrTruncated             = errors.New("ATR truncated")
	ErrTooLong               = errors.New("ATR longer than 33 bytes")
	ErrTooManyGroups         = errors.New("too many interface byte groups")
	ErrChecksumMismatch      = errors.New("TCK check failed")
)

// ParseError locates a decoding failure within the raw ATR.
type ParseError struct {
	Offset int    // Index in the raw buffer
	Field  string // ISO name of the expected character (TS, T0, TD1, T3, TCK...)
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ATR %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
