package uicc

import (
	"errors"
	"fmt"

	"github.com/gregLibert/uicc/pkg/atr"
	"github.com/gregLibert/uicc/pkg/pps"
	"github.com/gregLibert/uicc/pkg/transport"
)

// ErrSessionNotReady is returned by commands issued outside the Ready state.
var ErrSessionNotReady = errors.New("session not ready")

// Failure kinds surfaced by Open, re-exported for callers that only import uicc.
var (
	ErrEmptyResponse         = atr.ErrEmptyResponse
	ErrUnsupportedConvention = atr.ErrUnsupportedConvention
	ErrTruncated             = atr.ErrTruncated
	ErrChecksumMismatch      = atr.ErrChecksumMismatch
	ErrTA2Unsupported        = pps.ErrTA2Unsupported
)

// Handshake stages reported in HandshakeError.
const (
	StageOpen = "open"
	StageATR  = "atr"
	StagePPS  = "pps"
)

// HandshakeError reports a failed session opening.
type HandshakeError struct {
	Stage string
	// ATR holds the raw answer when it was received before the failure.
	ATR []byte
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed at %s stage: %v", e.Stage, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

var kinds = []struct {
	err  error
	name string
}{
	{atr.ErrEmptyResponse, "EmptyResponse"},
	{atr.ErrUnsupportedConvention, "UnsupportedConvention"},
	{atr.ErrTruncated, "Truncated"},
	{atr.ErrTooLong, "TooLong"},
	{atr.ErrTooManyGroups, "TooManyGroups"},
	{atr.ErrChecksumMismatch, "ChecksumMismatch"},
	{pps.ErrTA2Unsupported, "TA2Unsupported"},
	{ErrSessionNotReady, "SessionNotReady"},
}

// Kind names the failure category of err, e.g. "Truncated" or "TransportError".
// It returns "" for a nil error and "Unknown" when nothing matches.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	if transport.IsTransportError(err) {
		return "TransportError"
	}
	return "Unknown"
}
