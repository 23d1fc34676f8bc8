package uicc

import (
	"log/slog"

	"github.com/gregLibert/uicc/pkg/pps"
)

type options struct {
	logger         *slog.Logger
	ppsRequest     pps.Request
	skipPPS        bool
	verifyChecksum bool
}

// Option customizes how Open runs the handshake.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		logger:     slog.New(slog.DiscardHandler),
		ppsRequest: pps.DefaultRequest(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for handshake and command tracing.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPPSRequest replaces the default FF 00 FF request.
func WithPPSRequest(req pps.Request) Option {
	return func(o *options) {
		o.ppsRequest = req
	}
}

// WithoutPPS skips the PPS exchange, for transports where the reader already did it.
func WithoutPPS() Option {
	return func(o *options) {
		o.skipPPS = true
	}
}

// WithChecksumVerification rejects an ATR whose TCK does not check out.
func WithChecksumVerification() Option {
	return func(o *options) {
		o.verifyChecksum = true
	}
}
