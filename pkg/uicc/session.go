/*
Package uicc opens a session with a UICC after a cold reset and runs commands over it.

# Handshake

Open drives the whole sequence over a Transport:

 1. Read the Answer-to-Reset (up to 33 bytes) and decode it.
 2. Unless disabled, run one PPS exchange. A card announcing TA2 (specific mode)
    cannot be negotiated with and the handshake fails with ErrTA2Unsupported.
 3. The session becomes Ready.

Any failure closes the transport and is returned as a *HandshakeError; no session
is handed out. Once Ready, Status sends the STATUS command (80 F2 00 00 00) and
returns the raw answer.

# Commands

Transmit and Send carry any other command. A transport that exchanges whole APDUs
(a PC/SC reader) gets the C-APDU as is; on a raw serial line the session runs the
T=0 character protocol: header, procedure bytes, data, status word.

# State

	Open --handshake ok--> Ready --transport error / Close--> Failed

Failed is terminal: open a new session (and thus a new cold reset) to retry.

A Session owns its transport exclusively and is meant for one goroutine; a mutex
keeps its state consistent if it is shared anyway.
*/
package uicc

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/gregLibert/uicc/internal/syncutil"
	"github.com/gregLibert/uicc/pkg/atr"
	"github.com/gregLibert/uicc/pkg/iso7816"
	"github.com/gregLibert/uicc/pkg/pps"
	"github.com/gregLibert/uicc/pkg/transport"
)

// StatusResponseMax is the read size used for the STATUS answer.
const StatusResponseMax = 254

// State is the lifecycle state of a Session.
type State int

const (
	StateOpen State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var statusAPDU = mustEncode(iso7816.StatusCommand())

func mustEncode(cmd *iso7816.CommandAPDU) []byte {
	b, err := cmd.Bytes()
	if err != nil {
		panic(err)
	}
	return b
}

// Session is an open conversation with one card.
type Session struct {
	mu syncutil.Mutex

	t   transport.Transport
	log *slog.Logger

	state       State
	atr         *atr.Record
	negotiation pps.Outcome
}

var _ iso7816.Transmitter = (*Session)(nil)

// Open runs the cold-reset handshake over t and takes ownership of it.
func Open(t transport.Transport, opts ...Option) (*Session, error) {
	o := newOptions(opts)
	log := o.logger

	raw, err := t.Read(atr.MaxLength)
	if err != nil {
		return nil, abort(t, log, StageATR, nil, err)
	}
	log.Debug("ATR received", "atr", fmt.Sprintf("%X", raw))

	rec, err := atr.Parse(raw)
	if err != nil {
		return nil, abort(t, log, StageATR, raw, err)
	}
	if o.verifyChecksum {
		if err := rec.VerifyChecksum(); err != nil {
			return nil, abort(t, log, StageATR, raw, err)
		}
	}

	s := &Session{t: t, log: log, state: StateOpen, atr: rec}

	if o.skipPPS {
		log.Debug("PPS skipped")
	} else {
		log.Debug("PPS request", "request", o.ppsRequest.String())
		out, err := pps.Negotiate(t, rec, o.ppsRequest)
		if err != nil {
			return nil, abort(t, log, StagePPS, raw, err)
		}
		if out.Kind == pps.Aborted {
			return nil, abort(t, log, StagePPS, raw, ErrTA2Unsupported)
		}
		s.negotiation = out
		log.Debug("PPS response", "response", fmt.Sprintf("%X", out.Response), "echo", out.Echoes(o.ppsRequest))
	}

	s.state = StateReady
	log.Info("session ready", "protocols", rec.Protocols(), "pps", s.negotiation.Kind.String())
	return s, nil
}

// Dial opens the serial device at path, cold resets the card and runs Open over it.
func Dial(path string, cfg transport.SerialConfig, opts ...Option) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = newOptions(opts).logger
	}
	port, err := transport.OpenSerial(path, cfg)
	if err != nil {
		return nil, &HandshakeError{Stage: StageOpen, Err: err}
	}
	return Open(port, opts...)
}

func abort(t transport.Transport, log *slog.Logger, stage string, raw []byte, err error) error {
	if cerr := t.Close(); cerr != nil {
		log.Warn("failed to close transport", "error", cerr)
	}
	log.Debug("handshake failed", "stage", stage, "error", err)

	var atrCopy []byte
	if len(raw) > 0 {
		atrCopy = append([]byte(nil), raw...)
	}
	return &HandshakeError{Stage: stage, ATR: atrCopy, Err: err}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ATR returns a copy of the decoded Answer-to-Reset.
func (s *Session) ATR() *atr.Record {
	return s.atr.Clone()
}

// Negotiation returns the outcome of the PPS exchange. It is NotAttempted when PPS was skipped.
func (s *Session) Negotiation() pps.Outcome {
	out := s.negotiation
	out.Response = bytes.Clone(out.Response)
	return out
}

// Status sends STATUS (80 F2 00 00 00) and returns whatever the card answered
// within one read of up to StatusResponseMax bytes, possibly nothing.
func (s *Session) Status() ([]byte, error) {
	return s.exchange(statusAPDU, StatusResponseMax)
}

// Transmit exchanges one C-APDU for its R-APDU, running T=0 unless the transport
// carries whole APDUs. Any failure once the line is in use fails the session.
func (s *Session) Transmit(cmd []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil, fmt.Errorf("%w (state %s)", ErrSessionNotReady, s.state)
	}
	s.log.Debug("C-APDU", "cmd", fmt.Sprintf("%X", cmd))

	var resp []byte
	if at, ok := s.t.(apduTransport); ok {
		var err error
		if resp, err = at.Transmit(cmd); err != nil {
			s.state = StateFailed
			return nil, err
		}
	} else {
		p, err := newTPDU(cmd)
		if err != nil {
			return nil, err
		}
		if resp, err = p.exchange(s.t); err != nil {
			s.state = StateFailed
			return nil, err
		}
	}

	s.log.Debug("R-APDU", "resp", fmt.Sprintf("%X", resp))
	return resp, nil
}

// Send runs cmd through an iso7816.Client, handling 61XX and 6CXX.
func (s *Session) Send(cmd *iso7816.CommandAPDU) (iso7816.Trace, error) {
	return iso7816.NewClient(s).Send(cmd)
}

func (s *Session) exchange(cmd []byte, max int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil, fmt.Errorf("%w (state %s)", ErrSessionNotReady, s.state)
	}

	s.log.Debug("C-APDU", "cmd", fmt.Sprintf("%X", cmd))
	if err := s.t.Write(cmd); err != nil {
		s.state = StateFailed
		return nil, err
	}

	resp, err := s.t.Read(max)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	s.log.Debug("R-APDU", "resp", fmt.Sprintf("%X", resp))
	return resp, nil
}

// Close releases the transport. The session ends in the Failed state.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.t == nil {
		return nil
	}
	t := s.t
	s.t = nil
	s.state = StateFailed
	return t.Close()
}
