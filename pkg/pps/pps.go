/*
Package pps runs the Protocol and Parameters Selection exchange (ISO/IEC 7816-3, clause 9)
right after the Answer-to-Reset.

# Request

	PPSS  PPS0  [PPS1]  [PPS2]  [PPS3]  PCK

  - PPSS: always 0xFF.
  - PPS0: bits 5, 6 and 7 announce PPS1, PPS2 and PPS3. The low nibble is the protocol T.
  - PPS1: Fi/Di, coded like TA1.
  - PCK: check character, the XOR of PPSS to PCK is zero.

The default request keeps T=0 and the default parameters: FF 00 FF.

# Scope

One request, one read. The response is recorded as-is: it is not compared with the
request and an empty response (the card stayed silent) still counts as an attempt that
went through. A card announcing TA2 runs in specific mode and is never sent a PPS.
*/
package pps

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gregLibert/uicc/pkg/atr"
	"github.com/gregLibert/uicc/pkg/bits"
)

const (
	// PPSS is the initial character of every PPS request and response.
	PPSS byte = 0xFF

	// MaxResponse is the read size used to collect the card's answer.
	MaxResponse = 32
)

// ErrTA2Unsupported reports a card in specific mode (TA2 present).
var ErrTA2Unsupported = errors.New("TA2 present, explicit mode unsupported")

// Request describes the parameters proposed to the card.
type Request struct {
	Protocol uint8
	PPS1     *byte
	PPS2     *byte
	PPS3     *byte
}

// DefaultRequest proposes T=0 without optional bytes.
func DefaultRequest() Request {
	return Request{}
}

// Bytes encodes the request, PCK included.
func (r Request) Bytes() []byte {
	pps0 := r.Protocol & 0x0F
	out := []byte{PPSS, 0}

	for i, b := range []*byte{r.PPS1, r.PPS2, r.PPS3} {
		if b == nil {
			continue
		}
		pps0 = bits.Set(pps0, uint(5+i))
		out = append(out, *b)
	}
	out[1] = pps0

	return append(out, checksum(out))
}

func (r Request) String() string {
	return fmt.Sprintf("% X", r.Bytes())
}

func checksum(b []byte) byte {
	var pck byte
	for _, v := range b {
		pck ^= v
	}
	return pck
}

// Kind is the result category of a negotiation.
type Kind int

const (
	NotAttempted Kind = iota
	Succeeded
	Aborted
)

func (k Kind) String() string {
	switch k {
	case NotAttempted:
		return "not attempted"
	case Succeeded:
		return "succeeded"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome records what happened during the exchange.
type Outcome struct {
	Kind Kind
	// Response holds the bytes read back, possibly none. Only set when Kind is Succeeded.
	Response []byte
	// Reason explains an Aborted outcome.
	Reason string
}

func (o Outcome) String() string {
	switch o.Kind {
	case Succeeded:
		return fmt.Sprintf("succeeded, response %X", o.Response)
	case Aborted:
		return fmt.Sprintf("aborted: %s", o.Reason)
	default:
		return o.Kind.String()
	}
}

// Echoes reports whether the card answered with the request itself, which is how a
// card accepts the proposed parameters. It is informational only.
func (o Outcome) Echoes(req Request) bool {
	return o.Kind == Succeeded && bytes.Equal(o.Response, req.Bytes())
}

// Port is the byte channel the exchange runs over.
type Port interface {
	Read(max int) ([]byte, error)
	Write(p []byte) error
}

// Negotiate performs a single PPS exchange for the card described by rec.
//
// When rec announces TA2 nothing is written and an Aborted outcome is returned.
// Otherwise the request is written once and one read of up to MaxResponse bytes
// collects the answer; the outcome is Succeeded whatever came back. Transport
// failures are returned unchanged.
func Negotiate(port Port, rec *atr.Record, req Request) (Outcome, error) {
	if rec.HasTA2() {
		return Outcome{Kind: Aborted, Reason: ErrTA2Unsupported.Error()}, nil
	}

	if err := port.Write(req.Bytes()); err != nil {
		return Outcome{Kind: NotAttempted}, err
	}

	resp, err := port.Read(MaxResponse)
	if err != nil {
		return Outcome{Kind: NotAttempted}, err
	}

	return Outcome{Kind: Succeeded, Response: resp}, nil
}
