package uicc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gregLibert/uicc/pkg/iso7816"
	"github.com/gregLibert/uicc/pkg/transport"
)

// T=0 CHARACTER PROTOCOL (ISO/IEC 7816-3, 10.3):
// The terminal sends the 5-byte header CLA INS P1 P2 P3, then reads procedure bytes:
//
//	'60'        NULL, the card needs more time
//	INS         transfer all remaining data bytes
//	INS ^ 'FF'  transfer the next data byte only
//	'6X', '9X'  SW1 (except '60'); SW2 follows and ends the exchange
//
// Data flows to the card for cases 3 and 4, from the card for case 2. A case 4
// command loses its Le: the card answers '61XX' and the Client fetches the data.

// MaxNullBytes bounds the NULL procedure bytes accepted within one exchange.
const MaxNullBytes = 255

var (
	ErrProcedureByte = errors.New("unexpected procedure byte")
	ErrNoAnswer      = errors.New("card stopped answering")
)

// apduTransport is a transport that exchanges whole APDUs, like a PC/SC reader.
type apduTransport interface {
	Transmit(cmd []byte) ([]byte, error)
}

// tpdu is a C-APDU mapped onto T=0.
type tpdu struct {
	header [5]byte
	out    []byte // data for the card
	in     int    // data bytes expected from the card
}

func newTPDU(raw []byte) (*tpdu, error) {
	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
		return nil, fmt.Errorf("T=0: %w", err)
	}
	header, data, err := cmd.TPDU()
	if err != nil {
		return nil, fmt.Errorf("T=0: %w", err)
	}
	p := &tpdu{header: header, out: data}
	if cmd.Case() == iso7816.Case2 {
		p.in = cmd.Ne
	}
	return p, nil
}

// exchange runs the TPDU over t and returns the R-APDU: the data received, SW1, SW2.
func (p *tpdu) exchange(t transport.Transport) ([]byte, error) {
	if err := t.Write(p.header[:]); err != nil {
		return nil, err
	}

	ins := p.header[1]
	out, in := p.out, p.in
	var resp []byte
	nulls := 0

	for {
		pb, err := readByte(t)
		if err != nil {
			return nil, err
		}

		switch {
		case pb == 0x60:
			if nulls++; nulls > MaxNullBytes {
				return nil, fmt.Errorf("%w: more than %d NULL bytes", ErrProcedureByte, MaxNullBytes)
			}

		case pb == ins || pb == ^ins:
			switch {
			case len(out) > 0:
				n := 1
				if pb == ins {
					n = len(out)
				}
				if err := t.Write(out[:n]); err != nil {
					return nil, err
				}
				out = out[n:]
			case in > 0:
				n := 1
				if pb == ins {
					n = in
				}
				data, err := readFull(t, n)
				if err != nil {
					return nil, err
				}
				resp = append(resp, data...)
				in -= n
			default:
				return nil, fmt.Errorf("%w: %02X with nothing left to transfer", ErrProcedureByte, pb)
			}

		case pb&0xF0 == 0x60 || pb&0xF0 == 0x90:
			sw2, err := readByte(t)
			if err != nil {
				return nil, err
			}
			return append(resp, pb, sw2), nil

		default:
			return nil, fmt.Errorf("%w: %02X after header %X", ErrProcedureByte, pb, p.header)
		}
	}
}

// readFull reads exactly n bytes. A read that times out empty ends with ErrNoAnswer.
func readFull(t transport.Transport, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		chunk, err := t.Read(n - len(buf))
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return nil, fmt.Errorf("%w after %d of %d bytes", ErrNoAnswer, len(buf), n)
		}
		buf = append(buf, chunk...)
	}
	return buf, nil
}

func readByte(t transport.Transport) (byte, error) {
	b, err := readFull(t, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// TrimProcedureBytes strips the NULL bytes and the INS acknowledgement a T=0 card puts
// in front of its answer, as seen in a raw read of the line.
func TrimProcedureBytes(ins byte, raw []byte) []byte {
	rest := bytes.TrimLeft(raw, "\x60")
	if len(rest) > 2 && rest[0] == ins {
		return rest[1:]
	}
	return rest
}
