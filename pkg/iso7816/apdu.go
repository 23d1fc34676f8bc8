package iso7816

import (
	"errors"
	"fmt"
)

// COMMAND APDU (ISO/IEC 7816-3, 12.1):
//
//	CLA INS P1 P2 [Lc Data] [Le]
//
// Four cases follow from which of Nc (data length) and Ne (expected length) are zero:
// case 1 has neither, case 2 only Ne, case 3 only Nc, case 4 both. Lc and Le take one byte
// while Nc <= 255 and Ne <= 256 ('00' meaning 256); beyond that the extended forms apply.
//
// Under T=0 a command travels as a TPDU: the 5-byte header CLA INS P1 P2 P3, then the
// data once the card acknowledges. P3 is Lc for cases 3 and 4, Le for case 2 and '00'
// for case 1. Case 4 loses its Le: the card answers '61XX' and the data is fetched
// with GET RESPONSE. A UICC answers reset in T=0, so extended lengths only reach it
// through a reader that negotiated T=1.

const (
	MaxShortNc    = 255
	MaxShortNe    = 256
	MaxExtendedNc = 65535
	MaxExtendedNe = 65536
)

var (
	ErrCommandTooShort = errors.New("command shorter than a header")
	ErrLengthMismatch  = errors.New("body does not match its length field")
	ErrNotShort        = errors.New("command needs extended lengths")
)

// Case is the ISO/IEC 7816-3 command case.
type Case int

const (
	Case1 Case = 1 + iota
	Case2
	Case3
	Case4
)

// CommandAPDU is a command to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte

	// Ne is the maximum number of response bytes expected, 0 for none.
	Ne int
}

// NewCommandAPDU assembles a command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{Class: cla, Instruction: ins, P1: p1, P2: p2, Data: data, Ne: ne}
}

// Case returns the command case.
func (c *CommandAPDU) Case() Case {
	switch {
	case len(c.Data) == 0 && c.Ne == 0:
		return Case1
	case len(c.Data) == 0:
		return Case2
	case c.Ne == 0:
		return Case3
	default:
		return Case4
	}
}

func (c *CommandAPDU) header() []byte {
	return []byte{c.Class.Byte(), byte(c.Instruction.Raw), c.P1, c.P2}
}

// Bytes encodes the C-APDU, in short form when Nc and Ne allow it.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc, ne := len(c.Data), c.Ne
	if nc > MaxExtendedNc || ne > MaxExtendedNe || ne < 0 {
		return nil, fmt.Errorf("Nc=%d Ne=%d exceed the extended limits", nc, ne)
	}
	out := c.header()

	if nc <= MaxShortNc && ne <= MaxShortNe {
		if nc > 0 {
			out = append(out, byte(nc))
			out = append(out, c.Data...)
		}
		if ne > 0 {
			out = append(out, byte(ne)) // 256 wraps to 00
		}
		return out, nil
	}

	if nc > 0 {
		out = append(out, 0x00, byte(nc>>8), byte(nc))
		out = append(out, c.Data...)
	}
	if ne > 0 {
		if nc == 0 {
			out = append(out, 0x00)
		}
		out = append(out, byte(ne>>8), byte(ne)) // 65536 wraps to 0000
	}
	return out, nil
}

// TPDU maps the command onto T=0: the 5-byte header and the data to send after the
// card's acknowledgement. The command must fit the short form.
func (c *CommandAPDU) TPDU() (header [5]byte, data []byte, err error) {
	if len(c.Data) > MaxShortNc || c.Ne > MaxShortNe {
		return header, nil, ErrNotShort
	}
	copy(header[:4], c.header())

	switch c.Case() {
	case Case2:
		header[4] = byte(c.Ne)
	case Case3, Case4:
		header[4] = byte(len(c.Data))
		data = c.Data
	}
	return header, data, nil
}

// ParseCommandAPDU decodes a C-APDU in short or extended form.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCommandTooShort, len(raw))
	}
	cla, err := DecodeClass(raw[0])
	if err != nil {
		return nil, err
	}
	ins, err := NewInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, err
	}
	cmd := NewCommandAPDU(cla, ins, raw[2], raw[3], nil, 0)

	body := raw[4:]
	if len(body) == 0 {
		return cmd, nil
	}
	if len(body) == 1 {
		cmd.Ne = shortNe(body[0])
		return cmd, nil
	}

	if body[0] != 0x00 {
		nc := int(body[0])
		switch len(body) - 1 - nc {
		case 0:
		case 1:
			cmd.Ne = shortNe(body[len(body)-1])
		default:
			return nil, fmt.Errorf("%w: %d bytes after Lc=%d", ErrLengthMismatch, len(body)-1, nc)
		}
		cmd.Data = append([]byte(nil), body[1:1+nc]...)
		return cmd, nil
	}

	if len(body) < 3 {
		return nil, fmt.Errorf("%w: truncated extended length", ErrLengthMismatch)
	}
	n := int(body[1])<<8 | int(body[2])
	switch len(body) {
	case 3:
		cmd.Ne = extendedNe(n)
	case 3 + n:
		cmd.Data = append([]byte(nil), body[3:]...)
	case 5 + n:
		cmd.Data = append([]byte(nil), body[3:3+n]...)
		cmd.Ne = extendedNe(int(body[3+n])<<8 | int(body[4+n]))
	default:
		return nil, fmt.Errorf("%w: %d bytes after extended Lc=%d", ErrLengthMismatch, len(body)-3, n)
	}
	return cmd, nil
}

func shortNe(le byte) int {
	if le == 0 {
		return MaxShortNe
	}
	return int(le)
}

func extendedNe(le int) int {
	if le == 0 {
		return MaxExtendedNe
	}
	return le
}

func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s %02X%02X%02X | case %d | Nc=%d Ne=%d",
		c.Instruction.Raw.Command(), c.Class.Byte(), c.P1, c.P2, c.Case(), len(c.Data), c.Ne)
}

// ResponseAPDU is the card's answer: optional data and the status word.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw into data and the trailing SW1 SW2.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}
	n := len(raw) - 2
	return &ResponseAPDU{Data: raw[:n], Status: NewStatusWord(raw[n], raw[n+1])}, nil
}

func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("%d data bytes, %s", len(r.Data), r.Status.Verbose())
}
