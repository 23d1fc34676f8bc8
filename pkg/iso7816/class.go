package iso7816

import (
	"errors"
	"fmt"

	"github.com/gregLibert/uicc/pkg/bits"
)

// CLASS BYTE (ETSI TS 102 221, 10.1.1):
// The high bits of CLA pick the command set, the rest carries the logical channel.
//
//	'0X', '1X'   ISO/IEC 7816-4 commands, channels 0-3
//	'4X'..'7X'   ISO/IEC 7816-4 commands, channels 4-19
//	'8X', '9X'   UICC commands (STATUS, FETCH...), channels 0-3
//	'AX'         GSM commands of 3GPP TS 51.011
//	'CX'..'FE'   UICC commands, channels 4-19
//
// Channels 0-3 use the first layout: b5 chaining, b4-b3 secure messaging, b2-b1 channel.
// Channels 4-19 use the further layout: b6 secure messaging, b5 chaining, b4-b1 channel
// minus 4. 'FF' is the PPSS character and never a class.

// CommandSet is the family of commands a class byte addresses.
type CommandSet int

const (
	Interindustry CommandSet = iota
	UICCCommands
	GSMCommands
)

func (s CommandSet) String() string {
	switch s {
	case Interindustry:
		return "ISO/IEC 7816-4"
	case UICCCommands:
		return "UICC"
	case GSMCommands:
		return "GSM"
	default:
		return fmt.Sprintf("CommandSet(%d)", int(s))
	}
}

// SecureMessaging is the secure messaging indication of a class byte.
type SecureMessaging int

const (
	SMNone SecureMessaging = iota
	SMProprietary
	SMHeaderNotProcessed
	SMHeaderAuthenticated
)

func (sm SecureMessaging) String() string {
	switch sm {
	case SMNone:
		return "no SM"
	case SMProprietary:
		return "proprietary SM"
	case SMHeaderNotProcessed:
		return "SM, header not processed"
	case SMHeaderAuthenticated:
		return "SM, header authenticated"
	default:
		return fmt.Sprintf("SecureMessaging(%d)", int(sm))
	}
}

// MaxChannel is the highest logical channel a class byte can address.
const MaxChannel = 19

var (
	ErrReservedClass = errors.New("reserved class byte")
	ErrChannelRange  = errors.New("logical channel out of range")
)

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	Set             CommandSet
	Chained         bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// BasicClass returns the class of set on the basic channel, without secure messaging:
// '00', '80' or 'A0'.
func BasicClass(set CommandSet) Class {
	c, _ := NewClass(set, 0, SMNone)
	return c
}

// NewClass builds the class byte addressing channel with set.
// GSM commands have no channel nor secure messaging.
func NewClass(set CommandSet, channel uint8, sm SecureMessaging) (Class, error) {
	if channel > MaxChannel {
		return Class{}, fmt.Errorf("%w: %d", ErrChannelRange, channel)
	}
	c := Class{Set: set, Channel: channel, SecureMessaging: sm}

	switch {
	case set == GSMCommands:
		if channel != 0 || sm != SMNone {
			return Class{}, fmt.Errorf("GSM class has no channel nor secure messaging")
		}
		c.Raw = 0xA0
		return c, nil
	case channel >= 4 && sm != SMNone && sm != SMHeaderNotProcessed:
		return Class{}, fmt.Errorf("%s not available on channel %d", sm, channel)
	}

	c.Raw = c.encode()
	return c, nil
}

// DecodeClass decodes a CLA byte.
func DecodeClass(cla byte) (Class, error) {
	c := Class{Raw: cla}

	switch {
	case cla == 0xFF, cla >= 0x20 && cla <= 0x3F:
		return Class{}, fmt.Errorf("%w: %02X", ErrReservedClass, cla)
	case cla >= 0xA0 && cla <= 0xBF:
		c.Set = GSMCommands
		return c, nil
	case bits.IsSet(cla, 8):
		c.Set = UICCCommands
	default:
		c.Set = Interindustry
	}

	c.Chained = bits.IsSet(cla, 5)
	if !bits.IsSet(cla, 7) {
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	} else {
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNotProcessed
		}
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	}
	return c, nil
}

func (c Class) encode() byte {
	var b byte
	if c.Set == UICCCommands {
		b = bits.Set(b, 8)
	}
	if c.Chained {
		b = bits.Set(b, 5)
	}

	if c.Channel < 4 {
		return b | byte(c.SecureMessaging)<<2 | c.Channel
	}
	b = bits.Set(b, 7)
	if c.SecureMessaging != SMNone {
		b = bits.Set(b, 6)
	}
	return b | (c.Channel - 4)
}

// Byte returns the CLA byte coded from the fields of c.
func (c Class) Byte() byte {
	if c.Set == GSMCommands {
		if c.Raw == 0 {
			return 0xA0
		}
		return c.Raw
	}
	return c.encode()
}

// OnSet returns the class addressing set on the same channel, without chaining.
// It is how a GET RESPONSE follows a UICC command: '81' becomes '01'.
func (c Class) OnSet(set CommandSet) Class {
	if c.Set == GSMCommands || set == GSMCommands {
		return BasicClass(set)
	}
	out := c
	out.Set = set
	out.Chained = false
	out.Raw = out.encode()
	return out
}

func (c Class) String() string {
	if c.Set == GSMCommands {
		return fmt.Sprintf("%02X -> GSM", c.Raw)
	}
	s := fmt.Sprintf("%02X -> %s, channel %d", c.Raw, c.Set, c.Channel)
	if c.SecureMessaging != SMNone {
		s += ", " + c.SecureMessaging.String()
	}
	if c.Chained {
		s += ", chained"
	}
	return s
}
