package iso7816

import "fmt"

// STATUS COMMAND (ETSI TS 102 221, INS 'F2'):
// Returns information on the currently selected application or DF. It is also the
// "keep alive" a terminal sends to check the UICC is still there.
//
// The command belongs to the UICC command set: class '80' on the basic channel.
//
// P1 (Application status indication):
//   - 00: No indication.
//   - 01: The terminal has initialized the current application.
//   - 02: The terminal will terminate the current application.
//
// P2 (Response content):
//   - 00: FCP template of the current DF, as returned by SELECT.
//   - 01: DF name TLV object of the current application.
//   - 0C: No data returned.

// StatusIndication is the application status carried by P1.
type StatusIndication byte

const (
	StatusNoIndication   StatusIndication = 0x00
	StatusAppInitialized StatusIndication = 0x01
	StatusAppTerminating StatusIndication = 0x02
)

func (s StatusIndication) String() string {
	switch s {
	case StatusNoIndication:
		return "No indication"
	case StatusAppInitialized:
		return "Application initialized"
	case StatusAppTerminating:
		return "Application terminating"
	default:
		return fmt.Sprintf("Unknown Indication (0x%02X)", byte(s))
	}
}

// StatusContent selects what the card returns (P2).
type StatusContent byte

const (
	StatusReturnFCP    StatusContent = 0x00
	StatusReturnDFName StatusContent = 0x01
	StatusReturnNoData StatusContent = 0x0C
)

func (s StatusContent) String() string {
	switch s {
	case StatusReturnFCP:
		return "Return FCP"
	case StatusReturnDFName:
		return "Return DF Name"
	case StatusReturnNoData:
		return "No Response Data"
	default:
		return fmt.Sprintf("Unknown Content (0x%02X)", byte(s))
	}
}

// NewStatusCommand builds a STATUS on the basic logical channel.
// Le is 256 (encoded '00') unless no data is requested.
func NewStatusCommand(p1 StatusIndication, p2 StatusContent) *CommandAPDU {
	ins, _ := NewInstruction(INS_STATUS)

	ne := MaxShortNe
	if p2 == StatusReturnNoData {
		ne = 0
	}
	return NewCommandAPDU(BasicClass(UICCCommands), ins, byte(p1), byte(p2), nil, ne)
}

// StatusCommand is the plain STATUS the cold-reset handshake sends: 80 F2 00 00 00.
func StatusCommand() *CommandAPDU {
	return NewStatusCommand(StatusNoIndication, StatusReturnFCP)
}
