package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/uicc/pkg/bits"
)

// Instruction Byte (INS) Logic according to ISO/IEC 7816-4.
//
// The INS byte identifies the command to be performed by the card.
//
// 1. Data Encoding (Bit 1):
//    When using the interindustry class, the least significant bit (Bit 1) often indicates
//    the format of the data field.
//    - 0: Standard or no specific formatting.
//    - 1: BER-TLV encoded data structure.
//    Example: READ BINARY (0xB0) vs READ BINARY (BER-TLV) (0xB1).
//
// 2. Reserved Ranges:
//    INS values where the upper nibble is '6' or '9' (0x6X or 0x9X) are invalid.
//    These values are reserved for Status Words (SW1) or transport layer control
//    procedures (ISO/IEC 7816-3).

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Instruction codes of the UICC command set (ETSI TS 102 221, built on ISO/IEC 7816-4).
// Codes below 0x20 that ISO assigns to SCQL and transaction operations are used by the
// UICC for CAT (Card Application Toolkit) commands under the proprietary class.
const (
	INS_DEACTIVATE_FILE      InsCode = 0x04
	INS_TERMINAL_PROFILE     InsCode = 0x10
	INS_FETCH                InsCode = 0x12
	INS_TERMINAL_RESPONSE    InsCode = 0x14
	INS_VERIFY               InsCode = 0x20
	INS_CHANGE_PIN           InsCode = 0x24
	INS_DISABLE_PIN          InsCode = 0x26
	INS_ENABLE_PIN           InsCode = 0x28
	INS_UNBLOCK_PIN          InsCode = 0x2C
	INS_INCREASE             InsCode = 0x32
	INS_ACTIVATE_FILE        InsCode = 0x44
	INS_MANAGE_CHANNEL       InsCode = 0x70
	INS_MANAGE_SECURE_CHAN   InsCode = 0x73
	INS_TRANSACT_DATA        InsCode = 0x75
	INS_GET_CHALLENGE        InsCode = 0x84
	INS_AUTHENTICATE         InsCode = 0x88
	INS_AUTHENTICATE_ODD     InsCode = 0x89
	INS_SEARCH_RECORD        InsCode = 0xA2
	INS_SELECT               InsCode = 0xA4
	INS_READ_BINARY          InsCode = 0xB0
	INS_READ_BINARY_BER      InsCode = 0xB1
	INS_READ_RECORD          InsCode = 0xB2
	INS_GET_RESPONSE         InsCode = 0xC0
	INS_ENVELOPE             InsCode = 0xC2
	INS_RETRIEVE_DATA        InsCode = 0xCB
	INS_UPDATE_BINARY        InsCode = 0xD6
	INS_SET_DATA             InsCode = 0xDB
	INS_UPDATE_RECORD        InsCode = 0xDC
	INS_RESIZE_FILE          InsCode = 0xD4
	INS_CREATE_FILE          InsCode = 0xE0
	INS_DELETE_FILE          InsCode = 0xE4
	INS_TERMINATE_DF         InsCode = 0xE6
	INS_TERMINATE_EF         InsCode = 0xE8
	INS_STATUS               InsCode = 0xF2
	INS_TERMINATE_CARD_USAGE InsCode = 0xFE
)

var insNames = map[InsCode]string{
	INS_DEACTIVATE_FILE:      "INS_DEACTIVATE_FILE",
	INS_TERMINAL_PROFILE:     "INS_TERMINAL_PROFILE",
	INS_FETCH:                "INS_FETCH",
	INS_TERMINAL_RESPONSE:    "INS_TERMINAL_RESPONSE",
	INS_VERIFY:               "INS_VERIFY",
	INS_CHANGE_PIN:           "INS_CHANGE_PIN",
	INS_DISABLE_PIN:          "INS_DISABLE_PIN",
	INS_ENABLE_PIN:           "INS_ENABLE_PIN",
	INS_UNBLOCK_PIN:          "INS_UNBLOCK_PIN",
	INS_INCREASE:             "INS_INCREASE",
	INS_ACTIVATE_FILE:        "INS_ACTIVATE_FILE",
	INS_MANAGE_CHANNEL:       "INS_MANAGE_CHANNEL",
	INS_MANAGE_SECURE_CHAN:   "INS_MANAGE_SECURE_CHAN",
	INS_TRANSACT_DATA:        "INS_TRANSACT_DATA",
	INS_GET_CHALLENGE:        "INS_GET_CHALLENGE",
	INS_AUTHENTICATE:         "INS_AUTHENTICATE",
	INS_AUTHENTICATE_ODD:     "INS_AUTHENTICATE_ODD",
	INS_SEARCH_RECORD:        "INS_SEARCH_RECORD",
	INS_SELECT:               "INS_SELECT",
	INS_READ_BINARY:          "INS_READ_BINARY",
	INS_READ_BINARY_BER:      "INS_READ_BINARY_BER",
	INS_READ_RECORD:          "INS_READ_RECORD",
	INS_GET_RESPONSE:         "INS_GET_RESPONSE",
	INS_ENVELOPE:             "INS_ENVELOPE",
	INS_RETRIEVE_DATA:        "INS_RETRIEVE_DATA",
	INS_UPDATE_BINARY:        "INS_UPDATE_BINARY",
	INS_SET_DATA:             "INS_SET_DATA",
	INS_UPDATE_RECORD:        "INS_UPDATE_RECORD",
	INS_RESIZE_FILE:          "INS_RESIZE_FILE",
	INS_CREATE_FILE:          "INS_CREATE_FILE",
	INS_DELETE_FILE:          "INS_DELETE_FILE",
	INS_TERMINATE_DF:         "INS_TERMINATE_DF",
	INS_TERMINATE_EF:         "INS_TERMINATE_EF",
	INS_STATUS:               "INS_STATUS",
	INS_TERMINATE_CARD_USAGE: "INS_TERMINATE_CARD_USAGE",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(0x%02X)", byte(i))
}

// Command returns the instruction name without its prefix, e.g. "STATUS".
func (i InsCode) Command() string {
	name, ok := insNames[i]
	if !ok {
		return fmt.Sprintf("INS %02X", byte(i))
	}
	return strings.ReplaceAll(strings.TrimPrefix(name, "INS_"), "_", " ")
}

// Instruction represents the parsed ISO 7816-4 Instruction byte (INS).
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction creates an Instruction object with validation.
// It rejects '6X' and '9X' values as they are invalid according to ISO 7816-3.
func NewInstruction(ins InsCode) (Instruction, error) {
	// Validation: values starting with '6' or '9' are invalid for INS.
	highNibble := byte(ins) & 0xF0
	if highNibble == 0x60 || highNibble == 0x90 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", ins)
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1), // Bit 1 indicates BER-TLV preference
	}, nil
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw.String(), format)
}
