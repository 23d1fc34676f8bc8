package iso7816

import (
	"fmt"

	"github.com/gregLibert/uicc/pkg/bits"
)

// STATUS CONDITIONS (ETSI TS 102 221, 10.2.1):
// Every response ends with SW1 SW2. Besides fixed codes, some carry a count in SW2:
//
//	'61XX'  XX response bytes available, fetch them with GET RESPONSE
//	'6CXX'  wrong Le, resend with Le = XX
//	'91XX'  normal ending, a proactive command of XX bytes is pending (FETCH)
//	'92XX'  normal ending after XX internal retries
//	'63CX'  verification failed, X retries left
//	'67XX'  wrong P3, XX other than 00
//	'9FXX'  GSM: XX response bytes available
//
// SW1 alone gives the category when the code is not listed.

// StatusWord is SW1 SW2.
type StatusWord uint16

// NewStatusWord combines SW1 and SW2.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(sw1)<<8 | StatusWord(sw2)
}

func (sw StatusWord) SW1() byte { return byte(sw >> 8) }
func (sw StatusWord) SW2() byte { return byte(sw) }

// Status words of the UICC command set.
const (
	SW_NO_ERROR     StatusWord = 0x9000
	SW_TOOLKIT_BUSY StatusWord = 0x9300

	SW_WARN_NO_INFO               StatusWord = 0x6200
	SW_WARN_DATA_CORRUPTED        StatusWord = 0x6281
	SW_WARN_EOF_REACHED           StatusWord = 0x6282
	SW_WARN_FILE_INVALIDATED      StatusWord = 0x6283
	SW_WARN_TERMINATION_STATE     StatusWord = 0x6285
	SW_WARN_MORE_DATA             StatusWord = 0x62F1
	SW_WARN_MORE_DATA_PROACTIVE   StatusWord = 0x62F2
	SW_WARN_RESPONSE_AVAILABLE    StatusWord = 0x62F3
	SW_WARN_MORE_DATA_EXPECTED    StatusWord = 0x63F1
	SW_WARN_MORE_EXPECTED_PROACTV StatusWord = 0x63F2

	SW_ERR_EXEC_NO_INFO       StatusWord = 0x6400
	SW_ERR_NV_CHANGED_NO_INFO StatusWord = 0x6500
	SW_ERR_MEMORY_PROBLEM     StatusWord = 0x6581

	SW_ERR_WRONG_LENGTH StatusWord = 0x6700

	SW_ERR_CLA_FUNCTION_NO_INFO     StatusWord = 0x6800
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP StatusWord = 0x6881
	SW_ERR_SECURE_MESSAGING_NOTSUPP StatusWord = 0x6882

	SW_ERR_CMD_NOT_ALLOWED_NO_INFO StatusWord = 0x6900
	SW_ERR_CMD_INCOMPATIBLE_FILE   StatusWord = 0x6981
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_REF_DATA_INVALIDATED    StatusWord = 0x6984
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985
	SW_ERR_NO_EF_SELECTED          StatusWord = 0x6986
	SW_ERR_SECURE_CHANNEL_NOT_SAT  StatusWord = 0x6989

	SW_ERR_INCORRECT_PARAMS_DATA StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED    StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND        StatusWord = 0x6A82
	SW_ERR_RECORD_NOT_FOUND      StatusWord = 0x6A83
	SW_ERR_NOT_ENOUGH_MEMORY     StatusWord = 0x6A84
	SW_ERR_INCORRECT_P1P2        StatusWord = 0x6A86
	SW_ERR_LC_INCONSISTENT_P1P2  StatusWord = 0x6A87
	SW_ERR_REF_DATA_NOT_FOUND    StatusWord = 0x6A88

	SW_ERR_WRONG_P1P2        StatusWord = 0x6B00
	SW_ERR_INS_NOT_SUPPORTED StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED StatusWord = 0x6E00
	SW_ERR_TECHNICAL_PROBLEM StatusWord = 0x6F00

	SW_ERR_AUTH_INCORRECT_MAC    StatusWord = 0x9862
	SW_ERR_SESSION_EXPIRED       StatusWord = 0x9863
	SW_ERR_AUTH_CONTEXT_UNSUPP   StatusWord = 0x9864
	SW_ERR_KEY_FRESHNESS_FAILURE StatusWord = 0x9865
	SW_ERR_AUTH_NO_MEMORY        StatusWord = 0x9866
	SW_ERR_AUTH_NO_MEMORY_MUK    StatusWord = 0x9867
)

type swEntry struct {
	name string
	text string
}

var statusTable = map[StatusWord]swEntry{
	SW_NO_ERROR:     {"SW_NO_ERROR", "Normal ending of the command"},
	SW_TOOLKIT_BUSY: {"SW_TOOLKIT_BUSY", "UICC is busy, toolkit command cannot be executed"},

	SW_WARN_NO_INFO:               {"SW_WARN_NO_INFO", "Warning, no information given"},
	SW_WARN_DATA_CORRUPTED:        {"SW_WARN_DATA_CORRUPTED", "Part of returned data may be corrupted"},
	SW_WARN_EOF_REACHED:           {"SW_WARN_EOF_REACHED", "End of file reached before reading Le bytes"},
	SW_WARN_FILE_INVALIDATED:      {"SW_WARN_FILE_INVALIDATED", "Selected file invalidated"},
	SW_WARN_TERMINATION_STATE:     {"SW_WARN_TERMINATION_STATE", "Selected file in termination state"},
	SW_WARN_MORE_DATA:             {"SW_WARN_MORE_DATA", "More data available"},
	SW_WARN_MORE_DATA_PROACTIVE:   {"SW_WARN_MORE_DATA_PROACTIVE", "More data available and proactive command pending"},
	SW_WARN_RESPONSE_AVAILABLE:    {"SW_WARN_RESPONSE_AVAILABLE", "Response data available"},
	SW_WARN_MORE_DATA_EXPECTED:    {"SW_WARN_MORE_DATA_EXPECTED", "More data expected"},
	SW_WARN_MORE_EXPECTED_PROACTV: {"SW_WARN_MORE_EXPECTED_PROACTV", "More data expected and proactive command pending"},

	SW_ERR_EXEC_NO_INFO:       {"SW_ERR_EXEC_NO_INFO", "Execution error, memory unchanged"},
	SW_ERR_NV_CHANGED_NO_INFO: {"SW_ERR_NV_CHANGED_NO_INFO", "Execution error, memory changed"},
	SW_ERR_MEMORY_PROBLEM:     {"SW_ERR_MEMORY_PROBLEM", "Memory problem"},

	SW_ERR_WRONG_LENGTH: {"SW_ERR_WRONG_LENGTH", "Wrong length"},

	SW_ERR_CLA_FUNCTION_NO_INFO:     {"SW_ERR_CLA_FUNCTION_NO_INFO", "Function in CLA not supported"},
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP: {"SW_ERR_LOGICAL_CHANNEL_NOT_SUPP", "Logical channel not supported"},
	SW_ERR_SECURE_MESSAGING_NOTSUPP: {"SW_ERR_SECURE_MESSAGING_NOTSUPP", "Secure messaging not supported"},

	SW_ERR_CMD_NOT_ALLOWED_NO_INFO: {"SW_ERR_CMD_NOT_ALLOWED_NO_INFO", "Command not allowed"},
	SW_ERR_CMD_INCOMPATIBLE_FILE:   {"SW_ERR_CMD_INCOMPATIBLE_FILE", "Command incompatible with file structure"},
	SW_ERR_SECURITY_STATUS_NOT_SAT: {"SW_ERR_SECURITY_STATUS_NOT_SAT", "Security status not satisfied"},
	SW_ERR_AUTH_METHOD_BLOCKED:     {"SW_ERR_AUTH_METHOD_BLOCKED", "Authentication/PIN method blocked"},
	SW_ERR_REF_DATA_INVALIDATED:    {"SW_ERR_REF_DATA_INVALIDATED", "Referenced data invalidated"},
	SW_ERR_COND_OF_USE_NOT_SAT:     {"SW_ERR_COND_OF_USE_NOT_SAT", "Conditions of use not satisfied"},
	SW_ERR_NO_EF_SELECTED:          {"SW_ERR_NO_EF_SELECTED", "Command not allowed, no EF selected"},
	SW_ERR_SECURE_CHANNEL_NOT_SAT:  {"SW_ERR_SECURE_CHANNEL_NOT_SAT", "Secure channel security not satisfied"},

	SW_ERR_INCORRECT_PARAMS_DATA: {"SW_ERR_INCORRECT_PARAMS_DATA", "Incorrect parameters in the data field"},
	SW_ERR_FUNC_NOT_SUPPORTED:    {"SW_ERR_FUNC_NOT_SUPPORTED", "Function not supported"},
	SW_ERR_FILE_NOT_FOUND:        {"SW_ERR_FILE_NOT_FOUND", "File or application not found"},
	SW_ERR_RECORD_NOT_FOUND:      {"SW_ERR_RECORD_NOT_FOUND", "Record not found"},
	SW_ERR_NOT_ENOUGH_MEMORY:     {"SW_ERR_NOT_ENOUGH_MEMORY", "Not enough memory space"},
	SW_ERR_INCORRECT_P1P2:        {"SW_ERR_INCORRECT_P1P2", "Incorrect parameters P1 to P2"},
	SW_ERR_LC_INCONSISTENT_P1P2:  {"SW_ERR_LC_INCONSISTENT_P1P2", "Lc inconsistent with P1 to P2"},
	SW_ERR_REF_DATA_NOT_FOUND:    {"SW_ERR_REF_DATA_NOT_FOUND", "Referenced data not found"},

	SW_ERR_WRONG_P1P2:        {"SW_ERR_WRONG_P1P2", "Incorrect parameter P1 or P2"},
	SW_ERR_INS_NOT_SUPPORTED: {"SW_ERR_INS_NOT_SUPPORTED", "Instruction code not supported or invalid"},
	SW_ERR_CLA_NOT_SUPPORTED: {"SW_ERR_CLA_NOT_SUPPORTED", "Class not supported"},
	SW_ERR_TECHNICAL_PROBLEM: {"SW_ERR_TECHNICAL_PROBLEM", "Technical problem, no precise diagnosis"},

	SW_ERR_AUTH_INCORRECT_MAC:    {"SW_ERR_AUTH_INCORRECT_MAC", "Authentication error, incorrect MAC"},
	SW_ERR_SESSION_EXPIRED:       {"SW_ERR_SESSION_EXPIRED", "Security session or association expired"},
	SW_ERR_AUTH_CONTEXT_UNSUPP:   {"SW_ERR_AUTH_CONTEXT_UNSUPP", "Authentication error, security context not supported"},
	SW_ERR_KEY_FRESHNESS_FAILURE: {"SW_ERR_KEY_FRESHNESS_FAILURE", "Key freshness failure"},
	SW_ERR_AUTH_NO_MEMORY:        {"SW_ERR_AUTH_NO_MEMORY", "Authentication error, no memory space available"},
	SW_ERR_AUTH_NO_MEMORY_MUK:    {"SW_ERR_AUTH_NO_MEMORY_MUK", "Authentication error, no memory space available in EF_MUK"},
}

var categories = map[byte]string{
	0x62: "Warning, memory unchanged",
	0x63: "Warning, memory changed",
	0x64: "Execution error, memory unchanged",
	0x65: "Execution error, memory changed",
	0x66: "Execution error, security related",
	0x68: "Function in CLA not supported",
	0x69: "Command not allowed",
	0x6A: "Wrong parameters",
	0x6F: "Technical problem",
	0x98: "Security management error",
}

// IsSuccess reports a normal ending: '9000', '91XX', '92XX', or '61XX' with data pending.
func (sw StatusWord) IsSuccess() bool {
	switch sw.SW1() {
	case 0x61, 0x91, 0x92:
		return true
	}
	return sw == SW_NO_ERROR
}

// IsWarning reports a '62XX' or '63XX' status.
func (sw StatusWord) IsWarning() bool {
	return sw.SW1() == 0x62 || sw.SW1() == 0x63
}

// IsError reports an execution, checking or security error.
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return (sw1 >= 0x64 && sw1 <= 0x6F) || sw1 == 0x98
}

// RetriesLeft returns X of a '63CX' status.
func (sw StatusWord) RetriesLeft() (int, bool) {
	if sw.SW1() != 0x63 || bits.HighNibble(sw.SW2()) != 0x0C {
		return 0, false
	}
	return int(bits.LowNibble(sw.SW2())), true
}

// Verbose describes the status word, e.g. "[6A83] Record not found".
func (sw StatusWord) Verbose() string {
	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.text())
}

func (sw StatusWord) text() string {
	if e, ok := statusTable[sw]; ok {
		return e.text
	}

	sw1, sw2 := sw.SW1(), sw.SW2()
	if n, ok := sw.RetriesLeft(); ok {
		return fmt.Sprintf("Verification failed, %d retries left", n)
	}
	switch sw1 {
	case 0x61:
		return fmt.Sprintf("%d response bytes available", shortNe(sw2))
	case 0x6C:
		return fmt.Sprintf("Wrong Le, %d bytes available", shortNe(sw2))
	case 0x67:
		return "Incorrect parameter P3"
	case 0x91:
		return fmt.Sprintf("Normal ending, proactive command of %d bytes pending", sw2)
	case 0x92:
		return fmt.Sprintf("Normal ending after %d internal retries", sw2)
	case 0x9F:
		return fmt.Sprintf("%d response bytes available (GSM)", sw2)
	}
	if c, ok := categories[sw1]; ok {
		return c
	}
	return "Unknown status"
}

func (sw StatusWord) String() string {
	if e, ok := statusTable[sw]; ok {
		return e.name
	}
	return fmt.Sprintf("StatusWord(0x%04X)", uint16(sw))
}
