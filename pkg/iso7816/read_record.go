package iso7816

import "fmt"

// READ RECORD (ETSI TS 102 221, 11.1.5, INS 'B2'):
// Reads one record of a linear fixed or cyclic EF.
//
//	P1  record number, '00' meaning the current record
//	P2  b8-b4 SFI ('00' for the current EF), b3-b1 mode:
//	    '010' next record, '011' previous record, '100' absolute/current (P1)
//
// Le '00' asks for the whole record; under T=0 the card may answer '6CXX' with the
// record length instead.

// ReadRecordMode is b3-b1 of P2.
type ReadRecordMode byte

const (
	ReadNext     ReadRecordMode = 0b010
	ReadPrevious ReadRecordMode = 0b011
	ReadAbsolute ReadRecordMode = 0b100
)

func (m ReadRecordMode) String() string {
	switch m {
	case ReadNext:
		return "next record"
	case ReadPrevious:
		return "previous record"
	case ReadAbsolute:
		return "absolute/current"
	}
	return fmt.Sprintf("ReadRecordMode(0b%03b)", byte(m))
}

// NewReadRecordCommand builds a READ RECORD on the EF referenced by sfi.
func NewReadRecordCommand(cla Class, sfi byte, p1 byte, mode ReadRecordMode) *CommandAPDU {
	ins, _ := NewInstruction(INS_READ_RECORD)
	return NewCommandAPDU(cla, ins, p1, sfi<<3|byte(mode), nil, MaxShortNe)
}

// ReadRecord reads record n of the EF referenced by sfi.
func ReadRecord(cla Class, sfi byte, n byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, n, ReadAbsolute)
}
