package iso7816

import "fmt"

// SELECT (ETSI TS 102 221, 11.1.1, INS 'A4'):
//
//	P1  '00' by file identifier, '01' child DF, '03' parent DF, '04' by DF name (AID),
//	    '08' path from the MF, '09' path from the current DF
//	P2  b4-b3 '01' return the FCP, '11' return nothing.
//	    Selecting by AID also uses b8-b7 ('00' activate, '10' terminate the application)
//	    and b2-b1 (first, last, next or previous occurrence of a partial AID).

// SelectionMethod is P1.
type SelectionMethod byte

const (
	SelectByFileID          SelectionMethod = 0x00
	SelectChildDF           SelectionMethod = 0x01
	SelectParentDF          SelectionMethod = 0x03
	SelectByDFName          SelectionMethod = 0x04
	SelectPathFromMF        SelectionMethod = 0x08
	SelectPathFromCurrentDF SelectionMethod = 0x09
)

func (m SelectionMethod) String() string {
	switch m {
	case SelectByFileID:
		return "by file identifier"
	case SelectChildDF:
		return "child DF"
	case SelectParentDF:
		return "parent DF"
	case SelectByDFName:
		return "by DF name (AID)"
	case SelectPathFromMF:
		return "path from MF"
	case SelectPathFromCurrentDF:
		return "path from current DF"
	}
	return fmt.Sprintf("SelectionMethod(0x%02X)", byte(m))
}

// Selection P2 bits.
const (
	SelectReturnFCP    byte = 0x04
	SelectReturnNoData byte = 0x0C

	SelectActivate  byte = 0x00
	SelectTerminate byte = 0x40

	SelectFirst    byte = 0x00
	SelectLast     byte = 0x01
	SelectNext     byte = 0x02
	SelectPrevious byte = 0x03
)

// DescribeSelectP2 names the P2 bits a UICC honours.
func DescribeSelectP2(p2 byte) string {
	data := "FCP"
	if p2&0x0C == SelectReturnNoData {
		data = "no data"
	}
	session := "activate"
	if p2&0xC0 == SelectTerminate {
		session = "terminate"
	}
	occ := [...]string{"first", "last", "next", "previous"}[p2&0x03]
	return fmt.Sprintf("return %s, %s, %s occurrence", data, session, occ)
}

// NewSelectCommand builds a SELECT. Asking for the FCP makes it case 4 with Le '00'.
func NewSelectCommand(cla Class, method SelectionMethod, p2 byte, data []byte) *CommandAPDU {
	ins, _ := NewInstruction(INS_SELECT)
	ne := 0
	if p2&0x0C == SelectReturnFCP {
		ne = MaxShortNe
	}
	return NewCommandAPDU(cla, ins, byte(method), p2, data, ne)
}

// MasterFile is the file identifier of the MF.
const MasterFile uint16 = 0x3F00

// SelectFile selects fid and asks for its FCP.
func SelectFile(cla Class, fid uint16) *CommandAPDU {
	return NewSelectCommand(cla, SelectByFileID, SelectReturnFCP, []byte{byte(fid >> 8), byte(fid)})
}

// SelectMF selects the Master File.
func SelectMF(cla Class) *CommandAPDU {
	return SelectFile(cla, MasterFile)
}

// SelectByAID activates the application named by aid, e.g. the USIM ADF listed in EF_DIR.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, SelectReturnFCP|SelectActivate|SelectFirst, aid)
}

// SelectPath selects a file by its path from the MF, the MF itself ('3F00') left out.
func SelectPath(cla Class, path ...uint16) *CommandAPDU {
	data := make([]byte, 0, 2*len(path))
	for _, fid := range path {
		data = append(data, byte(fid>>8), byte(fid))
	}
	return NewSelectCommand(cla, SelectPathFromMF, SelectReturnFCP, data)
}
