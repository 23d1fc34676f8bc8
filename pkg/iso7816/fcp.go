package iso7816

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/uicc/pkg/bits"
	"github.com/gregLibert/uicc/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// FILE CONTROL PARAMETERS (ETSI TS 102 221, 11.1.1.3):
// SELECT with P2 '04' and STATUS with P2 '00' answer with the FCP template '62' of the
// file (SELECT) or current DF (STATUS). STATUS with P2 '01' returns only the DF name
// object '84' of the current application.

var ErrNoFCP = errors.New("FCP template (tag 62) not found")

// FCP is the File Control Parameters template.
type FCP struct {
	FileSize          []byte `tlv:"80" fmt:"int"`
	TotalFileSize     []byte `tlv:"81" fmt:"int"`
	FileDescriptor    []byte `tlv:"82"`
	FileIdentifier    []byte `tlv:"83"`
	DFName            []byte `tlv:"84"`
	SFI               []byte `tlv:"88"`
	LifeCycleStatus   []byte `tlv:"8A"`
	SecurityReference []byte `tlv:"8B"`
	SecurityCompact   []byte `tlv:"8C"`
	SecurityExpanded  []byte `tlv:"AB"`
	ProprietaryInfo   []byte `tlv:"A5"`
	PINStatus         []byte `tlv:"C6"`

	Rest []bertlv.TLV `tlv:",rest"`
}

// ParseFCP decodes a '62' template.
func ParseFCP(data []byte) (*FCP, error) {
	objs, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("FCP: %w", err)
	}
	tmpl, ok := tlv.Find(objs, "62")
	if !ok {
		return nil, ErrNoFCP
	}

	fcp := &FCP{}
	if err := tlv.DecodeObjects(tmpl.TLVs, fcp); err != nil {
		return nil, fmt.Errorf("FCP: %w", err)
	}
	return fcp, nil
}

// ParseStatusData decodes a STATUS answer according to the P2 it was sent with.
// P2 '01' yields an FCP holding only DFName; P2 '0C' yields nil.
func ParseStatusData(data []byte, p2 StatusContent) (*FCP, error) {
	switch p2 {
	case StatusReturnFCP:
		return ParseFCP(data)
	case StatusReturnDFName:
		fcp := &FCP{}
		if err := tlv.Decode(data, fcp); err != nil {
			return nil, err
		}
		if len(fcp.DFName) == 0 {
			return nil, fmt.Errorf("DF name (tag 84) not found")
		}
		return fcp, nil
	case StatusReturnNoData:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported STATUS P2 %02X", byte(p2))
}

// FileType is the kind of file a descriptor announces.
type FileType int

const (
	WorkingEF FileType = iota
	InternalEF
	DF
)

func (t FileType) String() string {
	switch t {
	case WorkingEF:
		return "working EF"
	case InternalEF:
		return "internal EF"
	case DF:
		return "DF or ADF"
	}
	return fmt.Sprintf("FileType(%d)", int(t))
}

// EFStructure is the structure of an EF.
type EFStructure int

const (
	NoStructure EFStructure = iota
	Transparent
	LinearFixed
	Cyclic
	BERTLVStructure
)

func (s EFStructure) String() string {
	switch s {
	case NoStructure:
		return "no structure"
	case Transparent:
		return "transparent"
	case LinearFixed:
		return "linear fixed"
	case Cyclic:
		return "cyclic"
	case BERTLVStructure:
		return "BER-TLV"
	}
	return fmt.Sprintf("EFStructure(%d)", int(s))
}

// Descriptor is the decoded file descriptor ('82').
type Descriptor struct {
	Type      FileType
	Structure EFStructure
	Shareable bool

	// RecordLength and Records are set for linear fixed and cyclic EFs.
	RecordLength int
	Records      int
}

// Descriptor decodes the file descriptor byte and, for record EFs, the record geometry.
func (f *FCP) Descriptor() (Descriptor, error) {
	fd := f.FileDescriptor
	if len(fd) == 0 {
		return Descriptor{}, fmt.Errorf("no file descriptor")
	}
	b := fd[0]
	if bits.IsSet(b, 8) {
		return Descriptor{}, fmt.Errorf("file descriptor byte %02X is RFU", b)
	}

	d := Descriptor{Shareable: bits.IsSet(b, 7)}
	kind, structure := bits.GetRange(b, 6, 4), bits.GetRange(b, 3, 1)

	switch {
	case kind == 0b111 && structure == 0b000:
		d.Type = DF
		return d, nil
	case kind == 0b111 && structure == 0b001:
		d.Type, d.Structure = WorkingEF, BERTLVStructure
		return d, nil
	case kind == 0b000:
		d.Type = WorkingEF
	case kind == 0b001:
		d.Type = InternalEF
	default:
		return Descriptor{}, fmt.Errorf("file descriptor byte %02X: unknown file type", b)
	}

	switch structure {
	case 0b001:
		d.Structure = Transparent
	case 0b010:
		d.Structure = LinearFixed
	case 0b110:
		d.Structure = Cyclic
	default:
		return Descriptor{}, fmt.Errorf("file descriptor byte %02X: unknown EF structure", b)
	}

	if d.Structure != Transparent {
		if len(fd) < 5 {
			return d, fmt.Errorf("record EF descriptor too short: %d bytes", len(fd))
		}
		d.RecordLength = int(fd[2])<<8 | int(fd[3])
		d.Records = int(fd[4])
	}
	return d, nil
}

func (d Descriptor) String() string {
	var parts []string
	if d.Type == DF {
		parts = append(parts, d.Type.String())
	} else {
		parts = append(parts, fmt.Sprintf("%s, %s", d.Type, d.Structure))
	}
	if d.Shareable {
		parts = append(parts, "shareable")
	}
	if d.Records > 0 {
		parts = append(parts, fmt.Sprintf("%d records of %d bytes", d.Records, d.RecordLength))
	}
	return strings.Join(parts, ", ")
}

// LifeCycle decodes the life cycle status integer ('8A').
func (f *FCP) LifeCycle() string {
	if len(f.LifeCycleStatus) == 0 {
		return ""
	}
	lcs := f.LifeCycleStatus[0]
	switch {
	case lcs == 0x00:
		return "No information given"
	case lcs == 0x01:
		return "Creation state"
	case lcs == 0x03:
		return "Initialisation state"
	case lcs&0xFC == 0x04 && bits.IsSet(lcs, 1):
		return "Operational state, activated"
	case lcs&0xFC == 0x04:
		return "Operational state, deactivated"
	case lcs&0xFC == 0x0C:
		return "Termination state"
	}
	return fmt.Sprintf("Proprietary (%02X)", lcs)
}

// PIN is one key reference of the PIN status template ('C6').
type PIN struct {
	Reference byte
	Enabled   bool
}

func (p PIN) String() string {
	state := "disabled"
	if p.Enabled {
		state = "enabled"
	}
	return fmt.Sprintf("%s (%02X) %s", keyReferenceName(p.Reference), p.Reference, state)
}

func keyReferenceName(ref byte) string {
	switch {
	case ref >= 0x01 && ref <= 0x08:
		return fmt.Sprintf("PIN Appl %d", ref)
	case ref >= 0x0A && ref <= 0x0E:
		return fmt.Sprintf("ADM%d", ref-0x09)
	case ref == 0x11:
		return "Universal PIN"
	case ref >= 0x81 && ref <= 0x88:
		return fmt.Sprintf("Second PIN Appl %d", ref-0x80)
	}
	return "Key"
}

// PINs decodes the PIN status template: the PS_DO ('90') bitmap flags, in order, the key
// references ('83') that follow it, the first one on b8.
func (f *FCP) PINs() ([]PIN, error) {
	if len(f.PINStatus) == 0 {
		return nil, nil
	}
	objs, err := bertlv.Decode(f.PINStatus)
	if err != nil {
		return nil, fmt.Errorf("PIN status template: %w", err)
	}

	var psdo []byte
	var pins []PIN
	for _, o := range objs {
		switch strings.ToUpper(o.Tag) {
		case "90":
			psdo = o.Value
		case "83":
			if len(o.Value) != 1 {
				return nil, fmt.Errorf("key reference of %d bytes", len(o.Value))
			}
			i := len(pins)
			enabled := i/8 < len(psdo) && bits.IsSet(psdo[i/8], uint(8-i%8))
			pins = append(pins, PIN{Reference: o.Value[0], Enabled: enabled})
		}
	}
	return pins, nil
}

// Lines renders the template fields, then the decoded descriptor, life cycle and PINs.
func (f *FCP) Lines() []string {
	lines := tlv.Lines("FCP", f)
	if d, err := f.Descriptor(); err == nil {
		lines = append(lines, "    - File: "+d.String())
	}
	if lc := f.LifeCycle(); lc != "" {
		lines = append(lines, "    - Life cycle: "+lc)
	}
	if pins, err := f.PINs(); err == nil {
		for _, p := range pins {
			lines = append(lines, "    - PIN: "+p.String())
		}
	}
	return lines
}
