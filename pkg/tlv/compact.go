package tlv

import (
	"errors"
	"fmt"
)

// HISTORICAL BYTES (ISO/IEC 7816-4, 12.1.1):
// The first historical byte is a category indicator.
//
//	'00'  COMPACT-TLV objects, then a 3-byte status indicator (LCS SW1 SW2) as the last bytes.
//	'80'  COMPACT-TLV objects, the status indicator being an optional object '8X'.
//	'10'  a single DIR data reference follows.
//
// Other values are proprietary. A COMPACT-TLV object is a header byte whose high nibble
// is the tag and low nibble the length, followed by that many bytes: '31 E0' is tag 3
// (card service data) holding E0.

// Category indicators.
const (
	CategoryStatusLast byte = 0x00
	CategoryDIRRef     byte = 0x10
	CategoryCompact    byte = 0x80
)

// COMPACT-TLV tags found in historical bytes.
const (
	TagCountryCode    byte = 0x1
	TagIssuerID       byte = 0x2
	TagCardService    byte = 0x3
	TagInitialAccess  byte = 0x4
	TagIssuerData     byte = 0x5
	TagPreIssuing     byte = 0x6
	TagCapabilities   byte = 0x7
	TagStatusIndicate byte = 0x8
	TagApplicationID  byte = 0xF
)

var (
	ErrCompactTruncated = errors.New("COMPACT-TLV object overruns the historical bytes")
	ErrNoStatus         = errors.New("historical bytes too short for the status indicator")
)

var compactNames = map[byte]string{
	TagCountryCode:    "Country code",
	TagIssuerID:       "Issuer identification",
	TagCardService:    "Card service data",
	TagInitialAccess:  "Initial access data",
	TagIssuerData:     "Card issuer's data",
	TagPreIssuing:     "Pre-issuing data",
	TagCapabilities:   "Card capabilities",
	TagStatusIndicate: "Status indicator",
	TagApplicationID:  "Application identifier",
}

// CompactObject is one COMPACT-TLV data object.
type CompactObject struct {
	Tag   byte
	Value []byte
}

// Name returns the ISO name of the tag.
func (o CompactObject) Name() string {
	if n, ok := compactNames[o.Tag]; ok {
		return n
	}
	return fmt.Sprintf("Tag %X", o.Tag)
}

// Historical is the decoded content of the historical bytes.
type Historical struct {
	Category byte
	Objects  []CompactObject

	// Status is the status indicator: LCS, SW1 SW2, or LCS SW1 SW2.
	Status []byte

	// Proprietary holds the bytes after a category indicator this package does not decode.
	Proprietary []byte
}

// ParseHistorical decodes historical bytes. It returns nil for an empty input.
func ParseHistorical(b []byte) (*Historical, error) {
	if len(b) == 0 {
		return nil, nil
	}

	h := &Historical{Category: b[0]}
	body := b[1:]

	switch h.Category {
	case CategoryStatusLast:
		if len(body) < 3 {
			return h, ErrNoStatus
		}
		h.Status = body[len(body)-3:]
		body = body[:len(body)-3]
	case CategoryCompact:
	default:
		h.Proprietary = body
		return h, nil
	}

	objs, err := ParseCompact(body)
	if err != nil {
		return h, err
	}
	for _, o := range objs {
		if h.Category == CategoryCompact && o.Tag == TagStatusIndicate {
			h.Status = o.Value
			continue
		}
		h.Objects = append(h.Objects, o)
	}
	return h, nil
}

// ParseCompact splits b into COMPACT-TLV objects.
func ParseCompact(b []byte) ([]CompactObject, error) {
	var objs []CompactObject
	for len(b) > 0 {
		tag, n := b[0]>>4, int(b[0]&0x0F)
		if 1+n > len(b) {
			return objs, fmt.Errorf("%w: tag %X wants %d bytes, %d left", ErrCompactTruncated, tag, n, len(b)-1)
		}
		objs = append(objs, CompactObject{Tag: tag, Value: b[1 : 1+n]})
		b = b[1+n:]
	}
	return objs, nil
}

// Describe renders the historical bytes as report lines, each starting with indent.
func (h *Historical) Describe(indent string) []string {
	var out []string
	switch h.Category {
	case CategoryStatusLast:
		out = append(out, indent+"Category: 00 -> COMPACT-TLV, status indicator last")
	case CategoryCompact:
		out = append(out, indent+"Category: 80 -> COMPACT-TLV")
	case CategoryDIRRef:
		out = append(out, fmt.Sprintf("%sCategory: 10 -> DIR data reference %X", indent, h.Proprietary))
		return out
	default:
		out = append(out, fmt.Sprintf("%sCategory: %02X -> proprietary %X", indent, h.Category, h.Proprietary))
		return out
	}

	for _, o := range h.Objects {
		out = append(out, fmt.Sprintf("%s%X%X %s: %X", indent, o.Tag, len(o.Value), o.Name(), o.Value))
	}
	if len(h.Status) > 0 {
		out = append(out, fmt.Sprintf("%sStatus: %X", indent, h.Status))
	}
	return out
}
