/*
Package atr decodes the Answer-to-Reset (ATR) a smart card sends after a cold reset,
according to ISO/IEC 7816-3.

# Structure

An ATR is at most 33 bytes long:

	TS  T0  [TA1 TB1 TC1 TD1]  [TA2 TB2 TC2 TD2]  ...  T1 ... TK  [TCK]

  - TS: initial character. 0x3B announces the direct convention, 0x3F the inverse one.
  - T0: format byte. The high nibble (Y1) flags which of TA1, TB1, TC1 and TD1 follow
    (bits 5, 6, 7 and 8). The low nibble is K, the number of historical bytes.
  - TDi: like T0, its high nibble (Yi+1) flags the bytes of group i+1. Its low nibble
    is a protocol type T. The chain stops at the first group without a TD byte.
  - T1..TK: historical bytes, card-manufacturer defined.
  - TCK: check character, present as soon as a TDi indicates a protocol other than T=0.
    The XOR of T0..TCK is zero on a well formed ATR.

# Scope

Only the direct convention is handled. The checksum is captured but not enforced by
Parse; call VerifyChecksum explicitly when needed.

# Usage

	rec, err := atr.Parse(raw)
	if err != nil {
	    return err // errors.Is(err, atr.ErrTruncated), ...
	}
	if rec.HasTA2() {
	    // specific mode: parameters must not be negotiated
	}
	fmt.Println(rec.Describe())
*/
package atr

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/gregLibert/uicc/pkg/bits"
)

const (
	// MaxLength is the maximum size of an ATR: TS plus up to 32 characters.
	MaxLength = 33

	// MaxGroups bounds the interface byte chain walk.
	MaxGroups = 8

	// DirectConvention is the TS value announcing the direct convention.
	DirectConvention byte = 0x3B

	// InverseConvention is the TS value announcing the inverse convention.
	InverseConvention byte = 0x3F
)

// Convention is the bit convention announced by TS.
type Convention int

const (
	ConventionUnknown Convention = iota
	ConventionDirect
	ConventionInverse
)

func (c Convention) String() string {
	switch c {
	case ConventionDirect:
		return "direct"
	case ConventionInverse:
		return "inverse"
	default:
		return "unknown"
	}
}

// ConventionOf maps a TS byte to its convention.
func ConventionOf(ts byte) Convention {
	switch ts {
	case DirectConvention:
		return ConventionDirect
	case InverseConvention:
		return ConventionInverse
	default:
		return ConventionUnknown
	}
}

// Record is the parsed view of a raw ATR.
type Record struct {
	// Raw is a private copy of the bytes given to Parse.
	Raw []byte

	TS byte
	T0 byte

	// InterfaceBytes lists TA1, TB1, ... in wire order.
	InterfaceBytes []byte
	// Groups holds the same bytes arranged by group (Groups[0] is group 1).
	Groups []Group

	HistoricalBytes []byte

	TCK    byte
	HasTCK bool

	// Extra holds bytes received after the end of the structure.
	Extra []byte
}

// cursor walks the raw buffer and reports truncation with the name of the missing field.
type cursor struct {
	data []byte
	off  int
}

func (c *cursor) next(field string) (byte, error) {
	if c.off >= len(c.data) {
		return 0, &ParseError{Offset: c.off, Field: field, Err: ErrTruncated}
	}
	b := c.data[c.off]
	c.off++
	return b, nil
}

// Parse decodes a raw ATR.
//
// It fails with ErrEmptyResponse when raw is empty, ErrUnsupportedConvention when TS
// is not 0x3B, and ErrTruncated when the buffer ends before the structure announced
// by T0 and the TD bytes. All errors are *ParseError values.
func Parse(raw []byte) (*Record, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Offset: 0, Field: "TS", Err: ErrEmptyResponse}
	}
	if len(raw) > MaxLength {
		return nil, &ParseError{Offset: MaxLength, Field: "ATR", Err: ErrTooLong}
	}

	ts := raw[0]
	if ts != DirectConvention {
		return nil, &ParseError{
			Offset: 0,
			Field:  "TS",
			Err:    fmt.Errorf("%w: %02X (%s convention)", ErrUnsupportedConvention, ts, ConventionOf(ts)),
		}
	}

	rec := &Record{Raw: bytes.Clone(raw), TS: ts}
	cur := &cursor{data: rec.Raw, off: 1}

	t0, err := cur.next("T0")
	if err != nil {
		return nil, err
	}
	rec.T0 = t0

	groups, n, tckRequired, err := scanGroups(cur, bits.HighNibble(t0))
	if err != nil {
		return nil, err
	}
	rec.Groups = append([]Group(nil), groups[:n]...)
	for _, g := range rec.Groups {
		rec.InterfaceBytes = append(rec.InterfaceBytes, g.Bytes()...)
	}

	k := int(bits.LowNibble(t0))
	for i := 1; i <= k; i++ {
		b, err := cur.next(fmt.Sprintf("T%d", i))
		if err != nil {
			return nil, err
		}
		rec.HistoricalBytes = append(rec.HistoricalBytes, b)
	}

	if tckRequired {
		tck, err := cur.next("TCK")
		if err != nil {
			return nil, err
		}
		rec.TCK = tck
		rec.HasTCK = true
	}

	if cur.off < len(rec.Raw) {
		rec.Extra = rec.Raw[cur.off:]
	}

	return rec, nil
}

// scanGroups reads interface byte groups starting with the presence mask y1.
// It returns the filled groups, how many are used, and whether a TD byte
// indicated a protocol other than T=0 (which makes TCK mandatory).
func scanGroups(cur *cursor, y1 byte) ([MaxGroups]Group, int, bool, error) {
	var groups [MaxGroups]Group
	tckRequired := false
	mask := y1
	n := 0

	for mask != 0 {
		if n == MaxGroups {
			return groups, n, false, &ParseError{
				Offset: cur.off,
				Field:  fmt.Sprintf("TD%d", n),
				Err:    ErrTooManyGroups,
			}
		}

		g := &groups[n]
		g.Index = n + 1
		g.Mask = mask

		for _, kind := range kinds {
			if !g.Present(kind) {
				continue
			}
			b, err := cur.next(kind.Name(g.Index))
			if err != nil {
				return groups, n, false, err
			}
			g.values[kind] = b
		}
		n++

		td, ok := g.Byte(TD)
		if !ok {
			break
		}
		if bits.LowNibble(td) != 0 {
			tckRequired = true
		}
		mask = bits.HighNibble(td)
	}

	return groups, n, tckRequired, nil
}

// Convention returns the convention announced by TS.
func (r *Record) Convention() Convention {
	return ConventionOf(r.TS)
}

// HistoricalCount returns K, the number of historical bytes announced by T0.
func (r *Record) HistoricalCount() int {
	return int(bits.LowNibble(r.T0))
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Raw = bytes.Clone(r.Raw)
	c.InterfaceBytes = bytes.Clone(r.InterfaceBytes)
	c.Groups = slices.Clone(r.Groups)
	c.HistoricalBytes = bytes.Clone(r.HistoricalBytes)
	c.Extra = bytes.Clone(r.Extra)
	return &c
}

// VerifyChecksum checks that T0..TCK XOR to zero.
// It returns nil when the ATR carries no TCK.
func (r *Record) VerifyChecksum() error {
	if !r.HasTCK {
		return nil
	}

	end := 2 + len(r.InterfaceBytes) + len(r.HistoricalBytes)
	var sum byte
	for _, b := range r.Raw[1 : end+1] {
		sum ^= b
	}
	if sum != 0 {
		return fmt.Errorf("%w: TCK %02X, residue %02X", ErrChecksumMismatch, r.TCK, sum)
	}
	return nil
}
