package atr

import (
	"fmt"

	"github.com/gregLibert/uicc/pkg/bits"
)

// INTERFACE BYTE GROUPS:
// Group i gathers TAi, TBi, TCi and TDi. Which of them are present is given by a
// 4-bit mask: the high nibble of T0 for group 1, the high nibble of TD(i-1) otherwise.
//
//   mask bit 1 (byte bit 5) -> TAi
//   mask bit 2 (byte bit 6) -> TBi
//   mask bit 3 (byte bit 7) -> TCi
//   mask bit 4 (byte bit 8) -> TDi
//
// TA2 is the "specific mode byte": when present, the card runs in specific mode and
// the interface must not attempt a PPS exchange.

// Kind identifies an interface byte within a group.
type Kind int

const (
	TA Kind = iota
	TB
	TC
	TD
)

var kinds = [...]Kind{TA, TB, TC, TD}

func (k Kind) String() string {
	switch k {
	case TA:
		return "TA"
	case TB:
		return "TB"
	case TC:
		return "TC"
	case TD:
		return "TD"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Name returns the ISO name of the byte in group i, e.g. "TD1".
func (k Kind) Name(group int) string {
	return fmt.Sprintf("%s%d", k, group)
}

// maskBit is the position of the kind within a presence nibble.
func (k Kind) maskBit() uint {
	return uint(k) + 1
}

// Group is one set of interface bytes.
type Group struct {
	// Index is i, starting at 1.
	Index int
	// Mask is the presence nibble that announced this group.
	Mask byte

	values [4]byte
}

// Present reports whether the mask announces the given byte.
func (g Group) Present(k Kind) bool {
	if k < TA || k > TD {
		return false
	}
	return bits.IsSet(g.Mask, k.maskBit())
}

// Byte returns the value of the given byte, if present.
func (g Group) Byte(k Kind) (byte, bool) {
	if !g.Present(k) {
		return 0, false
	}
	return g.values[k], true
}

// Bytes returns the present bytes of the group in wire order.
func (g Group) Bytes() []byte {
	var out []byte
	for _, k := range kinds {
		if b, ok := g.Byte(k); ok {
			out = append(out, b)
		}
	}
	return out
}

// Protocol returns the protocol type T carried by TDi.
func (g Group) Protocol() (int, bool) {
	td, ok := g.Byte(TD)
	if !ok {
		return 0, false
	}
	return int(bits.LowNibble(td)), true
}

// Group returns group i (1-based).
func (r *Record) Group(i int) (Group, bool) {
	if i < 1 || i > len(r.Groups) {
		return Group{}, false
	}
	return r.Groups[i-1], true
}

// InterfaceByte returns the byte of the given kind in group i, e.g. (TA, 2) for TA2.
func (r *Record) InterfaceByte(k Kind, i int) (byte, bool) {
	g, ok := r.Group(i)
	if !ok {
		return 0, false
	}
	return g.Byte(k)
}

// HasTA2 reports whether TA2 is present.
//
// T0 must announce TD1 (bit 8), and TD1 must announce TA2 (bit 5). TD1 sits after
// as many interface bytes as bits 5 to 8 of T0 are set.
func (r *Record) HasTA2() bool {
	if !bits.IsSet(r.T0, 8) {
		return false
	}
	_, ok := r.InterfaceByte(TA, 2)
	return ok
}

// Protocols lists the protocol types offered by the card, in TD order.
// T=15 only qualifies global bytes and is not listed. Without TD1, T=0 is implied.
func (r *Record) Protocols() []int {
	var out []int
	seen := make(map[int]bool)

	for _, g := range r.Groups {
		t, ok := g.Protocol()
		if !ok || t == 15 || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}

	if len(out) == 0 {
		return []int{0}
	}
	return out
}

// Clock rate conversion factors (Fi) and baud rate adjustment factors (Di)
// indexed by the nibbles of TA1. Zero marks an RFU value.
var (
	fiTable = [16]int{372, 372, 558, 744, 1116, 1488, 1860, 0, 0, 512, 768, 1024, 1536, 2048, 0, 0}
	diTable = [16]int{0, 1, 2, 4, 8, 16, 32, 64, 12, 20, 0, 0, 0, 0, 0, 0}
)

// FiDi decodes TA1. Without TA1 the default values Fi=372, Di=1 apply.
// ok is false when TA1 carries an RFU value.
func (r *Record) FiDi() (fi, di int, ok bool) {
	ta1, present := r.InterfaceByte(TA, 1)
	if !present {
		return 372, 1, true
	}
	return decodeFiDi(ta1)
}

func decodeFiDi(ta1 byte) (int, int, bool) {
	fi := fiTable[bits.HighNibble(ta1)]
	di := diTable[bits.LowNibble(ta1)]
	return fi, di, fi != 0 && di != 0
}
