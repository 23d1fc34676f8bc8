package atr

import (
	"fmt"
	"strings"

	"github.com/gregLibert/uicc/pkg/bits"
	"github.com/gregLibert/uicc/pkg/tlv"
)

// Describe generates a character-by-character report of the ATR.
func (r *Record) Describe() string {
	var lines []string
	add := func(label, value string) {
		lines = append(lines, fmt.Sprintf("    + %-5s %s", label+":", value))
	}

	lines = append(lines, "=== ANSWER-TO-RESET REPORT ===")
	add("Raw", fmt.Sprintf("%X", r.Raw))
	add("TS", fmt.Sprintf("%02X -> %s convention", r.TS, r.Convention()))
	add("T0", fmt.Sprintf("%02X -> Y1=%s, K=%d", r.T0, bits.Nibble(bits.HighNibble(r.T0)), r.HistoricalCount()))

	for _, g := range r.Groups {
		for _, k := range kinds {
			b, ok := g.Byte(k)
			if !ok {
				continue
			}
			add(k.Name(g.Index), describeInterfaceByte(k, g.Index, b))
		}
	}

	if len(r.HistoricalBytes) == 0 {
		lines = append(lines, "    + Historical: (none)")
	} else {
		lines = append(lines, fmt.Sprintf("    + Historical: %X (%q)", r.HistoricalBytes, tlv.Printable(r.HistoricalBytes)))
		h, err := tlv.ParseHistorical(r.HistoricalBytes)
		if h != nil {
			lines = append(lines, h.Describe("      ")...)
		}
		if err != nil {
			lines = append(lines, fmt.Sprintf("      (!) %v", err))
		}
	}

	if r.HasTCK {
		add("TCK", fmt.Sprintf("%02X", r.TCK))
	}
	if len(r.Extra) > 0 {
		add("Extra", fmt.Sprintf("%X", r.Extra))
	}

	protocols := make([]string, 0, 2)
	for _, t := range r.Protocols() {
		protocols = append(protocols, fmt.Sprintf("T=%d", t))
	}
	lines = append(lines, fmt.Sprintf("    + Protocols: %s", strings.Join(protocols, ", ")))

	return strings.Join(lines, "\n")
}

func describeInterfaceByte(k Kind, group int, b byte) string {
	switch {
	case k == TD:
		return fmt.Sprintf("%02X -> Y%d=%s, T=%d", b, group+1, bits.Nibble(bits.HighNibble(b)), bits.LowNibble(b))
	case k == TA && group == 1:
		fi, di, ok := decodeFiDi(b)
		if !ok {
			return fmt.Sprintf("%02X -> Fi/Di RFU", b)
		}
		return fmt.Sprintf("%02X -> Fi=%d, Di=%d", b, fi, di)
	case k == TA && group == 2:
		return fmt.Sprintf("%02X -> specific mode, T=%d", b, bits.LowNibble(b))
	default:
		return fmt.Sprintf("%02X", b)
	}
}
