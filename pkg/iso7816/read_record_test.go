package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/uicc/pkg/tlv"
)

func TestReadRecordCommands(t *testing.T) {
	iso := BasicClass(Interindustry)

	tests := []struct {
		name string
		cmd  *CommandAPDU
		want []byte
	}{
		{"record 1 of the current EF", ReadRecord(iso, 0, 1), tlv.Hex("00 B2 01 04 00")},
		{"record 2 of SFI 1E", ReadRecord(iso, 0x1E, 2), tlv.Hex("00 B2 02 F4 00")},
		{"next record", NewReadRecordCommand(iso, 0, 0, ReadNext), tlv.Hex("00 B2 00 02 00")},
		{"previous record of SFI 05", NewReadRecordCommand(iso, 0x05, 0, ReadPrevious), tlv.Hex("00 B2 00 2B 00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Bytes() mismatch (-want +got):\n%s", diff)
			}
			if tt.cmd.Case() != Case2 {
				t.Errorf("Case() = %d, want 2", tt.cmd.Case())
			}
		})
	}
}

func TestReadRecordMode_String(t *testing.T) {
	for mode, want := range map[ReadRecordMode]string{
		ReadNext:     "next record",
		ReadPrevious: "previous record",
		ReadAbsolute: "absolute/current",
		0b111:        "ReadRecordMode(0b111)",
	} {
		if got := mode.String(); got != want {
			t.Errorf("ReadRecordMode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}
