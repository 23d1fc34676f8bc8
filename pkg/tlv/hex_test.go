package tlv

import (
	"bytes"
	"testing"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "80F2000000", want: []byte{0x80, 0xF2, 0x00, 0x00, 0x00}},
		{in: "3B:9F 96", want: []byte{0x3B, 0x9F, 0x96}},
		{in: "ff 00 ff", want: []byte{0xFF, 0x00, 0xFF}},
		{in: "", want: []byte{}},
		{in: "80F2G0", wantErr: true},
		{in: "3B0", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHex(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !bytes.Equal(got, tt.want) {
			t.Errorf("ParseHex(%q) = %X, want %X", tt.in, got, tt.want)
		}
	}
}

func TestHex(t *testing.T) {
	got := Hex("3B 9F 96 80 1F C7", "80 31 E0")
	if want := []byte{0x3B, 0x9F, 0x96, 0x80, 0x1F, 0xC7, 0x80, 0x31, 0xE0}; !bytes.Equal(got, want) {
		t.Errorf("Hex() = %X, want %X", got, want)
	}

	defer func() {
		if recover() == nil {
			t.Error("Hex() did not panic on malformed input")
		}
	}()
	Hex("6A8")
}
