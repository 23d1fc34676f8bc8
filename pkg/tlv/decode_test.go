package tlv

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

type pinStatus struct {
	PSDO []byte `tlv:"90"`
	Keys []byte `tlv:"83"`
}

type fileParams struct {
	Descriptor []byte       `tlv:"82"`
	FileID     []byte       `tlv:"83"`
	DFName     []byte       `tlv:"84"`
	PIN        *pinStatus   `tlv:"C6"`
	Rest       []bertlv.TLV `tlv:",rest"`
}

type appTemplate struct {
	AID   []byte `tlv:"4F"`
	Label []byte `tlv:"50" fmt:"ascii"`
}

type directory struct {
	Apps []appTemplate `tlv:"61"`
}

func TestDecode_FileParameters(t *testing.T) {
	data := Hex(
		"82 02 78 21",
		"83 02 3F 00",
		"C6 06 90 01 40 83 01 01",
		"A5 03 80 01 71",
	)

	var got fileParams
	if err := Decode(data, &got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := fileParams{
		Descriptor: Hex("7821"),
		FileID:     Hex("3F00"),
		PIN:        &pinStatus{PSDO: Hex("40"), Keys: Hex("01")},
	}
	if diff := cmp.Diff(want, got, cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".Rest"
	}, cmp.Ignore())); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}

	if len(got.Rest) != 1 || !strings.EqualFold(got.Rest[0].Tag, "A5") {
		t.Fatalf("Rest = %+v, want the A5 object", got.Rest)
	}
	if v := ValueOf(got.Rest[0]); len(v) != 3 || v[0] != 0x80 {
		t.Errorf("ValueOf(A5) = %X, want the re-encoded 80 01 71", v)
	}
}

func TestDecode_RepeatedTemplates(t *testing.T) {
	data := Hex(
		"61 0B 4F 05 A000000087 50 02 5553",
		"61 07 4F 05 A000000063",
	)

	var got directory
	if err := Decode(data, &got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := directory{Apps: []appTemplate{
		{AID: Hex("A000000087"), Label: []byte("US")},
		{AID: Hex("A000000063")},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_FirstOccurrenceWins(t *testing.T) {
	var got fileParams
	if err := Decode(Hex("83 02 3F 00 83 02 2F 00"), &got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if diff := cmp.Diff(Hex("3F00"), got.FileID); diff != "" {
		t.Errorf("FileID mismatch (-want +got):\n%s", diff)
	}
	if len(got.Rest) != 1 || !strings.EqualFold(got.Rest[0].Tag, "83") {
		t.Errorf("Rest = %+v, want the second 83", got.Rest)
	}
}

func TestDecode_Errors(t *testing.T) {
	var app appTemplate
	if err := Decode(Hex("4F 05 A0"), &app); err == nil {
		t.Error("Decode() accepted a truncated object")
	}
	if err := Decode(Hex("4F 01 A0"), app); !errors.Is(err, ErrNotStruct) {
		t.Errorf("Decode(non-pointer) error = %v, want ErrNotStruct", err)
	}

	type badField struct {
		Count int `tlv:"80"`
	}
	if err := Decode(Hex("80 01 05"), &badField{}); err == nil {
		t.Error("Decode() accepted an int field")
	}
}

func TestFind(t *testing.T) {
	objs, err := bertlv.Decode(Hex("62 03 82 01 38 84 02 A0 00"))
	if err != nil {
		t.Fatal(err)
	}
	if obj, ok := Find(objs, "84"); !ok || cmp.Diff(Hex("A000"), obj.Value) != "" {
		t.Errorf("Find(84) = %+v, %v", obj, ok)
	}
	if _, ok := Find(objs, "6F"); ok {
		t.Error("Find(6F) found an absent tag")
	}
}
