package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Lines renders the non-empty []byte fields of a tagged struct, one per line:
//
//	    - FCP.FileDescriptor (82): 7821
//
// The `fmt` tag picks the rendering: "ascii" appends the printable text, "int" the
// big-endian decimal value. Left over objects are listed after the bound fields.
func Lines(prefix string, s any) []string {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	var out []string
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)

		if sf.Type == tlvSliceType {
			for _, obj := range fv.Interface().([]bertlv.TLV) {
				out = append(out, fmt.Sprintf("    - %s.Tag %s: %X", prefix, strings.ToUpper(obj.Tag), ValueOf(obj)))
			}
			continue
		}
		if fv.Kind() != reflect.Slice || sf.Type.Elem().Kind() != reflect.Uint8 || fv.Len() == 0 {
			continue
		}

		label := sf.Name
		if tag, _, _ := strings.Cut(sf.Tag.Get("tlv"), ","); tag != "" {
			label += " (" + tag + ")"
		}
		out = append(out, fmt.Sprintf("    - %s.%s: %s", prefix, label, Format(fv.Bytes(), sf.Tag.Get("fmt"))))
	}
	return out
}

// Format renders a value the way Lines does for the given `fmt` tag.
func Format(b []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", b, Printable(b))
	case "int":
		n := 0
		for _, c := range b {
			n = n<<8 | int(c)
		}
		return fmt.Sprintf("%X (Dec: %d)", b, n)
	}
	return fmt.Sprintf("%X", b)
}

// Printable maps b to text, replacing bytes outside printable ASCII with '.'.
func Printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c < 0x20 || c > 0x7E {
			c = '.'
		}
		out[i] = c
	}
	return string(out)
}
