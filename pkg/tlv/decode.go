// Package tlv maps the TLV structures a UICC returns onto Go values.
//
// BER-TLV templates (FCP, EF_DIR records) are decoded with bertlv and bound to struct
// fields through `tlv` struct tags. The COMPACT-TLV objects found in the historical
// bytes of an ATR are decoded by ParseHistorical.
package tlv

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/moov-io/bertlv"
)

// ErrNotStruct is returned when the decode target is not a non-nil pointer to a struct.
var ErrNotStruct = errors.New("tlv: target must be a non-nil pointer to a struct")

var tlvSliceType = reflect.TypeOf([]bertlv.TLV(nil))

// fieldKind tells how a tagged field receives its object.
type fieldKind int

const (
	kindBytes     fieldKind = iota // raw value, children re-encoded
	kindStruct                     // nested template
	kindStructPtr                  // nested template, allocated on demand
	kindList                       // every occurrence, as a slice of templates
)

type boundField struct {
	index  int
	tag    string
	format string
	kind   fieldKind
}

// layout is the tag binding of one struct type.
type layout struct {
	fields []boundField
	byTag  map[string]int
	rest   int // index of the `tlv:",rest"` field, -1 without one
}

var layouts sync.Map // reflect.Type -> *layout

func layoutOf(t reflect.Type) (*layout, error) {
	if l, ok := layouts.Load(t); ok {
		return l.(*layout), nil
	}

	l := &layout{byTag: make(map[string]int), rest: -1}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup("tlv")
		if !ok || !sf.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			if strings.HasSuffix(tag, ",rest") && sf.Type == tlvSliceType {
				l.rest = i
			}
			continue
		}

		bf := boundField{index: i, tag: strings.ToUpper(name), format: sf.Tag.Get("fmt")}
		switch ft := sf.Type; {
		case ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Uint8:
			bf.kind = kindBytes
		case ft.Kind() == reflect.Struct:
			bf.kind = kindStruct
		case ft.Kind() == reflect.Pointer && ft.Elem().Kind() == reflect.Struct:
			bf.kind = kindStructPtr
		case ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Struct:
			bf.kind = kindList
		default:
			return nil, fmt.Errorf("tlv: field %s.%s: unsupported type %s", t.Name(), sf.Name, ft)
		}
		if _, dup := l.byTag[bf.tag]; dup {
			return nil, fmt.Errorf("tlv: tag %s bound twice in %s", bf.tag, t.Name())
		}
		l.byTag[bf.tag] = len(l.fields)
		l.fields = append(l.fields, bf)
	}

	actual, _ := layouts.LoadOrStore(t, l)
	return actual.(*layout), nil
}

// Decode decodes data as BER-TLV and binds the objects to the struct dst points to.
func Decode(data []byte, dst any) error {
	objs, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("tlv: %w", err)
	}
	return DecodeObjects(objs, dst)
}

// DecodeObjects binds already decoded objects to the struct dst points to.
//
// A []byte field tagged `tlv:"4F"` receives the value of the first '4F' object; later
// occurrences are left over. A struct, struct pointer or slice-of-struct field is filled
// from the object's children, the slice collecting every occurrence. Objects no field
// claims go to the []bertlv.TLV field tagged `tlv:",rest"`, if any.
func DecodeObjects(objs []bertlv.TLV, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrNotStruct
	}
	v = v.Elem()

	l, err := layoutOf(v.Type())
	if err != nil {
		return err
	}

	var rest []bertlv.TLV
	for _, obj := range objs {
		i, ok := l.byTag[strings.ToUpper(obj.Tag)]
		if !ok {
			rest = append(rest, obj)
			continue
		}
		bf := l.fields[i]
		claimed, err := bind(v.Field(bf.index), bf.kind, obj)
		if err != nil {
			return fmt.Errorf("tlv: tag %s: %w", bf.tag, err)
		}
		if !claimed {
			rest = append(rest, obj)
		}
	}

	if l.rest >= 0 && len(rest) > 0 {
		v.Field(l.rest).Set(reflect.ValueOf(rest))
	}
	return nil
}

func bind(field reflect.Value, kind fieldKind, obj bertlv.TLV) (bool, error) {
	switch kind {
	case kindBytes:
		if field.Len() > 0 {
			return false, nil
		}
		field.SetBytes(ValueOf(obj))
		return true, nil
	case kindStruct:
		return true, decodeChildren(obj, field.Addr().Interface())
	case kindStructPtr:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return true, decodeChildren(obj, field.Interface())
	case kindList:
		elem := reflect.New(field.Type().Elem())
		if err := decodeChildren(obj, elem.Interface()); err != nil {
			return false, err
		}
		field.Set(reflect.Append(field, elem.Elem()))
		return true, nil
	}
	return false, nil
}

func decodeChildren(obj bertlv.TLV, dst any) error {
	if len(obj.TLVs) > 0 {
		return DecodeObjects(obj.TLVs, dst)
	}
	return Decode(obj.Value, dst)
}

// ValueOf returns the value field of obj. A constructed object is re-encoded from its children.
func ValueOf(obj bertlv.TLV) []byte {
	if len(obj.TLVs) == 0 {
		return obj.Value
	}
	enc, err := bertlv.Encode(obj.TLVs)
	if err != nil {
		return obj.Value
	}
	return enc
}

// Find returns the first object tagged tag in objs.
func Find(objs []bertlv.TLV, tag string) (bertlv.TLV, bool) {
	for _, obj := range objs {
		if strings.EqualFold(obj.Tag, tag) {
			return obj, true
		}
	}
	return bertlv.TLV{}, false
}
