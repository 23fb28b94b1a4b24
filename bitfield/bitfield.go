// Package bitfield packs and unpacks struct fields into integers.
// Descriptor access bytes, granularity flags and gate attributes are
// described as tagged structs and packed here, least significant bit first.
// This is a simplified version based on golang.org/x/text/internal/gen/bitfield
package bitfield

import (
	"fmt"
	"reflect"
)

// Config determines settings for packing.
type Config struct {
	// NumBits fixes the maximum allowed bits for the integer representation.
	// Zero means no limit beyond 64.
	NumBits uint
}

// field is one tagged struct field and its position in the packed value.
type field struct {
	index  int
	name   string
	offset uint
	bits   uint
}

// layout walks the tagged fields of t in declaration order.
func layout(t reflect.Type) ([]field, uint, error) {
	var fields []field
	var bitOffset uint

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("bitfield")
		if tag == "" {
			continue // Skip fields without bitfield tag
		}

		// Parse tag: ",bits"
		var bits uint
		if _, err := fmt.Sscanf(tag, ",%d", &bits); err != nil {
			return nil, 0, fmt.Errorf("invalid bitfield tag %q on field %s", tag, f.Name)
		}
		if bits == 0 {
			continue
		}

		fields = append(fields, field{index: i, name: f.Name, offset: bitOffset, bits: bits})
		bitOffset += bits
	}

	return fields, bitOffset, nil
}

func structValue(x interface{}, op string) (reflect.Value, error) {
	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%s: expected struct, got %v", op, v.Kind())
	}
	return v, nil
}

// Pack packs annotated bit ranges of struct x into an integer.
// Only fields that have a "bitfield" tag are compacted.
// Returns the packed value as uint64 and any error encountered.
func Pack(x interface{}, c *Config) (packed uint64, err error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v, err := structValue(x, "Pack")
	if err != nil {
		return 0, err
	}

	fields, total, err := layout(v.Type())
	if err != nil {
		return 0, fmt.Errorf("Pack: %w", err)
	}

	// Check if total bits exceed target size
	if c.NumBits > 0 && total > c.NumBits {
		return 0, fmt.Errorf("Pack: total bits %d exceeds NumBits %d", total, c.NumBits)
	}

	for _, f := range fields {
		fieldValue := v.Field(f.index)
		var fieldBits uint64

		switch fieldValue.Kind() {
		case reflect.Bool:
			if fieldValue.Bool() {
				fieldBits = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldBits = fieldValue.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			val := fieldValue.Int()
			if val < 0 {
				return 0, fmt.Errorf("Pack: negative value %d for field %s", val, f.name)
			}
			fieldBits = uint64(val)
		default:
			return 0, fmt.Errorf("Pack: unsupported field type %v for field %s", fieldValue.Kind(), f.name)
		}

		// Check if value fits in bits
		if f.bits < 64 && fieldBits > (uint64(1)<<f.bits)-1 {
			return 0, fmt.Errorf("Pack: value %d exceeds %d bits for field %s", fieldBits, f.bits, f.name)
		}

		packed |= fieldBits << f.offset
	}

	return packed, nil
}

// Unpack is the inverse of Pack: it spreads packed over the tagged fields of
// the struct x points to. Bits above the last tagged field are ignored.
func Unpack(packed uint64, x interface{}) error {
	rv := reflect.ValueOf(x)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("Unpack: expected non-nil pointer to struct, got %T", x)
	}
	v, err := structValue(x, "Unpack")
	if err != nil {
		return err
	}

	fields, _, err := layout(v.Type())
	if err != nil {
		return fmt.Errorf("Unpack: %w", err)
	}

	for _, f := range fields {
		mask := ^uint64(0)
		if f.bits < 64 {
			mask = (uint64(1) << f.bits) - 1
		}
		bits := (packed >> f.offset) & mask

		fieldValue := v.Field(f.index)
		switch fieldValue.Kind() {
		case reflect.Bool:
			fieldValue.SetBool(bits != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldValue.SetUint(bits)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fieldValue.SetInt(int64(bits))
		default:
			return fmt.Errorf("Unpack: unsupported field type %v for field %s", fieldValue.Kind(), f.name)
		}
	}

	return nil
}

// MustPack is Pack for tables of constants; it panics on error.
func MustPack(x interface{}, c *Config) uint64 {
	packed, err := Pack(x, c)
	if err != nil {
		panic(err)
	}
	return packed
}

// MustUnpack is Unpack for fixed layouts; it panics on error.
func MustUnpack(packed uint64, x interface{}) {
	if err := Unpack(packed, x); err != nil {
		panic(err)
	}
}
