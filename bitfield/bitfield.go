// Package bitfield packs and unpacks struct fields into integers.
// This is a simplified version based on golang.org/x/text/internal/gen/bitfield
package bitfield

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Config determines settings for packing.
type Config struct {
	// NumBits fixes the maximum allowed bits for the integer representation.
	// If NumBits is not 8, 16, 32, or 64, the actual underlying integer size
	// will be the next largest available.
	NumBits uint
}

// field is one tagged struct member with its bit offset.
type field struct {
	index  int
	name   string
	offset uint
	bits   uint
}

// parseTag reads a tag of the form ",bits" or "name,bits".
func parseTag(tag string) (uint, error) {
	i := strings.LastIndexByte(tag, ',')
	if i < 0 {
		return 0, errors.Errorf("invalid bitfield tag %q", tag)
	}
	n, err := strconv.ParseUint(tag[i+1:], 10, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid bitfield tag %q", tag)
	}
	return uint(n), nil
}

// layout walks the tagged fields of t in declaration order.
func layout(t reflect.Type, c *Config) ([]field, error) {
	var fields []field
	var bitOffset uint

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("bitfield")
		if tag == "" {
			continue // Skip fields without bitfield tag
		}
		bits, err := parseTag(tag)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", sf.Name)
		}
		if bits == 0 {
			continue
		}
		fields = append(fields, field{index: i, name: sf.Name, offset: bitOffset, bits: bits})
		bitOffset += bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return nil, errors.Errorf("total bits %d exceeds NumBits %d", bitOffset, c.NumBits)
	}
	return fields, nil
}

func structValue(x interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, errors.Errorf("expected struct, got %v", v.Kind())
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

	v, err := structValue(x)
	if err != nil {
		return 0, errors.Wrap(err, "Pack")
	}
	fields, err := layout(v.Type(), c)
	if err != nil {
		return 0, errors.Wrap(err, "Pack")
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
				return 0, errors.Errorf("Pack: negative value %d for field %s", val, f.name)
			}
			fieldBits = uint64(val)
		default:
			return 0, errors.Errorf("Pack: unsupported field type %v for field %s", fieldValue.Kind(), f.name)
		}

		maxValue := uint64((1 << f.bits) - 1)
		if fieldBits > maxValue {
			return 0, errors.Errorf("Pack: value %d exceeds %d bits for field %s", fieldBits, f.bits, f.name)
		}

		packed |= fieldBits << f.offset
	}

	return packed, nil
}

// Unpack is the inverse of Pack. x must be a pointer to a struct.
func Unpack(packed uint64, x interface{}, c *Config) error {
	if c == nil {
		c = &Config{NumBits: 64}
	}
	if reflect.ValueOf(x).Kind() != reflect.Ptr {
		return errors.New("Unpack: expected pointer to struct")
	}

	v, err := structValue(x)
	if err != nil {
		return errors.Wrap(err, "Unpack")
	}
	fields, err := layout(v.Type(), c)
	if err != nil {
		return errors.Wrap(err, "Unpack")
	}

	for _, f := range fields {
		bits := (packed >> f.offset) & uint64((1<<f.bits)-1)
		fieldValue := v.Field(f.index)

		switch fieldValue.Kind() {
		case reflect.Bool:
			fieldValue.SetBool(bits != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldValue.SetUint(bits)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fieldValue.SetInt(int64(bits))
		default:
			return errors.Errorf("Unpack: unsupported field type %v for field %s", fieldValue.Kind(), f.name)
		}
	}
	return nil
}
