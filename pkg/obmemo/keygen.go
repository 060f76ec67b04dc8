package obmemo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeyFunc encodes the arguments of one call into a cache key.
// Two argument lists must produce the same key iff they are equal.
type KeyFunc func(args []any) (string, error)

const (
	noArgsKey    = "no-args"
	maxRawKeyLen = 64
	maxKeyDepth  = 32
)

// DefaultKeyFunc generates cache keys by structural encoding of the arguments.
//
// Every value is tagged with its dynamic type, named by import path, so int(1) and int64(1) are
// different keys while two separately built slices, maps or structs with the
// same contents are the same key. Map entries are sorted by their encoding and
// structs include unexported fields. Pointers are followed. Keys longer than 64
// bytes are replaced by their SHA-256 digest.
//
// Functions, channels and unsafe pointers have no structural identity and
// yield ErrUnsupportedKey, as do values nested deeper than 32 levels
// (including cyclic ones).
func DefaultKeyFunc(args []any) (string, error) {
	if len(args) == 0 {
		return noArgsKey, nil
	}

	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte('|')
		}
		if err := encodeKey(&b, reflect.ValueOf(arg), 0); err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
	}

	combined := b.String()
	if len(combined) <= maxRawKeyLen {
		return combined, nil
	}

	// For longer keys, use SHA256 hash to prevent unbounded key growth
	hash := sha256.Sum256([]byte(combined))
	return "#" + hex.EncodeToString(hash[:]), nil
}

// SimpleKeyFunc generates keys by joining the %v form of each argument.
// It is faster than DefaultKeyFunc but distinct values with the same text
// (1 and "1") share a key.
func SimpleKeyFunc(args []any) (string, error) {
	if len(args) == 0 {
		return noArgsKey, nil
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("%v", arg)
	}
	return strings.Join(parts, ":"), nil
}

// encodeKey writes the structural encoding of v. Values are read through
// reflect accessors rather than Interface so unexported fields are usable.
func encodeKey(b *strings.Builder, v reflect.Value, depth int) error {
	if depth > maxKeyDepth {
		return fmt.Errorf("%w: nesting deeper than %d levels", ErrUnsupportedKey, maxKeyDepth)
	}
	if !v.IsValid() {
		b.WriteString("nil")
		return nil
	}

	t := v.Type()
	switch t.Kind() {
	case reflect.Bool:
		scalar(b, t, strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		scalar(b, t, strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		scalar(b, t, strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		scalar(b, t, strconv.FormatFloat(v.Float(), 'g', -1, t.Bits()))
	case reflect.Complex64, reflect.Complex128:
		scalar(b, t, strconv.FormatComplex(v.Complex(), 'g', -1, t.Bits()))
	case reflect.String:
		scalar(b, t, strconv.Quote(v.String()))
	case reflect.Pointer:
		if v.IsNil() {
			scalar(b, t, "nil")
			return nil
		}
		b.WriteByte('&')
		return encodeKey(b, v.Elem(), depth+1)
	case reflect.Interface:
		if v.IsNil() {
			b.WriteString("nil")
			return nil
		}
		return encodeKey(b, v.Elem(), depth+1)
	case reflect.Slice:
		if v.IsNil() {
			scalar(b, t, "nil")
			return nil
		}
		return encodeSequence(b, v, depth)
	case reflect.Array:
		return encodeSequence(b, v, depth)
	case reflect.Map:
		if v.IsNil() {
			scalar(b, t, "nil")
			return nil
		}
		return encodeMap(b, v, depth)
	case reflect.Struct:
		return encodeStruct(b, v, depth)
	default:
		return fmt.Errorf("%w: %s values have no structural identity", ErrUnsupportedKey, t)
	}
	return nil
}

func scalar(b *strings.Builder, t reflect.Type, text string) {
	b.WriteString(typeName(t))
	b.WriteByte('(')
	b.WriteString(text)
	b.WriteByte(')')
}

// typeName names t by import path, so same-named types from different
// packages get different tags
func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeName(t.Elem())
	case reflect.Slice:
		return "[]" + typeName(t.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + typeName(t.Elem())
	case reflect.Map:
		return "map[" + typeName(t.Key()) + "]" + typeName(t.Elem())
	}
	return t.String()
}

func encodeSequence(b *strings.Builder, v reflect.Value, depth int) error {
	b.WriteString(typeName(v.Type()))
	b.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := encodeKey(b, v.Index(i), depth+1); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func encodeMap(b *strings.Builder, v reflect.Value, depth int) error {
	pairs := make([]string, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		var pair strings.Builder
		if err := encodeKey(&pair, iter.Key(), depth+1); err != nil {
			return err
		}
		pair.WriteByte(':')
		if err := encodeKey(&pair, iter.Value(), depth+1); err != nil {
			return err
		}
		pairs = append(pairs, pair.String())
	}
	sort.Strings(pairs)

	b.WriteString(typeName(v.Type()))
	b.WriteByte('{')
	b.WriteString(strings.Join(pairs, ","))
	b.WriteByte('}')
	return nil
}

func encodeStruct(b *strings.Builder, v reflect.Value, depth int) error {
	t := v.Type()
	b.WriteString(typeName(t))
	b.WriteByte('{')
	for i := 0; i < t.NumField(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Field(i).Name)
		b.WriteByte(':')
		if err := encodeKey(b, v.Field(i), depth+1); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}
