package go_nrepl

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Value is a decoded bencode value: Int, String, List or *Dict.
// The set is closed; no other type implements Value.
type Value interface {
	bencodeValue()
}

// Int is a bencode integer (i<digits>e).
type Int int64

// String is a bencode byte string (<length>:<bytes>). It may hold
// arbitrary bytes; nREPL uses it for UTF-8 text.
type String string

// List is a bencode list (l<items>e).
type List []Value

// Dict is a bencode dictionary with byte-string keys. Keys are unique and
// iteration follows insertion order, so a decoded dict re-encodes to the
// exact bytes it came from.
type Dict struct {
	keys []string
	vals map[string]Value
}

func (Int) bencodeValue()    {}
func (String) bencodeValue() {}
func (List) bencodeValue()   {}
func (*Dict) bencodeValue()  {}

// NewDict returns an empty dictionary.
func NewDict() *Dict {
	return &Dict{vals: make(map[string]Value)}
}

// Set stores v under key. Replacing an existing key keeps its position.
func (d *Dict) Set(key string, v Value) *Dict {
	if d.vals == nil {
		d.vals = make(map[string]Value)
	}
	if _, ok := d.vals[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = v
	return d
}

// Get returns the value stored under key.
func (d *Dict) Get(key string) (Value, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.vals[key]
	return v, ok
}

// Delete removes key, preserving the order of the remaining keys.
func (d *Dict) Delete(key string) {
	if d == nil {
		return
	}
	if _, ok := d.vals[key]; !ok {
		return
	}
	delete(d.vals, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i:i], d.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (d *Dict) Range(fn func(key string, v Value) bool) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if !fn(k, d.vals[k]) {
			return
		}
	}
}

// Equal reports whether two values are structurally identical, including
// dictionary key order.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Dict:
		bv, ok := b.(*Dict)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for i, k := range av.keys {
			if bv.keys[i] != k || !Equal(av.vals[k], bv.vals[k]) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

// Encode serializes v to its bencode form.
func Encode(v Value) ([]byte, error) {
	return AppendValue(nil, v)
}

// AppendValue appends the bencode form of v to dst.
func AppendValue(dst []byte, v Value) ([]byte, error) {
	switch x := v.(type) {
	case Int:
		dst = append(dst, 'i')
		dst = strconv.AppendInt(dst, int64(x), 10)
		return append(dst, 'e'), nil
	case String:
		return appendString(dst, string(x)), nil
	case List:
		dst = append(dst, 'l')
		for _, item := range x {
			var err error
			if dst, err = AppendValue(dst, item); err != nil {
				return dst, err
			}
		}
		return append(dst, 'e'), nil
	case *Dict:
		if x == nil {
			return dst, &EncodeError{Kind: "nil dict"}
		}
		dst = append(dst, 'd')
		for _, k := range x.keys {
			dst = appendString(dst, k)
			var err error
			if dst, err = AppendValue(dst, x.vals[k]); err != nil {
				return dst, err
			}
		}
		return append(dst, 'e'), nil
	case nil:
		return dst, &EncodeError{Kind: "nil value"}
	default:
		return dst, &EncodeError{Kind: fmt.Sprintf("%T", v)}
	}
}

func appendString(dst []byte, s string) []byte {
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, ':')
	return append(dst, s...)
}

// ValueOf converts plain Go data into a Value. Supported inputs are Value
// itself, strings, byte slices, integer kinds, slices and arrays of supported
// values, and maps keyed by string (encoded in sorted key order). Anything
// else, including floats, bools and nil, fails with *EncodeError.
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case Value:
		if d, ok := v.(*Dict); ok && d == nil {
			return nil, &EncodeError{Kind: "nil dict"}
		}
		return v, nil
	case string:
		return String(v), nil
	case []byte:
		return String(v), nil
	case int:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case []string:
		out := make(List, len(v))
		for i, s := range v {
			out[i] = String(s)
		}
		return out, nil
	case nil:
		return nil, &EncodeError{Kind: "nil"}
	}
	return valueOfReflect(reflect.ValueOf(x))
}

func valueOfReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, &EncodeError{Kind: rv.Type().String(), Err: fmt.Errorf("value %d overflows int64", u)}
		}
		return Int(int64(u)), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return String(rv.Bytes()), nil
		}
		out := make(List, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := ValueOf(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &EncodeError{Kind: rv.Type().String(), Err: fmt.Errorf("dict keys must be strings")}
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		d := NewDict()
		for _, k := range keys {
			item, err := ValueOf(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if err != nil {
				return nil, err
			}
			d.Set(k, item)
		}
		return d, nil
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return nil, &EncodeError{Kind: "nil " + rv.Type().String()}
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Invalid:
		return nil, &EncodeError{Kind: "nil"}
	default:
		return nil, &EncodeError{Kind: rv.Type().String()}
	}
}

// maxNestingDepth bounds list/dict nesting so hostile input cannot exhaust the stack.
const maxNestingDepth = 512

// Decode decodes exactly one bencode value starting at data[0] and returns it
// with the number of bytes consumed. Trailing bytes are left for the caller.
// Errors are *DecodeError; if the input was merely truncated the error
// wraps ErrIncomplete.
func Decode(data []byte) (Value, int, error) {
	return decodeLimited(data, NREPL_MAX_MESSAGE_SIZE)
}

func decodeLimited(data []byte, maxString int) (Value, int, error) {
	d := decoder{data: data, maxString: maxString}
	v, err := d.value()
	if err != nil {
		return nil, 0, err
	}
	return v, d.pos, nil
}

type decoder struct {
	data      []byte
	pos       int
	depth     int
	maxString int
}

func (d *decoder) value() (Value, error) {
	if d.pos >= len(d.data) {
		return nil, newIncompleteError(d.pos, "expected value")
	}
	switch c := d.data[d.pos]; {
	case c == 'i':
		return d.integer()
	case c == 'l':
		return d.list()
	case c == 'd':
		return d.dict()
	case c >= '0' && c <= '9':
		s, err := d.str()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	default:
		return nil, NewDecodeError(d.pos, fmt.Sprintf("unexpected byte %q", c))
	}
}

func (d *decoder) integer() (Value, error) {
	start := d.pos
	d.pos++ // 'i'
	end := d.pos
	for end < len(d.data) && d.data[end] != 'e' {
		c := d.data[end]
		if !(c >= '0' && c <= '9') && !(c == '-' && end == d.pos) {
			return nil, NewDecodeError(end, fmt.Sprintf("invalid integer byte %q", c))
		}
		end++
	}
	if end >= len(d.data) {
		return nil, newIncompleteError(start, "unterminated integer")
	}
	digits := string(d.data[d.pos:end])
	switch {
	case digits == "" || digits == "-":
		return nil, NewDecodeError(start, "empty integer")
	case digits == "-0":
		return nil, NewDecodeError(start, "negative zero")
	case len(digits) > 1 && digits[0] == '0', len(digits) > 2 && digits[0] == '-' && digits[1] == '0':
		return nil, NewDecodeError(start, "integer has leading zero")
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil, &DecodeError{Offset: start, Reason: "integer out of range", Err: err}
	}
	d.pos = end + 1
	return Int(n), nil
}

// maxLengthDigits is enough for any length that fits in an int.
const maxLengthDigits = 19

func (d *decoder) str() (string, error) {
	start := d.pos
	end := d.pos
	for end < len(d.data) && d.data[end] != ':' {
		c := d.data[end]
		if c < '0' || c > '9' {
			return "", NewDecodeError(end, fmt.Sprintf("invalid length byte %q", c))
		}
		if end-start >= maxLengthDigits {
			return "", NewDecodeError(start, "length prefix too long")
		}
		end++
	}
	if end >= len(d.data) {
		return "", newIncompleteError(start, "unterminated length prefix")
	}
	digits := d.data[start:end]
	if len(digits) > 1 && digits[0] == '0' {
		return "", NewDecodeError(start, "length has leading zero")
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return "", &DecodeError{Offset: start, Reason: "invalid length", Err: err}
	}
	if d.maxString > 0 && n > d.maxString {
		return "", &DecodeError{Offset: start, Reason: fmt.Sprintf("string length %d", n), Err: ErrMessageTooLarge}
	}
	body := end + 1
	if n > len(d.data)-body {
		return "", newIncompleteError(start, fmt.Sprintf("string needs %d bytes, have %d", n, len(d.data)-body))
	}
	d.pos = body + n
	return string(d.data[body:d.pos]), nil
}

func (d *decoder) enter() error {
	d.depth++
	if d.depth > maxNestingDepth {
		return NewDecodeError(d.pos, "nesting too deep")
	}
	return nil
}

func (d *decoder) list() (Value, error) {
	start := d.pos
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer func() { d.depth-- }()
	d.pos++ // 'l'
	out := List{}
	for {
		if d.pos >= len(d.data) {
			return nil, newIncompleteError(start, "unterminated list")
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return out, nil
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (d *decoder) dict() (Value, error) {
	start := d.pos
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer func() { d.depth-- }()
	d.pos++ // 'd'
	out := NewDict()
	for {
		if d.pos >= len(d.data) {
			return nil, newIncompleteError(start, "unterminated dict")
		}
		c := d.data[d.pos]
		if c == 'e' {
			d.pos++
			return out, nil
		}
		if c < '0' || c > '9' {
			return nil, NewDecodeError(d.pos, "dict key is not a byte string")
		}
		keyAt := d.pos
		key, err := d.str()
		if err != nil {
			return nil, err
		}
		if _, dup := out.vals[key]; dup {
			return nil, NewDecodeError(keyAt, fmt.Sprintf("duplicate dict key %q", key))
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		out.Set(key, v)
	}
}
