// Package canonical produces a deterministic byte encoding of structured
// report payloads for hashing. Two payloads with the same keys and values
// always serialize to the same bytes regardless of construction order.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// UnserializableValueError reports a value the canonical encoding cannot
// represent: cyclic references, NaN/Inf, or an unsupported Go type. It
// always indicates a builder bug, never bad user input.
type UnserializableValueError struct {
	Path   string
	Reason string
}

func (e *UnserializableValueError) Error() string {
	return fmt.Sprintf("unserializable value at %s: %s", e.Path, e.Reason)
}

// Canonicalize encodes v as canonical bytes. Object keys are sorted by
// raw byte order, array order is preserved, numbers use a fixed decimal
// encoding with no exponent form, and strings use one fixed escaping
// scheme. The output is stable across processes and platforms.
func Canonicalize(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := &encoder{buf: buf, seen: map[uintptr]struct{}{}}
	if err := enc.encode(v, "$"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the lowercase-hex SHA-256 of the canonical encoding of v.
func Hash(v any) (string, error) {
	blob, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

type encoder struct {
	buf  *bytes.Buffer
	seen map[uintptr]struct{}
}

func (e *encoder) encode(v any, path string) error {
	switch val := v.(type) {
	case nil:
		e.buf.WriteString("null")
		return nil
	case bool:
		if val {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
		return nil
	case string:
		e.writeString(val)
		return nil
	case int:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int8:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int16:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int32:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int64:
		e.buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case uint:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
		return nil
	case uint8:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
		return nil
	case uint16:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
		return nil
	case uint32:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
		return nil
	case uint64:
		e.buf.WriteString(strconv.FormatUint(val, 10))
		return nil
	case float32:
		return e.writeFloat(float64(val), path)
	case float64:
		return e.writeFloat(val, path)
	case json.Number:
		return e.writeNumber(val, path)
	case time.Time:
		e.writeString(val.UTC().Format(time.RFC3339))
		return nil
	case map[string]any:
		return e.writeObject(val, path)
	case []any:
		return e.writeArray(val, path)
	default:
		return &UnserializableValueError{
			Path:   path,
			Reason: fmt.Sprintf("unsupported type %T", v),
		}
	}
}

func (e *encoder) writeObject(m map[string]any, path string) error {
	ptr := reflect.ValueOf(m).Pointer()
	if ptr != 0 {
		if _, ok := e.seen[ptr]; ok {
			return &UnserializableValueError{Path: path, Reason: "cyclic reference"}
		}
		e.seen[ptr] = struct{}{}
		defer delete(e.seen, ptr)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.writeString(k)
		e.buf.WriteByte(':')
		if err := e.encode(m[k], path+"."+k); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *encoder) writeArray(arr []any, path string) error {
	if len(arr) > 0 {
		ptr := reflect.ValueOf(arr).Pointer()
		if _, ok := e.seen[ptr]; ok {
			return &UnserializableValueError{Path: path, Reason: "cyclic reference"}
		}
		e.seen[ptr] = struct{}{}
		defer delete(e.seen, ptr)
	}

	e.buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) writeFloat(f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &UnserializableValueError{Path: path, Reason: "non-finite number"}
	}
	if f == math.Trunc(f) {
		// Integral values take the integer form, never "42.0" and never
		// an exponent.
		s := strconv.FormatFloat(f, 'f', 0, 64)
		if s == "-0" {
			s = "0"
		}
		e.buf.WriteString(s)
		return nil
	}
	e.buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

func (e *encoder) writeNumber(n json.Number, path string) error {
	if i, err := n.Int64(); err == nil {
		e.buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return &UnserializableValueError{Path: path, Reason: fmt.Sprintf("invalid number %q", string(n))}
	}
	return e.writeFloat(f, path)
}

const hexDigits = "0123456789abcdef"

func (e *encoder) writeString(s string) {
	e.buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch b {
		case '"':
			e.buf.WriteString(`\"`)
		case '\\':
			e.buf.WriteString(`\\`)
		case '\n':
			e.buf.WriteString(`\n`)
		case '\r':
			e.buf.WriteString(`\r`)
		case '\t':
			e.buf.WriteString(`\t`)
		default:
			if b < 0x20 {
				e.buf.WriteString(`\u00`)
				e.buf.WriteByte(hexDigits[b>>4])
				e.buf.WriteByte(hexDigits[b&0xf])
				continue
			}
			e.buf.WriteByte(b)
		}
	}
	e.buf.WriteByte('"')
}
