// FILE: callwisp/src/internal/core/repr.go
package core

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"
)

// DefaultMaxReprLength bounds rendered argument and return values
const DefaultMaxReprLength = 2048

// Truncate cuts text to maxLength runes and notes how much was dropped.
// A non-positive maxLength disables truncation.
func Truncate(text string, maxLength int) string {
	if maxLength <= 0 {
		return text
	}
	n := utf8.RuneCountInString(text)
	if n <= maxLength {
		return text
	}
	runes := []rune(text)
	return fmt.Sprintf("%s... [truncated %d chars]", string(runes[:maxLength]), n-maxLength)
}

// Repr renders a value for display with the default length bound
func Repr(v any) string {
	return ReprN(v, DefaultMaxReprLength)
}

// ReprN renders a value for display, truncated to maxLength
func ReprN(v any, maxLength int) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("<repr failed: %v>", r)
		}
	}()
	return Truncate(render(v), maxLength)
}

func render(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(val)
	case []byte:
		return fmt.Sprintf("[]byte(len=%d)", len(val))
	case error:
		return val.Error()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		return fmt.Sprintf("[%d]byte", rv.Len())
	}
	return fmt.Sprintf("%+v", v)
}

// TypeName returns the Go type name of a value, "nil" for untyped nil
func TypeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// TypeNames returns the type name of each value in order
func TypeNames(values []any) []string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = TypeName(v)
	}
	return names
}

// ByteLen reports the length of byte-like values: byte slices and fixed-size byte arrays
func ByteLen(v any) (int, bool) {
	switch val := v.(type) {
	case []byte:
		return len(val), true
	case nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Array, reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Len(), true
		}
	}
	return 0, false
}
