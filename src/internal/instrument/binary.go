// FILE: callwisp/src/internal/instrument/binary.go
package instrument

import (
	"bytes"
	"encoding/hex"
	"reflect"

	"callwisp/src/internal/core"

	"golang.org/x/crypto/blake2b"
)

var magicFormats = []struct {
	prefix []byte
	format string
}{
	{[]byte("\x89PNG\r\n\x1a\n"), "png"},
	{[]byte("\xff\xd8\xff"), "jpeg"},
	{[]byte("GIF87a"), "gif"},
	{[]byte("GIF89a"), "gif"},
	{[]byte("%PDF-"), "pdf"},
	{[]byte("PK\x03\x04"), "zip"},
	{[]byte("\x1f\x8b"), "gzip"},
	{[]byte("OggS"), "ogg"},
	{[]byte("fLaC"), "flac"},
	{[]byte("ID3"), "mp3"},
}

// DetectFormat names a payload by its magic bytes, "binary" when unknown
func DetectFormat(data []byte) string {
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) {
		switch string(data[8:12]) {
		case "WAVE":
			return "wav"
		case "WEBP":
			return "webp"
		case "AVI ":
			return "avi"
		}
	}
	for _, m := range magicFormats {
		if bytes.HasPrefix(data, m.prefix) {
			return m.format
		}
	}
	return "binary"
}

// BinaryMeta describes a byte payload without carrying it
func BinaryMeta(v any) (map[string]any, bool) {
	data, ok := bytesOf(v)
	if !ok {
		return nil, false
	}
	sum := blake2b.Sum256(data)
	return map[string]any{
		"type":   core.TypeName(v),
		"size":   int64(len(data)),
		"format": DetectFormat(data),
		"hash":   hex.EncodeToString(sum[:8]),
	}, true
}

func bytesOf(v any) ([]byte, bool) {
	if b, ok := v.([]byte); ok {
		return b, true
	}
	if _, ok := core.ByteLen(v); !ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	out := make([]byte, rv.Len())
	reflect.Copy(reflect.ValueOf(out), rv)
	return out, true
}

// summarize replaces large byte payloads on the entry and reports whether anything changed
func summarize(entry *core.LogEntry, threshold int) bool {
	if threshold <= 0 {
		return false
	}
	large := func(v any) bool {
		n, ok := core.ByteLen(v)
		return ok && n >= threshold
	}

	changed := 0
	for i, arg := range entry.Args {
		if large(arg) {
			entry.Args[i], _ = BinaryMeta(arg)
			changed++
		}
	}
	for k, v := range entry.Kwargs {
		if large(v) {
			entry.Kwargs[k], _ = BinaryMeta(v)
			changed++
		}
	}
	if large(entry.ReturnValue) {
		entry.ReturnValue, _ = BinaryMeta(entry.ReturnValue)
		changed++
	}

	if changed == 0 {
		return false
	}
	entry.Extra.MetaLog = true
	_ = entry.Extra.Set("summarized_payloads", changed)
	return true
}
