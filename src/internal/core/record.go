// FILE: callwisp/src/internal/core/record.go
package core

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Record is the flat external representation of a LogEntry, one string column per field.
// Collections and values are JSON encoded; non-encodable values fall back to Repr.
type Record struct {
	Timestamp     string   `json:"timestamp" db:"timestamp"`
	Level         string   `json:"level" db:"level"`
	FunctionName  string   `json:"function_name" db:"function_name"`
	Module        string   `json:"module" db:"module"`
	Args          string   `json:"args" db:"args"`
	Kwargs        string   `json:"kwargs" db:"kwargs"`
	ArgTypes      string   `json:"arg_types" db:"arg_types"`
	KwargTypes    string   `json:"kwarg_types" db:"kwarg_types"`
	ReturnValue   string   `json:"return_value" db:"return_value"`
	ReturnType    string   `json:"return_type" db:"return_type"`
	Exception     string   `json:"exception" db:"exception"`
	ExceptionType string   `json:"exception_type" db:"exception_type"`
	Traceback     string   `json:"traceback" db:"traceback"`
	DurationMS    *float64 `json:"duration_ms" db:"duration_ms"`
	Environment   string   `json:"environment" db:"environment"`
	TraceID       string   `json:"trace_id" db:"trace_id"`
	Version       string   `json:"version" db:"version"`
	LLMAnalysis   string   `json:"llm_analysis" db:"llm_analysis"`
	Extra         string   `json:"extra" db:"extra"`
}

// RecordColumns lists Record columns in storage order
var RecordColumns = []string{
	"timestamp", "level", "function_name", "module", "args", "kwargs",
	"arg_types", "kwarg_types", "return_value", "return_type", "exception",
	"exception_type", "traceback", "duration_ms", "environment", "trace_id",
	"version", "llm_analysis", "extra",
}

// Record flattens the entry
func (e *LogEntry) Record() Record {
	return Record{
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		Level:         NormalizeLevel(e.Level),
		FunctionName:  e.FunctionName,
		Module:        e.Module,
		Args:          encodeList(e.Args),
		Kwargs:        encodeMap(e.Kwargs),
		ArgTypes:      encodeStrings(e.ArgTypes),
		KwargTypes:    encodeTypes(e.KwargTypes),
		ReturnValue:   encodeReturn(e.ReturnValue),
		ReturnType:    e.ReturnType,
		Exception:     e.Exception,
		ExceptionType: e.ExceptionType,
		Traceback:     e.Traceback,
		DurationMS:    e.DurationMS,
		Environment:   e.Environment,
		TraceID:       e.TraceID,
		Version:       e.Version,
		LLMAnalysis:   e.LLMAnalysis,
		Extra:         encodeMap(e.Extra.Map()),
	}
}

// Values returns the record columns in RecordColumns order
func (r Record) Values() []any {
	var duration any
	if r.DurationMS != nil {
		duration = *r.DurationMS
	}
	return []any{
		r.Timestamp, r.Level, r.FunctionName, r.Module, r.Args, r.Kwargs,
		r.ArgTypes, r.KwargTypes, r.ReturnValue, r.ReturnType, r.Exception,
		r.ExceptionType, r.Traceback, duration, r.Environment, r.TraceID,
		r.Version, r.LLMAnalysis, r.Extra,
	}
}

// Strings returns the record columns as text, durations in plain decimal
func (r Record) Strings() []string {
	duration := ""
	if r.DurationMS != nil {
		duration = fmt.Sprintf("%g", *r.DurationMS)
	}
	return []string{
		r.Timestamp, r.Level, r.FunctionName, r.Module, r.Args, r.Kwargs,
		r.ArgTypes, r.KwargTypes, r.ReturnValue, r.ReturnType, r.Exception,
		r.ExceptionType, r.Traceback, duration, r.Environment, r.TraceID,
		r.Version, r.LLMAnalysis, r.Extra,
	}
}

// FromRecord rebuilds an entry from its flat form. JSON numbers decode as float64.
func FromRecord(r Record) (*LogEntry, error) {
	e := &LogEntry{
		Level:         NormalizeLevel(r.Level),
		FunctionName:  r.FunctionName,
		Module:        r.Module,
		ReturnType:    r.ReturnType,
		Exception:     r.Exception,
		ExceptionType: r.ExceptionType,
		Traceback:     r.Traceback,
		DurationMS:    r.DurationMS,
		Environment:   r.Environment,
		TraceID:       r.TraceID,
		Version:       r.Version,
		LLMAnalysis:   r.LLMAnalysis,
	}

	if r.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", r.Timestamp, err)
		}
		e.Timestamp = ts.UTC()
	}

	if err := decodeInto(r.Args, &e.Args); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	if err := decodeInto(r.Kwargs, &e.Kwargs); err != nil {
		return nil, fmt.Errorf("invalid kwargs: %w", err)
	}
	if err := decodeInto(r.ArgTypes, &e.ArgTypes); err != nil {
		return nil, fmt.Errorf("invalid arg_types: %w", err)
	}
	if err := decodeInto(r.KwargTypes, &e.KwargTypes); err != nil {
		return nil, fmt.Errorf("invalid kwarg_types: %w", err)
	}
	if err := decodeInto(r.ReturnValue, &e.ReturnValue); err != nil {
		return nil, fmt.Errorf("invalid return_value: %w", err)
	}

	var extra map[string]any
	if err := decodeInto(r.Extra, &extra); err != nil {
		return nil, fmt.Errorf("invalid extra: %w", err)
	}
	x, err := ExtraFromMap(extra)
	if err != nil {
		return nil, err
	}
	e.Extra = x

	return e, nil
}

// MarshalJSON renders the entry as its flat record with extra inlined as an object
func (e *LogEntry) MarshalJSON() ([]byte, error) {
	type flat struct {
		Record
		Extra map[string]any `json:"extra,omitempty"`
	}
	extra := e.Extra.Map()
	if len(extra) == 0 {
		extra = nil
	}
	return json.Marshal(flat{Record: e.Record(), Extra: extra})
}

// DecodeJSON parses the output of MarshalJSON back into an entry
func DecodeJSON(data []byte) (*LogEntry, error) {
	var wire struct {
		Record
		Extra map[string]any `json:"extra"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("invalid entry: %w", err)
	}
	r := wire.Record
	r.Extra = ""
	entry, err := FromRecord(r)
	if err != nil {
		return nil, err
	}
	if len(wire.Extra) > 0 {
		if entry.Extra, err = ExtraFromMap(normalizeNumbers(wire.Extra).(map[string]any)); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return ""
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func encodeTypes(values map[string]string) string {
	if len(values) == 0 {
		return ""
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func encodeList(values []any) string {
	if len(values) == 0 {
		return ""
	}
	items := make([]json.RawMessage, len(values))
	for i, v := range values {
		items[i] = encodeItem(v)
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func encodeMap(values map[string]any) string {
	if len(values) == 0 {
		return ""
	}
	items := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		items[k] = encodeItem(v)
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func encodeReturn(v any) string {
	if v == nil {
		return ""
	}
	return string(encodeItem(v))
}

func encodeItem(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(Repr(v))
	}
	return data
}

func decodeInto(text string, target any) error {
	if text == "" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return err
	}
	switch t := target.(type) {
	case *any:
		*t = normalizeNumbers(*t)
	case *[]any:
		for i := range *t {
			(*t)[i] = normalizeNumbers((*t)[i])
		}
	case *map[string]any:
		for k, v := range *t {
			(*t)[k] = normalizeNumbers(v)
		}
	}
	return nil
}

// normalizeNumbers replaces decoded json.Number values: integral ones become int64,
// the rest float64. Maps and slices are rewritten in place.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
	}
	return v
}
