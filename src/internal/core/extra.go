// FILE: callwisp/src/internal/core/extra.go
package core

import (
	"fmt"
	"maps"
	"math"
	"sort"
	"time"

	"callwisp/src/internal/redact"
)

// Reserved extra keys. Sinks signal each other through these.
const (
	KeyMetaLog          = "meta_log"
	KeyPipelineRunID    = "pipeline_run_id"
	KeyPipelineComplete = "pipeline_complete"
	KeyStepName         = "step_name"
	KeyDecision         = "decision"
	KeyDecisionReason   = "decision_reason"
	KeyCostUSD          = "cost_usd"
	KeyTotalCost        = "total_cost"
	KeyTotalMS          = "total_ms"
	KeyTokensIn         = "tokens_in"
	KeyTokensOut        = "tokens_out"
	KeyModel            = "model"
	KeyDataSizeKB       = "data_size_kb"
	KeyContextLength    = "context_length"
	KeyVersionDiff      = "version_diff"
	KeyPrevVersion      = "prev_version"
	KeyPrevReturn       = "prev_return"
	KeyPromptInjection  = "prompt_injection"
)

// Names of first-class entry fields; never valid as extra keys
var firstClassFields = map[string]bool{
	"timestamp": true, "level": true, "function_name": true, "module": true,
	"args": true, "kwargs": true, "arg_types": true, "kwarg_types": true,
	"return_value": true, "return_type": true, "exception": true,
	"exception_type": true, "traceback": true, "duration_ms": true,
	"environment": true, "trace_id": true, "version": true,
	"llm_analysis": true, "extra": true,
}

// Extra carries typed metadata for the reserved keys plus an open map of primitive values.
// The zero value is ready to use.
type Extra struct {
	// Set when large payloads were already replaced by size/format metadata
	MetaLog bool

	// Pipeline grouping
	PipelineRunID    string
	PipelineComplete bool
	StepName         string
	Decision         string
	DecisionReason   string

	// Cost and usage figures, display only
	CostUSD       *float64
	TotalCost     *float64
	TotalMS       *float64
	TokensIn      *int64
	TokensOut     *int64
	Model         string
	DataSizeKB    *float64
	ContextLength *int64

	// Written by the diff tracker
	VersionDiff string
	PrevVersion string
	PrevReturn  string

	// Written by the LLM sink
	PromptInjection string

	fields map[string]any
}

// IsReservedKey reports whether key maps to a typed Extra field
func IsReservedKey(key string) bool {
	switch key {
	case KeyMetaLog, KeyPipelineRunID, KeyPipelineComplete, KeyStepName, KeyDecision,
		KeyDecisionReason, KeyCostUSD, KeyTotalCost, KeyTotalMS, KeyTokensIn, KeyTokensOut,
		KeyModel, KeyDataSizeKB, KeyContextLength, KeyVersionDiff, KeyPrevVersion,
		KeyPrevReturn, KeyPromptInjection:
		return true
	}
	return false
}

// Set stores a value. Reserved keys populate the typed field, other keys go to the open map
// after coercion to a primitive. Keys naming a first-class entry field are rejected.
func (x *Extra) Set(key string, value any) error {
	if key == "" {
		return fmt.Errorf("extra key cannot be empty")
	}
	if firstClassFields[key] {
		return fmt.Errorf("extra key %q collides with an entry field", key)
	}
	if IsReservedKey(key) {
		return x.setReserved(key, value)
	}
	if x.fields == nil {
		x.fields = make(map[string]any)
	}
	x.fields[key] = openValue(value)
	return nil
}

func (x *Extra) setReserved(key string, value any) error {
	var ok bool
	switch key {
	case KeyMetaLog:
		x.MetaLog, ok = value.(bool)
	case KeyPipelineComplete:
		x.PipelineComplete, ok = value.(bool)
	case KeyPipelineRunID:
		x.PipelineRunID, ok = toString(value)
	case KeyStepName:
		x.StepName, ok = toString(value)
	case KeyDecision:
		x.Decision, ok = toString(value)
	case KeyDecisionReason:
		x.DecisionReason, ok = toString(value)
	case KeyModel:
		x.Model, ok = toString(value)
	case KeyVersionDiff:
		x.VersionDiff, ok = toString(value)
	case KeyPrevVersion:
		x.PrevVersion, ok = toString(value)
	case KeyPrevReturn:
		x.PrevReturn, ok = toString(value)
	case KeyPromptInjection:
		x.PromptInjection, ok = toString(value)
	case KeyCostUSD:
		x.CostUSD, ok = floatPtr(value)
	case KeyTotalCost:
		x.TotalCost, ok = floatPtr(value)
	case KeyTotalMS:
		x.TotalMS, ok = floatPtr(value)
	case KeyDataSizeKB:
		x.DataSizeKB, ok = floatPtr(value)
	case KeyTokensIn:
		x.TokensIn, ok = intPtr(value)
	case KeyTokensOut:
		x.TokensOut, ok = intPtr(value)
	case KeyContextLength:
		x.ContextLength, ok = intPtr(value)
	}
	if !ok {
		return fmt.Errorf("extra key %q: unsupported value type %T", key, value)
	}
	return nil
}

// Get returns the value stored under key, typed or open
func (x *Extra) Get(key string) (any, bool) {
	if IsReservedKey(key) {
		v, ok := x.Map()[key]
		return v, ok
	}
	v, ok := x.fields[key]
	return v, ok
}

// Delete removes a key from the open map
func (x *Extra) Delete(key string) {
	delete(x.fields, key)
}

// Fields returns a copy of the open map
func (x *Extra) Fields() map[string]any {
	if len(x.fields) == 0 {
		return nil
	}
	return maps.Clone(x.fields)
}

// SetFields replaces the open map
func (x *Extra) SetFields(fields map[string]any) error {
	x.fields = nil
	for _, k := range sortedKeys(fields) {
		if err := x.Set(k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of populated keys, typed and open
func (x *Extra) Len() int {
	return len(x.Map())
}

// Map flattens the populated keys into one map
func (x *Extra) Map() map[string]any {
	m := make(map[string]any, len(x.fields)+4)
	maps.Copy(m, x.fields)

	if x.MetaLog {
		m[KeyMetaLog] = true
	}
	if x.PipelineComplete {
		m[KeyPipelineComplete] = true
	}
	putString(m, KeyPipelineRunID, x.PipelineRunID)
	putString(m, KeyStepName, x.StepName)
	putString(m, KeyDecision, x.Decision)
	putString(m, KeyDecisionReason, x.DecisionReason)
	putString(m, KeyModel, x.Model)
	putString(m, KeyVersionDiff, x.VersionDiff)
	putString(m, KeyPrevVersion, x.PrevVersion)
	putString(m, KeyPrevReturn, x.PrevReturn)
	putString(m, KeyPromptInjection, x.PromptInjection)
	if x.CostUSD != nil {
		m[KeyCostUSD] = *x.CostUSD
	}
	if x.TotalCost != nil {
		m[KeyTotalCost] = *x.TotalCost
	}
	if x.TotalMS != nil {
		m[KeyTotalMS] = *x.TotalMS
	}
	if x.DataSizeKB != nil {
		m[KeyDataSizeKB] = *x.DataSizeKB
	}
	if x.TokensIn != nil {
		m[KeyTokensIn] = *x.TokensIn
	}
	if x.TokensOut != nil {
		m[KeyTokensOut] = *x.TokensOut
	}
	if x.ContextLength != nil {
		m[KeyContextLength] = *x.ContextLength
	}
	return m
}

// ExtraFromMap rebuilds an Extra from its flattened form
func ExtraFromMap(m map[string]any) (Extra, error) {
	var x Extra
	for _, k := range sortedKeys(m) {
		if err := x.Set(k, m[k]); err != nil {
			return Extra{}, err
		}
	}
	return x, nil
}

// Primitive coerces a value into the open map domain: nil, string, bool, int64, float64.
// Anything else is rendered with Repr.
func Primitive(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		if val > math.MaxInt64 {
			return float64(val)
		}
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	}
	return Repr(v)
}

// openValue flattens a value for the open map. Structured values are redacted
// before Repr so secrets below the top-level key never reach the string form.
func openValue(v any) any {
	p := Primitive(redact.Nested(v))
	if s, ok := p.(string); ok {
		if _, plain := v.(string); !plain {
			return redact.String(s)
		}
	}
	return p
}

func putString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	case nil:
		return "", true
	}
	return "", false
}

// ToFloat converts numeric values of any width to float64
func ToFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

// ToInt converts numeric values to int64, truncating floats
func ToInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float64:
		return int64(val), true
	case float32:
		return int64(val), true
	default:
		return 0, false
	}
}

func floatPtr(v any) (*float64, bool) {
	if v == nil {
		return nil, true
	}
	f, ok := ToFloat(v)
	if !ok {
		return nil, false
	}
	return &f, true
}

func intPtr(v any) (*int64, bool) {
	if v == nil {
		return nil, true
	}
	i, ok := ToInt(v)
	if !ok {
		return nil, false
	}
	return &i, true
}
