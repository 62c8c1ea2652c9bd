// FILE: callwisp/src/internal/service/remote.go
package service

import (
	"bytes"
	"fmt"

	"callwisp/src/internal/core"

	"github.com/goccy/go-json"
)

const (
	defaultRemoteLanguage = "bash"
	defaultRemoteEnv      = "prod"
)

// RemoteCall is a command execution reported by a remote client
type RemoteCall struct {
	Cmd        string   `json:"cmd"`
	Args       []any    `json:"args"`
	Language   string   `json:"language"`
	Env        string   `json:"env"`
	Success    *bool    `json:"success"`
	DurationMS *float64 `json:"duration_ms"`
	Output     string   `json:"output"`
	Error      string   `json:"error"`
}

// Entry maps the call onto a log entry. Only an explicit success=false is an error.
func (c *RemoteCall) Entry() *core.LogEntry {
	language := c.Language
	if language == "" {
		language = defaultRemoteLanguage
	}
	env := c.Env
	if env == "" {
		env = defaultRemoteEnv
	}

	level := core.LevelInfo
	if c.Success != nil && !*c.Success {
		level = core.LevelError
	}

	e := core.NewEntry(level, c.Cmd, language)
	if len(c.Args) > 0 {
		e.Args = append([]any(nil), c.Args...)
		e.ArgTypes = core.TypeNames(e.Args)
	}
	e.Kwargs = map[string]any{"language": language, "env": env}
	e.KwargTypes = map[string]string{"language": "string", "env": "string"}
	if c.Output != "" {
		e.ReturnValue = c.Output
		e.ReturnType = "string"
	}
	if c.Error != "" {
		e.Exception = c.Error
		e.ExceptionType = "RemoteError"
	}
	duration := 0.0
	if c.DurationMS != nil {
		duration = *c.DurationMS
	}
	e.DurationMS = core.Float(duration)
	e.Environment = env
	return e
}

// ingestItem is one decoded request item and the acknowledgement returned for it
type ingestItem struct {
	entry *core.LogEntry
	ack   map[string]any
}

// decodeItem accepts either a full entry as produced by the HTTP forwarding sink
// (identified by function_name) or a remote command report
func decodeItem(raw json.RawMessage) (ingestItem, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		return ingestItem{}, fmt.Errorf("expected a JSON object: %w", err)
	}

	if _, ok := shape["function_name"]; ok {
		entry, err := core.DecodeJSON(raw)
		if err != nil {
			return ingestItem{}, err
		}
		if entry.FunctionName == "" {
			return ingestItem{}, fmt.Errorf("missing required field: function_name")
		}
		return ingestItem{
			entry: entry,
			ack:   map[string]any{"function_name": entry.FunctionName, "stored": true},
		}, nil
	}

	var call RemoteCall
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&call); err != nil {
		return ingestItem{}, err
	}
	if call.Cmd == "" {
		return ingestItem{}, fmt.Errorf("missing required field: cmd")
	}
	entry := call.Entry()
	return ingestItem{
		entry: entry,
		ack:   map[string]any{"cmd": call.Cmd, "language": entry.Module, "stored": true},
	}, nil
}

// decodeBatch parses {"entries": [...]}; any invalid item rejects the whole batch
func decodeBatch(body []byte) ([]ingestItem, error) {
	var batch struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, err
	}
	if batch.Entries == nil {
		return nil, fmt.Errorf("missing required field: entries")
	}

	items := make([]ingestItem, 0, len(batch.Entries))
	for i, raw := range batch.Entries {
		item, err := decodeItem(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}
