package mcpconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ServersKey is the only top-level key of opencode.json the manager interprets.
const ServersKey = "mcp"

const (
	enabledKey = "enabled"
	typeKey    = "type"
	commandKey = "command"

	// DefaultType is shown for entries without a "type" field.
	DefaultType = "unknown"
)

// ErrNotObject is returned when a document's top-level JSON value is not an object.
var ErrNotObject = errors.New("top-level value is not a JSON object")

// object keeps keys in document order and values as raw JSON so that
// anything the manager does not understand is written back untouched.
type object = orderedmap.OrderedMap[string, json.RawMessage]

func newObject() *object {
	return orderedmap.New[string, json.RawMessage]()
}

// parseObject reads one JSON object, keeping its keys in order and each
// value as the raw bytes it was written with.
func parseObject(data []byte) (*object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	obj := newObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		obj.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

// encodeObject writes obj compactly in key order. Values are copied as
// they were read; keys are escaped without HTML escaping.
func encodeObject(obj *object) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		if pair != obj.Oldest() {
			buf.WriteByte(',')
		}
		if err := enc.Encode(pair.Key); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
		buf.WriteByte(':')
		if !json.Valid(pair.Value) {
			return nil, fmt.Errorf("invalid JSON value for key %q", pair.Key)
		}
		buf.Write(bytes.TrimSpace(pair.Value))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func isObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Document is one parsed opencode.json.
type Document struct {
	root *object
	// servers mirrors root["mcp"] when it is an object; nil otherwise.
	servers *orderedmap.OrderedMap[string, *Entry]
}

// NewDocument returns the empty document ({}), used for missing or broken files.
func NewDocument() *Document {
	return &Document{root: newObject()}
}

// ParseDocument parses data as an opencode.json document.
func ParseDocument(data []byte) (*Document, error) {
	var probe json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if !isObject(probe) {
		return nil, ErrNotObject
	}

	root, err := parseObject(probe)
	if err != nil {
		return nil, err
	}
	doc := &Document{root: root}

	raw, ok := root.Get(ServersKey)
	if !ok || !isObject(raw) {
		return doc, nil
	}
	servers, err := parseObject(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", ServersKey, err)
	}
	doc.servers = orderedmap.New[string, *Entry](servers.Len())
	for pair := servers.Oldest(); pair != nil; pair = pair.Next() {
		entry := &Entry{raw: pair.Value}
		if isObject(pair.Value) {
			fields, err := parseObject(pair.Value)
			if err != nil {
				return nil, fmt.Errorf("parse server %q: %w", pair.Key, err)
			}
			entry.fields = fields
		}
		doc.servers.Set(pair.Key, entry)
	}
	return doc, nil
}

// Entry returns the named server entry. Entries whose value is not a JSON
// object are kept on disk but are not addressable.
func (d *Document) Entry(name string) (*Entry, bool) {
	if d == nil || d.servers == nil {
		return nil, false
	}
	entry, ok := d.servers.Get(name)
	if !ok || entry.fields == nil {
		return nil, false
	}
	return entry, true
}

// Names returns the addressable server names in document order.
func (d *Document) Names() []string {
	if d == nil || d.servers == nil {
		return nil
	}
	names := make([]string, 0, d.servers.Len())
	for pair := d.servers.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.fields != nil {
			names = append(names, pair.Key)
		}
	}
	return names
}

// Len returns the number of addressable server entries.
func (d *Document) Len() int {
	return len(d.Names())
}

// SetEnabled sets "enabled" on an existing entry. It reports false when the
// entry does not exist.
func (d *Document) SetEnabled(name string, value bool) bool {
	entry, ok := d.Entry(name)
	if !ok {
		return false
	}
	entry.setEnabled(value)
	return true
}

// MarshalJSON encodes the document compactly, keeping key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d.servers != nil {
		servers := newObject()
		for pair := d.servers.Oldest(); pair != nil; pair = pair.Next() {
			raw, err := pair.Value.MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("encode server %q: %w", pair.Key, err)
			}
			servers.Set(pair.Key, raw)
		}
		raw, err := encodeObject(servers)
		if err != nil {
			return nil, err
		}
		d.root.Set(ServersKey, raw)
	}
	return encodeObject(d.root)
}

// Encode returns the on-disk form: two-space indentation and a trailing newline.
func (d *Document) Encode() ([]byte, error) {
	compact, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Entry is one server record under "mcp".
type Entry struct {
	raw    json.RawMessage
	fields *object
}

// EnabledState captures the exact "enabled" field of an entry, including
// whether it was present at all.
type EnabledState struct {
	Present bool
	Value   bool
	raw     json.RawMessage
}

// Type returns the "type" field, or DefaultType.
func (e *Entry) Type() string {
	var s string
	if raw, ok := e.fields.Get(typeKey); ok && json.Unmarshal(raw, &s) == nil && s != "" {
		return s
	}
	return DefaultType
}

// Command returns the "command" field. A bare string is returned as a
// single element; other element types are formatted as-is.
func (e *Entry) Command() []string {
	raw, ok := e.fields.Get(commandKey)
	if !ok {
		return nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(v))
			}
		}
		return out
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return []string{s}
	}
	return nil
}

// Enabled reports whether the server is enabled. Anything other than a
// JSON false, including a missing field, counts as enabled.
func (e *Entry) Enabled() bool {
	st := e.EnabledState()
	return !st.Present || st.Value
}

// EnabledState returns the raw state of the "enabled" field.
func (e *Entry) EnabledState() EnabledState {
	raw, ok := e.fields.Get(enabledKey)
	if !ok {
		return EnabledState{}
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return EnabledState{Present: true, Value: true, raw: raw}
	}
	return EnabledState{Present: true, Value: v, raw: raw}
}

// Field returns the raw JSON of any field.
func (e *Entry) Field(key string) (json.RawMessage, bool) {
	return e.fields.Get(key)
}

// Keys returns the entry's field names in document order.
func (e *Entry) Keys() []string {
	keys := make([]string, 0, e.fields.Len())
	for pair := e.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (e *Entry) setEnabled(value bool) {
	e.fields.Set(enabledKey, json.RawMessage(fmt.Sprintf("%t", value)))
}

func (e *Entry) restore(st EnabledState) {
	if !st.Present {
		e.fields.Delete(enabledKey)
		return
	}
	if st.raw != nil {
		e.fields.Set(enabledKey, st.raw)
		return
	}
	e.setEnabled(st.Value)
}

// MarshalJSON encodes the entry, or its original bytes when it is not an object.
func (e *Entry) MarshalJSON() ([]byte, error) {
	if e.fields == nil {
		return e.raw, nil
	}
	return encodeObject(e.fields)
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s: %s", e.Type(), strings.Join(e.Command(), " "))
}
