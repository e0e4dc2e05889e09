package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNotObject is returned when a JSON value expected to be an object is not.
var ErrNotObject = errors.New("not a JSON object")

// Document is a JSON object that keeps its keys in file order and its
// values as raw JSON, so fields nobody touches are written back unchanged.
type Document struct {
	fields *orderedmap.OrderedMap[string, json.RawMessage]
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{fields: orderedmap.New[string, json.RawMessage]()}
}

// ParseDocument parses data, which must be a single JSON object.
func ParseDocument(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, errors.New("invalid JSON")
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}
	d := NewDocument()
	if err := json.Unmarshal(trimmed, d.fields); err != nil {
		return nil, err
	}
	return d, nil
}

// String returns the string stored under key. ok is false when the key is
// absent; an error is returned when the value is not a string.
func (d *Document) String(key string) (value string, ok bool, err error) {
	raw, ok := d.fields.Get(key)
	if !ok {
		return "", false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", true, fmt.Errorf("field %q is not a string", key)
	}
	return value, true, nil
}

// SetString stores a string under key, appending the key if it is new.
func (d *Document) SetString(key, value string) error {
	raw, err := marshalNoEscape(value)
	if err != nil {
		return err
	}
	d.fields.Set(key, raw)
	return nil
}

// Object returns the nested object stored under key.
func (d *Document) Object(key string) (*Document, bool, error) {
	raw, ok := d.fields.Get(key)
	if !ok {
		return nil, false, nil
	}
	child, err := ParseDocument(raw)
	if err != nil {
		return nil, true, fmt.Errorf("field %q: %w", key, err)
	}
	return child, true, nil
}

// SetObject stores a nested object under key.
func (d *Document) SetObject(key string, child *Document) error {
	raw, err := child.MarshalJSON()
	if err != nil {
		return err
	}
	d.fields.Set(key, raw)
	return nil
}

// Objects returns the array of objects stored under key.
func (d *Document) Objects(key string) ([]*Document, bool, error) {
	raw, ok := d.fields.Get(key)
	if !ok {
		return nil, false, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, true, fmt.Errorf("field %q is not an array", key)
	}
	docs := make([]*Document, 0, len(items))
	for i, item := range items {
		child, err := ParseDocument(item)
		if err != nil {
			return nil, true, fmt.Errorf("field %q[%d]: %w", key, i, err)
		}
		docs = append(docs, child)
	}
	return docs, true, nil
}

// SetObjects stores an array of objects under key.
func (d *Document) SetObjects(key string, children []*Document) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, child := range children {
		if i > 0 {
			buf.WriteByte(',')
		}
		raw, err := child.MarshalJSON()
		if err != nil {
			return err
		}
		buf.Write(raw)
	}
	buf.WriteByte(']')
	d.fields.Set(key, json.RawMessage(buf.Bytes()))
	return nil
}

// MarshalJSON writes the object compactly with keys in their original order.
// Raw values are copied as-is.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := marshalNoEscape(pair.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := json.Compact(&buf, pair.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", pair.Key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Bytes returns the document indented with two spaces and a trailing newline.
func (d *Document) Bytes() ([]byte, error) {
	compact, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// marshalNoEscape encodes v without HTML escaping, matching what editors
// and jq write for descriptions containing '&' or '<'.
func marshalNoEscape(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
