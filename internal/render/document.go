// Package render applies sweep bindings to base configuration documents,
// producing one concrete configuration per job.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/polysweep/polysweep/internal/sweeperrors"
)

// Document is a parsed JSON configuration. Numeric literals are kept verbatim
// (json.Number) so that fields no binding touches re-emit exactly as authored.
type Document struct {
	root interface{}
}

// FromFilePath reads and parses a JSON configuration document.
func FromFilePath(filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to parse config document %s", filePath)
	}
	return doc, nil
}

// Parse decodes a single JSON document.
func Parse(data []byte) (*Document, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var root interface{}
	if err := decoder.Decode(&root); err != nil {
		return nil, errors.WithStack(err)
	}
	if decoder.More() {
		return nil, errors.Errorf("trailing content after JSON document")
	}
	return &Document{root: root}, nil
}

// Marshal serialises the document with sorted keys and two-space indentation.
// Serialisation is deterministic: marshalling an unchanged document twice
// yields identical bytes.
func (doc *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc.root); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// DeepCopy returns a copy sharing no mutable state with the original.
func (doc *Document) DeepCopy() *Document {
	return &Document{root: deepCopyValue(doc.root)}
}

func deepCopyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for key, elem := range v {
			m[key] = deepCopyValue(elem)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(v))
		for i, elem := range v {
			s[i] = deepCopyValue(elem)
		}
		return s
	default:
		return value
	}
}

// Get returns the value at path. Paths are dot-separated keys where a key may
// carry one bracket suffix: "[i]" indexes an array, "[key=value]" selects the
// single array element whose key field equals value. A selector matching zero
// or several elements is an error.
func (doc *Document) Get(path string) (interface{}, error) {
	segments, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	current := doc.root
	for _, seg := range segments {
		current, err = getSegment(current, seg, path)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

// Set replaces the value at path. The field must already exist: bindings
// change values, never document structure.
func (doc *Document) Set(path string, value interface{}) error {
	segments, err := parsePath(path)
	if err != nil {
		return err
	}
	current := doc.root
	for _, seg := range segments[:len(segments)-1] {
		current, err = getSegment(current, seg, path)
		if err != nil {
			return err
		}
	}

	last := segments[len(segments)-1]
	obj, ok := current.(map[string]interface{})
	if !ok {
		return bindingError(path, fmt.Sprintf("segment %q: parent is not an object", last.key))
	}
	existing, ok := obj[last.key]
	if !ok {
		return bindingError(path, fmt.Sprintf("no field %q", last.key))
	}
	if last.index < 0 && last.selKey == "" {
		obj[last.key] = value
		return nil
	}

	arr, ok := existing.([]interface{})
	if !ok {
		return bindingError(path, fmt.Sprintf("field %q is not an array", last.key))
	}
	i, err := elementIndex(arr, last, path)
	if err != nil {
		return err
	}
	arr[i] = value
	return nil
}

type segment struct {
	key string
	// index is the "[i]" array index, -1 if absent.
	index int
	// selKey/selValue carry a "[key=value]" selector.
	selKey   string
	selValue string
}

func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, bindingError(path, "empty path")
	}
	var segments []segment
	rest := path
	for {
		i := strings.IndexAny(rest, ".[")
		if i == -1 {
			if rest == "" {
				return nil, bindingError(path, "trailing separator")
			}
			return append(segments, segment{key: rest, index: -1}), nil
		}
		if i == 0 {
			return nil, bindingError(path, "empty segment")
		}
		if rest[i] == '.' {
			segments = append(segments, segment{key: rest[:i], index: -1})
			rest = rest[i+1:]
			continue
		}

		seg := segment{key: rest[:i], index: -1}
		j := strings.Index(rest[i:], "]")
		if j == -1 {
			return nil, bindingError(path, "unclosed '['")
		}
		content := rest[i+1 : i+j]
		if k := strings.Index(content, "="); k >= 0 {
			seg.selKey, seg.selValue = content[:k], content[k+1:]
			if seg.selKey == "" {
				return nil, bindingError(path, "empty selector key")
			}
		} else {
			index, err := strconv.Atoi(content)
			if err != nil || index < 0 {
				return nil, bindingError(path, fmt.Sprintf("bad array index %q", content))
			}
			seg.index = index
		}
		segments = append(segments, seg)

		rest = rest[i+j+1:]
		if rest == "" {
			return segments, nil
		}
		if rest[0] != '.' {
			return nil, bindingError(path, "expected '.' after ']'")
		}
		rest = rest[1:]
	}
}

func getSegment(container interface{}, seg segment, path string) (interface{}, error) {
	obj, ok := container.(map[string]interface{})
	if !ok {
		return nil, bindingError(path, fmt.Sprintf("segment %q: parent is not an object", seg.key))
	}
	value, ok := obj[seg.key]
	if !ok {
		return nil, bindingError(path, fmt.Sprintf("no field %q", seg.key))
	}
	if seg.index < 0 && seg.selKey == "" {
		return value, nil
	}
	arr, ok := value.([]interface{})
	if !ok {
		return nil, bindingError(path, fmt.Sprintf("field %q is not an array", seg.key))
	}
	i, err := elementIndex(arr, seg, path)
	if err != nil {
		return nil, err
	}
	return arr[i], nil
}

// elementIndex resolves a segment's bracket against an array: a plain index
// must be in range, a selector must match exactly one element.
func elementIndex(arr []interface{}, seg segment, path string) (int, error) {
	if seg.index >= 0 {
		if seg.index >= len(arr) {
			return 0, bindingError(path, fmt.Sprintf("index %d out of range for field %q (length %d)", seg.index, seg.key, len(arr)))
		}
		return seg.index, nil
	}
	match := -1
	for i, elem := range arr {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			continue
		}
		if fieldText(obj[seg.selKey]) != seg.selValue {
			continue
		}
		if match >= 0 {
			return 0, bindingError(path, fmt.Sprintf("selector [%s=%s] matches more than one element of %q", seg.selKey, seg.selValue, seg.key))
		}
		match = i
	}
	if match < 0 {
		return 0, bindingError(path, fmt.Sprintf("selector [%s=%s] matches no element of %q", seg.selKey, seg.selValue, seg.key))
	}
	return match, nil
}

func fieldText(value interface{}) string {
	switch v := value.(type) {
	case json.Number:
		return v.String()
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func bindingError(path, message string) error {
	return errors.WithStack(&sweeperrors.ErrBinding{
		Path:    path,
		Message: message,
	})
}
