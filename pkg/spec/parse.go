package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Parse decodes a JSON or YAML document. JSON is detected by a leading '{'
// or '['; everything else goes through the YAML decoder.
func Parse(data []byte) (*Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return parseJSON(trimmed)
	}
	return parseYAML(trimmed)
}

func parseJSON(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeJSONValue(dec)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid JSON: trailing data after document")
	}
	return n, nil
}

func decodeJSONValue(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key %v is not a string", keyTok)
				}
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := NewArray()
			for dec.More() {
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				arr.Append(child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return NewScalar(t), nil
	}
}

func parseYAML(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("invalid YAML: no document")
	}
	return fromYAML(doc.Content[0], map[*yaml.Node]bool{})
}

func fromYAML(y *yaml.Node, expanding map[*yaml.Node]bool) (*Node, error) {
	switch y.Kind {
	case yaml.MappingNode:
		obj := NewObject()
		for i := 0; i+1 < len(y.Content); i += 2 {
			child, err := fromYAML(y.Content[i+1], expanding)
			if err != nil {
				return nil, err
			}
			obj.Set(y.Content[i].Value, child)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := NewArray()
		for _, item := range y.Content {
			child, err := fromYAML(item, expanding)
			if err != nil {
				return nil, err
			}
			arr.Append(child)
		}
		return arr, nil
	case yaml.AliasNode:
		if expanding[y.Alias] {
			return nil, fmt.Errorf("invalid YAML: recursive alias at line %d", y.Line)
		}
		expanding[y.Alias] = true
		defer delete(expanding, y.Alias)
		return fromYAML(y.Alias, expanding)
	case yaml.ScalarNode:
		return yamlScalar(y), nil
	default:
		return nil, fmt.Errorf("invalid YAML: unsupported node kind %d at line %d", y.Kind, y.Line)
	}
}

func yamlScalar(y *yaml.Node) *Node {
	switch y.ShortTag() {
	case "!!null":
		return NewScalar(nil)
	case "!!bool":
		var b bool
		if err := y.Decode(&b); err == nil {
			return NewScalar(b)
		}
	case "!!int":
		if i, err := strconv.ParseInt(y.Value, 0, 64); err == nil {
			return NewScalar(i)
		}
		var i int64
		if err := y.Decode(&i); err == nil {
			return NewScalar(i)
		}
	case "!!float":
		var f float64
		if err := y.Decode(&f); err == nil {
			return NewScalar(f)
		}
	}
	return NewScalar(y.Value)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
