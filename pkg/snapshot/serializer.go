package snapshot

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Serializer reads and writes a snapshot in one file format.
type Serializer interface {
	Decode(r io.Reader) (*Snapshot, error)
	Encode(s Snapshot) ([]byte, error)
}

// DefaultSerializers returns the serializers keyed by file extension.
func DefaultSerializers() map[string]Serializer {
	return map[string]Serializer{
		".json": JSONSerializer{},
		".yaml": YAMLSerializer{},
		".yml":  YAMLSerializer{},
		".csv":  CSVSerializer{},
	}
}

// --- JSON Serializer ---

// JSONSerializer handles snapshot files in JSON. A plain object without the
// snapshot wrapper is read as a raw storage dump.
type JSONSerializer struct{}

func (JSONSerializer) Decode(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	if raw, ok := payload["items"]; ok {
		var s Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("invalid snapshot: %w", err)
		}
		if s.Items == nil {
			return nil, fmt.Errorf("invalid snapshot: items is %s", raw)
		}
		return &s, nil
	}
	return &Snapshot{Version: Version, Items: payload}, nil
}

func (JSONSerializer) Encode(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// --- YAML Serializer ---

// YAMLSerializer handles snapshot files in YAML. Numbers are kept as
// json.Number so epoch milliseconds survive the round trip.
type YAMLSerializer struct{}

type yamlSnapshot struct {
	Version    int                    `yaml:"version"`
	ExportedAt int64                  `yaml:"exportedAt"`
	Items      map[string]interface{} `yaml:"items"`
}

func (YAMLSerializer) Decode(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var payload yamlSnapshot
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if payload.Items == nil {
		return nil, errors.New("invalid yaml: no items")
	}

	s := &Snapshot{Version: payload.Version, ExportedAt: payload.ExportedAt, Items: make(map[string]json.RawMessage, len(payload.Items))}
	for k, v := range payload.Items {
		raw, err := json.Marshal(recursiveNormalize(v))
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", k, err)
		}
		s.Items[k] = raw
	}
	return s, nil
}

func (YAMLSerializer) Encode(s Snapshot) ([]byte, error) {
	payload := yamlSnapshot{Version: s.Version, ExportedAt: s.ExportedAt, Items: make(map[string]interface{}, len(s.Items))}
	for k, raw := range s.Items {
		v, err := decodeNumbers(raw)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", k, err)
		}
		payload.Items[k] = yamlNumbers(v)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(payload); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// --- CSV Serializer ---

// CSVSerializer writes one row per key with the value as a JSON cell.
type CSVSerializer struct{}

func (CSVSerializer) Decode(r io.Reader) (*Snapshot, error) {
	reader := csv.NewReader(r)
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(headers) != 2 || headers[0] != "key" || headers[1] != "value" {
		return nil, fmt.Errorf("unexpected csv header %v", headers)
	}

	s := &Snapshot{Version: Version, Items: map[string]json.RawMessage{}}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", line, err)
		}
		if !json.Valid([]byte(row[1])) {
			return nil, fmt.Errorf("csv row %d: value of %s is not json", line, row[0])
		}
		s.Items[row[0]] = json.RawMessage(row[1])
	}
	return s, nil
}

func (CSVSerializer) Encode(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"key", "value"}); err != nil {
		return nil, err
	}
	for _, k := range s.Keys() {
		if err := w.Write([]string{k, string(s.Items[k])}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// --- Helpers ---

func decodeNumbers(raw json.RawMessage) (interface{}, error) {
	var v interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// yamlNumbers replaces json.Number with int64 or float64. yaml.v3 would
// otherwise quote it as a string.
func yamlNumbers(val interface{}) interface{} {
	switch v := val.(type) {
	case map[string]interface{}:
		for k, item := range v {
			v[k] = yamlNumbers(item)
		}
		return v
	case []interface{}:
		for i, item := range v {
			v[i] = yamlNumbers(item)
		}
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return v
	}
}

// recursiveNormalize converts YAML numbers to json.Number and YAML maps with
// non-string keys to string keys.
func recursiveNormalize(val interface{}) interface{} {
	switch v := val.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[k] = recursiveNormalize(val)
		}
		return m
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = recursiveNormalize(val)
		}
		return m
	case []interface{}:
		l := make([]interface{}, len(v))
		for i, val := range v {
			l[i] = recursiveNormalize(val)
		}
		return l
	case int:
		return json.Number(strconv.Itoa(v))
	case int64:
		return json.Number(strconv.FormatInt(v, 10))
	case uint64:
		return json.Number(strconv.FormatUint(v, 10))
	case float64:
		return json.Number(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return v
	}
}
