// Package convert translates record values between their exchange-schema
// JSON form and their warehouse storage form.
package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"kcidb/internal/dbschema"
)

// TimestampFormat is the ISO-8601 layout timestamps are emitted in
const TimestampFormat = time.RFC3339Nano

// ToStorage returns a deep copy of node with every "misc" object replaced
// by its JSON serialization. Nothing else is changed and node is left
// untouched.
func ToStorage(node interface{}) (interface{}, error) {
	switch n := node.(type) {
	case []interface{}:
		out := make([]interface{}, len(n))
		for i, v := range n {
			c, err := ToStorage(v)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case []map[string]interface{}:
		out := make([]interface{}, len(n))
		for i, v := range n {
			c, err := ToStorage(v)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(n))
		for k, v := range n {
			if k == dbschema.MiscColumn {
				s, err := encodeMisc(v)
				if err != nil {
					return nil, err
				}
				out[k] = s
				continue
			}
			c, err := ToStorage(v)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	default:
		return node, nil
	}
}

// RecordsToStorage converts a list of records for loading
func RecordsToStorage(records []map[string]interface{}) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, len(records))
	for i, r := range records {
		c, err := ToStorage(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = c.(map[string]interface{})
	}
	return out, nil
}

func encodeMisc(v interface{}) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return "", fmt.Errorf("failed to serialize misc: %w", err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// FromStorage converts a retrieved warehouse value (and all its children)
// to its JSON-compatible, schema-complying form: decimals become floats,
// timestamps become ISO-8601 strings, "misc" strings are decoded back to
// objects and null-valued fields are dropped.
func FromStorage(node interface{}) (interface{}, error) {
	switch n := node.(type) {
	case *big.Rat:
		f, _ := n.Float64()
		return f, nil
	case *big.Float:
		f, _ := n.Float64()
		return f, nil
	case json.Number:
		return n.Float64()
	case time.Time:
		return n.Format(TimestampFormat), nil
	case []byte:
		return string(n), nil
	case []interface{}:
		out := make([]interface{}, len(n))
		for i, v := range n {
			c, err := FromStorage(v)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(n))
		for k, v := range n {
			if v == nil {
				continue
			}
			if k == dbschema.MiscColumn {
				m, err := decodeMisc(v)
				if err != nil {
					return nil, err
				}
				out[k] = m
				continue
			}
			c, err := FromStorage(v)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	default:
		return node, nil
	}
}

// RowsFromStorage converts retrieved rows into exchange records
func RowsFromStorage(rows []map[string]interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(rows))
	for i, row := range rows {
		c, err := FromStorage(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func decodeMisc(v interface{}) (interface{}, error) {
	var raw []byte
	switch s := v.(type) {
	case string:
		raw = []byte(s)
	case []byte:
		raw = s
	default:
		return nil, fmt.Errorf("misc column holds %T, expected serialized JSON", v)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var decoded interface{}
	if err := decoder.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to deserialize misc: %w", err)
	}
	return decoded, nil
}
