package dbschema

import (
	"database/sql"
	"fmt"
	"math/big"
)

// NumericDecoder turns a driver-specific NUMERIC value into an exact rational
type NumericDecoder func(v interface{}) (*big.Rat, error)

// DecodeNumeric handles the textual and native numeric representations
// database/sql drivers commonly return
func DecodeNumeric(v interface{}) (*big.Rat, error) {
	switch n := v.(type) {
	case string:
		return parseRat(n)
	case []byte:
		return parseRat(string(n))
	case float64:
		return new(big.Rat).SetFloat64(n), nil
	case float32:
		return new(big.Rat).SetFloat64(float64(n)), nil
	case int64:
		return new(big.Rat).SetInt64(n), nil
	case int32:
		return new(big.Rat).SetInt64(int64(n)), nil
	case int:
		return new(big.Rat).SetInt64(int64(n)), nil
	case *big.Rat:
		return n, nil
	case *big.Int:
		return new(big.Rat).SetInt(n), nil
	default:
		return nil, fmt.Errorf("unsupported numeric value of type %T", v)
	}
}

func parseRat(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return r, nil
}

// ScanRows reads every row of a full-table select into a map keyed by
// column name. Values are native: string, bool, *big.Rat or time.Time.
// NULL columns are kept as nil values.
func ScanRows(rows *sql.Rows, table Table, decode NumericDecoder) ([]map[string]interface{}, error) {
	if decode == nil {
		decode = DecodeNumeric
	}

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	columns := make([]Column, len(names))
	for i, name := range names {
		col, ok := table.Column(name)
		if !ok {
			return nil, fmt.Errorf("unexpected column %q in table %s", name, table.Name)
		}
		columns[i] = col
	}

	var result []map[string]interface{}
	for rows.Next() {
		dest := make([]interface{}, len(columns))
		for i, col := range columns {
			switch col.Type {
			case Boolean:
				dest[i] = new(sql.NullBool)
			case Timestamp:
				dest[i] = new(sql.NullTime)
			case Numeric:
				dest[i] = new(interface{})
			default:
				dest[i] = new(sql.NullString)
			}
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			switch v := dest[i].(type) {
			case *sql.NullBool:
				row[col.Name] = valueOrNil(v.Valid, v.Bool)
			case *sql.NullTime:
				row[col.Name] = valueOrNil(v.Valid, v.Time)
			case *sql.NullString:
				row[col.Name] = valueOrNil(v.Valid, v.String)
			case *interface{}:
				if *v == nil {
					row[col.Name] = nil
					continue
				}
				r, err := decode(*v)
				if err != nil {
					return nil, fmt.Errorf("column %s.%s: %w", table.Name, col.Name, err)
				}
				row[col.Name] = r
			}
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func valueOrNil[T any](valid bool, v T) interface{} {
	if !valid {
		return nil
	}
	return v
}
