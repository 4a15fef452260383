// Package ioschema holds the versioned JSON schema that report data must
// satisfy whenever it crosses the kcidb boundary, and validates against it.
package ioschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	kcerrors "kcidb/pkg/errors"
)

// Version is the schema version documents declare in their "version" field
const Version = "1"

// JSON is the raw I/O schema document
//
//go:embed schema.json
var JSON []byte

const resourceName = "kcidb-io-schema.json"

var compiled = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.AssertFormat = true
	if err := compiler.AddResource(resourceName, bytes.NewReader(JSON)); err != nil {
		return nil, fmt.Errorf("failed to load I/O schema: %w", err)
	}
	return compiler.Compile(resourceName)
})

// Schema returns the I/O schema decoded as generic JSON
func Schema() (map[string]interface{}, error) {
	var schema map[string]interface{}
	if err := json.Unmarshal(JSON, &schema); err != nil {
		return nil, fmt.Errorf("failed to decode I/O schema: %w", err)
	}
	return schema, nil
}

// Validate checks data against the I/O schema. Any value that encodes to
// JSON is accepted; it is normalized through its JSON encoding first.
// Violations are reported as a single schema violation error listing each
// failing instance location.
func Validate(data interface{}) error {
	schema, err := compiled()
	if err != nil {
		return kcerrors.Wrap(err, kcerrors.ErrCodeInternal, "Failed to compile I/O schema")
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return kcerrors.Wrap(err, kcerrors.ErrCodeInvalidInput, "Data is not representable as JSON")
	}
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var instance interface{}
	if err := decoder.Decode(&instance); err != nil {
		return kcerrors.Wrap(err, kcerrors.ErrCodeInvalidInput, "Data is not valid JSON")
	}

	if err := schema.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return kcerrors.SchemaViolationError(violations(verr))
		}
		return kcerrors.Wrap(err, kcerrors.ErrCodeSchemaViolation, "Data does not conform to the I/O schema")
	}
	return nil
}

// violations flattens a validation error tree into its leaf messages
func violations(root *jsonschema.ValidationError) []string {
	var out []string
	stack := []*jsonschema.ValidationError{root}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", location, e.Message))
			continue
		}
		for i := len(e.Causes) - 1; i >= 0; i-- {
			stack = append(stack, e.Causes[i])
		}
	}
	return out
}
