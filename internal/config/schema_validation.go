package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	preforkschema "github.com/Paintersrp/prefork/schema"
)

var preforkSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	schema, err := jsonschema.CompileString("prefork.v1.json", string(preforkschema.PreforkV1Schema))
	if err != nil {
		return nil, fmt.Errorf("compile prefork.v1.json: %w", err)
	}
	return schema, nil
})

// validateAgainstSchema checks the raw document against prefork.v1.json.
// Failures wrap ErrInvalid and list one line per offending field.
func validateAgainstSchema(raw map[string]any) error {
	schema, err := preforkSchema()
	if err != nil {
		return err
	}
	doc, err := asJSON(raw)
	if err != nil {
		return fmt.Errorf("prepare config for schema validation: %w", err)
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var vErr *jsonschema.ValidationError
	if !errors.As(err, &vErr) {
		return fmt.Errorf("%w: schema validation failed: %v", ErrInvalid, err)
	}
	return fmt.Errorf("%w: schema validation failed:\n%s", ErrInvalid, strings.Join(schemaViolations(vErr), "\n"))
}

// asJSON re-encodes the YAML document so nested maps and numbers have JSON
// shapes. Durations stay strings and are checked by the duration pattern.
func asJSON(raw map[string]any) (any, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// schemaViolations flattens vErr into sorted "- field: message" lines,
// skipping the wrapper nodes that only group their causes.
func schemaViolations(vErr *jsonschema.ValidationError) []string {
	var lines []string
	for _, e := range vErr.BasicOutput().Errors {
		if e.Error == "" || strings.HasPrefix(e.Error, "doesn't validate with") {
			continue
		}
		line := fmt.Sprintf("- %s: %s", instancePath(e.InstanceLocation), e.Error)
		if !slices.Contains(lines, line) {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, fmt.Sprintf("- %s: %s", instancePath(vErr.InstanceLocation), vErr.Message))
	}
	slices.Sort(lines)
	return lines
}

// instancePath turns a pointer such as /supervisor/childTimeout into the
// dotted form used by Validate messages.
func instancePath(ptr string) string {
	ptr = strings.Trim(ptr, "/")
	if ptr == "" {
		return "config"
	}
	return fieldPath(strings.Split(ptr, "/")...)
}
