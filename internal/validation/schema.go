package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	ErrSchemaInvalid    = errors.New("schema invalid")
	ErrSchemaValidation = errors.New("schema validation failed")
)

// Issue is one failed schema keyword, addressed by JSON pointer.
type Issue struct {
	Pointer string
	Message string
}

func (i Issue) String() string {
	pointer := strings.TrimSpace(i.Pointer)
	if !strings.HasPrefix(pointer, "#") {
		pointer = "#" + pointer
	}
	if i.Message == "" {
		return pointer
	}
	return pointer + ": " + i.Message
}

// DocumentError lists every issue found in one document.
type DocumentError struct {
	Source string
	Issues []Issue
	Cause  error
}

func (e *DocumentError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	switch {
	case len(e.Issues) > 0:
		for i, issue := range e.Issues {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(issue.String())
		}
	case e.Cause != nil:
		b.WriteString(e.Cause.Error())
	default:
		b.WriteString(ErrSchemaValidation.Error())
	}
	return b.String()
}

func (e *DocumentError) Unwrap() error { return ErrSchemaValidation }

// Issues returns the leaf issues carried by err, if any.
func Issues(err error) []Issue {
	var docErr *DocumentError
	if errors.As(err, &docErr) {
		return docErr.Issues
	}
	var schemaErr *jsonschema.ValidationError
	if errors.As(err, &schemaErr) {
		return leafIssues(schemaErr, nil)
	}
	if err != nil {
		return []Issue{{Message: err.Error()}}
	}
	return nil
}

// Compile parses a draft 2020-12 schema registered under name.
func Compile(name string, schema []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(name, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaInvalid, name, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaInvalid, name, err)
	}
	return compiled, nil
}

// ValidateDocument checks document against schema. source names the
// document in error messages (usually the config file path). Values decoded
// from YAML or TOML are re-encoded as JSON first so integers and nested maps
// reach the validator in the JSON data model.
func ValidateDocument(schema *jsonschema.Schema, source string, document any) error {
	if schema == nil {
		return nil
	}
	encoded, err := json.Marshal(document)
	if err != nil {
		return &DocumentError{Source: source, Cause: err}
	}
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var instance any
	if err := decoder.Decode(&instance); err != nil {
		return &DocumentError{Source: source, Cause: err}
	}
	if err := schema.Validate(instance); err != nil {
		var schemaErr *jsonschema.ValidationError
		if errors.As(err, &schemaErr) {
			return &DocumentError{Source: source, Issues: leafIssues(schemaErr, nil), Cause: err}
		}
		return &DocumentError{Source: source, Cause: err}
	}
	return nil
}

func leafIssues(node *jsonschema.ValidationError, acc []Issue) []Issue {
	if node == nil {
		return acc
	}
	if len(node.Causes) == 0 {
		return append(acc, Issue{
			Pointer: strings.TrimSpace(node.InstanceLocation),
			Message: strings.TrimSpace(node.Message),
		})
	}
	for _, cause := range node.Causes {
		acc = leafIssues(cause, acc)
	}
	return acc
}
