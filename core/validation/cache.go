// Package validation compiles and caches one validator per (document type,
// purpose) pair at startup, so request-time validation never recompiles a
// schema. A cache miss at request time is a configuration defect.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/artpar/docgate/core/doctype"
	"github.com/artpar/docgate/core/fieldtype"
	"github.com/artpar/docgate/core/schema"
	"github.com/artpar/docgate/pkg/docerror"
)

// Purpose names what a cached validator checks.
type Purpose string

const (
	PurposeDocInstance       Purpose = "doc instance"
	PurposeConstructorParams Purpose = "constructor params"
	PurposeMergePatch        Purpose = "merge patch"
	PurposeOperationParams   Purpose = "operation params"
	PurposeFilterParams      Purpose = "filter params"
)

type cacheKey struct {
	docType string
	purpose Purpose
	// name holds the operation or filter name, "" otherwise.
	name string
}

// Cache holds the compiled validators. It is built once at startup and is
// safe for concurrent reads.
type Cache struct {
	schemas map[cacheKey]*jsonschema.Schema
	printer *message.Printer
}

// NewCache composes and compiles every validator the given document types
// will ever need: full instance, constructor parameters, merge patch, and
// the parameters of each operation and filter.
func NewCache(reg *fieldtype.Registry, docTypes []*doctype.DocType) (*Cache, error) {
	c := &Cache{
		schemas: make(map[cacheKey]*jsonschema.Schema),
		printer: message.NewPrinter(language.English),
	}

	for _, dt := range docTypes {
		instance, err := schema.ComposeDocInstance(reg, dt)
		if err != nil {
			return nil, fmt.Errorf("doc type %q: compose instance schema: %w", dt.Name, err)
		}
		if err := c.add(cacheKey{dt.Name, PurposeDocInstance, ""}, instance); err != nil {
			return nil, fmt.Errorf("doc type %q: compile instance schema: %w", dt.Name, err)
		}

		ctor, err := schema.ComposeConstructorParams(reg, dt)
		if err != nil {
			return nil, fmt.Errorf("doc type %q: compose ctor schema: %w", dt.Name, err)
		}
		if err := c.add(cacheKey{dt.Name, PurposeConstructorParams, ""}, ctor); err != nil {
			return nil, fmt.Errorf("doc type %q: compile ctor schema: %w", dt.Name, err)
		}

		patch, err := schema.ComposeMergePatch(reg, dt)
		if err != nil {
			return nil, fmt.Errorf("doc type %q: compose patch schema: %w", dt.Name, err)
		}
		if err := c.add(cacheKey{dt.Name, PurposeMergePatch, ""}, patch); err != nil {
			return nil, fmt.Errorf("doc type %q: compile patch schema: %w", dt.Name, err)
		}

		for opName := range dt.Operations {
			doc, err := schema.ComposeOperationParams(reg, dt, opName)
			if err != nil {
				return nil, fmt.Errorf("doc type %q: compose operation %q schema: %w", dt.Name, opName, err)
			}
			if err := c.add(cacheKey{dt.Name, PurposeOperationParams, opName}, doc); err != nil {
				return nil, fmt.Errorf("doc type %q: compile operation %q schema: %w", dt.Name, opName, err)
			}
		}

		for filterName := range dt.Filters {
			doc, err := schema.ComposeFilterParams(reg, dt, filterName)
			if err != nil {
				return nil, fmt.Errorf("doc type %q: compose filter %q schema: %w", dt.Name, filterName, err)
			}
			if err := c.add(cacheKey{dt.Name, PurposeFilterParams, filterName}, doc); err != nil {
				return nil, fmt.Errorf("doc type %q: compile filter %q schema: %w", dt.Name, filterName, err)
			}
		}
	}

	return c, nil
}

func (c *Cache) add(key cacheKey, doc map[string]any) error {
	compiled, err := compile(doc, schemaURL(key))
	if err != nil {
		return err
	}
	c.schemas[key] = compiled
	return nil
}

func schemaURL(key cacheKey) string {
	url := "https://docgate.dev/schemas/" + key.docType + "/" + strings.ReplaceAll(string(key.purpose), " ", "-")
	if key.name != "" {
		url += "/" + key.name
	}
	return url + ".json"
}

// compile round-trips the composed document through JSON so the compiler
// sees canonical JSON values regardless of how the schema was assembled.
func compile(doc map[string]any, url string) (*jsonschema.Schema, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	resource, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reload schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, resource); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// Validate checks value against the cached validator for (docTypeName,
// purpose, name). It returns a ValidationError carrying structured
// violations when the value is invalid, or a ValidatorMissingError when no
// such validator was compiled.
func (c *Cache) Validate(docTypeName string, purpose Purpose, name string, value any) error {
	compiled, ok := c.schemas[cacheKey{docTypeName, purpose, name}]
	if !ok {
		return &docerror.ValidatorMissingError{DocTypeName: docTypeName, Purpose: string(purpose), Name: name}
	}

	normalized, err := normalize(value)
	if err != nil {
		return &docerror.ValidationError{
			DocTypeName: docTypeName,
			Purpose:     string(purpose),
			Violations:  []docerror.Violation{{Path: "/", Message: err.Error()}},
		}
	}

	err = compiled.Validate(normalized)
	if err == nil {
		return nil
	}

	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("validate %s for doc type %q: %w", purpose, docTypeName, err)
	}

	return &docerror.ValidationError{
		DocTypeName: docTypeName,
		Purpose:     string(purpose),
		Violations:  c.flatten(verr, nil),
	}
}

// normalize round-trips a value through JSON so validation always sees
// canonical JSON types, whatever Go values the caller supplied.
func normalize(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-shaped: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// flatten walks the cause tree and keeps the leaves, which carry the
// specific failures.
func (c *Cache) flatten(verr *jsonschema.ValidationError, out []docerror.Violation) []docerror.Violation {
	if len(verr.Causes) == 0 {
		path := "/"
		if len(verr.InstanceLocation) > 0 {
			path = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return append(out, docerror.Violation{
			Path:    path,
			Message: verr.ErrorKind.LocalizedString(c.printer),
		})
	}
	for _, cause := range verr.Causes {
		out = c.flatten(cause, out)
	}
	return out
}
