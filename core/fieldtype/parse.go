package fieldtype

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse parses one or more field type definitions from YAML bytes. A file
// may hold a single definition or a list of definitions.
func Parse(data []byte) ([]FieldType, error) {
	var list []FieldType
	if err := yaml.Unmarshal(data, &list); err == nil {
		return checkAll(list)
	}

	var single FieldType
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return checkAll([]FieldType{single})
}

// ParseFile parses field type definitions from a YAML file.
func ParseFile(path string) ([]FieldType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	types, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return types, nil
}

// ParseDir parses all field type definitions from a directory.
func ParseDir(dir string) ([]FieldType, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var types []FieldType
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		parsed, err := ParseFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		types = append(types, parsed...)
	}

	return types, nil
}

func checkAll(types []FieldType) ([]FieldType, error) {
	for _, ft := range types {
		if err := check(ft); err != nil {
			return nil, err
		}
	}
	return types, nil
}
