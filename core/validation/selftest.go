package validation

import (
	"fmt"

	"github.com/artpar/docgate/core/fieldtype"
	"github.com/artpar/docgate/core/schema"
	"github.com/artpar/docgate/pkg/docerror"
)

// SelfTestFieldTypes checks every field type in the registry against its own
// composed schema: all declared examples must validate and all declared
// invalid examples must fail. It runs once at startup; a failing field type
// must prevent the process from accepting traffic.
func SelfTestFieldTypes(reg *fieldtype.Registry) error {
	for _, name := range reg.Names() {
		doc, err := schema.ComposeFieldTypeValue(reg, name)
		if err != nil {
			return &docerror.SelfTestError{FieldTypeName: name, Reason: err.Error()}
		}
		compiled, err := compile(doc, "https://docgate.dev/schemas/fieldtypes/"+name+".json")
		if err != nil {
			return &docerror.SelfTestError{FieldTypeName: name, Reason: fmt.Sprintf("schema does not compile: %v", err)}
		}

		ft, _ := reg.Get(name)
		for i, example := range ft.Examples {
			value, err := normalize(example)
			if err != nil {
				return &docerror.SelfTestError{FieldTypeName: name, Reason: fmt.Sprintf("example %d is not JSON-shaped: %v", i, err)}
			}
			if err := compiled.Validate(value); err != nil {
				return &docerror.SelfTestError{FieldTypeName: name, Reason: fmt.Sprintf("example %d does not validate: %v", i, err)}
			}
		}
		for i, example := range ft.InvalidExamples {
			value, err := normalize(example)
			if err != nil {
				return &docerror.SelfTestError{FieldTypeName: name, Reason: fmt.Sprintf("invalid example %d is not JSON-shaped: %v", i, err)}
			}
			if err := compiled.Validate(value); err == nil {
				return &docerror.SelfTestError{FieldTypeName: name, Reason: fmt.Sprintf("invalid example %d unexpectedly validates", i)}
			}
		}
	}
	return nil
}
