package fieldtype

import (
	_ "embed"
	"sync"
)

//go:embed builtins.yaml
var builtinYAML []byte

var (
	builtinOnce sync.Once
	builtins    []FieldType
)

// Builtin returns the builtin field type library. The returned slice is a
// fresh copy on every call so callers may append overrides freely.
func Builtin() []FieldType {
	builtinOnce.Do(func() {
		parsed, err := Parse(builtinYAML)
		if err != nil {
			// The builtin library is embedded at compile time; a parse
			// failure means the binary itself is broken.
			panic("parse builtin field types: " + err.Error())
		}
		builtins = parsed
	})

	out := make([]FieldType, len(builtins))
	copy(out, builtins)
	return out
}
