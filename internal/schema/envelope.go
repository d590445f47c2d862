package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed envelope.cue
var envelopeSchema string

// BackupType is the __meta.type of every export.
const BackupType = "erp_backup"

// ValidateEnvelopeMeta checks a decoded __meta object against the CUE
// definition in envelope.cue. Unknown fields are rejected because CUE
// definitions are closed.
func ValidateEnvelopeMeta(meta any) error {
	ctx := cuecontext.New()
	schemaVal := ctx.CompileString(envelopeSchema, cue.Filename("envelope.cue"))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("compile envelope schema: %w", err)
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Meta"))

	v := def.Unify(ctx.Encode(plain(meta)))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("backup meta: %s", errors.Details(err, nil))
	}
	return nil
}

// plain converts json.Number leaves into Go numbers so CUE sees ints as ints.
func plain(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return string(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = plain(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = plain(elem)
		}
		return out
	}
	return v
}
