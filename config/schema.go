package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// validateSchema unifies the raw YAML document with the embedded CUE schema.
// Structural problems such as unknown fields, wrong types, or malformed
// durations are rejected here before the document is decoded into structs.
func validateSchema(raw []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	file, err := cueyaml.Extract("config.yaml", raw)
	if err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	document := ctx.BuildFile(file)
	if err := document.Err(); err != nil {
		return fmt.Errorf("build config document: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(document)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}
