package models

import "strings"

// itnSuffix marks a model alias requesting inverse text normalization.
const itnSuffix = ":itn"

// DefaultModel is used when the caller omits the model form field.
const DefaultModel = "qwen3-asr-flash"

// ModelSpec is the parsed form of the caller-supplied model string.
// Language is forwarded to the backend unvalidated.
type ModelSpec struct {
	BaseModel string
	EnableITN bool
	Language  string
}

// ResolveModelSpec splits the optional ":itn" suffix off the model alias.
// It is a pure function of its inputs; routing happens separately.
func ResolveModelSpec(model, language string) ModelSpec {
	spec := ModelSpec{BaseModel: model, Language: language}
	if strings.HasSuffix(model, itnSuffix) {
		spec.BaseModel = strings.TrimSuffix(model, itnSuffix)
		spec.EnableITN = true
	}
	return spec
}
