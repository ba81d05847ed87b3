package docs

import (
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var tagValidator = validator.New()

// LoadWorkflow unmarshals a `ais-flow/0.0.3` document from YAML, runs
// struct-tag validation, then the workflow's own structural checks.
func LoadWorkflow(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, &ValidationError{Field: "document", Message: "yaml decode: " + err.Error()}
	}
	if err := tagValidator.Struct(&wf); err != nil {
		return nil, &ValidationError{Field: "document", Message: err.Error()}
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

// LoadProtocol unmarshals an `ais/0.0.2` document from YAML and runs
// struct-tag validation.
func LoadProtocol(data []byte) (*Protocol, error) {
	var p Protocol
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &ValidationError{Field: "document", Message: "yaml decode: " + err.Error()}
	}
	if err := tagValidator.Struct(&p); err != nil {
		return nil, &ValidationError{Field: "document", Message: err.Error()}
	}
	return &p, nil
}

// LoadPack unmarshals an `ais-pack/0.0.2` document from YAML and runs
// struct-tag validation.
func LoadPack(data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &ValidationError{Field: "document", Message: "yaml decode: " + err.Error()}
	}
	if err := tagValidator.Struct(&p); err != nil {
		return nil, &ValidationError{Field: "document", Message: err.Error()}
	}
	return &p, nil
}
