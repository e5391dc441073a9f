package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseExperimentYAML parses an Experiment from YAML bytes and validates it.
// Fields missing from the document keep their DefaultExperiment values;
// unknown fields are rejected.
func ParseExperimentYAML(data []byte) (*Experiment, error) {
	exp := DefaultExperiment()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(exp); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse experiment yaml: %w", err)
	}

	if err := ValidateExperiment(exp); err != nil {
		return nil, fmt.Errorf("invalid experiment: %w", err)
	}

	return exp, nil
}

// ParseExperimentYAMLString parses an Experiment from a YAML string and validates it.
func ParseExperimentYAMLString(yamlText string) (*Experiment, error) {
	return ParseExperimentYAML([]byte(yamlText))
}

// MarshalExperimentYAML renders exp back to YAML
func MarshalExperimentYAML(exp *Experiment) (string, error) {
	out, err := yaml.Marshal(exp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal experiment yaml: %w", err)
	}
	return string(out), nil
}
