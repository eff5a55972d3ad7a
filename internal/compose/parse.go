package compose

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LabelStatusIgnore excludes a service from stack status calculation.
const LabelStatusIgnore = "chainid.status.ignore"

// ServiceData holds the extracted per-service data from a compose file.
type ServiceData struct {
	Image        string // e.g. "nginx:latest"; empty for build-only services
	StatusIgnore bool   // chainid.status.ignore == "true"
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image  string   `yaml:"image"`
	Labels labelSet `yaml:"labels"`
}

// labelSet accepts both label forms compose allows: a mapping, or a list of
// "key=value" strings.
type labelSet map[string]string

func (l *labelSet) UnmarshalYAML(node *yaml.Node) error {
	out := make(labelSet)
	switch node.Kind {
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		for k, v := range m {
			out[k] = v
		}
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		for _, entry := range list {
			k, v, _ := strings.Cut(entry, "=")
			out[k] = v
		}
	case yaml.ScalarNode:
		// "labels:" with no value
	default:
		return fmt.Errorf("labels: unexpected yaml node kind %d", node.Kind)
	}
	*l = out
	return nil
}

// ParseFile reads a compose file from disk and extracts service data.
func ParseFile(path string) (map[string]ServiceData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	services, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return services, nil
}

// ParseYAML parses compose YAML and extracts service data.
func ParseYAML(data []byte) (map[string]ServiceData, error) {
	var f composeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse compose yaml: %w", err)
	}

	result := make(map[string]ServiceData, len(f.Services))
	for name, svc := range f.Services {
		result[name] = ServiceData{
			Image:        strings.TrimSpace(svc.Image),
			StatusIgnore: strings.EqualFold(strings.Trim(svc.Labels[LabelStatusIgnore], `"'`), "true"),
		}
	}
	return result, nil
}
