package gateway

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed fields.yaml
var fieldsYAML []byte

type fieldNode struct {
	Name     string      `yaml:"name"`
	Children []fieldNode `yaml:"children,omitempty"`
}

type fieldConfig struct {
	Groups []fieldNode `yaml:"groups"`
}

// loadFieldNames flattens the grouped projection config into the leaf field
// names the provider expects, preserving declaration order.
func loadFieldNames() ([]string, error) {
	var cfg fieldConfig
	if err := yaml.Unmarshal(fieldsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parse fields config: %w", err)
	}

	var names []string
	var walk func(nodes []fieldNode)
	walk = func(nodes []fieldNode) {
		for _, n := range nodes {
			if len(n.Children) > 0 {
				walk(n.Children)
				continue
			}
			if n.Name != "" {
				names = append(names, n.Name)
			}
		}
	}
	walk(cfg.Groups)

	if len(names) == 0 {
		return nil, fmt.Errorf("fields config declares no leaf fields")
	}
	return names, nil
}
