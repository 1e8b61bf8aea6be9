package node

import (
	"fmt"
	"os"

	"github.com/encodeous/opera/state"
	"github.com/goccy/go-yaml"
)

// ReadNodeConfig loads a node.yaml, fills in the preset and checks it.
func ReadNodeConfig(path string) (*state.NodeCfg, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := new(state.NodeCfg)
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	state.ExpandConfig(cfg)
	if err := state.NodeConfigValidator(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
