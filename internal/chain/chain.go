package chain

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Chain describes a single network a batch call can target.
type Chain struct {
	Name        string
	ID          *big.Int
	RPCURL      string
	Description string
}

// Definitions models the structure of configs/chains.yaml.
type Definitions struct {
	Default string                `yaml:"default"`
	Chains  map[string]Definition `yaml:"chains"`
}

// Definition describes a single chain entry in the YAML file.
type Definition struct {
	ID          uint64 `yaml:"id"`
	RPCURL      string `yaml:"rpc_url"`
	Description string `yaml:"description"`
}

// LoadDefinitions parses the YAML file containing chain metadata.
func LoadDefinitions(path string) (Definitions, error) {
	if strings.TrimSpace(path) == "" {
		return Definitions{Chains: map[string]Definition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return Definitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]Definition{}
	}
	return defs, nil
}
