package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Registry manages a set of chain descriptors keyed by human readable names.
type Registry struct {
	defaultChain string
	chains       map[string]*Chain
}

// NewRegistry builds a registry from loaded definitions.
func NewRegistry(defs Definitions) (*Registry, error) {
	chains := make(map[string]*Chain, len(defs.Chains))
	for name, def := range defs.Chains {
		if def.ID == 0 {
			return nil, fmt.Errorf("链 %s 缺少 chain id", name)
		}
		chains[name] = &Chain{
			Name:        name,
			ID:          new(big.Int).SetUint64(def.ID),
			RPCURL:      def.RPCURL,
			Description: def.Description,
		}
	}
	if len(chains) == 0 {
		return nil, errors.New("未配置任何链")
	}

	defaultChain := strings.TrimSpace(defs.Default)
	if defaultChain == "" {
		names := make([]string, 0, len(chains))
		for name := range chains {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := chains[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	return &Registry{defaultChain: defaultChain, chains: chains}, nil
}

// Default returns the chain configured as default.
func (r *Registry) Default() (*Chain, error) {
	if r == nil {
		return nil, errors.New("未初始化的链注册表")
	}
	chain, ok := r.chains[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return chain, nil
}

// Chain returns the descriptor identified by name.
func (r *Registry) Chain(name string) (*Chain, bool) {
	if r == nil {
		return nil, false
	}
	chain, ok := r.chains[name]
	return chain, ok
}

// Names returns the list of registered chain names.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
