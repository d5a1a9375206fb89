// Package players provides a factory of AI players (searchers.Policy) from configuration strings.
// It also allows player providers to register themselves.
package players

import (
	"github.com/janpfeifer/checkersGo/internal/generics"
	"github.com/janpfeifer/checkersGo/internal/parameters"
	"github.com/janpfeifer/checkersGo/internal/searchers"
	"github.com/pkg/errors"
	"slices"
	"strings"
	"sync"
)

// Module must implement NewPolicy, called once per player created.
// It should pop the parameters it uses from params: parameters left unused are reported as errors.
type Module interface {
	NewPolicy(params parameters.Params) (searchers.Policy, error)
}

var (
	muModules sync.Mutex

	// Registered external modules.
	keywordToModules = make(map[string]Module)
)

// RegisterModule so it can be used by any of the front-ends to play checkersGo.
func RegisterModule(name string, module Module) {
	muModules.Lock()
	defer muModules.Unlock()
	keywordToModules[name] = module
}

// Modules returns the names of the registered modules, sorted.
func Modules() []string {
	muModules.Lock()
	defer muModules.Unlock()
	return slices.Collect(generics.SortedKeys(keywordToModules))
}

var (
	// DefaultPlayerConfig is used if no configuration was given to the AI. The value may be changed by the
	// UI built.
	DefaultPlayerConfig = "random"
)

// New creates a new AI player given the configuration string.
//
// Args:
//
//	config: the module name followed by a colon (":"), followed by a comma-separated list of optional
//		parameters with optional values associated. E.g.: "ab:max_depth=3" or "model:fnn=/tmp/model,temperature=0.1".
//		If empty, the default is given by DefaultPlayerConfig.
//
// More details on the config are dependent on the module used.
func New(config string) (searchers.Policy, error) {
	if config == "" {
		config = DefaultPlayerConfig
	}

	// Find moduleName.
	moduleName, config, _ := strings.Cut(config, ":")
	muModules.Lock()
	module, ok := keywordToModules[moduleName]
	muModules.Unlock()
	if !ok {
		return nil, errors.Errorf("unknown AI player %q, registered players are %q", moduleName, Modules())
	}

	params := parameters.NewFromConfigString(config)
	policy, err := module.NewPolicy(params)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create AI player %q", moduleName)
	}
	if err = parameters.CheckAllUsed(params, moduleName); err != nil {
		return nil, err
	}
	return policy, nil
}
