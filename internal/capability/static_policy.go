package capability

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/model"
)

// RoleGrant is what one role may do.
type RoleGrant struct {
	// Capabilities are raw capability strings such as "admin:reinit" or
	// "Post:*".
	Capabilities []string `yaml:"capabilities"`
	// Lists maps list keys to the permitted actions: read, create, update,
	// delete or "*".
	Lists map[string][]string `yaml:"lists"`
}

type policyFile struct {
	Roles map[string]RoleGrant `yaml:"roles"`
}

var knownActions = map[string]bool{
	model.ActionRead:   true,
	model.ActionCreate: true,
	model.ActionUpdate: true,
	model.ActionDelete: true,
	"*":                true,
}

// StaticPolicyEvaluator resolves capabilities from role grants read from a
// YAML file and from the inline roles of the configuration.
//
//	roles:
//	  editor:
//	    capabilities: [admin:reinit]
//	    lists:
//	      Post: [read, create, update]
//	      User: [read]
type StaticPolicyEvaluator struct {
	path   string
	inline map[string][]string

	mu    sync.RWMutex
	roles map[string]model.CapabilitySet
}

// NewStaticPolicyEvaluator creates an evaluator from cfg. The policy file is
// optional when inline roles are configured.
func NewStaticPolicyEvaluator(cfg config.CapabilityConfig) (*StaticPolicyEvaluator, error) {
	e := &StaticPolicyEvaluator{path: cfg.StaticPolicyFile, inline: cfg.Roles}
	if err := e.Sync(); err != nil {
		return nil, err
	}
	return e, nil
}

// ResolveCapabilities returns the union of the capabilities of all roles of
// the request.
func (e *StaticPolicyEvaluator) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	caps := make(model.CapabilitySet)
	for _, role := range rctx.Roles {
		for c := range e.roles[role] {
			caps[c] = true
		}
	}
	return caps, nil
}

// Sync reloads the policy file from disk. The previous policy stays in
// effect when the file is invalid.
func (e *StaticPolicyEvaluator) Sync() error {
	var p policyFile
	if e.path != "" {
		data, err := os.ReadFile(e.path)
		if err != nil {
			return fmt.Errorf("capability: reading policy file %s: %w", e.path, err)
		}
		if err := yaml.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("capability: parsing policy file %s: %w", e.path, err)
		}
	}

	roles := make(map[string]model.CapabilitySet, len(p.Roles)+len(e.inline))
	for name, grant := range p.Roles {
		caps, err := grant.capabilities()
		if err != nil {
			return fmt.Errorf("capability: role %q: %w", name, err)
		}
		roles[name] = caps
	}
	for name, list := range e.inline {
		caps := roles[name]
		if caps == nil {
			caps = make(model.CapabilitySet, len(list))
			roles[name] = caps
		}
		for _, c := range list {
			caps[c] = true
		}
	}

	e.mu.Lock()
	e.roles = roles
	e.mu.Unlock()

	return nil
}

// HealthCheck reports whether the policy file can still be read.
func (e *StaticPolicyEvaluator) HealthCheck(context.Context) error {
	if e.path == "" {
		return nil
	}
	_, err := os.Stat(e.path)
	return err
}

func (g RoleGrant) capabilities() (model.CapabilitySet, error) {
	caps := make(model.CapabilitySet, len(g.Capabilities))
	for _, c := range g.Capabilities {
		if c == "" {
			return nil, fmt.Errorf("empty capability")
		}
		caps[c] = true
	}
	for listKey, actions := range g.Lists {
		for _, action := range actions {
			if !knownActions[action] {
				return nil, fmt.Errorf("list %s: unknown action %q", listKey, action)
			}
			caps[model.ListCapability(listKey, action)] = true
		}
	}
	return caps, nil
}

// AllowAll grants every capability to every caller. It backs local setups
// running with identity disabled.
type AllowAll struct{}

// ResolveCapabilities implements model.PolicyEvaluator.
func (AllowAll) ResolveCapabilities(*model.RequestContext) (model.CapabilitySet, error) {
	return model.CapabilitySet{"*": true}, nil
}

// Sync implements model.PolicyEvaluator.
func (AllowAll) Sync() error { return nil }

// NewEvaluator builds the evaluator named by cfg.Evaluator.
func NewEvaluator(cfg config.CapabilityConfig) (model.PolicyEvaluator, error) {
	switch cfg.Evaluator {
	case "", "static":
		return NewStaticPolicyEvaluator(cfg)
	case "allow_all":
		return AllowAll{}, nil
	default:
		return nil, fmt.Errorf("capability: unknown evaluator %q", cfg.Evaluator)
	}
}
