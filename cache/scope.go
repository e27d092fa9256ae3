package cache

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
)

// ErrInvalidRule indicates a promotion rule that does not compile or does
// not evaluate to a bool.
var ErrInvalidRule = errors.New("cache: invalid scope rule")

// ScopePolicy decides whether a model is stored in the global scope.
//
// The core and DI models are always global. Other models are promoted when
// the optional CEL rule evaluates to true; the rule sees the variables
// uri and version, e.g. `uri.startsWith("http://opcfoundation.org/UA/")`.
type ScopePolicy struct {
	rule    string
	program cel.Program
}

// DefaultScopePolicy promotes only the core and DI models.
func DefaultScopePolicy() *ScopePolicy {
	return &ScopePolicy{}
}

// NewScopePolicy compiles a promotion rule. An empty rule yields the
// default policy.
func NewScopePolicy(rule string) (*ScopePolicy, error) {
	if rule == "" {
		return DefaultScopePolicy(), nil
	}

	env, err := cel.NewEnv(
		cel.Variable("uri", cel.StringType),
		cel.Variable("version", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}

	ast, iss := env.Compile(rule)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, iss.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return &ScopePolicy{rule: rule, program: prg}, nil
}

// Rule returns the promotion rule source.
func (p *ScopePolicy) Rule() string { return p.rule }

// ScopeFor returns the scope a model is stored under when imported from
// requested.
func (p *ScopePolicy) ScopeFor(id model.ModelIdentity, requested Scope) (Scope, error) {
	if requested.IsGlobal() || IsGlobalModel(id.ModelURI) {
		return model.GlobalScope, nil
	}
	if p == nil || p.program == nil {
		return requested, nil
	}

	out, _, err := p.program.Eval(map[string]any{
		"uri":     id.ModelURI,
		"version": id.Version,
	})
	if err != nil {
		return Scope{}, fmt.Errorf("%w: evaluate for %s: %v", ErrInvalidRule, id.ModelURI, err)
	}
	promote, ok := out.Value().(bool)
	if !ok {
		return Scope{}, fmt.Errorf("%w: %q returned %T, want bool", ErrInvalidRule, p.rule, out.Value())
	}
	if promote {
		return model.GlobalScope, nil
	}
	return requested, nil
}

// IsGlobalModel reports whether uri names a model shared by all tenants.
func IsGlobalModel(uri string) bool {
	return uri == nodeset.CoreNamespace || uri == nodeset.DINamespace
}
