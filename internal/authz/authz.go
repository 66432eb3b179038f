// Package authz answers capability questions for authenticated principals.
package authz

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"fleetdesk/internal/auth"
)

// TransportsRead gates entry into the dispatch workflow.
const TransportsRead = "transports:read"

//go:embed policy.rego
var defaultPolicy string

type Checker interface {
	HasPermission(ctx context.Context, p auth.Principal, permission string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, p auth.Principal, permission string) (bool, error)

func (f CheckerFunc) HasPermission(ctx context.Context, p auth.Principal, permission string) (bool, error) {
	return f(ctx, p, permission)
}

// AllowAll grants every permission.
var AllowAll Checker = CheckerFunc(func(context.Context, auth.Principal, string) (bool, error) { return true, nil })

// Policy evaluates a rego module exposing data.dispatch.authz.allow.
type Policy struct {
	query rego.PreparedEvalQuery
}

// NewPolicy compiles the given module, or the embedded role map when module is empty.
func NewPolicy(ctx context.Context, module string) (*Policy, error) {
	if module == "" {
		module = defaultPolicy
	}
	q, err := rego.New(
		rego.Query("data.dispatch.authz.allow"),
		rego.Module("policy.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("authz.NewPolicy: %w", err)
	}
	return &Policy{query: q}, nil
}

func (p *Policy) HasPermission(ctx context.Context, pr auth.Principal, permission string) (bool, error) {
	roles := pr.Roles
	if roles == nil {
		roles = []string{}
	}
	input := map[string]any{
		"subject":    pr.Subject,
		"roles":      roles,
		"permission": permission,
	}
	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("authz.Policy.HasPermission: %w", err)
	}
	return rs.Allowed(), nil
}
