package authz

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Permissions checked by the HTTP layer
const (
	PermBookingsCreate  = "bookings:create"
	PermPaymentsCreate  = "payments:create"
	PermBookingsReadAny = "bookings:read_any"
	PermManifestRead    = "manifest:read"
	PermTicketsValidate = "tickets:validate"
	PermTicketsCheckIn  = "tickets:check_in"
	PermCatalogManage   = "catalog:manage"
	PermUsersManage     = "users:manage"
)

//go:embed policy.rego
var defaultPolicy string

// Authorizer evaluates the role policy in-process
type Authorizer struct {
	query rego.PreparedEvalQuery
}

// New prepares the embedded policy
func New(ctx context.Context) (*Authorizer, error) {
	return NewWithPolicy(ctx, defaultPolicy)
}

// NewWithPolicy prepares a custom policy. It must define data.speedboat.authz.allow.
func NewWithPolicy(ctx context.Context, policy string) (*Authorizer, error) {
	query, err := rego.New(
		rego.Query("data.speedboat.authz.allow"),
		rego.Module("policy.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare authorization policy: %w", err)
	}
	return &Authorizer{query: query}, nil
}

// Allow reports whether role holds permission
func (a *Authorizer) Allow(ctx context.Context, role, permission string) (bool, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"role":       role,
		"permission": permission,
	}))
	if err != nil {
		return false, fmt.Errorf("policy evaluation failed: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy returned non-boolean %T", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}
