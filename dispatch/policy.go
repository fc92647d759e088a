package dispatch

import (
	"fmt"

	"github.com/zpatrick/rbac"

	"go.hackfix.me/switchboard/route"
)

// Trust tiers of a request identity.
const (
	RoleAnonymous     = "anonymous"
	RoleDemo          = "demo"
	RoleAuthenticated = "authenticated"
)

const actionDispatch = "dispatch"

// Policy decides whether an identity may dispatch to a binding. Anonymous and
// demo identities may only reach unrestricted routes; authenticated, non-demo
// identities may reach any route.
type Policy struct {
	roles map[string]rbac.Role
}

// NewPolicy returns the default route access policy.
func NewPolicy() *Policy {
	public := rbac.NewGlobPermission(actionDispatch, "public:*")
	return &Policy{roles: map[string]rbac.Role{
		RoleAnonymous: {RoleID: RoleAnonymous, Permissions: []rbac.Permission{public}},
		RoleDemo:      {RoleID: RoleDemo, Permissions: []rbac.Permission{public}},
		RoleAuthenticated: {
			RoleID:      RoleAuthenticated,
			Permissions: []rbac.Permission{rbac.NewGlobPermission(actionDispatch, "*")},
		},
	}}
}

// RoleOf returns the trust tier of the request context.
func RoleOf(rc RequestContext) string {
	switch {
	case !rc.Authenticated():
		return RoleAnonymous
	case rc.Demo():
		return RoleDemo
	default:
		return RoleAuthenticated
	}
}

// Allow returns true if rc may dispatch to b.
func (p *Policy) Allow(rc RequestContext, b route.Binding) (bool, error) {
	role, ok := p.roles[RoleOf(rc)]
	if !ok {
		return false, fmt.Errorf("unknown role '%s'", RoleOf(rc))
	}

	allowed, err := role.Can(actionDispatch, target(b))
	if err != nil {
		return false, fmt.Errorf("failed checking %s permission: %w", role.RoleID, err)
	}

	return allowed, nil
}

func target(b route.Binding) string {
	if b.Restricted {
		return "restricted:" + b.Pattern
	}
	return "public:" + b.Pattern
}
