package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

var routePolicies = [][]string{
	{RoleCustomer, "/api/cart", "GET|POST|DELETE"},
	{RoleCustomer, "/api/cart/:id", "PUT|DELETE"},
	{RoleCustomer, "/api/orders", "GET|POST"},
	{RoleCustomer, "/api/orders/:id", "GET"},
	{RoleCustomer, "/api/payments", "POST"},
	{RoleCustomer, "/api/payments/:token", "GET"},
	{RoleAdmin, "/api/orders/:id/status", "PUT"},
	{RoleAdmin, "/api/admin/*", "GET|PUT"},
}

// Policy decides which routes a role may call. Admins inherit every
// customer route.
type Policy struct {
	enforcer casbin.IEnforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	if _, err := e.AddPolicies(routePolicies); err != nil {
		return nil, fmt.Errorf("add route policies: %w", err)
	}
	if _, err := e.AddGroupingPolicy(RoleAdmin, RoleCustomer); err != nil {
		return nil, fmt.Errorf("add role inheritance: %w", err)
	}
	return &Policy{enforcer: e}, nil
}

func (p *Policy) Allowed(u User, path, method string) (bool, error) {
	return p.enforcer.Enforce(u.Role(), path, method)
}
