// Package policy decides which users may use the admin endpoints.
package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"fakebroker/api/models"
)

const adminQuery = "data.fakebroker.admin.allow"

const adminRego = `package fakebroker.admin

default allow := false

allow if {
	email := lower(trim_space(input.user.email))
	email != ""
	email in input.admin_emails
}
`

// AdminPolicy evaluates the admin Rego policy against an email allowlist.
// The query is compiled and prepared once.
type AdminPolicy struct {
	emails []string
	query  rego.PreparedEvalQuery
}

// NewAdminPolicy compiles the policy. Emails are matched case-insensitively.
func NewAdminPolicy(ctx context.Context, emails []string) (*AdminPolicy, error) {
	compiler, err := ast.CompileModules(map[string]string{"admin.rego": adminRego})
	if err != nil {
		return nil, fmt.Errorf("compile admin policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(adminQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare admin policy: %w", err)
	}

	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			normalized = append(normalized, e)
		}
	}
	return &AdminPolicy{emails: normalized, query: q}, nil
}

// IsAdmin reports whether user is allowed on admin routes. Evaluation errors deny.
func (p *AdminPolicy) IsAdmin(ctx context.Context, user *models.User) bool {
	if p == nil || user == nil {
		return false
	}
	input := map[string]interface{}{
		"user":         map[string]interface{}{"id": user.ID, "email": user.Email},
		"admin_emails": p.emails,
	}
	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false
	}
	return rs.Allowed()
}
