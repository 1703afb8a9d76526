package intrinsics

import (
	"encoding/json"
	"reflect"
)

// Statement effects.
const (
	Allow = "Allow"
	Deny  = "Deny"
)

// PolicyVersion is the IAM policy language version.
const PolicyVersion = "2012-10-17"

// PolicyDocument represents an IAM policy document.
type PolicyDocument struct {
	Version   string             `json:"Version,omitempty"`
	Statement []*PolicyStatement `json:"Statement"`
}

// NewPolicyDocument creates a PolicyDocument holding the given statements.
func NewPolicyDocument(statements ...*PolicyStatement) *PolicyDocument {
	doc := &PolicyDocument{Version: PolicyVersion}
	doc.AddStatements(statements...)
	return doc
}

// AddStatements appends statements that are not already present. A statement
// with a Sid replaces the existing statement with the same Sid.
func (d *PolicyDocument) AddStatements(statements ...*PolicyStatement) {
next:
	for _, st := range statements {
		if st == nil {
			continue
		}
		for i, existing := range d.Statement {
			if st.Sid != "" && existing.Sid == st.Sid {
				d.Statement[i] = st
				continue next
			}
			if reflect.DeepEqual(existing, st) {
				continue next
			}
		}
		d.Statement = append(d.Statement, st)
	}
}

// IsEmpty reports whether the document has no statements.
func (d *PolicyDocument) IsEmpty() bool {
	return d == nil || len(d.Statement) == 0
}

// PolicyStatement represents an IAM policy statement.
type PolicyStatement struct {
	Sid       string   `json:"Sid,omitempty"`
	Effect    string   `json:"Effect"`
	Principal any      `json:"Principal,omitempty"`
	Action    []string `json:"Action,omitempty"`
	Resource  []any    `json:"Resource,omitempty"`
	Condition Json     `json:"Condition,omitempty"`
}

// AllowStatement returns an Allow statement for actions on resources.
func AllowStatement(actions []string, resources ...any) *PolicyStatement {
	return &PolicyStatement{Effect: Allow, Action: actions, Resource: resources}
}

// ServicePrincipal is a service principal such as lambda.amazonaws.com.
type ServicePrincipal []any

// MarshalJSON serializes to {"Service": ...}.
func (p ServicePrincipal) MarshalJSON() ([]byte, error) {
	return marshalPrincipal("Service", p)
}

// AWSPrincipal is an account, role or user principal.
type AWSPrincipal []any

// MarshalJSON serializes to {"AWS": ...}.
func (p AWSPrincipal) MarshalJSON() ([]byte, error) {
	return marshalPrincipal("AWS", p)
}

func marshalPrincipal(kind string, values []any) ([]byte, error) {
	if len(values) == 1 {
		return json.Marshal(map[string]any{kind: values[0]})
	}
	return json.Marshal(map[string]any{kind: values})
}

// AssumeRolePolicy returns the trust policy letting principal assume a role.
func AssumeRolePolicy(principal any) *PolicyDocument {
	return NewPolicyDocument(&PolicyStatement{
		Effect:    Allow,
		Principal: principal,
		Action:    []string{"sts:AssumeRole"},
	})
}
