// Package iam declares IAM roles and their policies.
package iam

import (
	"fmt"

	"github.com/apex/log"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/stack"
)

// IRole is a declared or imported role that grants can be attached to.
type IRole interface {
	Arn() any
	Name() any
	// AddToPolicy attaches a statement and reports whether the role accepted
	// it. Imported roles never do.
	AddToPolicy(s *intrinsics.PolicyStatement) (bool, error)
}

// Role is an AWS::IAM::Role.
type Role struct {
	stack.Construct          `json:"-"`
	RoleName                 any
	Description              string
	AssumeRolePolicyDocument *intrinsics.PolicyDocument
	ManagedPolicyArns        []any
	MaxSessionDuration       int
	Path                     string

	policy *Policy
}

func (*Role) ResourceType() string { return "AWS::IAM::Role" }

// Arn returns the role ARN.
func (r *Role) Arn() any { return r.GetAtt("Arn") }

// Name returns the role name.
func (r *Role) Name() any { return r.Ref() }

// DefaultPolicy returns the inline policy holding added statements, or nil.
func (r *Role) DefaultPolicy() *Policy { return r.policy }

// AddToPolicy adds s to the role's default policy, creating the policy on
// first use. Identical statements are added once.
func (r *Role) AddToPolicy(s *intrinsics.PolicyStatement) (bool, error) {
	if s == nil {
		return false, nil
	}
	if r.policy == nil {
		st := r.Stack()
		if st == nil {
			return false, fmt.Errorf("role %q is not part of a stack", r.ID())
		}
		p := &Policy{
			PolicyDocument: intrinsics.NewPolicyDocument(),
			Roles:          []any{r.Ref()},
		}
		if err := st.AddChild(r, "DefaultPolicy", p); err != nil {
			return false, err
		}
		p.PolicyName = p.LogicalID()
		r.policy = p
	}
	r.policy.PolicyDocument.AddStatements(s)
	return true, nil
}

// AddManagedPolicy attaches a managed policy ARN once.
func (r *Role) AddManagedPolicy(arn any) {
	for _, existing := range r.ManagedPolicyArns {
		if existing == arn {
			return
		}
	}
	r.ManagedPolicyArns = append(r.ManagedPolicyArns, arn)
}

// Policy is an AWS::IAM::Policy attached to roles.
type Policy struct {
	stack.Construct `json:"-"`
	PolicyName      string
	PolicyDocument  *intrinsics.PolicyDocument
	Roles           []any
}

func (*Policy) ResourceType() string { return "AWS::IAM::Policy" }

// ImportedRole is a role referenced by ARN. It declares nothing.
type ImportedRole struct {
	arn  any
	name any
}

// Arn returns the role ARN.
func (r *ImportedRole) Arn() any { return r.arn }

// Name returns the role name.
func (r *ImportedRole) Name() any { return r.name }

// AddToPolicy does nothing: imported roles are managed elsewhere.
func (r *ImportedRole) AddToPolicy(*intrinsics.PolicyStatement) (bool, error) {
	return false, nil
}

// ManagedPolicyArn returns the ARN of an AWS managed policy, e.g.
// "service-role/AWSLambdaBasicExecutionRole".
func ManagedPolicyArn(name string) any {
	return intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":iam::aws:policy/", name)
}

// PolicyStatement allows actions on resources, by default on "*".
func PolicyStatement(actions []string, resources ...any) *intrinsics.PolicyStatement {
	if len(resources) == 0 {
		resources = []any{"*"}
	}
	return intrinsics.AllowStatement(actions, resources...)
}

// RoleProps configures NewRole.
type RoleProps struct {
	RoleName        string
	Description     string
	AssumedBy       any // principal, e.g. intrinsics.ServicePrincipal{"lambda.amazonaws.com"}
	ManagedPolicies []any
	Statements      []*intrinsics.PolicyStatement
}

// NewRole declares a role under id.
func NewRole(st *stack.Stack, id string, props RoleProps) (*Role, error) {
	if props.AssumedBy == nil {
		return nil, fmt.Errorf("role %q: no principal", id)
	}
	r := &Role{
		Description:              props.Description,
		AssumeRolePolicyDocument: intrinsics.AssumeRolePolicy(props.AssumedBy),
	}
	if props.RoleName != "" {
		r.RoleName = props.RoleName
	}
	if err := st.Add(id, r); err != nil {
		return nil, err
	}
	for _, arn := range props.ManagedPolicies {
		r.AddManagedPolicy(arn)
	}
	for _, s := range props.Statements {
		if _, err := r.AddToPolicy(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RoleWithPolicies declares role "profile-for-role-<name>" assumable by the
// service principal and allowed the given actions on resources ("*" when
// none).
func RoleWithPolicies(st *stack.Stack, name, principal string, actions []string, resources ...any) (*Role, error) {
	r, err := NewRole(st, "profile-for-role-"+name, RoleProps{
		RoleName:   name,
		AssumedBy:  intrinsics.ServicePrincipal{principal},
		Statements: []*intrinsics.PolicyStatement{PolicyStatement(actions, resources...)},
	})
	if err != nil {
		return nil, err
	}
	log.WithField("role", name).WithField("principal", principal).Debug("role declared")
	return r, nil
}

// RoleFromArn references an existing role.
func RoleFromArn(st *stack.Stack, id string, arn any) (*ImportedRole, error) {
	if err := st.Import(id); err != nil {
		return nil, err
	}
	return &ImportedRole{arn: arn, name: roleNameFromArn(arn)}, nil
}

// RoleFromName references the role arn:aws:iam::<account>:role/<name> under
// construct ID "profile-for-role-<name>".
func RoleFromName(st *stack.Stack, name string) (*ImportedRole, error) {
	arn := st.FormatArn(stack.ArnFormat{Service: "iam", Resource: "role/" + name, NoRegion: true})
	if err := st.Import("profile-for-role-" + name); err != nil {
		return nil, err
	}
	return &ImportedRole{arn: arn, name: name}, nil
}

// roleNameFromArn returns the last path segment of a literal role ARN.
func roleNameFromArn(arn any) any {
	s, ok := arn.(string)
	if !ok {
		return intrinsics.Select{Index: 1, List: intrinsics.Split{Delimiter: "/", Source: arn}}
	}
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return s[i+1:]
		}
	}
	return s
}

// Grant adds a statement to role when it accepts grants.
func Grant(role IRole, actions []string, resources ...any) error {
	if role == nil {
		return nil
	}
	_, err := role.AddToPolicy(PolicyStatement(actions, resources...))
	return err
}
