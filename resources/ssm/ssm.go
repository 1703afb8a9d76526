// Package ssm declares and reads SSM string parameters.
package ssm

import (
	cdkutils "github.com/lex00/cdkutils-go"
	"github.com/lex00/cdkutils-go/stack"
)

// TierStandard is the only tier the factories declare.
const TierStandard = "Standard"

// StringParameter is an AWS::SSM::Parameter of type String.
type StringParameter struct {
	stack.Construct `json:"-"`
	Name            string
	Type            string
	Value           any
	Description     string
	AllowedPattern  string
	Tier            string
}

func (*StringParameter) ResourceType() string { return "AWS::SSM::Parameter" }

// StringValue returns the parameter value.
func (p *StringParameter) StringValue() any { return p.GetAtt("Value") }

// ParameterProps configures PutStringParameter.
type ParameterProps struct {
	Description    string // default "SSM parameter for <name>"
	AllowedPattern string // default ".*"
	ID             string // default "profile-for-ssm-put-<name>"
}

// PutStringParameter declares a Standard tier string parameter.
func PutStringParameter(st *stack.Stack, name string, value any, props ParameterProps) (*StringParameter, error) {
	p := &StringParameter{
		Name:           name,
		Type:           "String",
		Value:          value,
		Description:    props.Description,
		AllowedPattern: props.AllowedPattern,
		Tier:           TierStandard,
	}
	if p.Description == "" {
		p.Description = "SSM parameter for " + name
	}
	if p.AllowedPattern == "" {
		p.AllowedPattern = ".*"
	}
	id := props.ID
	if id == "" {
		id = "profile-for-ssm-put-" + name
	}
	if err := st.Add(id, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ImportedParameter is an existing parameter resolved at deploy time
// through a template parameter.
type ImportedParameter struct {
	Name        string
	stringValue any
}

// StringValue returns the deploy-time value.
func (p *ImportedParameter) StringValue() any { return p.stringValue }

// RetrieveStringParameter references the existing parameter name under
// "profile-for-ssm-retrieve-<name>". The value is read at deploy time
// through an AWS::SSM::Parameter::Value<String> template parameter.
func RetrieveStringParameter(st *stack.Stack, name string) (*ImportedParameter, error) {
	id := "profile-for-ssm-retrieve-" + name
	if err := st.Import(id); err != nil {
		return nil, err
	}
	ref, err := st.AddParameter(stack.LogicalIDFor(id)+"Parameter", cdkutils.Parameter{
		Type:    "AWS::SSM::Parameter::Value<String>",
		Default: name,
	})
	if err != nil {
		return nil, err
	}
	return &ImportedParameter{Name: name, stringValue: ref}, nil
}

// RetrieveStringParameterValue returns only the deploy-time value.
func RetrieveStringParameterValue(st *stack.Stack, name string) (any, error) {
	p, err := RetrieveStringParameter(st, name)
	if err != nil {
		return nil, err
	}
	return p.StringValue(), nil
}
