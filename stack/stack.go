// Package stack is the scope every resource factory declares into. A Stack
// collects resources, template parameters, outputs and file assets, and
// synthesizes them into a CloudFormation template.
package stack

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/apex/log"

	cdkutils "github.com/lex00/cdkutils-go"
	"github.com/lex00/cdkutils-go/intrinsics"
)

// ErrDuplicateID is returned when a construct ID is registered twice.
var ErrDuplicateID = errors.New("duplicate construct ID")

// Environment pins a stack to an account and region. Empty fields resolve to
// the AWS::AccountId and AWS::Region pseudo parameters at deploy time.
type Environment struct {
	Account string
	Region  string
}

// Stack is a unit of deployment.
type Stack struct {
	Name        string
	Description string
	Env         Environment

	resources  []Resource
	ids        map[string]bool
	logicalIDs map[string]bool
	parameters map[string]cdkutils.Parameter
	paramOrder []string
	outputs    map[string]cdkutils.Output
	assets     []Asset
}

// New creates an empty stack.
func New(name string, env Environment) *Stack {
	return &Stack{
		Name:       name,
		Env:        env,
		ids:        make(map[string]bool),
		logicalIDs: make(map[string]bool),
		parameters: make(map[string]cdkutils.Parameter),
		outputs:    make(map[string]cdkutils.Output),
	}
}

// Add registers r as a top-level construct under id.
func (s *Stack) Add(id string, r Resource) error {
	return s.add([]string{sanitizeID(id)}, r)
}

// AddChild registers r under parent, e.g. an API's deployment.
func (s *Stack) AddChild(parent Resource, id string, r Resource) error {
	p := parent.base()
	if p.stack != s {
		return fmt.Errorf("parent %q belongs to another stack", p.ID())
	}
	path := append(append([]string{}, p.path...), sanitizeID(id))
	return s.add(path, r)
}

func (s *Stack) add(path []string, r Resource) error {
	if r == nil || reflect.ValueOf(r).IsNil() {
		return errors.New("cannot add a nil resource")
	}
	c := r.base()
	if c.stack != nil {
		return fmt.Errorf("resource %q is already part of stack %q", c.ID(), c.stack.Name)
	}
	key := strings.Join(path, "/")
	if path[len(path)-1] == "" {
		return errors.New("construct ID must not be empty")
	}
	if s.ids[key] {
		return fmt.Errorf("%w: %q in stack %q", ErrDuplicateID, key, s.Name)
	}
	logicalID := LogicalIDFor(path...)
	if s.logicalIDs[logicalID] {
		return fmt.Errorf("%w: %q maps to existing logical ID %q", ErrDuplicateID, key, logicalID)
	}

	s.ids[key] = true
	s.logicalIDs[logicalID] = true
	c.stack = s
	c.path = path
	c.logicalID = logicalID
	s.resources = append(s.resources, r)

	log.WithField("stack", s.Name).WithField("id", key).WithField("type", r.ResourceType()).Debug("resource added")
	return nil
}

// Import reserves id for an imported handle that declares nothing.
func (s *Stack) Import(id string) error {
	key := sanitizeID(id)
	if key == "" {
		return errors.New("construct ID must not be empty")
	}
	if s.ids[key] {
		return fmt.Errorf("%w: %q in stack %q", ErrDuplicateID, key, s.Name)
	}
	s.ids[key] = true
	return nil
}

// Resources returns the declared resources in declaration order.
func (s *Stack) Resources() []Resource {
	return append([]Resource(nil), s.resources...)
}

// FindByID returns the resource registered under a construct path.
func (s *Stack) FindByID(id string) (Resource, bool) {
	for _, r := range s.resources {
		if r.base().ID() == id {
			return r, true
		}
	}
	return nil, false
}

// AddParameter declares a template parameter and returns a Ref to it.
// Declaring the same name twice with an identical definition is a no-op.
func (s *Stack) AddParameter(name string, p cdkutils.Parameter) (intrinsics.Ref, error) {
	ref := intrinsics.Ref{LogicalName: name}
	if existing, ok := s.parameters[name]; ok {
		if reflect.DeepEqual(existing, p) {
			return ref, nil
		}
		return intrinsics.Ref{}, fmt.Errorf("%w: parameter %q", ErrDuplicateID, name)
	}
	if s.logicalIDs[name] {
		return intrinsics.Ref{}, fmt.Errorf("%w: parameter %q clashes with a resource", ErrDuplicateID, name)
	}
	s.parameters[name] = p
	s.paramOrder = append(s.paramOrder, name)
	return ref, nil
}

// AddOutput declares a template output. exportName may be empty.
func (s *Stack) AddOutput(name string, value any, description, exportName string) error {
	if _, ok := s.outputs[name]; ok {
		return fmt.Errorf("%w: output %q", ErrDuplicateID, name)
	}
	o := cdkutils.Output{Description: description, Value: value}
	if exportName != "" {
		o.Export = &cdkutils.Export{Name: exportName}
	}
	s.outputs[name] = o
	return nil
}

// Account returns the account ID or the AWS::AccountId pseudo parameter.
func (s *Stack) Account() any {
	if s.Env.Account != "" {
		return s.Env.Account
	}
	return intrinsics.AWS_ACCOUNT_ID
}

// Region returns the region or the AWS::Region pseudo parameter.
func (s *Stack) Region() any {
	if s.Env.Region != "" {
		return s.Env.Region
	}
	return intrinsics.AWS_REGION
}

// ArnFormat describes an ARN "arn:aws:<service>:<region>:<account>:<resource>".
type ArnFormat struct {
	Service  string
	Resource string
	// NoRegion and NoAccount leave the component empty (IAM, S3).
	NoRegion  bool
	NoAccount bool
}

// FormatArn builds an ARN in the stack's environment. The result is a
// literal string when account and region are known and an Fn::Join otherwise.
func (s *Stack) FormatArn(a ArnFormat) any {
	var region, account any = "", ""
	if !a.NoRegion {
		region = s.Region()
	}
	if !a.NoAccount {
		account = s.Account()
	}
	return intrinsics.Concat("arn:aws:", a.Service, ":", region, ":", account, ":", a.Resource)
}

// sanitizeID replaces path separators, which construct IDs may not contain.
func sanitizeID(id string) string {
	return strings.ReplaceAll(id, "/", "--")
}
