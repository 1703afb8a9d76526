package lambda

import (
	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/stack"
)

// Permission is an AWS::Lambda::Permission.
type Permission struct {
	stack.Construct `json:"-"`
	Action          string
	FunctionName    any
	Principal       string
	SourceArn       any
	SourceAccount   any
}

func (*Permission) ResourceType() string { return "AWS::Lambda::Permission" }

// AddPermission allows principal to invoke fn, optionally only from
// sourceArn. Declared functions own the permission as a child construct.
func AddPermission(fn IFunction, id, principal string, sourceArn any) (*Permission, error) {
	p := &Permission{
		Action:       "lambda:InvokeFunction",
		FunctionName: fn.Arn(),
		Principal:    principal,
		SourceArn:    sourceArn,
	}
	st := fn.Stack()
	if declared, ok := fn.(*Function); ok {
		if err := st.AddChild(declared, id, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	if err := st.Add(fn.ID()+"-"+id, p); err != nil {
		return nil, err
	}
	return p, nil
}

// EventSourceMapping is an AWS::Lambda::EventSourceMapping.
type EventSourceMapping struct {
	stack.Construct                `json:"-"`
	FunctionName                   any
	EventSourceArn                 any
	BatchSize                      int
	MaximumBatchingWindowInSeconds int
	Enabled                        *bool
	StartingPosition               string

	fn IFunction
}

func (*EventSourceMapping) ResourceType() string { return "AWS::Lambda::EventSourceMapping" }

// Prepare orders the mapping after the role policy granting read access to
// the source.
func (m *EventSourceMapping) Prepare() error {
	f, ok := m.fn.(*Function)
	if !ok {
		return nil
	}
	if r, ok := f.ExecutionRole().(*iam.Role); ok && r.DefaultPolicy() != nil && r.Stack() == m.Stack() {
		m.AddDependency(r.DefaultPolicy())
	}
	return nil
}

// AddEventSource maps sourceArn onto fn under construct id.
func AddEventSource(fn IFunction, id string, sourceArn any, batchSize int) (*EventSourceMapping, error) {
	m := &EventSourceMapping{
		FunctionName:   fn.Name(),
		EventSourceArn: sourceArn,
		BatchSize:      batchSize,
		fn:             fn,
	}
	st := fn.Stack()
	if declared, ok := fn.(*Function); ok {
		if err := st.AddChild(declared, id, m); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err := st.Add(fn.ID()+"-"+id, m); err != nil {
		return nil, err
	}
	return m, nil
}
