// Package logs declares CloudWatch log groups and Lambda subscription
// filters on them.
package logs

import (
	"github.com/apex/log"

	"github.com/lex00/cdkutils-go/resources/lambda"
	"github.com/lex00/cdkutils-go/stack"
)

// DefaultRetentionDays is two months.
const DefaultRetentionDays = 60

// ILogGroup is a declared or imported log group.
type ILogGroup interface {
	Name() any
	Arn() any
	ID() string
	Stack() *stack.Stack
}

// LogGroup is an AWS::Logs::LogGroup.
type LogGroup struct {
	stack.Construct `json:"-"`
	LogGroupName    any
	RetentionInDays int
}

func (*LogGroup) ResourceType() string { return "AWS::Logs::LogGroup" }

// Name returns the group name.
func (g *LogGroup) Name() any { return g.Ref() }

// Arn returns the group ARN.
func (g *LogGroup) Arn() any { return g.GetAtt("Arn") }

// LogGroupProps configures CreateLogGroup.
type LogGroupProps struct {
	// ID overrides the construct ID "profile-for-log-<name>".
	ID string
	// Removal defaults to DESTROY.
	Removal stack.RemovalPolicy
	// RetentionDays defaults to 60.
	RetentionDays int
}

// CreateLogGroup declares log group name.
func CreateLogGroup(st *stack.Stack, name string, props LogGroupProps) (*LogGroup, error) {
	id := props.ID
	if id == "" {
		id = "profile-for-log-" + name
	}
	g := &LogGroup{LogGroupName: name, RetentionInDays: props.RetentionDays}
	if g.RetentionInDays == 0 {
		g.RetentionInDays = DefaultRetentionDays
	}
	if err := st.Add(id, g); err != nil {
		return nil, err
	}
	removal := props.Removal
	if removal == "" {
		removal = stack.RemovalDestroy
	}
	g.ApplyRemovalPolicy(removal)
	return g, nil
}

// ImportedLogGroup is an existing log group.
type ImportedLogGroup struct {
	st   *stack.Stack
	id   string
	name string
}

func (g *ImportedLogGroup) Name() any           { return g.name }
func (g *ImportedLogGroup) ID() string          { return g.id }
func (g *ImportedLogGroup) Stack() *stack.Stack { return g.st }

// Arn returns the ARN matching every stream of the group.
func (g *ImportedLogGroup) Arn() any {
	return g.st.FormatArn(stack.ArnFormat{Service: "logs", Resource: "log-group:" + g.name + ":*"})
}

// LogGroupFromName references log group name. id defaults to
// "profile-for-log-<name>".
func LogGroupFromName(st *stack.Stack, name, id string) (*ImportedLogGroup, error) {
	if id == "" {
		id = "profile-for-log-" + name
	}
	if err := st.Import(id); err != nil {
		return nil, err
	}
	return &ImportedLogGroup{st: st, id: id, name: name}, nil
}

// SubscriptionFilter is an AWS::Logs::SubscriptionFilter.
type SubscriptionFilter struct {
	stack.Construct `json:"-"`
	LogGroupName    any
	DestinationArn  any
	FilterName      string
	FilterPattern   string
}

func (*SubscriptionFilter) ResourceType() string { return "AWS::Logs::SubscriptionFilter" }

// AddLambdaSubscription streams events of group matching pattern to fn
// under construct ID name. A nil pattern matches Step Functions execution
// events that succeeded or failed.
func AddLambdaSubscription(group ILogGroup, fn lambda.IFunction, name string, pattern FilterPattern) (*SubscriptionFilter, error) {
	if pattern == nil {
		pattern = StatusPattern()
	}
	f := &SubscriptionFilter{
		LogGroupName:   group.Name(),
		DestinationArn: fn.Arn(),
		FilterPattern:  pattern.PatternString(),
	}
	if err := group.Stack().Add(name, f); err != nil {
		return nil, err
	}
	if err := allowLogs(group, fn, f); err != nil {
		return nil, err
	}
	return f, nil
}

// AddSubscriptionFilter attaches a filter to group, as a child of a
// declared group or as "<groupID>-<id>" for an imported one.
func AddSubscriptionFilter(group ILogGroup, id, filterName string, fn lambda.IFunction, pattern FilterPattern) (*SubscriptionFilter, error) {
	f := &SubscriptionFilter{
		LogGroupName:   group.Name(),
		DestinationArn: fn.Arn(),
		FilterName:     filterName,
		FilterPattern:  pattern.PatternString(),
	}
	st := group.Stack()
	var err error
	if declared, ok := group.(*LogGroup); ok {
		err = st.AddChild(declared, id, f)
	} else {
		err = st.Add(group.ID()+"-"+id, f)
	}
	if err != nil {
		return nil, err
	}
	if err := allowLogs(group, fn, f); err != nil {
		return nil, err
	}
	return f, nil
}

// AddSuccessAndErrorSubscription sends events matching the literal
// errorFilter and successFilter to fn. Empty filters are skipped.
func AddSuccessAndErrorSubscription(group ILogGroup, name string, fn lambda.IFunction, errorFilter, successFilter string) ([]*SubscriptionFilter, error) {
	var filters []*SubscriptionFilter
	if errorFilter != "" {
		f, err := AddSubscriptionFilter(group, name+"LogGroupErrorSubscription", "log_subscription_error_"+name, fn, Literal(errorFilter))
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	if successFilter != "" {
		f, err := AddSubscriptionFilter(group, name+"LogGroupSuccessSubscription", "log_subscription_success_"+name, fn, Literal(successFilter))
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	log.WithField("group", group.ID()).WithField("filters", len(filters)).Debug("log subscriptions added")
	return filters, nil
}

// allowLogs lets CloudWatch Logs invoke fn and orders f after the
// permission.
func allowLogs(group ILogGroup, fn lambda.IFunction, f *SubscriptionFilter) error {
	p, err := lambda.AddPermission(fn, "CanInvokeLambda"+f.LogicalID(), "logs.amazonaws.com", group.Arn())
	if err != nil {
		return err
	}
	f.AddDependency(p)
	return nil
}
