// Package events declares scheduled EventBridge rules targeting state
// machines and functions.
package events

import (
	"errors"
	"fmt"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/resources/lambda"
	"github.com/lex00/cdkutils-go/stack"
)

// Target kinds.
const (
	TargetStateMachine = "state_machine"
	TargetLambda       = "lambda"
)

// ErrUnknownTarget is returned for an unknown target kind or a target that
// does not match its kind.
var ErrUnknownTarget = errors.New("unknown event rule target")

// StateMachine is a state machine a rule can start.
type StateMachine interface {
	Arn() any
}

// CronOptions are the fields of a cron schedule. Empty fields take "*",
// except WeekDay which takes "?". Day becomes "?" when WeekDay is set.
type CronOptions struct {
	Minute  string
	Hour    string
	Day     string
	Month   string
	WeekDay string
	Year    string
}

// Cron renders a cron(...) schedule expression.
func Cron(o CronOptions) (string, error) {
	if o.Day != "" && o.WeekDay != "" {
		return "", errors.New("cron: day and week day cannot both be set")
	}
	day := o.Day
	if day == "" {
		day = "*"
		if o.WeekDay != "" {
			day = "?"
		}
	}
	return fmt.Sprintf("cron(%s %s %s %s %s %s)",
		or(o.Minute, "*"), or(o.Hour, "*"), day, or(o.Month, "*"), or(o.WeekDay, "?"), or(o.Year, "*")), nil
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Target is one rule target.
type Target struct {
	Id      string
	Arn     any
	RoleArn any
	Input   any
}

// Rule is an AWS::Events::Rule.
type Rule struct {
	stack.Construct    `json:"-"`
	Name               string
	Description        string
	State              string
	ScheduleExpression string
	EventPattern       map[string]any
	Targets            []Target
}

func (*Rule) ResourceType() string { return "AWS::Events::Rule" }

// Arn returns the rule ARN.
func (r *Rule) Arn() any { return r.GetAtt("Arn") }

// RuleProps configures AddEventRule. Cron fields default to minute 0,
// hour 6 and "*" elsewhere.
type RuleProps struct {
	Minute  string
	Hour    string
	Month   string
	WeekDay string
	Year    string
	// Input is sent to the target as JSON; default {}.
	Input map[string]any
	// Target is state_machine (default) or lambda.
	Target      string
	Description string
	Enabled     *bool
}

// AddEventRule declares rule "profile-for-event-<name>" running target on a
// cron schedule.
func AddEventRule(st *stack.Stack, name string, target any, props RuleProps) (*Rule, error) {
	schedule, err := Cron(CronOptions{
		Minute:  or(props.Minute, "0"),
		Hour:    or(props.Hour, "6"),
		Month:   or(props.Month, "*"),
		WeekDay: or(props.WeekDay, "*"),
		Year:    or(props.Year, "*"),
	})
	if err != nil {
		return nil, err
	}

	input := props.Input
	if input == nil {
		input = map[string]any{}
	}
	data, err := intrinsics.JSONString(input)
	if err != nil {
		return nil, fmt.Errorf("event rule %q input: %w", name, err)
	}

	rule := &Rule{
		Description:        props.Description,
		State:              "ENABLED",
		ScheduleExpression: schedule,
	}
	if props.Enabled != nil && !*props.Enabled {
		rule.State = "DISABLED"
	}

	kind := or(props.Target, TargetStateMachine)
	switch kind {
	case TargetStateMachine:
		sm, ok := target.(StateMachine)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a state machine", ErrUnknownTarget, target)
		}
		if err := st.Add("profile-for-event-"+name, rule); err != nil {
			return nil, err
		}
		role, err := iam.NewRole(st, rule.ID()+"-EventsRole", iam.RoleProps{
			AssumedBy:  intrinsics.ServicePrincipal{"events.amazonaws.com"},
			Statements: []*intrinsics.PolicyStatement{iam.PolicyStatement([]string{"states:StartExecution"}, sm.Arn())},
		})
		if err != nil {
			return nil, err
		}
		rule.Targets = []Target{{Id: "Target0", Arn: sm.Arn(), RoleArn: role.Arn(), Input: data}}

	case TargetLambda:
		fn, ok := target.(lambda.IFunction)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a function", ErrUnknownTarget, target)
		}
		if err := st.Add("profile-for-event-"+name, rule); err != nil {
			return nil, err
		}
		if _, err := lambda.AddPermission(fn, "AllowEventRule"+rule.LogicalID(), "events.amazonaws.com", rule.Arn()); err != nil {
			return nil, err
		}
		rule.Targets = []Target{{Id: "Target0", Arn: fn.Arn(), Input: data}}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, kind)
	}
	return rule, nil
}
